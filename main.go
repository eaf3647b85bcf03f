package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonymous-report-service/config"
	"anonymous-report-service/metrics"
	"anonymous-report-service/middleware"
	"anonymous-report-service/service"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	svc, err := service.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	if err := svc.Start(); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	router := setupRouter(cfg, svc)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Drain requests before the database goes away.
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if err := svc.Stop(); err != nil {
		log.Errorf("Error stopping service: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, svc *service.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/evidence/\d+/file$`})))
	router.Use(middleware.SecurityHeaders(), middleware.CORSMiddleware())

	public := svc.PublicHandlers()
	admin := svc.AdminHandlers()

	router.GET("/health", public.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/anonymous-report", public.SubmitReport)
		api.GET("/anonymous-report/:reportId/status", public.GetReportStatus)
		api.GET("/anonymous-heatmap-data", public.GetHeatmapData)

		adminGroup := api.Group("/admin")
		adminGroup.Use(middleware.AdminAuthMiddleware([]byte(cfg.JWTSecret), svc.Reports()))
		{
			adminGroup.GET("/anonymous-reports", admin.ListReports)
			adminGroup.GET("/anonymous-reports/:reportId", admin.GetReport)
			adminGroup.PUT("/anonymous-reports/:reportId/status", admin.UpdateStatus)
			adminGroup.PATCH("/anonymous-reports/:reportId/flag", admin.FlagReport)
			adminGroup.GET("/anonymous-reports/:reportId/evidence", admin.ListEvidence)
			adminGroup.GET("/anonymous-reports/:reportId/evidence/:evidenceId/file", admin.DownloadEvidence)
			adminGroup.GET("/anonymous-report-stats", admin.GetStats)
		}
	}

	return router
}
