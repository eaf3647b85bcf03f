package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"anonymous-report-service/database"
	"anonymous-report-service/evidence"
	"anonymous-report-service/middleware"
	"anonymous-report-service/models"
	"anonymous-report-service/utils"
	"anonymous-report-service/validation"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const maxAdminNotesLength = 2000

// AdminReports is the scoped read/write side used by admin endpoints.
type AdminReports interface {
	ListReports(ctx context.Context, scope models.AdminScope, filter models.ReportFilter) ([]models.AdminReport, models.Pagination, error)
	GetReport(ctx context.Context, scope models.AdminScope, reportID string) (*models.AdminReport, error)
	UpdateStatus(ctx context.Context, scope models.AdminScope, reportID, status, adminNotes string) error
	SetFlag(ctx context.Context, scope models.AdminScope, reportID string, flagged bool, reason string) error
	ListEvidence(ctx context.Context, scope models.AdminScope, reportID string) ([]models.Evidence, error)
	GetEvidence(ctx context.Context, scope models.AdminScope, reportID string, evidenceID int64) (*models.Evidence, error)
	GetStats(ctx context.Context, scope models.AdminScope) (*models.ReportStats, error)
}

// EvidenceFiles opens stored evidence by its relative path.
type EvidenceFiles interface {
	Open(relPath string) (*os.File, error)
}

type AdminHandler struct {
	reports AdminReports
	files   EvidenceFiles
}

func NewAdminHandler(reports AdminReports, files EvidenceFiles) *AdminHandler {
	return &AdminHandler{
		reports: reports,
		files:   files,
	}
}

// ListReports handles GET /api/admin/anonymous-reports.
func (h *AdminHandler) ListReports(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && !validation.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Invalid status"})
		return
	}

	reports, pagination, err := h.reports.ListReports(c.Request.Context(), scope, models.ReportFilter{
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.serverError(c, "list anonymous reports", err)
		return
	}

	c.JSON(http.StatusOK, models.ReportsResponse{Success: true, Reports: reports, Pagination: pagination})
}

// GetReport handles GET /api/admin/anonymous-reports/:reportId.
func (h *AdminHandler) GetReport(c *gin.Context) {
	scope, reportID, ok := h.scopedReport(c)
	if !ok {
		return
	}

	report, err := h.reports.GetReport(c.Request.Context(), scope, reportID)
	if err != nil {
		h.lookupError(c, "get anonymous report", err)
		return
	}

	items, err := h.reports.ListEvidence(c.Request.Context(), scope, reportID)
	if err != nil {
		h.lookupError(c, "list anonymous evidence", err)
		return
	}

	c.JSON(http.StatusOK, models.ReportDetailsResponse{Success: true, Report: *report, Evidence: items})
}

// UpdateStatus handles PUT /api/admin/anonymous-reports/:reportId/status.
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	scope, reportID, ok := h.scopedReport(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Invalid request body"})
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !validation.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Invalid status"})
		return
	}
	if len([]rune(req.AdminNotes)) > maxAdminNotesLength {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Admin notes must be less than 2000 characters"})
		return
	}

	err := h.reports.UpdateStatus(c.Request.Context(), scope, reportID, status, utils.SanitizeText(req.AdminNotes))
	if err != nil {
		h.lookupError(c, "update anonymous report status", err)
		return
	}

	log.Infof("Anonymous report %s set to %s by %s", reportID, status, scope.Username)
	c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "Report status updated successfully"})
}

// FlagReport handles PATCH /api/admin/anonymous-reports/:reportId/flag.
func (h *AdminHandler) FlagReport(c *gin.Context) {
	scope, reportID, ok := h.scopedReport(c)
	if !ok {
		return
	}

	var req models.FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Invalid request body"})
		return
	}

	err := h.reports.SetFlag(c.Request.Context(), scope, reportID, req.Flagged, utils.SanitizeText(req.FlagReason))
	if err != nil {
		h.lookupError(c, "flag anonymous report", err)
		return
	}

	message := "Report unflagged"
	if req.Flagged {
		message = "Report flagged"
	}
	c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: message})
}

// ListEvidence handles GET /api/admin/anonymous-reports/:reportId/evidence.
func (h *AdminHandler) ListEvidence(c *gin.Context) {
	scope, reportID, ok := h.scopedReport(c)
	if !ok {
		return
	}

	items, err := h.reports.ListEvidence(c.Request.Context(), scope, reportID)
	if err != nil {
		h.lookupError(c, "list anonymous evidence", err)
		return
	}

	c.JSON(http.StatusOK, models.EvidenceResponse{Success: true, Evidence: items})
}

// DownloadEvidence streams one stored evidence file as an attachment.
func (h *AdminHandler) DownloadEvidence(c *gin.Context) {
	scope, reportID, ok := h.scopedReport(c)
	if !ok {
		return
	}
	evidenceID, err := strconv.ParseInt(c.Param("evidenceId"), 10, 64)
	if err != nil || evidenceID <= 0 {
		notFound(c)
		return
	}

	ev, err := h.reports.GetEvidence(c.Request.Context(), scope, reportID, evidenceID)
	if err != nil {
		h.lookupError(c, "get anonymous evidence", err)
		return
	}

	f, err := h.files.Open(ev.FilePath)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, evidence.ErrInvalidPath) {
			log.Warnf("Evidence %d of %s is missing from storage", ev.ID, reportID)
			notFound(c)
			return
		}
		h.serverError(c, "open evidence file", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.serverError(c, "stat evidence file", err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": ev.OriginalName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, info.Size(), ev.MimeType, f, map[string]string{
		"Content-Disposition": disposition,
	})
}

// GetStats handles GET /api/admin/anonymous-report-stats.
func (h *AdminHandler) GetStats(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	stats, err := h.reports.GetStats(c.Request.Context(), scope)
	if err != nil {
		h.serverError(c, "anonymous report stats", err)
		return
	}

	c.JSON(http.StatusOK, models.StatsResponse{Success: true, Statistics: *stats})
}

func (h *AdminHandler) scope(c *gin.Context) (models.AdminScope, bool) {
	scope, ok := middleware.AdminScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: "Admin authentication required"})
		return models.AdminScope{}, false
	}
	return scope, true
}

func (h *AdminHandler) scopedReport(c *gin.Context) (models.AdminScope, string, bool) {
	scope, ok := h.scope(c)
	if !ok {
		return models.AdminScope{}, "", false
	}
	reportID := c.Param("reportId")
	if !utils.IsValidReportID(reportID) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_report_id", Message: "Invalid report ID format"})
		return models.AdminScope{}, "", false
	}
	return scope, reportID, true
}

func (h *AdminHandler) lookupError(c *gin.Context, operation string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		notFound(c)
		return
	}
	h.serverError(c, operation, err)
}

func (h *AdminHandler) serverError(c *gin.Context, operation string, err error) {
	log.Errorf("Failed to %s: %v", operation, err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "server_error", Message: "An unexpected error occurred. Please try again later."})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Report not found or not accessible"})
}
