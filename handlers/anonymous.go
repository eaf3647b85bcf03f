package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"anonymous-report-service/config"
	"anonymous-report-service/database"
	"anonymous-report-service/evidence"
	"anonymous-report-service/heatmap"
	"anonymous-report-service/intake"
	"anonymous-report-service/models"
	"anonymous-report-service/utils"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const (
	evidenceField     = "evidence"
	formOverheadBytes = 1 << 20
)

var statusMessages = map[string]string{
	models.StatusPending:       "Your report is awaiting review by authorities.",
	models.StatusReviewing:     "Your report is currently being reviewed.",
	models.StatusReviewed:      "Your report has been reviewed and noted.",
	models.StatusInvestigating: "Authorities are investigating this matter.",
	models.StatusResolved:      "This case has been resolved.",
	models.StatusDismissed:     "This report could not be verified or processed.",
}

func statusMessage(status string) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "Status unknown"
}

// Submitter accepts anonymous report submissions.
type Submitter interface {
	Submit(ctx context.Context, sub *intake.Submission) (*intake.Receipt, error)
}

// PublicReports serves the read side of the public endpoints.
type PublicReports interface {
	GetReportStatus(ctx context.Context, reportID string) (*models.ReportStatus, error)
	GetHeatmapPoints(ctx context.Context, since time.Time) ([]models.HeatmapPoint, error)
}

type AnonymousReportHandler struct {
	cfg       *config.Config
	submitter Submitter
	reports   PublicReports
	now       func() time.Time
}

func NewAnonymousReportHandler(cfg *config.Config, submitter Submitter, reports PublicReports) *AnonymousReportHandler {
	return &AnonymousReportHandler{
		cfg:       cfg,
		submitter: submitter,
		reports:   reports,
		now:       time.Now,
	}
}

// HealthCheck returns a simple health status
func (h *AnonymousReportHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "anonymous-report-service",
	})
}

// SubmitReport handles POST /api/anonymous-report.
func (h *AnonymousReportHandler) SubmitReport(c *gin.Context) {
	maxBody := int64(h.cfg.MaxEvidenceFiles)*h.cfg.MaxEvidenceFileBytes + formOverheadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, intake.ValidationError(h.fileTooLargeMessage()))
			return
		}
		log.Warnf("Failed to parse anonymous report form: %v", err)
		writeError(c, intake.ValidationError("Invalid form data"))
		return
	}
	if form != nil {
		defer form.RemoveAll()
	}

	var files []*evidence.UploadedFile
	if form != nil {
		headers := form.File[evidenceField]
		if len(headers) > h.cfg.MaxEvidenceFiles {
			writeError(c, intake.ValidationError(fmt.Sprintf("Too many files. Maximum is %d files.", h.cfg.MaxEvidenceFiles)))
			return
		}
		for _, fh := range headers {
			if fh.Size > h.cfg.MaxEvidenceFileBytes {
				writeError(c, intake.ValidationError(h.fileTooLargeMessage()))
				return
			}
		}
		for _, fh := range headers {
			staged, err := evidence.StageUpload(fh, h.cfg.UploadTmpDir)
			if err != nil {
				evidence.DiscardUploads(files)
				writeError(c, intake.ServerError(fmt.Errorf("stage upload: %w", err)))
				log.Errorf("Failed to stage evidence upload: %v", err)
				return
			}
			files = append(files, staged)
		}
	}

	sub := &intake.Submission{
		ClientIP:           utils.ClientIP(c.Request),
		CrimeType:          c.PostForm("crimeType"),
		Description:        c.PostForm("description"),
		IncidentDate:       c.PostForm("incidentDate"),
		IncidentTime:       c.PostForm("incidentTime"),
		Location:           c.PostForm("location"),
		SuspectDescription: c.PostForm("suspectDescription"),
		AdditionalNotes:    c.PostForm("additionalNotes"),
		CaptchaAnswer:      c.PostForm("captchaAnswer"),
		CaptchaExpected:    c.PostForm("captchaExpected"),
		Latitude:           parseCoordinate(c.PostForm("latitude")),
		Longitude:          parseCoordinate(c.PostForm("longitude")),
		Files:              files,
	}

	receipt, err := h.submitter.Submit(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SubmitResponse{
		Success:       true,
		ReportID:      receipt.ReportID,
		Message:       receipt.Message,
		EvidenceCount: receipt.EvidenceCount,
	})
}

// GetReportStatus handles GET /api/anonymous-report/:reportId/status.
func (h *AnonymousReportHandler) GetReportStatus(c *gin.Context) {
	reportID := c.Param("reportId")
	if !utils.IsValidReportID(reportID) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_report_id", Message: "Invalid report ID format"})
		return
	}

	status, err := h.reports.GetReportStatus(c.Request.Context(), reportID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Report not found. Please check your report ID."})
		return
	}
	if err != nil {
		log.Errorf("Status check error for %s: %v", reportID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "server_error", Message: "Unable to check report status. Please try again later."})
		return
	}

	status.StatusMessage = statusMessage(status.Status)
	c.JSON(http.StatusOK, models.StatusResponse{Success: true, Report: status})
}

// GetHeatmapData handles GET /api/anonymous-heatmap-data. Points are
// snapped to cells so exact report locations are never published.
func (h *AnonymousReportHandler) GetHeatmapData(c *gin.Context) {
	since := h.now().AddDate(0, -h.cfg.HeatmapMonths, 0)
	points, err := h.reports.GetHeatmapPoints(c.Request.Context(), since)
	if err != nil {
		log.Errorf("Failed to load heatmap points: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "server_error", Message: "Unable to load heatmap data. Please try again later."})
		return
	}

	cells := heatmap.Aggregate(points, h.cfg.HeatmapCellLevel)
	if strings.EqualFold(c.Query("format"), "geojson") {
		c.JSON(http.StatusOK, heatmap.FeatureCollection(cells))
		return
	}
	c.JSON(http.StatusOK, models.HeatmapResponse{Success: true, Data: cells})
}

func (h *AnonymousReportHandler) fileTooLargeMessage() string {
	return fmt.Sprintf("File too large. Maximum size is %dMB.", h.cfg.MaxEvidenceFileBytes/(1024*1024))
}

// parseCoordinate returns nil for empty or malformed values.
func parseCoordinate(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func writeError(c *gin.Context, err error) {
	var ierr *intake.Error
	if !errors.As(err, &ierr) {
		ierr = intake.ServerError(err)
	}
	c.JSON(ierr.HTTPStatus, models.ErrorResponse{Success: false, Error: ierr.Code, Message: ierr.Message})
}
