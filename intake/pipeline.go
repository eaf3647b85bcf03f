// Package intake runs anonymous report submissions from abuse checks to storage.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anonymous-report-service/abuse"
	"anonymous-report-service/evidence"
	"anonymous-report-service/geocode"
	"anonymous-report-service/metrics"
	"anonymous-report-service/models"
	"anonymous-report-service/utils"
	"anonymous-report-service/validation"

	"github.com/apex/log"
)

const successMessage = "Your anonymous report has been submitted successfully."

// Submission is one anonymous report as received from the client.
type Submission struct {
	ClientIP           string
	CrimeType          string
	Description        string
	IncidentDate       string
	IncidentTime       string
	Location           string
	SuspectDescription string
	AdditionalNotes    string
	CaptchaAnswer      string
	CaptchaExpected    string
	Latitude           *float64
	Longitude          *float64
	Files              []*evidence.UploadedFile
}

// Receipt is returned to the submitter of an accepted report.
type Receipt struct {
	ReportID      string
	Message       string
	EvidenceCount int
}

// Config holds the pipeline settings.
type Config struct {
	IPHashSalt      string
	ContentHashSalt string
	MaxSubmissions  int
	GeocodeTimeout  time.Duration
	Location        *time.Location
}

type Pipeline struct {
	cfg       Config
	reports   ReportStore
	abuse     abuse.Store
	locker    abuse.Locker
	admins    AdminLocator
	storage   EvidenceStorage
	geocoder  geocode.Geocoder
	publisher Publisher
	now       func() time.Time
}

type Option func(*Pipeline)

// WithGeocoder enables best-effort geocoding of reports without coordinates.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// WithPublisher enables report.submitted events.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(cfg Config, reports ReportStore, abuseStore abuse.Store, locker abuse.Locker,
	admins AdminLocator, storage EvidenceStorage, opts ...Option) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Pipeline{
		cfg:     cfg,
		reports: reports,
		abuse:   abuseStore,
		locker:  locker,
		admins:  admins,
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit runs a submission through every stage. All returned errors are *Error.
// Staged upload files are always removed before Submit returns.
func (p *Pipeline) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	start := time.Now()
	defer evidence.DiscardUploads(sub.Files)

	receipt, err := p.submit(ctx, sub)

	outcome := "success"
	if err != nil {
		var ierr *Error
		if !errors.As(err, &ierr) {
			ierr = ServerError(err)
			err = ierr
		}
		outcome = ierr.Code
		if ierr.Code == CodeServerError {
			log.Errorf("Anonymous report submission failed: %v", ierr.Err)
		}
	}
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	metrics.SubmissionDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return receipt, err
}

func (p *Pipeline) submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	ipHash := utils.HashIP(sub.ClientIP, p.cfg.IPHashSalt)

	// The lock spans the quota check through bookkeeping so concurrent
	// submissions from one client cannot exceed the quota.
	if ipHash != "" {
		unlock, err := p.locker.Lock(ctx, ipHash)
		if err != nil {
			return nil, ServerError(fmt.Errorf("acquire submission lock: %w", err))
		}
		defer unlock()

		allowed, err := p.abuse.CheckRateLimit(ctx, ipHash)
		if err != nil {
			return nil, ServerError(err)
		}
		if !allowed {
			return nil, RateLimitError(p.cfg.MaxSubmissions)
		}
	}

	answer, expected := strings.TrimSpace(sub.CaptchaAnswer), strings.TrimSpace(sub.CaptchaExpected)
	if answer == "" || expected == "" || answer != expected {
		return nil, CaptchaError()
	}

	result := validation.Validate(validation.ReportFields{
		CrimeType:          sub.CrimeType,
		Description:        sub.Description,
		IncidentDate:       sub.IncidentDate,
		IncidentTime:       sub.IncidentTime,
		Location:           sub.Location,
		SuspectDescription: sub.SuspectDescription,
		AdditionalNotes:    sub.AdditionalNotes,
	}, p.now().In(p.cfg.Location))
	if !result.Valid {
		return nil, ValidationError(result.Message())
	}

	if len(sub.Files) == 0 {
		return nil, NoEvidenceError()
	}

	contentHash := utils.HashContent(
		utils.FingerprintInput(sub.CrimeType, sub.Description, sub.IncidentDate, sub.Location),
		p.cfg.ContentHashSalt)
	if ipHash != "" && contentHash != "" {
		duplicate, err := p.abuse.CheckDuplicate(ctx, contentHash, ipHash)
		if err != nil {
			return nil, ServerError(err)
		}
		if duplicate {
			return nil, DuplicateError()
		}
	}

	reportID, err := utils.GenerateReportID(p.now())
	if err != nil {
		return nil, ServerError(fmt.Errorf("generate report id: %w", err))
	}

	report := p.enrich(ctx, sub, reportID)
	report.IPHash = ipHash
	report.ContentHash = contentHash

	evidenceCount, err := p.persist(ctx, report, sub.Files)
	if err != nil {
		return nil, ServerError(err)
	}
	log.Infof("Anonymous report submitted: %s", reportID)

	// The report is stored; bookkeeping failures only weaken abuse protection.
	if ipHash != "" {
		if err := p.abuse.RecordSubmission(ctx, ipHash); err != nil {
			log.Errorf("Failed to record rate limit entry for %s: %v", reportID, err)
		}
		if contentHash != "" {
			if err := p.abuse.RecordSubmissionHash(ctx, contentHash, ipHash); err != nil {
				log.Errorf("Failed to record submission hash for %s: %v", reportID, err)
			}
		}
	}

	p.publish(report, evidenceCount)

	return &Receipt{
		ReportID:      reportID,
		Message:       successMessage,
		EvidenceCount: evidenceCount,
	}, nil
}

// enrich builds the stored report: sanitized text, routing and coordinates.
func (p *Pipeline) enrich(ctx context.Context, sub *Submission, reportID string) *models.Report {
	report := &models.Report{
		ReportID:           reportID,
		CrimeType:          strings.ToLower(strings.TrimSpace(sub.CrimeType)),
		Description:        utils.SanitizeText(sub.Description),
		IncidentDate:       normalizeDate(sub.IncidentDate, p.cfg.Location),
		IncidentTime:       strings.TrimSpace(sub.IncidentTime),
		LocationAddress:    utils.SanitizeText(sub.Location),
		SuspectDescription: utils.SanitizeText(sub.SuspectDescription),
		AdditionalNotes:    utils.SanitizeText(sub.AdditionalNotes),
		Status:             models.StatusPending,
		SubmittedAt:        p.now(),
	}

	assignment, err := p.admins.FindAdminByLocation(ctx, report.LocationAddress)
	if err != nil {
		log.Warnf("Admin lookup failed for %s: %v", reportID, err)
	} else if assignment != nil {
		report.DistrictName = assignment.DistrictName
		report.AssignedAdmin = assignment.AdminUsername
	}

	if validCoordinates(sub.Latitude, sub.Longitude) {
		report.Latitude, report.Longitude = sub.Latitude, sub.Longitude
	} else if p.geocoder != nil {
		gctx, cancel := context.WithTimeout(ctx, p.cfg.GeocodeTimeout)
		coords, err := p.geocoder.Geocode(gctx, report.LocationAddress)
		cancel()
		if err != nil {
			metrics.GeocodeFailuresTotal.Inc()
			log.Warnf("Geocoding failed for %s: %v", reportID, err)
		} else if coords != nil {
			report.Latitude, report.Longitude = &coords.Latitude, &coords.Longitude
		}
	}
	return report
}

// persist stores the report and its evidence in one transaction. On failure the
// transaction is rolled back and every file already moved is removed again.
func (p *Pipeline) persist(ctx context.Context, report *models.Report, files []*evidence.UploadedFile) (int, error) {
	tx, err := p.reports.BeginReport(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin report transaction: %w", err)
	}

	var moved []string
	fail := func(err error) (int, error) {
		if rerr := tx.Rollback(); rerr != nil {
			log.Warnf("Rollback of %s failed: %v", report.ReportID, rerr)
		}
		p.storage.Remove(moved...)
		return 0, err
	}

	if err := tx.InsertReport(ctx, report); err != nil {
		return fail(err)
	}

	for _, file := range files {
		placed, err := p.storage.Place(file)
		if err != nil {
			return fail(fmt.Errorf("place evidence: %w", err))
		}
		moved = append(moved, placed.FilePath)

		err = tx.InsertEvidence(ctx, &models.Evidence{
			ReportID:     report.ReportID,
			OriginalName: file.OriginalName,
			StoredName:   placed.StoredName,
			FilePath:     placed.FilePath,
			FileType:     placed.FileType,
			FileSize:     placed.Size,
			MimeType:     file.MimeType,
		})
		if err != nil {
			return fail(err)
		}
		metrics.EvidenceFilesTotal.WithLabelValues(placed.FileType).Inc()
	}

	if err := tx.Commit(); err != nil {
		p.storage.Remove(moved...)
		return 0, fmt.Errorf("commit report %s: %w", report.ReportID, err)
	}
	return len(files), nil
}

func (p *Pipeline) publish(report *models.Report, evidenceCount int) {
	if p.publisher == nil {
		return
	}
	event := &models.ReportSubmittedEvent{
		ReportID:      report.ReportID,
		CrimeType:     report.CrimeType,
		DistrictName:  report.DistrictName,
		AssignedAdmin: report.AssignedAdmin,
		EvidenceCount: evidenceCount,
		SubmittedAt:   report.SubmittedAt,
	}
	if err := p.publisher.PublishReportSubmitted(event); err != nil {
		metrics.PublishErrorsTotal.Inc()
		log.Warnf("Failed to publish report event for %s: %v", report.ReportID, err)
	}
}

func validCoordinates(lat, lng *float64) bool {
	return lat != nil && lng != nil &&
		*lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

// normalizeDate stores the validated incident date as YYYY-MM-DD.
func normalizeDate(value string, loc *time.Location) string {
	if d, ok := validation.ParseIncidentDate(value, loc); ok {
		return d.Format(time.DateOnly)
	}
	return strings.TrimSpace(value)
}
