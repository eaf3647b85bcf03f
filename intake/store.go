package intake

import (
	"context"

	"anonymous-report-service/evidence"
	"anonymous-report-service/models"
)

// ReportStore opens the write transaction of a submission.
type ReportStore interface {
	BeginReport(ctx context.Context) (ReportTx, error)
}

// ReportTx persists one report and its evidence atomically.
type ReportTx interface {
	InsertReport(ctx context.Context, report *models.Report) error
	InsertEvidence(ctx context.Context, ev *models.Evidence) error
	Commit() error
	Rollback() error
}

// AdminLocator resolves the district and admin responsible for a location.
// A nil assignment with a nil error means no district matched.
type AdminLocator interface {
	FindAdminByLocation(ctx context.Context, location string) (*models.AdminAssignment, error)
}

// EvidenceStorage moves uploaded files into permanent storage.
type EvidenceStorage interface {
	Place(file *evidence.UploadedFile) (*evidence.Placed, error)
	Remove(paths ...string)
}

// Publisher announces stored reports to downstream consumers.
type Publisher interface {
	PublishReportSubmitted(event *models.ReportSubmittedEvent) error
}
