package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"anonymous-report-service/intake"
	"anonymous-report-service/models"

	"github.com/apex/log"
)

// ErrNotFound is returned when a row does not exist or is outside the caller's scope.
var ErrNotFound = errors.New("not found")

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// scopePredicate limits admin queries to reports routed to the admin, to the
// admin's district, or not routed at all.
const scopePredicate = `(r.assigned_admin = ? OR r.district_name = ? OR (r.assigned_admin IS NULL AND r.district_name IS NULL))`

const adminReportColumns = `r.report_id, r.crime_type, r.description, r.incident_date, r.incident_time,
	r.location_address, r.latitude, r.longitude, r.district_name, r.assigned_admin,
	r.suspect_description, r.additional_notes, r.status, r.admin_notes, r.is_flagged, r.flag_reason,
	r.submitted_at, r.reviewed_at, r.reviewed_by,
	(SELECT COUNT(*) FROM anonymous_evidence e WHERE e.report_id = r.report_id) AS evidence_count`

type ReportsService struct {
	db *sql.DB
}

func NewReportsService(db *sql.DB) *ReportsService {
	return &ReportsService{db: db}
}

// BeginReport starts the transaction holding a report and its evidence rows.
func (s *ReportsService) BeginReport(ctx context.Context) (intake.ReportTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Errorf("Error creating transaction: %v", err)
		return nil, err
	}
	return &reportTx{tx: tx}, nil
}

type reportTx struct {
	tx *sql.Tx
}

func (t *reportTx) InsertReport(ctx context.Context, r *models.Report) error {
	result, err := t.tx.ExecContext(ctx, `INSERT INTO anonymous_reports
		(report_id, crime_type, description, incident_date, incident_time, location_address,
		 latitude, longitude, district_name, assigned_admin, suspect_description, additional_notes,
		 ip_hash, content_hash, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ReportID, r.CrimeType, r.Description, r.IncidentDate, r.IncidentTime, r.LocationAddress,
		models.NullFloat(r.Latitude), models.NullFloat(r.Longitude),
		models.NullString(r.DistrictName), models.NullString(r.AssignedAdmin),
		models.NullString(r.SuspectDescription), models.NullString(r.AdditionalNotes),
		models.NullString(r.IPHash), models.NullString(r.ContentHash), r.Status)
	logResult("insertAnonymousReport", result, err)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ReportID, err)
	}
	return nil
}

func (t *reportTx) InsertEvidence(ctx context.Context, ev *models.Evidence) error {
	result, err := t.tx.ExecContext(ctx, `INSERT INTO anonymous_evidence
		(report_id, original_name, stored_name, file_path, file_type, file_size, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ReportID, ev.OriginalName, ev.StoredName, ev.FilePath, ev.FileType, ev.FileSize, ev.MimeType)
	logResult("insertAnonymousEvidence", result, err)
	if err != nil {
		return fmt.Errorf("insert evidence for %s: %w", ev.ReportID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

func (t *reportTx) Commit() error {
	return t.tx.Commit()
}

func (t *reportTx) Rollback() error {
	return t.tx.Rollback()
}

// FindAdminByLocation returns the first district whose name occurs in the
// location text, case-insensitively. Ties resolve by district then username.
func (s *ReportsService) FindAdminByLocation(ctx context.Context, location string) (*models.AdminAssignment, error) {
	var username, district string
	err := s.db.QueryRowContext(ctx, `SELECT username, district_name FROM admins
		WHERE district_name IS NOT NULL AND district_name <> ''
		AND LOWER(?) LIKE CONCAT('%', LOWER(district_name), '%')
		ORDER BY district_name, username
		LIMIT 1`, location).Scan(&username, &district)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find admin by location: %w", err)
	}
	return &models.AdminAssignment{AdminUsername: username, DistrictName: district}, nil
}

// GetReportStatus returns the public status view of a report.
func (s *ReportsService) GetReportStatus(ctx context.Context, reportID string) (*models.ReportStatus, error) {
	var (
		status     models.ReportStatus
		reviewedAt sql.NullTime
		district   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT r.report_id, r.crime_type, r.status, r.submitted_at, r.reviewed_at, r.district_name,
		(SELECT COUNT(*) FROM anonymous_evidence e WHERE e.report_id = r.report_id)
		FROM anonymous_reports r WHERE r.report_id = ?`, reportID).
		Scan(&status.ReportID, &status.CrimeType, &status.Status, &status.SubmittedAt, &reviewedAt, &district, &status.EvidenceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report status %s: %w", reportID, err)
	}
	status.ReviewedAt = nullTimePtr(reviewedAt)
	status.District = nullStringPtr(district)
	return &status, nil
}

// GetAdminDistrict returns the district of an admin, empty when unassigned.
func (s *ReportsService) GetAdminDistrict(ctx context.Context, username string) (string, error) {
	var district sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT district_name FROM admins WHERE username = ?`, username).Scan(&district)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get admin district: %w", err)
	}
	return district.String, nil
}

// ListReports returns one page of reports visible to the admin, newest first.
func (s *ReportsService) ListReports(ctx context.Context, scope models.AdminScope, filter models.ReportFilter) ([]models.AdminReport, models.Pagination, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)
	where := scopePredicate
	args := []any{scope.Username, scope.District}
	if filter.Status != "" {
		where += " AND r.status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anonymous_reports r WHERE "+where, args...).Scan(&total); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("count reports: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+adminReportColumns+" FROM anonymous_reports r WHERE "+where+
		" ORDER BY r.submitted_at DESC LIMIT ? OFFSET ?", append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []models.AdminReport{}
	for rows.Next() {
		report, err := scanAdminReport(rows)
		if err != nil {
			return nil, models.Pagination{}, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Pagination{}, err
	}

	return reports, models.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// GetReport returns a report visible to the admin. Hashes are never selected.
func (s *ReportsService) GetReport(ctx context.Context, scope models.AdminScope, reportID string) (*models.AdminReport, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+adminReportColumns+" FROM anonymous_reports r WHERE r.report_id = ? AND "+scopePredicate,
		reportID, scope.Username, scope.District)
	report, err := scanAdminReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	return report, nil
}

// UpdateStatus records an admin review. Reports outside the scope are not found.
func (s *ReportsService) UpdateStatus(ctx context.Context, scope models.AdminScope, reportID, status, adminNotes string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE anonymous_reports r
		SET r.status = ?, r.admin_notes = ?, r.reviewed_at = NOW(), r.reviewed_by = ?
		WHERE r.report_id = ? AND `+scopePredicate,
		status, models.NullString(adminNotes), scope.Username, reportID, scope.Username, scope.District)
	logResult("updateAnonymousReportStatus", result, err)
	return affectedOrNotFound(result, err)
}

// SetFlag flags or unflags a report. Unflagging clears the reason.
func (s *ReportsService) SetFlag(ctx context.Context, scope models.AdminScope, reportID string, flagged bool, reason string) error {
	if !flagged {
		reason = ""
	}
	result, err := s.db.ExecContext(ctx, `UPDATE anonymous_reports r
		SET r.is_flagged = ?, r.flag_reason = ?
		WHERE r.report_id = ? AND `+scopePredicate,
		flagged, models.NullString(reason), reportID, scope.Username, scope.District)
	logResult("flagAnonymousReport", result, err)
	return affectedOrNotFound(result, err)
}

// ListEvidence returns the evidence of a report visible to the admin.
func (s *ReportsService) ListEvidence(ctx context.Context, scope models.AdminScope, reportID string) ([]models.Evidence, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM anonymous_reports r WHERE r.report_id = ? AND "+scopePredicate,
		reportID, scope.Username, scope.District).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check report %s: %w", reportID, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, report_id, original_name, stored_name, file_path, file_type, file_size, mime_type, uploaded_at
		FROM anonymous_evidence WHERE report_id = ? ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list evidence %s: %w", reportID, err)
	}
	defer rows.Close()

	evidence := []models.Evidence{}
	for rows.Next() {
		var ev models.Evidence
		if err := rows.Scan(&ev.ID, &ev.ReportID, &ev.OriginalName, &ev.StoredName, &ev.FilePath, &ev.FileType, &ev.FileSize, &ev.MimeType, &ev.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		evidence = append(evidence, ev)
	}
	return evidence, rows.Err()
}

// GetEvidence returns one evidence row of a report visible to the admin.
func (s *ReportsService) GetEvidence(ctx context.Context, scope models.AdminScope, reportID string, evidenceID int64) (*models.Evidence, error) {
	var ev models.Evidence
	err := s.db.QueryRowContext(ctx, `SELECT e.id, e.report_id, e.original_name, e.stored_name, e.file_path, e.file_type, e.file_size, e.mime_type, e.uploaded_at
		FROM anonymous_evidence e JOIN anonymous_reports r ON r.report_id = e.report_id
		WHERE e.id = ? AND e.report_id = ? AND `+scopePredicate,
		evidenceID, reportID, scope.Username, scope.District).
		Scan(&ev.ID, &ev.ReportID, &ev.OriginalName, &ev.StoredName, &ev.FilePath, &ev.FileType, &ev.FileSize, &ev.MimeType, &ev.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence %d: %w", evidenceID, err)
	}
	return &ev, nil
}

// GetStats counts the reports visible to the admin.
func (s *ReportsService) GetStats(ctx context.Context, scope models.AdminScope) (*models.ReportStats, error) {
	var stats models.ReportStats
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(r.status = 'pending'), 0),
		COALESCE(SUM(r.status = 'reviewing'), 0),
		COALESCE(SUM(r.status = 'reviewed'), 0),
		COALESCE(SUM(r.status = 'investigating'), 0),
		COALESCE(SUM(r.status = 'resolved'), 0),
		COALESCE(SUM(r.status = 'dismissed'), 0),
		COALESCE(SUM(r.is_flagged), 0)
		FROM anonymous_reports r WHERE `+scopePredicate, scope.Username, scope.District).
		Scan(&stats.Total, &stats.Pending, &stats.Reviewing, &stats.Reviewed, &stats.Investigating, &stats.Resolved, &stats.Dismissed, &stats.Flagged)
	if err != nil {
		return nil, fmt.Errorf("count report statuses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT r.crime_type, COUNT(*) AS count
		FROM anonymous_reports r WHERE `+scopePredicate+`
		GROUP BY r.crime_type ORDER BY count DESC, r.crime_type`, scope.Username, scope.District)
	if err != nil {
		return nil, fmt.Errorf("count crime types: %w", err)
	}
	defer rows.Close()

	stats.ByType = []models.CrimeTypeCount{}
	for rows.Next() {
		var c models.CrimeTypeCount
		if err := rows.Scan(&c.CrimeType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan crime type count: %w", err)
		}
		stats.ByType = append(stats.ByType, c)
	}
	return &stats, rows.Err()
}

// GetHeatmapPoints returns geolocated reports submitted after since.
func (s *ReportsService) GetHeatmapPoints(ctx context.Context, since time.Time) ([]models.HeatmapPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT latitude, longitude, crime_type, status
		FROM anonymous_reports
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND submitted_at >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("heatmap points: %w", err)
	}
	defer rows.Close()

	points := []models.HeatmapPoint{}
	for rows.Next() {
		var p models.HeatmapPoint
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.CrimeType, &p.Status); err != nil {
			return nil, fmt.Errorf("scan heatmap point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAdminReport(row scanner) (*models.AdminReport, error) {
	var r models.AdminReport
	var incidentDate time.Time
	var lat, lng sql.NullFloat64
	var district, admin, suspect, notes, adminNotes, flagReason, reviewedBy sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(&r.ReportID, &r.CrimeType, &r.Description, &incidentDate, &r.IncidentTime,
		&r.LocationAddress, &lat, &lng, &district, &admin,
		&suspect, &notes, &r.Status, &adminNotes, &r.IsFlagged, &flagReason,
		&r.SubmittedAt, &reviewedAt, &reviewedBy, &r.EvidenceCount)
	if err != nil {
		return nil, err
	}
	r.IncidentDate = incidentDate.Format(time.DateOnly)
	r.Latitude = nullFloatPtr(lat)
	r.Longitude = nullFloatPtr(lng)
	r.DistrictName = nullStringPtr(district)
	r.AssignedAdmin = nullStringPtr(admin)
	r.SuspectDescription = nullStringPtr(suspect)
	r.AdditionalNotes = nullStringPtr(notes)
	r.AdminNotes = nullStringPtr(adminNotes)
	r.FlagReason = nullStringPtr(flagReason)
	r.ReviewedAt = nullTimePtr(reviewedAt)
	r.ReviewedBy = nullStringPtr(reviewedBy)
	return &r, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func affectedOrNotFound(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

func logResult(operation string, result sql.Result, err error) {
	if err != nil {
		log.Errorf("Error in %s: %v", operation, err)
		return
	}
	rowsAffected, _ := result.RowsAffected()
	log.Infof("%s: %d rows affected", operation, rowsAffected)
}
