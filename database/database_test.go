package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"anonymous-report-service/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var testScope = models.AdminScope{Username: "admin_dhaka", District: "Dhanmondi"}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestInitSchema(t *testing.T) {
	it(func() {
		mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS admins")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT version FROM schema_migrations")).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))
		mock.ExpectExec(q("idx_anonymous_reports_heatmap")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO schema_migrations (version) VALUES (?)")).
			WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))

		if err := InitSchema(db); err != nil {
			t.Fatalf("InitSchema: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("SELECT version FROM schema_migrations")).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestReportTransaction(t *testing.T) {
	it(func() {
		lat := 23.7461
		report := &models.Report{
			ReportID:        "SV-ABCD123456",
			CrimeType:       "theft",
			Description:     "description",
			IncidentDate:    "2026-06-14",
			IncidentTime:    "14:30",
			LocationAddress: "Road 7, Dhanmondi",
			Latitude:        &lat,
			DistrictName:    "Dhanmondi",
			AssignedAdmin:   "admin_dhaka",
			IPHash:          "iphash",
			ContentHash:     "contenthash",
			Status:          models.StatusPending,
		}
		ev := &models.Evidence{
			ReportID:     report.ReportID,
			OriginalName: "photo.jpg",
			StoredName:   "abc-123.jpg",
			FilePath:     "uploads/anonymous/abc-123.jpg",
			FileType:     models.FileTypeImage,
			FileSize:     1024,
			MimeType:     "image/jpeg",
		}

		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO anonymous_reports")).
			WithArgs(report.ReportID, "theft", "description", "2026-06-14", "14:30", "Road 7, Dhanmondi",
				sql.NullFloat64{Float64: lat, Valid: true}, sql.NullFloat64{},
				sql.NullString{String: "Dhanmondi", Valid: true}, sql.NullString{String: "admin_dhaka", Valid: true},
				sql.NullString{}, sql.NullString{},
				sql.NullString{String: "iphash", Valid: true}, sql.NullString{String: "contenthash", Valid: true}, "pending").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(q("INSERT INTO anonymous_evidence")).
			WithArgs(report.ReportID, "photo.jpg", "abc-123.jpg", "uploads/anonymous/abc-123.jpg", "image", int64(1024), "image/jpeg").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectCommit()

		service := NewReportsService(db)
		ctx := context.Background()
		tx, err := service.BeginReport(ctx)
		if err != nil {
			t.Fatalf("BeginReport: %v", err)
		}
		if err := tx.InsertReport(ctx, report); err != nil {
			t.Fatalf("InsertReport: %v", err)
		}
		if err := tx.InsertEvidence(ctx, ev); err != nil {
			t.Fatalf("InsertEvidence: %v", err)
		}
		if ev.ID != 42 {
			t.Errorf("evidence id = %d, want 42", ev.ID)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestReportTransactionRollback(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO anonymous_evidence")).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		ctx := context.Background()
		tx, err := NewReportsService(db).BeginReport(ctx)
		if err != nil {
			t.Fatalf("BeginReport: %v", err)
		}
		if err := tx.InsertEvidence(ctx, &models.Evidence{ReportID: "SV-X"}); err == nil {
			t.Fatal("expected insert error")
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("Rollback: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestFindAdminByLocation(t *testing.T) {
	it(func() {
		testCases := []struct {
			name     string
			location string
			rows     *sqlmock.Rows
			expected *models.AdminAssignment
		}{
			{
				name:     "district match",
				location: "House 12, Road 7, Dhanmondi",
				rows:     sqlmock.NewRows([]string{"username", "district_name"}).AddRow("admin_dhaka", "Dhanmondi"),
				expected: &models.AdminAssignment{AdminUsername: "admin_dhaka", DistrictName: "Dhanmondi"},
			},
			{
				name:     "no match",
				location: "Somewhere far away",
				rows:     sqlmock.NewRows([]string{"username", "district_name"}),
				expected: nil,
			},
		}

		for _, testCase := range testCases {
			setUp()
			mock.ExpectQuery("SELECT username, district_name FROM admins (.+) ORDER BY district_name, username").
				WithArgs(testCase.location).
				WillReturnRows(testCase.rows)

			got, err := NewReportsService(db).FindAdminByLocation(context.Background(), testCase.location)
			if err != nil {
				t.Fatalf("%s: unexpected error %v", testCase.name, err)
			}
			if (got == nil) != (testCase.expected == nil) || (got != nil && *got != *testCase.expected) {
				t.Errorf("%s: got %+v, want %+v", testCase.name, got, testCase.expected)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("%s: there were unfulfilled expectations: %s", testCase.name, err)
			}
		}
	})
}

func TestGetReportStatus(t *testing.T) {
	it(func() {
		submitted := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(q("FROM anonymous_reports r WHERE r.report_id = ?")).
			WithArgs("SV-ABC").
			WillReturnRows(sqlmock.NewRows([]string{"report_id", "crime_type", "status", "submitted_at", "reviewed_at", "district_name", "count"}).
				AddRow("SV-ABC", "theft", "pending", submitted, nil, "Dhanmondi", 2))

		status, err := NewReportsService(db).GetReportStatus(context.Background(), "SV-ABC")
		if err != nil {
			t.Fatalf("GetReportStatus: %v", err)
		}
		if status.Status != "pending" || status.EvidenceCount != 2 || status.ReviewedAt != nil {
			t.Errorf("unexpected status %+v", status)
		}
		if status.District == nil || *status.District != "Dhanmondi" {
			t.Errorf("unexpected district %v", status.District)
		}
	})
}

func TestGetReportStatusNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("FROM anonymous_reports r WHERE r.report_id = ?")).
			WithArgs("SV-NONE").
			WillReturnError(sql.ErrNoRows)

		_, err := NewReportsService(db).GetReportStatus(context.Background(), "SV-NONE")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestGetAdminDistrict(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("SELECT district_name FROM admins WHERE username = ?")).
			WithArgs("admin_dhaka").
			WillReturnRows(sqlmock.NewRows([]string{"district_name"}).AddRow("Dhanmondi"))
		mock.ExpectQuery(q("SELECT district_name FROM admins WHERE username = ?")).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"district_name"}))

		service := NewReportsService(db)
		district, err := service.GetAdminDistrict(context.Background(), "admin_dhaka")
		if err != nil || district != "Dhanmondi" {
			t.Errorf("got %q, %v", district, err)
		}
		if _, err := service.GetAdminDistrict(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

var adminReportRowColumns = []string{"report_id", "crime_type", "description", "incident_date", "incident_time",
	"location_address", "latitude", "longitude", "district_name", "assigned_admin",
	"suspect_description", "additional_notes", "status", "admin_notes", "is_flagged", "flag_reason",
	"submitted_at", "reviewed_at", "reviewed_by", "evidence_count"}

func TestListReports(t *testing.T) {
	it(func() {
		submitted := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
		incident := time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(q("SELECT COUNT(*) FROM anonymous_reports r WHERE " + scopePredicate + " AND r.status = ?")).
			WithArgs("admin_dhaka", "Dhanmondi", "pending").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
		mock.ExpectQuery(q("ORDER BY r.submitted_at DESC LIMIT ? OFFSET ?")).
			WithArgs("admin_dhaka", "Dhanmondi", "pending", 10, 10).
			WillReturnRows(sqlmock.NewRows(adminReportRowColumns).
				AddRow("SV-ABC", "theft", "desc", incident, "14:30",
					"Road 7, Dhanmondi", 23.7461, 90.3742, "Dhanmondi", nil,
					nil, nil, "pending", nil, false, nil,
					submitted, nil, nil, 1))

		reports, page, err := NewReportsService(db).ListReports(context.Background(), testScope,
			models.ReportFilter{Status: "pending", Page: 2, Limit: 10})
		if err != nil {
			t.Fatalf("ListReports: %v", err)
		}
		if len(reports) != 1 || reports[0].IncidentDate != "2026-06-14" || reports[0].AssignedAdmin != nil {
			t.Errorf("unexpected reports %+v", reports)
		}
		want := models.Pagination{Page: 2, Limit: 10, Total: 21, TotalPages: 3}
		if page != want {
			t.Errorf("pagination = %+v, want %+v", page, want)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestNormalizePage(t *testing.T) {
	testCases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{-1, 1000, 1, 100},
	}
	for _, tc := range testCases {
		p, l := normalizePage(tc.page, tc.limit)
		if p != tc.wantPage || l != tc.wantLimit {
			t.Errorf("normalizePage(%d, %d) = %d, %d", tc.page, tc.limit, p, l)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	it(func() {
		mock.ExpectExec(q("UPDATE anonymous_reports r")).
			WithArgs("investigating", sql.NullString{String: "on it", Valid: true}, "admin_dhaka", "SV-ABC", "admin_dhaka", "Dhanmondi").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("UPDATE anonymous_reports r")).
			WithArgs("resolved", sql.NullString{}, "admin_dhaka", "SV-OTHER", "admin_dhaka", "Dhanmondi").
			WillReturnResult(sqlmock.NewResult(0, 0))

		service := NewReportsService(db)
		if err := service.UpdateStatus(context.Background(), testScope, "SV-ABC", "investigating", "on it"); err != nil {
			t.Errorf("UpdateStatus: %v", err)
		}
		err := service.UpdateStatus(context.Background(), testScope, "SV-OTHER", "resolved", "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("out of scope update: err = %v, want ErrNotFound", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestSetFlagClearsReason(t *testing.T) {
	it(func() {
		mock.ExpectExec(q("SET r.is_flagged = ?, r.flag_reason = ?")).
			WithArgs(false, sql.NullString{}, "SV-ABC", "admin_dhaka", "Dhanmondi").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := NewReportsService(db).SetFlag(context.Background(), testScope, "SV-ABC", false, "spam"); err != nil {
			t.Errorf("SetFlag: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestListEvidenceOutOfScope(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("SELECT 1 FROM anonymous_reports r WHERE r.report_id = ?")).
			WithArgs("SV-ABC", "admin_dhaka", "Dhanmondi").
			WillReturnRows(sqlmock.NewRows([]string{"1"}))

		_, err := NewReportsService(db).ListEvidence(context.Background(), testScope, "SV-ABC")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestListEvidence(t *testing.T) {
	it(func() {
		uploaded := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(q("SELECT 1 FROM anonymous_reports r WHERE r.report_id = ?")).
			WithArgs("SV-ABC", "admin_dhaka", "Dhanmondi").
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectQuery(q("FROM anonymous_evidence WHERE report_id = ? ORDER BY id")).
			WithArgs("SV-ABC").
			WillReturnRows(sqlmock.NewRows([]string{"id", "report_id", "original_name", "stored_name", "file_path", "file_type", "file_size", "mime_type", "uploaded_at"}).
				AddRow(1, "SV-ABC", "a.jpg", "x-1.jpg", "uploads/anonymous/x-1.jpg", "image", 10, "image/jpeg", uploaded).
				AddRow(2, "SV-ABC", "b.pdf", "x-2.pdf", "uploads/anonymous/x-2.pdf", "document", 20, "application/pdf", uploaded))

		evidence, err := NewReportsService(db).ListEvidence(context.Background(), testScope, "SV-ABC")
		if err != nil {
			t.Fatalf("ListEvidence: %v", err)
		}
		if len(evidence) != 2 || evidence[1].FileType != "document" {
			t.Errorf("unexpected evidence %+v", evidence)
		}
	})
}

func TestGetStats(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("COALESCE(SUM(r.status = 'pending'), 0)")).
			WithArgs("admin_dhaka", "Dhanmondi").
			WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "reviewing", "reviewed", "investigating", "resolved", "dismissed", "flagged"}).
				AddRow(10, 4, 1, 1, 2, 1, 1, 2))
		mock.ExpectQuery(q("GROUP BY r.crime_type")).
			WithArgs("admin_dhaka", "Dhanmondi").
			WillReturnRows(sqlmock.NewRows([]string{"crime_type", "count"}).
				AddRow("theft", 6).
				AddRow("fraud", 4))

		stats, err := NewReportsService(db).GetStats(context.Background(), testScope)
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		if stats.Total != 10 || stats.Pending != 4 || stats.Flagged != 2 || len(stats.ByType) != 2 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})
}

func TestGetHeatmapPoints(t *testing.T) {
	it(func() {
		since := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(q("WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND submitted_at >= ?")).
			WithArgs(since).
			WillReturnRows(sqlmock.NewRows([]string{"latitude", "longitude", "crime_type", "status"}).
				AddRow(23.7461, 90.3742, "theft", "pending"))

		points, err := NewReportsService(db).GetHeatmapPoints(context.Background(), since)
		if err != nil {
			t.Fatalf("GetHeatmapPoints: %v", err)
		}
		if len(points) != 1 || points[0].CrimeType != "theft" {
			t.Errorf("unexpected points %+v", points)
		}
	})
}

func TestAbuseStoreRateLimit(t *testing.T) {
	it(func() {
		testCases := []struct {
			name    string
			count   int
			allowed bool
		}{
			{"no entries", 0, true},
			{"below quota", 2, true},
			{"at quota", 3, false},
		}
		for _, testCase := range testCases {
			setUp()
			mock.ExpectQuery(q("SELECT COUNT(*) FROM anonymous_rate_limits")).
				WithArgs("iphash").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(testCase.count))

			store := NewAbuseStore(db, 3, 24*time.Hour, 24*time.Hour)
			allowed, err := store.CheckRateLimit(context.Background(), "iphash")
			if err != nil {
				t.Fatalf("%s: %v", testCase.name, err)
			}
			if allowed != testCase.allowed {
				t.Errorf("%s: allowed = %v, want %v", testCase.name, allowed, testCase.allowed)
			}
		}
	})
}

func TestAbuseStoreBookkeeping(t *testing.T) {
	it(func() {
		mock.ExpectExec(q("INSERT INTO anonymous_rate_limits (ip_hash, expires_at)")).
			WithArgs("iphash", int64(86400)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(q("ON DUPLICATE KEY UPDATE expires_at = VALUES(expires_at)")).
			WithArgs("contenthash", "iphash", int64(86400)).
			WillReturnResult(sqlmock.NewResult(1, 2))
		mock.ExpectQuery(q("FROM anonymous_submission_hashes")).
			WithArgs("contenthash", "iphash").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		store := NewAbuseStore(db, 3, 24*time.Hour, 24*time.Hour)
		ctx := context.Background()
		if err := store.RecordSubmission(ctx, "iphash"); err != nil {
			t.Fatalf("RecordSubmission: %v", err)
		}
		if err := store.RecordSubmissionHash(ctx, "contenthash", "iphash"); err != nil {
			t.Fatalf("RecordSubmissionHash: %v", err)
		}
		dup, err := store.CheckDuplicate(ctx, "contenthash", "iphash")
		if err != nil || !dup {
			t.Errorf("CheckDuplicate = %v, %v", dup, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestAbuseStorePurgeExpired(t *testing.T) {
	it(func() {
		mock.ExpectExec(q("DELETE FROM anonymous_rate_limits WHERE expires_at <= NOW()")).
			WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec(q("DELETE FROM anonymous_submission_hashes WHERE expires_at <= NOW()")).
			WillReturnResult(sqlmock.NewResult(0, 2))

		purged, err := NewAbuseStore(db, 3, time.Hour, time.Hour).PurgeExpired(context.Background())
		if err != nil || purged != 7 {
			t.Errorf("PurgeExpired = %d, %v", purged, err)
		}
	})
}

func TestNamedLocker(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("SELECT GET_LOCK(?, ?)")).
			WithArgs("anon_submit_iphash", int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
		mock.ExpectExec(q("SELECT RELEASE_LOCK(?)")).
			WithArgs("anon_submit_iphash").
			WillReturnResult(sqlmock.NewResult(0, 0))

		locker := NewNamedLocker(db, "anon_submit_", 10*time.Second)
		unlock, err := locker.Lock(context.Background(), "iphash")
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		unlock()
		unlock()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestNamedLockerTimeout(t *testing.T) {
	it(func() {
		mock.ExpectQuery(q("SELECT GET_LOCK(?, ?)")).
			WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(0))

		_, err := NewNamedLocker(db, "anon_submit_", time.Second).Lock(context.Background(), "iphash")
		if !errors.Is(err, ErrLockTimeout) {
			t.Errorf("err = %v, want ErrLockTimeout", err)
		}
	})
}

// Holding a named lock must not take connections away from the queries run
// under it, and a saturated lock pool fails within the wait bound.
func TestNamedLockerUsesOwnPool(t *testing.T) {
	it(func() {
		db.SetMaxOpenConns(1)

		lockDB, lockMock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer lockDB.Close()
		lockDB.SetMaxOpenConns(1)

		lockMock.ExpectQuery(q("SELECT GET_LOCK(?, ?)")).
			WithArgs("anon_submit_iphash", int64(0)).
			WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
		lockMock.ExpectExec(q("SELECT RELEASE_LOCK(?)")).
			WithArgs("anon_submit_iphash").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT COUNT(*) FROM anonymous_rate_limits")).
			WithArgs("iphash").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		locker := NewNamedLocker(lockDB, "anon_submit_", 100*time.Millisecond)
		unlock, err := locker.Lock(context.Background(), "iphash")
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		allowed, err := NewAbuseStore(db, 3, time.Hour, time.Hour).CheckRateLimit(ctx, "iphash")
		if err != nil || !allowed {
			t.Fatalf("CheckRateLimit under lock = %v, %v", allowed, err)
		}

		start := time.Now()
		_, err = locker.Lock(context.Background(), "other")
		if !errors.Is(err, ErrLockTimeout) {
			t.Errorf("second Lock err = %v, want ErrLockTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond+lockAcquireGrace+time.Second {
			t.Errorf("second Lock waited %v", elapsed)
		}

		unlock()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
		if err := lockMock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled lock expectations: %s", err)
		}
	})
}
