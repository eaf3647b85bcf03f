package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// Schema contains the tables of the anonymous reporting channel.
// The admins table is owned by the admin portal; it is created here only so
// that a fresh database can serve district lookups.
const Schema = `
CREATE TABLE IF NOT EXISTS admins (
    username VARCHAR(50) PRIMARY KEY,
    district_name VARCHAR(100),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_admins_district (district_name)
);

CREATE TABLE IF NOT EXISTS anonymous_reports (
    id INT AUTO_INCREMENT PRIMARY KEY,
    report_id VARCHAR(20) NOT NULL,
    crime_type VARCHAR(50) NOT NULL,
    description TEXT NOT NULL,
    incident_date DATE NOT NULL,
    incident_time VARCHAR(5) NOT NULL,
    location_address VARCHAR(500) NOT NULL,
    latitude DECIMAL(10, 8),
    longitude DECIMAL(11, 8),
    district_name VARCHAR(100),
    assigned_admin VARCHAR(50),
    suspect_description TEXT,
    additional_notes TEXT,
    ip_hash CHAR(64),
    content_hash CHAR(64),
    status ENUM('pending', 'reviewing', 'reviewed', 'investigating', 'resolved', 'dismissed') NOT NULL DEFAULT 'pending',
    admin_notes TEXT,
    is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
    flag_reason VARCHAR(500),
    submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    reviewed_at TIMESTAMP NULL,
    reviewed_by VARCHAR(50),
    UNIQUE KEY unique_report_id (report_id),
    INDEX idx_anonymous_reports_routing (assigned_admin, district_name),
    INDEX idx_anonymous_reports_status (status, submitted_at)
);

CREATE TABLE IF NOT EXISTS anonymous_evidence (
    id INT AUTO_INCREMENT PRIMARY KEY,
    report_id VARCHAR(20) NOT NULL,
    original_name VARCHAR(255) NOT NULL,
    stored_name VARCHAR(255) NOT NULL,
    file_path VARCHAR(500) NOT NULL,
    file_type ENUM('image', 'video', 'audio', 'document') NOT NULL,
    file_size BIGINT NOT NULL,
    mime_type VARCHAR(100) NOT NULL,
    uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (report_id) REFERENCES anonymous_reports(report_id) ON DELETE CASCADE,
    INDEX idx_anonymous_evidence_report (report_id)
);

CREATE TABLE IF NOT EXISTS anonymous_rate_limits (
    id INT AUTO_INCREMENT PRIMARY KEY,
    ip_hash CHAR(64) NOT NULL,
    submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL,
    INDEX idx_rate_limits_hash (ip_hash, expires_at),
    INDEX idx_rate_limits_expiry (expires_at)
);

CREATE TABLE IF NOT EXISTS anonymous_submission_hashes (
    id INT AUTO_INCREMENT PRIMARY KEY,
    content_hash CHAR(64) NOT NULL,
    ip_hash CHAR(64) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL,
    UNIQUE KEY unique_content_ip (content_hash, ip_hash),
    INDEX idx_submission_hashes_expiry (expires_at)
);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrations list all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "add_heatmap_index_to_anonymous_reports",
		Up: `
			SET @dbname = DATABASE();
			SET @preparedStatement = (SELECT IF(
				(SELECT COUNT(*) FROM INFORMATION_SCHEMA.STATISTICS
				WHERE TABLE_SCHEMA = @dbname
				AND TABLE_NAME = 'anonymous_reports'
				AND INDEX_NAME = 'idx_anonymous_reports_heatmap') = 0,
				'ALTER TABLE anonymous_reports ADD INDEX idx_anonymous_reports_heatmap (submitted_at, latitude, longitude);',
				'SELECT 1;'
			));
			PREPARE addIndexIfNotExists FROM @preparedStatement;
			EXECUTE addIndexIfNotExists;
			DEALLOCATE PREPARE addIndexIfNotExists;
		`,
		Down: `
			ALTER TABLE anonymous_reports DROP INDEX idx_anonymous_reports_heatmap;
		`,
	},
}

// InitSchema creates the database schema and runs migrations
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}

// RunMigrations applies all pending database migrations
func RunMigrations(db *sql.DB) error {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range Migrations {
		if applied[migration.Version] {
			continue
		}
		log.Infof("Applying migration %d: %s", migration.Version, migration.Name)

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		log.Infof("Migration %d applied successfully", migration.Version)
	}

	return nil
}
