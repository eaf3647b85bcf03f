package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AbuseStore keeps rate-limit entries and content fingerprints in MySQL.
// Expiry is compared against the database clock so every instance agrees.
type AbuseStore struct {
	db              *sql.DB
	maxSubmissions  int
	rateLimitWindow time.Duration
	duplicateWindow time.Duration
}

func NewAbuseStore(db *sql.DB, maxSubmissions int, rateLimitWindow, duplicateWindow time.Duration) *AbuseStore {
	return &AbuseStore{
		db:              db,
		maxSubmissions:  maxSubmissions,
		rateLimitWindow: rateLimitWindow,
		duplicateWindow: duplicateWindow,
	}
}

func (s *AbuseStore) CheckRateLimit(ctx context.Context, ipHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anonymous_rate_limits
		WHERE ip_hash = ? AND expires_at > NOW()`, ipHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count rate limit entries: %w", err)
	}
	return count < s.maxSubmissions, nil
}

func (s *AbuseStore) RecordSubmission(ctx context.Context, ipHash string) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO anonymous_rate_limits (ip_hash, expires_at)
		VALUES (?, DATE_ADD(NOW(), INTERVAL ? SECOND))`, ipHash, seconds(s.rateLimitWindow))
	logResult("insertRateLimitEntry", result, err)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

func (s *AbuseStore) CheckDuplicate(ctx context.Context, contentHash, ipHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anonymous_submission_hashes
		WHERE content_hash = ? AND ip_hash = ? AND expires_at > NOW()`, contentHash, ipHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return count > 0, nil
}

func (s *AbuseStore) RecordSubmissionHash(ctx context.Context, contentHash, ipHash string) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO anonymous_submission_hashes (content_hash, ip_hash, expires_at)
		VALUES (?, ?, DATE_ADD(NOW(), INTERVAL ? SECOND))
		ON DUPLICATE KEY UPDATE expires_at = VALUES(expires_at)`, contentHash, ipHash, seconds(s.duplicateWindow))
	logResult("upsertSubmissionHash", result, err)
	if err != nil {
		return fmt.Errorf("record submission hash: %w", err)
	}
	return nil
}

func (s *AbuseStore) PurgeExpired(ctx context.Context) (int64, error) {
	var purged int64
	for _, table := range []string{"anonymous_rate_limits", "anonymous_submission_hashes"} {
		result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= NOW()")
		if err != nil {
			return purged, fmt.Errorf("purge %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		purged += n
	}
	return purged, nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
