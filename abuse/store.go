// Package abuse holds the rate-limit and duplicate-detection state of anonymous
// submissions. All keys are salted hashes; raw IPs and content never reach it.
package abuse

import "context"

// Store keeps time-windowed submission counters and content fingerprints.
// Expiry is evaluated at query time, so PurgeExpired only bounds storage growth.
type Store interface {
	// CheckRateLimit reports whether ipHash has fewer live entries than the quota.
	CheckRateLimit(ctx context.Context, ipHash string) (bool, error)
	// RecordSubmission adds one live entry for ipHash.
	RecordSubmission(ctx context.Context, ipHash string) error
	// CheckDuplicate reports whether a live fingerprint exists for the exact pair.
	CheckDuplicate(ctx context.Context, contentHash, ipHash string) (bool, error)
	// RecordSubmissionHash upserts a fingerprint, refreshing its expiry.
	RecordSubmissionHash(ctx context.Context, contentHash, ipHash string) error
	// PurgeExpired deletes expired rows and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Locker serializes work per key. The returned unlock func must be called once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
