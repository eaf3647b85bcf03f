package abuse

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const cleanupInterval = 10 * time.Minute

// MemoryStore is an in-process Store backed by go-cache.
// It suits tests and single-node development; state is lost on restart.
type MemoryStore struct {
	maxSubmissions  int
	rateLimitWindow time.Duration
	duplicateWindow time.Duration
	now             func() time.Time

	mu           sync.Mutex
	submissions  *cache.Cache // ipHash -> []time.Time (expiry of each entry)
	fingerprints *cache.Cache // contentHash|ipHash -> time.Time (expiry)
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the wall clock, letting tests move past expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(maxSubmissions int, rateLimitWindow, duplicateWindow time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		maxSubmissions:  maxSubmissions,
		rateLimitWindow: rateLimitWindow,
		duplicateWindow: duplicateWindow,
		now:             time.Now,
		submissions:     cache.New(cache.NoExpiration, cleanupInterval),
		fingerprints:    cache.New(cache.NoExpiration, cleanupInterval),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CheckRateLimit(ctx context.Context, ipHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.liveEntries(ipHash)) < s.maxSubmissions, nil
}

func (s *MemoryStore) RecordSubmission(ctx context.Context, ipHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.liveEntries(ipHash), s.now().Add(s.rateLimitWindow))
	s.submissions.Set(ipHash, entries, s.rateLimitWindow)
	return nil
}

func (s *MemoryStore) CheckDuplicate(ctx context.Context, contentHash, ipHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fingerprints.Get(fingerprintKey(contentHash, ipHash))
	if !ok {
		return false, nil
	}
	return s.now().Before(v.(time.Time)), nil
}

func (s *MemoryStore) RecordSubmissionHash(ctx context.Context, contentHash, ipHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints.Set(fingerprintKey(contentHash, ipHash), s.now().Add(s.duplicateWindow), s.duplicateWindow)
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var purged int64
	for key, item := range s.submissions.Items() {
		entries := item.Object.([]time.Time)
		live := filterLive(entries, now)
		purged += int64(len(entries) - len(live))
		if len(live) == 0 {
			s.submissions.Delete(key)
		} else if len(live) != len(entries) {
			s.submissions.Set(key, live, s.rateLimitWindow)
		}
	}
	for key, item := range s.fingerprints.Items() {
		if !now.Before(item.Object.(time.Time)) {
			s.fingerprints.Delete(key)
			purged++
		}
	}
	return purged, nil
}

// liveEntries must be called with mu held.
func (s *MemoryStore) liveEntries(ipHash string) []time.Time {
	v, ok := s.submissions.Get(ipHash)
	if !ok {
		return nil
	}
	return filterLive(v.([]time.Time), s.now())
}

func filterLive(expiries []time.Time, now time.Time) []time.Time {
	live := make([]time.Time, 0, len(expiries))
	for _, exp := range expiries {
		if now.Before(exp) {
			live = append(live, exp)
		}
	}
	return live
}

func fingerprintKey(contentHash, ipHash string) string {
	return contentHash + "|" + ipHash
}
