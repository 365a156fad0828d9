package x402kit

import (
	"sync"
	"time"
)

// ReplayStore tracks consumed (challengeId, nonce) pairs. MarkIfUnseen is
// the single atomic check-and-set: exactly one of any number of concurrent
// callers presenting the same pair observes true. Release undoes a
// reservation whose verification did not succeed, so a pair is only
// permanently consumed by the first successful verification.
type ReplayStore interface {
	MarkIfUnseen(challengeID, nonce string) bool
	Release(challengeID, nonce string)
	Seen(challengeID, nonce string) bool
}

const (
	// DefaultReplayTTL bounds how long a consumed pair is remembered,
	// measured from mark time.
	DefaultReplayTTL = 60 * time.Second
	// DefaultReplayMaxEntries is the live-entry ceiling that triggers an
	// immediate sweep of expired entries.
	DefaultReplayMaxEntries = 10_000
)

// MemoryReplayStore is an in-memory ReplayStore for single-instance
// deployments. Expired entries are purged lazily on access, and a bulk sweep
// runs whenever the live entry count exceeds the configured ceiling; there
// is no background timer.
type MemoryReplayStore struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryReplayStore creates a replay store with the given TTL and entry
// ceiling. Zero values select the defaults.
func NewMemoryReplayStore(ttl time.Duration, maxEntries int) *MemoryReplayStore {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultReplayMaxEntries
	}
	return &MemoryReplayStore{
		entries:    make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func replayKey(challengeID, nonce string) string {
	return challengeID + ":" + nonce
}

// MarkIfUnseen atomically records the pair and reports whether it was
// previously unseen. A false return is the replay signal.
func (s *MemoryReplayStore) MarkIfUnseen(challengeID, nonce string) bool {
	key := replayKey(challengeID, nonce)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[key]; ok {
		if now.Before(expiry) {
			return false
		}
		delete(s.entries, key)
	}

	s.entries[key] = now.Add(s.ttl)
	if len(s.entries) > s.maxEntries {
		s.sweepLocked(now)
	}
	return true
}

// Release removes a reservation taken by MarkIfUnseen.
func (s *MemoryReplayStore) Release(challengeID, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, replayKey(challengeID, nonce))
}

// Seen reports whether the pair is currently marked and unexpired.
func (s *MemoryReplayStore) Seen(challengeID, nonce string) bool {
	key := replayKey(challengeID, nonce)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[key]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Len returns the live entry count, expired entries included until swept.
func (s *MemoryReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryReplayStore) sweepLocked(now time.Time) {
	for key, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, key)
		}
	}
}

var _ ReplayStore = (*MemoryReplayStore)(nil)
