package x402kit

import (
	"sync"
	"time"

	"github.com/402kit/402kit-go/types"
)

// IssuedChallenge records what the engine knew when it minted a challenge:
// the binding of the request it was issued against and when it expires.
type IssuedChallenge struct {
	Bind      types.ResourceBinding
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ChallengeStore maps challenge ids to their issue-time records so the
// engine can reject expired challenges and cross-check bindings during
// verification. Entries are purged lazily and swept in bulk when the entry
// count exceeds the ceiling.
type ChallengeStore struct {
	mu         sync.Mutex
	entries    map[string]IssuedChallenge
	maxEntries int
	now        func() time.Time
}

// NewChallengeStore creates a challenge store. A non-positive maxEntries
// selects the default ceiling of 10,000.
func NewChallengeStore(maxEntries int) *ChallengeStore {
	if maxEntries <= 0 {
		maxEntries = DefaultReplayMaxEntries
	}
	return &ChallengeStore{
		entries:    make(map[string]IssuedChallenge),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Record stores the issue-time record for a freshly minted challenge.
func (s *ChallengeStore) Record(challengeID string, bind types.ResourceBinding, ttl time.Duration) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[challengeID] = IssuedChallenge{
		Bind:      bind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if len(s.entries) > s.maxEntries {
		for id, entry := range s.entries {
			if now.After(entry.ExpiresAt) {
				delete(s.entries, id)
			}
		}
	}
}

// Get returns the record for a challenge id. Expired records are still
// returned so the caller can distinguish "expired" from "never issued";
// they are dropped from the store on access.
func (s *ChallengeStore) Get(challengeID string) (IssuedChallenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[challengeID]
	if !ok {
		return IssuedChallenge{}, false
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.entries, challengeID)
	}
	return entry, true
}

// Len returns the current entry count.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
