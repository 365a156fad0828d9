package x402kit

import (
	"sync"
	"time"
)

// EntitlementStore maps opaque access tokens to granted resources. Has
// returns false for expired entries or a resource mismatch; expired entries
// are purged on access.
type EntitlementStore interface {
	Has(token, resource string) bool
	Grant(token, resource string, ttl time.Duration)
	Revoke(token string)
}

type entitlementRecord struct {
	resource  string
	expiresAt time.Time
}

// MemoryEntitlementStore is an in-memory EntitlementStore for
// single-instance deployments. For shared state across processes, implement
// EntitlementStore over a distributed backend.
type MemoryEntitlementStore struct {
	mu      sync.RWMutex
	entries map[string]entitlementRecord
	now     func() time.Time
}

// NewMemoryEntitlementStore creates an empty in-memory store.
func NewMemoryEntitlementStore() *MemoryEntitlementStore {
	return &MemoryEntitlementStore{
		entries: make(map[string]entitlementRecord),
		now:     time.Now,
	}
}

// Has reports whether token grants access to resource.
func (s *MemoryEntitlementStore) Has(token, resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, token)
		return false
	}
	return entry.resource == resource
}

// Grant records token as entitled to resource for the given TTL.
func (s *MemoryEntitlementStore) Grant(token, resource string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entitlementRecord{
		resource:  resource,
		expiresAt: s.now().Add(ttl),
	}
}

// Revoke deletes token.
func (s *MemoryEntitlementStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

var _ EntitlementStore = (*MemoryEntitlementStore)(nil)
