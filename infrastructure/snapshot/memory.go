package snapshot

import (
	"context"
	"sync"
	"time"

	"tokenradar/infrastructure/metrics"
)

// MemoryStore keeps snapshots in process memory. Used as the default
// store and as the test double for the durable backends.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]*TokenSnapshot
	traders map[string]*TraderSnapshot
	maxAges MaxAges

	now func() time.Time
}

// NewMemoryStore creates an in-memory store with the given expiry policy.
func NewMemoryStore(maxAges MaxAges) *MemoryStore {
	return &MemoryStore{
		tokens:  make(map[string]*TokenSnapshot),
		traders: make(map[string]*TraderSnapshot),
		maxAges: maxAges,
		now:     time.Now,
	}
}

func (s *MemoryStore) LoadTokens(_ context.Context, key string) (*TokenSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.tokens[key]
	s.mu.RUnlock()

	if !ok || expired(snap.CapturedAt, s.maxAges.tokens(), s.now()) {
		metrics.CacheReads.WithLabelValues("memory", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("memory", key, "hit").Inc()
	return snap, true
}

func (s *MemoryStore) SaveTokens(_ context.Context, key string, snap *TokenSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = snap
	return nil
}

func (s *MemoryStore) LoadTraders(_ context.Context, key string) (*TraderSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.traders[key]
	s.mu.RUnlock()

	if !ok || expired(snap.CapturedAt, s.maxAges.traders(), s.now()) {
		metrics.CacheReads.WithLabelValues("memory", key, "miss").Inc()
		return nil, false
	}
	metrics.CacheReads.WithLabelValues("memory", key, "hit").Inc()
	return snap, true
}

func (s *MemoryStore) SaveTraders(_ context.Context, key string, snap *TraderSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traders[key] = snap
	return nil
}
