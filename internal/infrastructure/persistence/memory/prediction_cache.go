// Package memory provides the in-process prediction cache backend used when
// Redis is disabled or unreachable at startup.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
)

// PredictionStore implements excellence.PredictionCacheBackend in memory.
// Entries are dropped lazily on read unless a cleanup interval is set.
type PredictionStore struct {
	items *gocache.Cache
}

// NewPredictionStore creates a store. A non-positive cleanupInterval disables
// the background janitor.
func NewPredictionStore(cleanupInterval time.Duration) *PredictionStore {
	return &PredictionStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func key(studentID, distinction string) string {
	return studentID + "\x00" + distinction
}

// Get returns the entry for the pair, if present.
func (s *PredictionStore) Get(_ context.Context, studentID, distinction string) (excellence.CacheEntry, bool, error) {
	v, ok := s.items.Get(key(studentID, distinction))
	if !ok {
		return excellence.CacheEntry{}, false, nil
	}
	return v.(excellence.CacheEntry), true, nil
}

// Set stores the entry for ttl. A non-positive ttl is a no-op.
func (s *PredictionStore) Set(_ context.Context, entry excellence.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.items.Set(key(entry.StudentID, entry.Distinction), entry, ttl)
	return nil
}

// Ping always succeeds.
func (s *PredictionStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *PredictionStore) Len() int {
	return s.items.ItemCount()
}

// Flush removes every entry.
func (s *PredictionStore) Flush() {
	s.items.Flush()
}
