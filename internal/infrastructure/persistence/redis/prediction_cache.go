package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
)

const (
	// PrefixPrediction namespaces prediction cache keys.
	PrefixPrediction = "prediction:"

	keySeparator = ":"
)

// PredictionKey returns the cache key of one (student, distinction) pair.
// Neither part may contain the separator, see predictionKey.
func PredictionKey(studentID, distinction string) string {
	return PrefixPrediction + studentID + keySeparator + distinction
}

// PredictionStore implements excellence.PredictionCacheBackend on Redis.
// Redis expires keys on its own; the stored expires_at is checked again by
// the caller so both sides agree on the boundary.
type PredictionStore struct {
	client redis.Cmdable
	pinger func(ctx context.Context) error
}

// NewPredictionStore creates a store on top of an established client.
func NewPredictionStore(c *Client) *PredictionStore {
	return &PredictionStore{client: c.client, pinger: c.Ping}
}

// Get returns the entry for the pair, if present.
func (s *PredictionStore) Get(ctx context.Context, studentID, distinction string) (excellence.CacheEntry, bool, error) {
	key, err := predictionKey(studentID, distinction)
	if err != nil {
		return excellence.CacheEntry{}, false, err
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return excellence.CacheEntry{}, false, nil
	}
	if err != nil {
		return excellence.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return excellence.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Set stores the entry for ttl. A non-positive ttl is a no-op.
func (s *PredictionStore) Set(ctx context.Context, entry excellence.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key, err := predictionKey(entry.StudentID, entry.Distinction)
	if err != nil {
		return err
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *PredictionStore) Ping(ctx context.Context) error {
	return s.pinger(ctx)
}

func predictionKey(studentID, distinction string) (string, error) {
	if studentID == "" || distinction == "" {
		return "", ErrCacheKeyEmpty
	}
	if strings.Contains(studentID, keySeparator) || strings.Contains(distinction, keySeparator) {
		return "", fmt.Errorf("%w: %q / %q", ErrCacheKeyInvalid, studentID, distinction)
	}
	return PredictionKey(studentID, distinction), nil
}

func encodeEntry(entry excellence.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (excellence.CacheEntry, error) {
	var entry excellence.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return excellence.CacheEntry{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return entry, nil
}
