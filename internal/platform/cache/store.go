package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds every cache entry unless the caller overrides it.
const DefaultTTL = 5 * time.Minute

// Store is a TTL-bounded key/value cache holding serialized permission
// views. It is constructed once at process start and injected into every
// component that reads or invalidates cached state.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. A non-positive ttl falls back to DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// TTL returns the default entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the raw payload for key. The second result reports whether
// the key was present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return payload, true, nil
}

// GetJSON unmarshals the cached payload for key into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	payload, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the given ttl (zero means the default).
// Any prior value is cleared first so a fresh payload never merges with
// stale bytes.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Set(ctx, key, value, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, payload, ttl)
}

// Has reports whether key is present and not expired.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Invalidate removes key. Missing keys are not an error.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix removes every key starting with prefix.
func (s *Store) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("cache: invalidate prefix %s: %w", prefix, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan prefix %s: %w", prefix, err)
	}
	return nil
}
