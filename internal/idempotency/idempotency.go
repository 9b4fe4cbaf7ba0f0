// Package idempotency makes CreateActivity safely retryable. A
// client-supplied key is reserved before the fan-out commit and bound to the
// resulting activity id afterwards; a replayed request gets the original id
// back instead of creating a duplicate.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fieldops/pkg/platform/sentinel"
)

// reservedMarker occupies a key between reservation and binding. A replay
// that observes the marker lost the race and must retry later.
const reservedMarker = "__reserved__"

// DefaultTTL bounds how long a key maps to its activity id.
const DefaultTTL = 24 * time.Hour

// Store reserves idempotency keys and binds them to activity ids.
type Store interface {
	// Reserve claims the key. If already claimed it returns the bound
	// activity id ("" while a concurrent create is still in flight) and
	// sentinel.ErrConflict.
	Reserve(ctx context.Context, key string) (string, error)
	// Bind records the created activity id under the key.
	Bind(ctx context.Context, key, activityID string) error
	// Release frees a reservation after a failed create so the client can
	// retry with the same key.
	Release(ctx context.Context, key string) error
}

// Redis implements Store on SETNX with a TTL.
type Redis struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedis builds a redis-backed store.
func NewRedis(client *goredis.Client, ttl time.Duration) *Redis {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Reserve(ctx context.Context, key string) (string, error) {
	ok, err := s.client.SetNX(ctx, redisKey(key), reservedMarker, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", nil
	}
	existing, err := s.client.Get(ctx, redisKey(key)).Result()
	if err != nil {
		return "", fmt.Errorf("read idempotency key: %w", err)
	}
	if existing == reservedMarker {
		existing = ""
	}
	return existing, sentinel.ErrConflict
}

func (s *Redis) Bind(ctx context.Context, key, activityID string) error {
	if err := s.client.Set(ctx, redisKey(key), activityID, s.ttl).Err(); err != nil {
		return fmt.Errorf("bind idempotency key: %w", err)
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	return "fieldops:idem:" + key
}

// Memory implements Store for unit tests and dev mode.
type Memory struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

func (s *Memory) Reserve(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.keys[key]; ok {
		if existing == reservedMarker {
			existing = ""
		}
		return existing, sentinel.ErrConflict
	}
	s.keys[key] = reservedMarker
	return "", nil
}

func (s *Memory) Bind(_ context.Context, key, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = activityID
	return nil
}

func (s *Memory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
