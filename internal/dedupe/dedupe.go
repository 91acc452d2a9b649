// Package dedupe remembers processed webhook event IDs so redeliveries are skipped.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL covers Stripe's retry window for webhook deliveries.
const DefaultTTL = 72 * time.Hour

// Store records event IDs.
type Store interface {
	// MarkProcessed returns true the first time an event ID is seen within the TTL.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)

	// Forget removes a marker so a failed event can be retried.
	Forget(ctx context.Context, eventID string) error
}

// RedisStore keeps markers in Redis with SETNX and a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+eventID, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s: %w", eventID, err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to forget event %s: %w", eventID, err)
	}
	return nil
}

// MemoryStore keeps markers in process memory. Expired markers are removed by Cleanup.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	markers map[string]time.Time // event id → expiry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, markers: make(map[string]time.Time)}
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.markers[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	s.markers[eventID] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) Forget(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, eventID)
	return nil
}

// Cleanup drops expired markers and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, exp := range s.markers {
		if !now.Before(exp) {
			delete(s.markers, id)
			removed++
		}
	}
	return removed
}
