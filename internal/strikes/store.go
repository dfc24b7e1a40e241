// Package strikes counts removed posts per author in Redis. Counters use a
// fixed window that starts at the first strike:
//
//	Key:   strikes:<guild>:<author>
//	Value: removed-post count
//	TTL:   Window, set on the first increment
//
// Counts are informational. Nothing in modbot acts on them automatically.
package strikes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StrikePrefix is the Redis key prefix for strike counters.
	StrikePrefix = "strikes:"

	// Window is how long a counter lives. After 24h without a first strike
	// the counter resets to zero.
	Window = 24 * time.Hour
)

// Counter records and reads strikes.
type Counter interface {
	Record(ctx context.Context, guildID, authorID string) (int, error)
	Count(ctx context.Context, guildID, authorID string) (int, error)
}

func strikeKey(guildID, authorID string) string {
	return StrikePrefix + guildID + ":" + authorID
}

// Store manages strike counters in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new strike store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Record increments the author's strike counter and returns the new count.
func (s *Store) Record(ctx context.Context, guildID, authorID string) (int, error) {
	key := strikeKey(guildID, authorID)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("strikes: record incr: %w", err)
	}

	// Set TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, Window).Err(); err != nil {
			return 0, fmt.Errorf("strikes: record expire: %w", err)
		}
	}
	return int(count), nil
}

// Count returns the current strike count. Returns 0 if the key does not
// exist.
func (s *Store) Count(ctx context.Context, guildID, authorID string) (int, error) {
	val, err := s.client.Get(ctx, strikeKey(guildID, authorID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("strikes: count: %w", err)
	}
	return val, nil
}

// Memory is an in-process Counter used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count   int
	expires time.Time
}

// NewMemory creates an empty in-memory counter.
func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Record(_ context.Context, guildID, authorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strikeKey(guildID, authorID)
	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expires) {
		e = memoryEntry{expires: now.Add(Window)}
	}
	e.count++
	m.entries[key] = e
	return e.count, nil
}

func (m *Memory) Count(_ context.Context, guildID, authorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[strikeKey(guildID, authorID)]
	if !ok || !m.now().Before(e.expires) {
		return 0, nil
	}
	return e.count, nil
}
