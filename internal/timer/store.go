package timer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the (remaining, snapshot) pair in two keys per attempt,
// mirroring the durable-state contract: remaining seconds as an integer
// and the snapshot as milliseconds since epoch.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store whose records expire after ttl as a
// backstop against abandoned attempts.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func remainingKey(attemptID uint) string {
	return fmt.Sprintf("proctor:timer:%d:remaining", attemptID)
}

func snapshotKey(attemptID uint) string {
	return fmt.Sprintf("proctor:timer:%d:snapshot", attemptID)
}

func (s *RedisStore) Load(ctx context.Context, attemptID uint) (*PersistedState, error) {
	vals, err := s.client.MGet(ctx, remainingKey(attemptID), snapshotKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load timer state: %w", err)
	}
	if vals[0] == nil || vals[1] == nil {
		return nil, nil
	}

	remaining, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return nil, fmt.Errorf("corrupt remaining-seconds value: %w", err)
	}
	snapshotMs, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot value: %w", err)
	}

	return &PersistedState{
		RemainingSeconds: remaining,
		Snapshot:         time.UnixMilli(snapshotMs),
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, attemptID uint, state PersistedState) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, remainingKey(attemptID), state.RemainingSeconds, s.ttl)
	pipe.Set(ctx, snapshotKey(attemptID), state.Snapshot.UnixMilli(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save timer state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, attemptID uint) error {
	if err := s.client.Del(ctx, remainingKey(attemptID), snapshotKey(attemptID)).Err(); err != nil {
		return fmt.Errorf("failed to clear timer state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and for degraded operation
// when Redis is unavailable.
type MemoryStore struct {
	mu     sync.Mutex
	states map[uint]PersistedState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[uint]PersistedState)}
}

func (s *MemoryStore) Load(_ context.Context, attemptID uint) (*PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[attemptID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *MemoryStore) Save(_ context.Context, attemptID uint, state PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[attemptID] = state
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, attemptID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, attemptID)
	return nil
}
