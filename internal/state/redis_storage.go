package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const userStateKeyPattern = "candy:state:%d"

// RedisStorage persists user FSM states in Redis. Expiry is left to Redis key TTLs.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage implementation. ttl <= 0 selects DefaultTTL.
func NewRedisStorage(client *redis.Client, log *slog.Logger, ttl time.Duration) Storage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// GetState returns the stored user state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	raw, err := s.client.Get(ctx, stateKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrStateNotFound
	case err != nil:
		s.log.Error("read user state", "user_id", userID, "error", err)
		return nil, fmt.Errorf("state: read %d: %w", userID, err)
	}

	state := new(UserState)
	if err := json.Unmarshal(raw, state); err != nil {
		// A record we cannot decode is treated as no flow at all.
		s.log.Warn("discarding undecodable user state", "user_id", userID, "error", err)
		_ = s.client.Del(ctx, stateKey(userID)).Err()
		return nil, ErrStateNotFound
	}
	return state, nil
}

// SetState saves the provided user state. Every write restarts the TTL.
func (s *RedisStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	state.UserID = userID
	state.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("state: encode %d: %w", userID, err)
	}
	if err := s.client.Set(ctx, stateKey(userID), raw, s.ttl).Err(); err != nil {
		s.log.Error("write user state", "user_id", userID, "error", err)
		return fmt.Errorf("state: write %d: %w", userID, err)
	}
	return nil
}

// ClearState removes the stored state for the given user. Clearing a missing state is not an error.
func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, stateKey(userID)).Err(); err != nil {
		s.log.Error("clear user state", "user_id", userID, "error", err)
		return fmt.Errorf("state: clear %d: %w", userID, err)
	}
	return nil
}

func stateKey(userID int64) string {
	return fmt.Sprintf(userStateKeyPattern, userID)
}
