package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	redis "github.com/redis/go-redis/v9"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
)

const (
	redisUserKeyPrefix = "candy:user:"
	redisUserIndexKey  = "candy:users"
	redisRotationKey   = "candy:rotation"

	defaultRedisAttempts   = 8
	defaultRedisRetryDelay = 5 * time.Millisecond
	maxRedisRetryDelay     = 250 * time.Millisecond
)

// RedisBackend stores one JSON value per user and commits with WATCH/MULTI/EXEC. A commit that
// loses against a concurrent writer is re-run from scratch, a bounded number of times.
type RedisBackend struct {
	client      *redis.Client
	log         *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps client. maxAttempts <= 0 selects the default.
func NewRedisBackend(client *redis.Client, log *slog.Logger, maxAttempts int) *RedisBackend {
	if maxAttempts <= 0 {
		maxAttempts = defaultRedisAttempts
	}
	if log == nil {
		log = slog.Default()
	}

	return &RedisBackend{
		client:      client,
		log:         log.With(slog.String("component", "redis_store")),
		maxAttempts: maxAttempts,
		retryDelay:  defaultRedisRetryDelay,
	}
}

func (b *RedisBackend) Name() string {
	return "redis"
}

func (b *RedisBackend) Users(ctx context.Context) (map[string]UserRecord, error) {
	ids, err := b.client.SMembers(ctx, redisUserIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make(map[string]UserRecord, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisUserKey(id)
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var rec UserRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			b.log.Warn("skipping malformed user record", slog.String("user_id", ids[i]), slog.Any("error", err))
			continue
		}
		users[ids[i]] = rec
	}

	return users, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close is a no-op: the client is shared with the rest of the process and closed by its owner.
func (b *RedisBackend) Close() error {
	return nil
}

func (b *RedisBackend) atomic(ctx context.Context, work func(src source) (changeSet, error)) error {
	delay := b.retryDelay

	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err := b.client.Watch(ctx, func(rtx *redis.Tx) error {
			changes, err := work(&redisSource{tx: rtx, watched: make(map[string]bool)})
			if err != nil {
				return err
			}
			if changes.empty() {
				return nil
			}
			return b.commit(ctx, rtx, changes)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		b.log.Debug("redis transaction lost a race, retrying", slog.Int("attempt", attempt))
		if attempt == b.maxAttempts {
			break
		}

		jitter := time.Duration(rand.Int64N(int64(delay) + 1))
		timer := time.NewTimer(delay + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxRedisRetryDelay {
			delay = maxRedisRetryDelay
		}
	}

	return apperrors.NewConflictError("candy ledger", redis.TxFailedErr)
}

func (b *RedisBackend) commit(ctx context.Context, rtx *redis.Tx, changes changeSet) error {
	users := make(map[string][]byte, len(changes.users))
	for id, rec := range changes.users {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", id, err)
		}
		users[id] = payload
	}

	rotations := make(map[string][]byte, len(changes.rotations))
	for category, lines := range changes.rotations {
		if lines == nil {
			lines = []string{}
		}
		payload, err := json.Marshal(lines)
		if err != nil {
			return fmt.Errorf("encode rotation %s: %w", category, err)
		}
		rotations[category] = payload
	}

	_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, payload := range users {
			pipe.Set(ctx, redisUserKey(id), payload, 0)
		}
		if len(changes.created) > 0 {
			members := make([]interface{}, len(changes.created))
			for i, id := range changes.created {
				members[i] = id
			}
			pipe.SAdd(ctx, redisUserIndexKey, members...)
		}
		for category, payload := range rotations {
			pipe.HSet(ctx, redisRotationKey, category, payload)
		}
		return nil
	})
	return err
}

func redisUserKey(id string) string {
	return redisUserKeyPrefix + id
}

// redisSource watches every key before reading it, so EXEC fails if any of them changed.
type redisSource struct {
	tx      *redis.Tx
	watched map[string]bool
}

func (s *redisSource) watch(ctx context.Context, key string) error {
	if s.watched[key] {
		return nil
	}
	if err := s.tx.Watch(ctx, key).Err(); err != nil {
		return err
	}
	s.watched[key] = true
	return nil
}

func (s *redisSource) loadUser(ctx context.Context, id string, defaults UserRecord) (UserRecord, bool, error) {
	key := redisUserKey(id)
	if err := s.watch(ctx, key); err != nil {
		return UserRecord{}, false, err
	}

	raw, err := s.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return defaults, true, nil
	}
	if err != nil {
		return UserRecord{}, false, err
	}

	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return UserRecord{}, false, fmt.Errorf("decode user %s: %w", id, err)
	}
	return rec, false, nil
}

func (s *redisSource) loadRotation(ctx context.Context, category string) ([]string, error) {
	if err := s.watch(ctx, redisRotationKey); err != nil {
		return nil, err
	}

	raw, err := s.tx.HGet(ctx, redisRotationKey, category).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode rotation %s: %w", category, err)
	}
	return lines, nil
}
