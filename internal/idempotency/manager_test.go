package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		fn(t, NewRedisStore(client, testLogger()))
	})
}

func TestManager_RunsOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		m := NewManager(store, testLogger())
		ctx := context.Background()
		calls := 0
		op := func(context.Context) error {
			calls++
			return nil
		}

		first, err := m.Execute(ctx, "update:1", time.Hour, op)
		require.NoError(t, err)
		assert.False(t, first.Duplicate)

		second, err := m.Execute(ctx, "update:1", time.Hour, op)
		require.NoError(t, err)
		assert.True(t, second.Duplicate)

		_, err = m.Execute(ctx, "update:2", time.Hour, op)
		require.NoError(t, err)

		assert.Equal(t, 2, calls)
	})
}

func TestManager_FailureAllowsRetry(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		m := NewManager(store, testLogger())
		ctx := context.Background()
		boom := errors.New("boom")

		_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)

		result, err := m.Execute(ctx, "k", time.Hour, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.False(t, result.Duplicate)
	})
}

func TestManager_ConcurrentDuplicateIsRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		m := NewManager(store, testLogger())
		ctx := context.Background()

		_, err := m.Execute(ctx, "k", time.Hour, func(ctx context.Context) error {
			_, innerErr := m.Execute(ctx, "k", time.Hour, func(context.Context) error {
				t.Fatal("nested duplicate must not run")
				return nil
			})
			assert.ErrorIs(t, innerErr, ErrRequestInProgress)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestManager_NilOperation(t *testing.T) {
	_, err := NewManager(NewMemoryStore(), testLogger()).Execute(context.Background(), "k", time.Hour, nil)
	assert.Error(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", &Record{Status: StatusCompleted}, time.Minute))
	locked, err := store.Lock(ctx, "held", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	now = now.Add(2 * time.Minute)

	record, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, record)

	locked, err = store.Lock(ctx, "held", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked, "stale lock is taken over")
}

func TestCleaner_Sweep(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.HSet(ctx, keyPrefix+"orphan", "status", StatusCompleted).Err())
	require.NoError(t, NewRedisStore(client, testLogger()).Set(ctx, "fresh", &Record{Status: StatusCompleted}, time.Hour))

	memory := NewMemoryStore()
	now := time.Now()
	memory.now = func() time.Time { return now }
	require.NoError(t, memory.Set(ctx, "gone", &Record{Status: StatusCompleted}, time.Second))
	now = now.Add(time.Minute)

	removed := NewCleaner(client, memory, testLogger(), time.Minute).Sweep(ctx)
	assert.Equal(t, 2, removed)

	exists, err := client.Exists(ctx, keyPrefix+"fresh").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, GenerateKey("msg", 1, 2), GenerateKey("msg", 1, 2))
	assert.NotEqual(t, GenerateKey("msg", 1, 2), GenerateKey("msg", 12))
	assert.NotEqual(t, GenerateKey("msg", "a"), GenerateKey("cb", "a"))
	assert.Len(t, GenerateKey("cb", "abc"), len("cb:")+32)
}
