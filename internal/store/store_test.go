package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// backends returns a fresh instance of every backend that runs without external services.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	file, err := OpenFileBackend(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   file,
		"redis":  NewRedisBackend(setupTestRedis(t), testLogger(), 200),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			fn(t, New(backend, Options{Logger: testLogger()}))
		})
	}
}

func TestStore_GetCreatesDefaultRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		rec, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, DefaultStarterBalance, rec.Balance)
		assert.True(t, rec.LockedUntil.IsZero())
		assert.False(t, rec.NotifyOptOut)
		assert.Empty(t, rec.LastNotificationRef)

		users, err := s.Users(ctx)
		require.NoError(t, err)
		assert.Contains(t, users, "alice")
	})
}

func TestStore_StarterBalanceOption(t *testing.T) {
	s := New(NewMemoryBackend(), Options{StarterBalance: 7, Logger: testLogger()})

	rec, err := s.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Balance)
}

func TestStore_GetEmptyID(t *testing.T) {
	s := New(NewMemoryBackend(), Options{Logger: testLogger()})

	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestStore_UpdateWithPatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		lockedUntil := time.Date(2026, 12, 24, 20, 0, 0, 0, time.UTC)
		balance := int64(3)
		ref := "42:1001"

		rec, err := s.Update(ctx, "alice", Patch{
			Balance:             &balance,
			LockedUntil:         &lockedUntil,
			LastNotificationRef: &ref,
		}.Apply)
		require.NoError(t, err)
		assert.Equal(t, int64(3), rec.Balance)

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Balance)
		assert.True(t, lockedUntil.Equal(got.LockedUntil))
		assert.False(t, got.NotifyOptOut)
		assert.Equal(t, ref, got.LastNotificationRef)
	})
}

func TestStore_UpdateRejectsNegativeBalance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		negative := int64(-1)

		_, err := s.Update(ctx, "alice", Patch{Balance: &negative}.Apply)
		assert.ErrorIs(t, err, ErrNegativeBalance)

		_, err = s.Update(ctx, "alice", func(rec *UserRecord) error {
			rec.Balance = -10
			return nil
		})
		assert.ErrorIs(t, err, ErrNegativeBalance)

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, DefaultStarterBalance, got.Balance)
	})
}

func TestStore_TransactIsAllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.Transact(ctx, func(tx *Tx) error {
			alice, err := tx.User("alice")
			if err != nil {
				return err
			}
			bob, err := tx.User("bob")
			if err != nil {
				return err
			}
			alice.Balance -= 10
			bob.Balance += 10
			tx.SetRotation("lock", []string{"a", "b"})
			return boom
		})
		assert.ErrorIs(t, err, boom)

		users, err := s.Users(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		err = s.Transact(ctx, func(tx *Tx) error {
			lines, err := tx.Rotation("lock")
			assert.Empty(t, lines)
			return err
		})
		require.NoError(t, err)
	})
}

func TestStore_TransactCommitsTransferAndRotation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		err := s.Transact(ctx, func(tx *Tx) error {
			alice, err := tx.User("alice")
			if err != nil {
				return err
			}
			bob, err := tx.User("bob")
			if err != nil {
				return err
			}
			alice.Balance -= 10
			bob.Balance += 10
			tx.SetRotation("gift_success", []string{"two", "three"})
			return nil
		})
		require.NoError(t, err)

		alice, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		bob, err := s.Get(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(15), alice.Balance)
		assert.Equal(t, int64(35), bob.Balance)

		err = s.Transact(ctx, func(tx *Tx) error {
			lines, err := tx.Rotation("gift_success")
			require.NoError(t, err)
			assert.Equal(t, []string{"two", "three"}, lines)

			lines[0] = "mutated"
			again, err := tx.Rotation("gift_success")
			require.NoError(t, err)
			assert.Equal(t, "two", again[0])
			return nil
		})
		require.NoError(t, err)
	})
}

func TestStore_TxReturnsSameRecordWithinTransaction(t *testing.T) {
	s := New(NewMemoryBackend(), Options{Logger: testLogger()})

	err := s.Transact(context.Background(), func(tx *Tx) error {
		first, err := tx.User("alice")
		require.NoError(t, err)
		first.Balance = 1

		second, err := tx.User("alice")
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, int64(1), second.Balance)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ConcurrentTransfersConserveCandy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		const workers = 20

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int64
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Transact(ctx, func(tx *Tx) error {
					from, err := tx.User("alice")
					if err != nil {
						return err
					}
					to, err := tx.User("bob")
					if err != nil {
						return err
					}
					if from.Balance == 0 {
						return nil
					}
					from.Balance--
					to.Balance++
					return nil
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.True(t, apperrors.IsRetryable(err), "unexpected error: %v", err)
			}()
		}
		wg.Wait()

		alice, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		bob, err := s.Get(ctx, "bob")
		require.NoError(t, err)

		assert.Equal(t, 2*DefaultStarterBalance, alice.Balance+bob.Balance)
		assert.Equal(t, DefaultStarterBalance+succeeded, bob.Balance)
		assert.GreaterOrEqual(t, alice.Balance, int64(0))
	})
}

func TestStore_CanceledContext(t *testing.T) {
	s := New(NewMemoryBackend(), Options{Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}
