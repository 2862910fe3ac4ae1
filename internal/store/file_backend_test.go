package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
)

func TestOpenFileBackend_CreatesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db.json")

	_, err := OpenFileBackend(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "users")
	assert.Contains(t, raw, "banter_state")
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db.json")
	lockedUntil := time.Date(2026, 12, 24, 18, 30, 0, 0, time.UTC)

	backend, err := OpenFileBackend(path)
	require.NoError(t, err)
	s := New(backend, Options{Logger: testLogger()})

	_, err = s.Update(ctx, "alice", func(rec *UserRecord) error {
		rec.Balance = 40
		rec.LockedUntil = lockedUntil
		rec.NotifyOptOut = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Transact(ctx, func(tx *Tx) error {
		tx.SetRotation("snowball", []string{"splat"})
		return nil
	}))

	reopened, err := OpenFileBackend(path)
	require.NoError(t, err)
	s = New(reopened, Options{Logger: testLogger()})

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.Balance)
	assert.True(t, lockedUntil.Equal(rec.LockedUntil))
	assert.True(t, rec.NotifyOptOut)
	assert.Empty(t, rec.LastNotificationRef)

	require.NoError(t, s.Transact(ctx, func(tx *Tx) error {
		lines, err := tx.Rotation("snowball")
		assert.Equal(t, []string{"splat"}, lines)
		return err
	}))
}

func TestFileBackend_WriteFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenFileBackend(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	s := New(backend, Options{Logger: testLogger()})

	_, err = s.Get(ctx, "alice")
	require.NoError(t, err)

	diskFull := errors.New("no space left on device")
	backend.writeFile = func(string, []byte) error { return diskFull }

	err = s.Transact(ctx, func(tx *Tx) error {
		alice, err := tx.User("alice")
		if err != nil {
			return err
		}
		bob, err := tx.User("bob")
		if err != nil {
			return err
		}
		alice.Balance -= 5
		bob.Balance += 5
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeDatabase, appErr.Code)

	backend.writeFile = writeFileAtomic
	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]UserRecord{"alice": {Balance: DefaultStarterBalance}}, users)
}

func TestFileBackend_ReadOnlyTransactionDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenFileBackend(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	s := New(backend, Options{Logger: testLogger()})

	_, err = s.Get(ctx, "alice")
	require.NoError(t, err)

	writes := 0
	backend.writeFile = func(path string, data []byte) error {
		writes++
		return writeFileAtomic(path, data)
	}

	_, err = s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, writes)

	_, err = s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, writes)
}

func TestOpenFileBackend_LegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	legacy := `{
  "users": {
    "123": {"candy": 12, "lockedUntil": "2024-12-24T10:00:00.000Z", "nudgeOptOut": true},
    "456": {"candy": 0, "lockedUntil": null}
  },
  "banter_state": {"lock": ["one"]}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	backend, err := OpenFileBackend(path)
	require.NoError(t, err)

	users, err := backend.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), users["123"].Balance)
	assert.True(t, users["123"].NotifyOptOut)
	assert.Equal(t, 2024, users["123"].LockedUntil.Year())
	assert.Equal(t, int64(0), users["456"].Balance)
	assert.True(t, users["456"].LockedUntil.IsZero())
}

func TestOpenFileBackend_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileBackend(path)
	assert.Error(t, err)
}

func TestUserRecord_JSONLayout(t *testing.T) {
	data, err := json.Marshal(UserRecord{Balance: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":5,"lockedUntil":null,"notifyOptOut":false,"lastNotificationRef":null}`, string(data))

	locked := UserRecord{
		Balance:             1,
		LockedUntil:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		LastNotificationRef: "1:2",
	}
	data, err = json.Marshal(locked)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":1,"lockedUntil":"2026-01-02T03:04:05Z","notifyOptOut":false,"lastNotificationRef":"1:2"}`, string(data))
}
