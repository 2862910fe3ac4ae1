package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanerSweepsExpiredStates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	storage := NewMemoryStorage(time.Minute)
	storage.now = func() time.Time { return now }

	require.NoError(t, storage.SetState(ctx, 1, &UserState{UserID: 1, CurrentState: StateGiftAmount}))
	now = now.Add(50 * time.Second)
	require.NoError(t, storage.SetState(ctx, 2, &UserState{UserID: 2, CurrentState: StateGiftAmount}))
	now = now.Add(20 * time.Second)

	cleaner := NewCleaner(storage, nil, time.Hour)
	assert.Equal(t, 1, cleaner.cleanup())
	assert.Zero(t, cleaner.cleanup())

	_, err := storage.GetState(ctx, 2)
	assert.NoError(t, err)
}

func TestCleanerRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		NewCleaner(NewMemoryStorage(0), nil, time.Millisecond).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
