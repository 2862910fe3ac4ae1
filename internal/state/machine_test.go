package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageDown = errors.New("state storage unavailable")

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	args := m.Called(ctx, userID)
	st, _ := args.Get(0).(*UserState)
	return st, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, userID int64, st *UserState) error {
	return m.Called(ctx, userID, st).Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func giftTarget(id, name string) map[string]string {
	return map[string]string{KeyTargetID: id, KeyTargetName: name}
}

// TestGiftFlow walks the conversation the bot runs for /gift: pick a recipient, maybe switch
// to another one, then finish or bail out.
func TestGiftFlow(t *testing.T) {
	const alice = int64(101)

	type step struct {
		to      State
		data    map[string]string
		wantErr error
		// expected state after the step; "" means the stored state was cleared
		want       State
		wantTarget string
	}

	testCases := []struct {
		name  string
		steps []step
	}{
		{
			name: "pick a recipient then finish",
			steps: []step{
				{to: StateGiftAmount, data: giftTarget("202", "@bob"), want: StateGiftAmount, wantTarget: "202"},
				{to: StateIdle, want: StateIdle},
			},
		},
		{
			name: "switching recipient replaces the old one",
			steps: []step{
				{to: StateGiftAmount, data: giftTarget("202", "@bob"), want: StateGiftAmount, wantTarget: "202"},
				{to: StateGiftAmount, data: giftTarget("303", "Carol"), want: StateGiftAmount, wantTarget: "303"},
			},
		},
		{
			name: "a reset to error blocks the flow until idle",
			steps: []step{
				{to: StateGiftAmount, data: giftTarget("202", "@bob"), want: StateGiftAmount, wantTarget: "202"},
				{to: StateError, want: StateError},
				{to: StateGiftAmount, data: giftTarget("303", "Carol"), wantErr: ErrInvalidTransition, want: StateError},
				{to: StateIdle, want: StateIdle},
				{to: StateGiftAmount, data: giftTarget("303", "Carol"), want: StateGiftAmount, wantTarget: "303"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			fsm := NewStateMachine(NewMemoryStorage(time.Hour), testLogger(), nil)

			for i, st := range tc.steps {
				err := fsm.TransitionTo(ctx, alice, st.to, st.data)
				if st.wantErr != nil {
					require.ErrorIs(t, err, st.wantErr, "step %d", i)
				} else {
					require.NoError(t, err, "step %d", i)
				}

				got, err := fsm.GetState(ctx, alice)
				require.NoError(t, err, "step %d", i)
				assert.Equal(t, st.want, got.CurrentState, "step %d", i)
				assert.Equal(t, st.wantTarget, got.Value(KeyTargetID), "step %d", i)
			}
		})
	}
}

func TestGiftFlow_NewPlayerStartsIdle(t *testing.T) {
	ms := &mockStorage{}
	ms.On("GetState", mock.Anything, int64(5)).Return(nil, ErrStateNotFound).Once()
	ms.On("SetState", mock.Anything, int64(5), mock.MatchedBy(func(st *UserState) bool {
		return st.CurrentState == StateGiftAmount && st.Value(KeyTargetName) == "@bob"
	})).Return(nil).Once()

	fsm := NewStateMachine(ms, testLogger(), nil)
	require.NoError(t, fsm.TransitionTo(context.Background(), 5, StateGiftAmount, giftTarget("202", "@bob")))
	ms.AssertExpectations(t)
}

func TestStateMachine_StorageFailures(t *testing.T) {
	ctx := context.Background()
	const carol = int64(303)

	t.Run("reading the current state", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("GetState", mock.Anything, carol).Return(nil, errStorageDown).Once()

		err := NewStateMachine(ms, testLogger(), nil).TransitionTo(ctx, carol, StateGiftAmount, nil)
		assert.ErrorIs(t, err, errStorageDown)
		ms.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("saving the recipient", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("SetState", mock.Anything, carol, mock.Anything).Return(errStorageDown).Once()

		err := NewStateMachine(ms, testLogger(), nil).SetState(ctx, carol, StateGiftAmount, giftTarget("1", "x"))
		assert.ErrorIs(t, err, errStorageDown)
		ms.AssertExpectations(t)
	})

	t.Run("cancelling", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("ClearState", mock.Anything, carol).Return(errStorageDown).Once()

		assert.ErrorIs(t, NewStateMachine(ms, testLogger(), nil).ClearState(ctx, carol), errStorageDown)
		ms.AssertExpectations(t)
	})
}

func TestStateMachine_CancelForgetsRecipient(t *testing.T) {
	ctx := context.Background()
	fsm := NewStateMachine(NewMemoryStorage(time.Hour), testLogger(), nil)

	require.NoError(t, fsm.TransitionTo(ctx, 7, StateGiftAmount, giftTarget("202", "@bob")))
	require.NoError(t, fsm.ClearState(ctx, 7))

	_, err := fsm.GetState(ctx, 7)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestStateMachine_TransitionsAreRecorded(t *testing.T) {
	var seen []string
	RegisterTransitionRecorder(func(from, to string) { seen = append(seen, from+">"+to) })
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	ctx := context.Background()
	fsm := NewStateMachine(NewMemoryStorage(time.Hour), testLogger(), nil)
	require.NoError(t, fsm.TransitionTo(ctx, 9, StateGiftAmount, nil))
	require.NoError(t, fsm.TransitionTo(ctx, 9, StateError, nil))
	require.ErrorIs(t, fsm.TransitionTo(ctx, 9, StateGiftAmount, nil), ErrInvalidTransition)

	assert.Equal(t, []string{"idle>gift_amount", "gift_amount>error"}, seen)
}

func TestStateMachine_RedisLockAdmitsOneWriter(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	fsm := NewStateMachine(newSlowStorage(100*time.Millisecond), testLogger(), client)
	ctx := context.Background()

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, target := range []string{"202", "303"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- fsm.SetState(ctx, 77, StateGiftAmount, giftTarget(target, "someone"))
		}()
	}
	wg.Wait()
	close(results)

	var ok, locked int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrStateLocked):
			locked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, locked)
}

func TestStateMachine_LocalLockRejectsConcurrentWriter(t *testing.T) {
	storage := newSlowStorage(100 * time.Millisecond)
	fsm := NewStateMachine(storage, testLogger(), nil)

	ctx := context.Background()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- fsm.SetState(ctx, 5, StateGiftAmount, nil)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, fsm.ClearState(ctx, 5), ErrStateLocked)
	require.NoError(t, <-done)
	assert.NoError(t, fsm.ClearState(ctx, 5), "lock is released after the write")
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	locks := &redisLocker{client: client, log: testLogger()}
	key := "candy:state:lock:9"

	release, err := locks.acquire(ctx, 9)
	require.NoError(t, err)

	_, err = locks.acquire(ctx, 9)
	assert.ErrorIs(t, err, ErrStateLocked)

	// the lock expired and another writer took it over
	require.NoError(t, client.Set(ctx, key, "someone-else", lockTTL).Err())
	release()
	assert.Equal(t, "someone-else", client.Get(ctx, key).Val())

	require.NoError(t, client.Del(ctx, key).Err())
	release, err = locks.acquire(ctx, 9)
	require.NoError(t, err)
	release()
	assert.Zero(t, client.Exists(ctx, key).Val())
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowStorage widens the window in which two writers race for the state lock.
type slowStorage struct {
	*MemoryStorage
	delay time.Duration
}

func newSlowStorage(delay time.Duration) *slowStorage {
	return &slowStorage{MemoryStorage: NewMemoryStorage(0), delay: delay}
}

func (s *slowStorage) SetState(ctx context.Context, userID int64, st *UserState) error {
	time.Sleep(s.delay)
	return s.MemoryStorage.SetState(ctx, userID, st)
}
