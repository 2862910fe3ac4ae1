package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "candy:state:lock:%d"
	lockTTL            = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested FSM transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe FSM transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine describes the operations supported by the FSM controller.
type StateMachine interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, userID int64, state State, contextData map[string]string) error
	TransitionTo(ctx context.Context, userID int64, newState State, contextData map[string]string) error
	ClearState(ctx context.Context, userID int64) error
}

// locker guards one user's state against concurrent writers. acquire returns a release func or
// ErrStateLocked when another writer holds the lock.
type locker interface {
	acquire(ctx context.Context, userID int64) (func(), error)
}

type machine struct {
	storage Storage
	locks   locker
	log     *slog.Logger
}

// NewStateMachine creates a FSM controller over storage. With a redis client writers are
// serialized across processes; without one, within this process.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	var locks locker = &localLocker{held: make(map[int64]struct{})}
	if redisClient != nil {
		locks = &redisLocker{client: redisClient, log: log}
	}

	return &machine{storage: storage, locks: locks, log: log}
}

func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	return m.storage.GetState(ctx, userID)
}

// SetState stores state unconditionally.
func (m *machine) SetState(ctx context.Context, userID int64, state State, contextData map[string]string) error {
	return m.locked(ctx, userID, func() error {
		return m.save(ctx, userID, state, contextData)
	})
}

// TransitionTo changes the state if the transition is allowed. contextData replaces whatever
// the previous state carried.
func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State, contextData map[string]string) error {
	return m.locked(ctx, userID, func() error {
		current, err := m.current(ctx, userID)
		if err != nil {
			return err
		}

		if !IsTransitionAllowed(current, newState) {
			m.log.Warn("invalid state transition", "user_id", userID, "from", current, "to", newState)
			return ErrInvalidTransition
		}

		transitionRecorder(string(current), string(newState))
		return m.save(ctx, userID, newState, contextData)
	})
}

func (m *machine) ClearState(ctx context.Context, userID int64) error {
	return m.locked(ctx, userID, func() error {
		return m.storage.ClearState(ctx, userID)
	})
}

// current is the stored state, StateIdle for users without one.
func (m *machine) current(ctx context.Context, userID int64) (State, error) {
	stored, err := m.storage.GetState(ctx, userID)
	switch {
	case errors.Is(err, ErrStateNotFound):
		return StateIdle, nil
	case err != nil:
		return "", err
	case stored == nil:
		return StateIdle, nil
	}
	return stored.CurrentState, nil
}

func (m *machine) save(ctx context.Context, userID int64, state State, contextData map[string]string) error {
	return m.storage.SetState(ctx, userID, &UserState{
		UserID:       userID,
		CurrentState: state,
		Context:      contextData,
	})
}

func (m *machine) locked(ctx context.Context, userID int64, fn func() error) error {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// localLocker rejects a second writer for the same user inside one process.
type localLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func (l *localLocker) acquire(_ context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[userID]; busy {
		return nil, ErrStateLocked
	}
	l.held[userID] = struct{}{}

	return func() {
		l.mu.Lock()
		delete(l.held, userID)
		l.mu.Unlock()
	}, nil
}

// releaseScript deletes the lock only while it still carries our token, so a writer whose lock
// expired cannot release the next writer's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLocker is a SET NX PX lock per user with a random owner token.
type redisLocker struct {
	client *redis.Client
	log    *slog.Logger
}

func (l *redisLocker) acquire(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf(userLockKeyPattern, userID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		l.log.Error("failed to acquire user state lock", "user_id", userID, "error", err)
		return nil, err
	}
	if !acquired {
		l.log.Warn("user state lock already held", "user_id", userID)
		return nil, ErrStateLocked
	}

	return func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil {
			l.log.Error("failed to release user state lock", "user_id", userID, "error", err)
		}
	}, nil
}
