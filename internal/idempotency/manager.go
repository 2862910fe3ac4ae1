// Package idempotency makes sure a Telegram update is acted on at most once, even when the
// gateway redelivers it or two bot replicas receive it.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultLockTTL bounds how long a crashed handler can block its key.
const DefaultLockTTL = 5 * time.Minute

var ErrRequestInProgress = errors.New("request with this key is already in progress")

type Operation func(ctx context.Context) error

type Result struct {
	// Duplicate is true when the key already completed and fn was not run.
	Duplicate bool
}

type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: DefaultLockTTL,
	}
}

// Execute runs fn once per key. A key is remembered for ttl once fn returns nil; when fn returns
// an error nothing is recorded and a later Execute runs fn again. Callers that want at-most-once
// report failures inside fn and return nil.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Duplicate: true}, nil
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// the previous holder may have finished between Get and Lock
	if record, err = m.store.Get(ctx, key); err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Duplicate: true}, nil
	}

	if err := fn(ctx); err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted}, ttl); err != nil {
		return nil, err
	}

	return &Result{}, nil
}
