package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/pkg/metrics"
)

// Backend persists the ledger. Implementations run work inside one exclusive or optimistic
// scope and commit the change set it returns atomically, or nothing at all.
type Backend interface {
	// Name labels the backend in logs and metrics.
	Name() string
	// Users returns a snapshot of every stored record.
	Users(ctx context.Context) (map[string]UserRecord, error)
	Ping(ctx context.Context) error
	Close() error

	atomic(ctx context.Context, work func(src source) (changeSet, error)) error
}

// Options configures a Store.
type Options struct {
	StarterBalance int64
	Logger         *slog.Logger
}

// Store is the only way the rest of the program reads or changes ledger state.
type Store struct {
	backend  Backend
	defaults UserRecord
	log      *slog.Logger
}

// New wraps backend. A zero StarterBalance falls back to DefaultStarterBalance.
func New(backend Backend, opts Options) *Store {
	starter := opts.StarterBalance
	if starter <= 0 {
		starter = DefaultStarterBalance
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		backend:  backend,
		defaults: UserRecord{Balance: starter},
		log:      log.With(slog.String("component", "store"), slog.String("backend", backend.Name())),
	}
}

// Transact runs fn as one unit of work. Every record and rotation fn reads through the Tx is
// guarded until the commit; if fn returns an error or the commit fails, nothing is written.
// Errors returned by fn come back unchanged; backend faults come back as database AppErrors.
func (s *Store) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	start := time.Now()

	var (
		fnErr error
		fault error
	)
	err := s.backend.atomic(ctx, func(src source) (changeSet, error) {
		fnErr, fault = nil, nil

		tx := newTx(ctx, src, s.defaults)
		if err := fn(tx); err != nil {
			fnErr, fault = err, tx.fault
			return changeSet{}, err
		}
		return tx.changes()
	})

	metrics.ObserveStoreTransaction(s.backend.Name(), time.Since(start), err)

	switch {
	case err == nil:
		return nil
	case fault != nil:
		return s.classify(ctx, fault)
	case fnErr != nil:
		return fnErr
	default:
		return s.classify(ctx, err)
	}
}

// Get returns the record for id, creating and persisting the starter record when absent.
func (s *Store) Get(ctx context.Context, id string) (UserRecord, error) {
	var out UserRecord
	err := s.Transact(ctx, func(tx *Tx) error {
		rec, err := tx.User(id)
		if err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, err
}

// Update applies mutate to the record for id as a single read-modify-write step and returns
// the committed record.
func (s *Store) Update(ctx context.Context, id string, mutate Mutation) (UserRecord, error) {
	var out UserRecord
	err := s.Transact(ctx, func(tx *Tx) error {
		rec, err := tx.User(id)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, err
}

// Users returns a snapshot of every known record.
func (s *Store) Users(ctx context.Context) (map[string]UserRecord, error) {
	users, err := s.backend.Users(ctx)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	metrics.SetPlayers(len(users))
	return users, nil
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// BackendName reports which backend serves the store.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

func (s *Store) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	s.log.ErrorContext(ctx, "store transaction failed", slog.Any("error", err))
	return apperrors.NewDatabaseError(err)
}
