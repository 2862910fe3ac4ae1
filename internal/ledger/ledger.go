// Package ledger holds the balance and lock rules every interaction is built from.
package ledger

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/store"
)

// DefaultLockDuration is how long a stocking stays locked.
const DefaultLockDuration = 15 * time.Minute

// ErrNegativeAmount is the cause of the validation error returned for amounts below zero.
var ErrNegativeAmount = errors.New("ledger: negative amount")

// Credit adds n to the balance.
func Credit(rec *store.UserRecord, n int64) {
	rec.Balance += n
}

// Debit removes up to n from the balance, never going below zero, and returns what was removed.
func Debit(rec *store.UserRecord, n int64) int64 {
	removed := n
	if removed > rec.Balance {
		removed = rec.Balance
	}
	if removed < 0 {
		removed = 0
	}
	rec.Balance -= removed
	return removed
}

// Lock protects rec until now+d. Locking again restarts the window from now.
func Lock(rec *store.UserRecord, now time.Time, d time.Duration) time.Time {
	rec.LockedUntil = now.Add(d)
	return rec.LockedUntil
}

// IsLocked reports whether rec is protected at now. The lock ends exactly at LockedUntil.
func IsLocked(rec store.UserRecord, now time.Time) bool {
	return !rec.LockedUntil.IsZero() && rec.LockedUntil.After(now)
}

// Ledger applies single-record operations, each as one store update.
type Ledger struct {
	store        *store.Store
	now          func() time.Time
	lockDuration time.Duration
}

// New returns a Ledger over s. A nil clock means time.Now; a non-positive duration means
// DefaultLockDuration.
func New(s *store.Store, now func() time.Time, lockDuration time.Duration) *Ledger {
	if now == nil {
		now = time.Now
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return &Ledger{store: s, now: now, lockDuration: lockDuration}
}

// LockDuration reports the configured lock window.
func (l *Ledger) LockDuration() time.Duration {
	return l.lockDuration
}

// Now is the ledger's clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Get returns the user's record, creating it on first reference.
func (l *Ledger) Get(ctx context.Context, id string) (store.UserRecord, error) {
	return l.store.Get(ctx, id)
}

// Credit adds n to the user's balance.
func (l *Ledger) Credit(ctx context.Context, id string, n int64) (store.UserRecord, error) {
	if err := checkAmount(n); err != nil {
		return store.UserRecord{}, err
	}
	return l.store.Update(ctx, id, func(rec *store.UserRecord) error {
		Credit(rec, n)
		return nil
	})
}

// Debit removes up to n from the user's balance and reports how much was removed.
func (l *Ledger) Debit(ctx context.Context, id string, n int64) (int64, error) {
	if err := checkAmount(n); err != nil {
		return 0, err
	}
	var removed int64
	_, err := l.store.Update(ctx, id, func(rec *store.UserRecord) error {
		removed = Debit(rec, n)
		return nil
	})
	return removed, err
}

// Lock locks the user's stocking for the configured duration and returns the new expiry.
func (l *Ledger) Lock(ctx context.Context, id string) (time.Time, error) {
	var until time.Time
	_, err := l.store.Update(ctx, id, func(rec *store.UserRecord) error {
		until = Lock(rec, l.now(), l.lockDuration)
		return nil
	})
	return until, err
}

// IsLocked reports whether the user's stocking is currently locked.
func (l *Ledger) IsLocked(ctx context.Context, id string) (bool, error) {
	rec, err := l.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return IsLocked(rec, l.now()), nil
}

// ToggleNotifications flips the opt-out flag and returns the new value.
func (l *Ledger) ToggleNotifications(ctx context.Context, id string) (bool, error) {
	rec, err := l.store.Update(ctx, id, func(rec *store.UserRecord) error {
		rec.NotifyOptOut = !rec.NotifyOptOut
		return nil
	})
	return rec.NotifyOptOut, err
}

// RecordNotification remembers the reference of the last notification sent to the user.
func (l *Ledger) RecordNotification(ctx context.Context, id, ref string) error {
	_, err := l.store.Update(ctx, id, store.Patch{LastNotificationRef: &ref}.Apply)
	return err
}

func checkAmount(n int64) error {
	if n < 0 {
		return apperrors.NewValidationError("amount must not be negative").WithCause(ErrNegativeAmount)
	}
	return nil
}
