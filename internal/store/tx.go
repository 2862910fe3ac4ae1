package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyID is returned when a record is requested without a user id.
	ErrEmptyID = errors.New("store: empty user id")
	// ErrNegativeBalance is returned when a commit would leave a balance below zero.
	ErrNegativeBalance = errors.New("store: negative balance")
)

// source is the read side a backend exposes to a transaction. Reads happen inside the
// backend's exclusive or optimistic scope, so every value returned is guarded until commit.
type source interface {
	// loadUser returns the stored record, or defaults with created=true when the user is new.
	loadUser(ctx context.Context, id string, defaults UserRecord) (rec UserRecord, created bool, err error)
	loadRotation(ctx context.Context, category string) ([]string, error)
}

// changeSet is what a transaction asks its backend to commit.
type changeSet struct {
	users     map[string]UserRecord
	created   []string
	rotations map[string][]string
}

func (c changeSet) empty() bool {
	return len(c.users) == 0 && len(c.rotations) == 0
}

// Tx is a unit of work over several user records and rotations. Records are read lazily on
// first access; only records that differ from what was read (or were created) are written back.
type Tx struct {
	ctx      context.Context
	src      source
	defaults UserRecord

	users    map[string]*UserRecord
	original map[string]UserRecord
	created  map[string]bool

	rotations        map[string][]string
	rotationsTouched map[string]bool

	fault error
}

func newTx(ctx context.Context, src source, defaults UserRecord) *Tx {
	return &Tx{
		ctx:              ctx,
		src:              src,
		defaults:         defaults,
		users:            make(map[string]*UserRecord),
		original:         make(map[string]UserRecord),
		created:          make(map[string]bool),
		rotations:        make(map[string][]string),
		rotationsTouched: make(map[string]bool),
	}
}

// Context returns the context the transaction runs under.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// User returns the record for id, creating it with the starter defaults when it does not exist.
// The returned pointer stays valid for the rest of the transaction; changes made through it are
// committed together with everything else.
func (tx *Tx) User(id string) (*UserRecord, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if rec, ok := tx.users[id]; ok {
		return rec, nil
	}

	rec, created, err := tx.src.loadUser(tx.ctx, id, tx.defaults)
	if err != nil {
		tx.fault = err
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}

	tx.original[id] = rec
	if created {
		tx.created[id] = true
	}
	tx.users[id] = &rec

	return &rec, nil
}

// Rotation returns the remaining lines of a banter category. A nil slice means the category has
// never been drawn from or is exhausted.
func (tx *Tx) Rotation(category string) ([]string, error) {
	if lines, ok := tx.rotations[category]; ok {
		return append([]string(nil), lines...), nil
	}

	lines, err := tx.src.loadRotation(tx.ctx, category)
	if err != nil {
		tx.fault = err
		return nil, fmt.Errorf("load rotation %s: %w", category, err)
	}
	tx.rotations[category] = lines

	return append([]string(nil), lines...), nil
}

// SetRotation replaces the remaining lines of a category.
func (tx *Tx) SetRotation(category string, remaining []string) {
	tx.rotations[category] = append([]string(nil), remaining...)
	tx.rotationsTouched[category] = true
}

func (tx *Tx) changes() (changeSet, error) {
	set := changeSet{
		users:     make(map[string]UserRecord),
		rotations: make(map[string][]string),
	}

	for id, rec := range tx.users {
		if rec.Balance < 0 {
			return changeSet{}, fmt.Errorf("user %s: %w", id, ErrNegativeBalance)
		}
		if tx.created[id] {
			set.users[id] = *rec
			set.created = append(set.created, id)
			continue
		}
		if !rec.Equal(tx.original[id]) {
			set.users[id] = *rec
		}
	}
	for category := range tx.rotationsTouched {
		set.rotations[category] = tx.rotations[category]
	}

	return set, nil
}
