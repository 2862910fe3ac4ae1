// Package store owns the candy ledger: user records and banter rotations, and the
// read-modify-write discipline every change to them goes through.
package store

import (
	"encoding/json"
	"time"
)

// DefaultStarterBalance is the candy a user receives on first reference.
const DefaultStarterBalance int64 = 25

// UserRecord is the ledger state of one participant.
type UserRecord struct {
	Balance int64
	// LockedUntil is zero when the user never locked their stocking.
	LockedUntil  time.Time
	NotifyOptOut bool
	// LastNotificationRef is empty when no notification is outstanding.
	LastNotificationRef string
}

// Equal reports whether two records hold the same values.
func (r UserRecord) Equal(other UserRecord) bool {
	return r.Balance == other.Balance &&
		r.LockedUntil.Equal(other.LockedUntil) &&
		r.NotifyOptOut == other.NotifyOptOut &&
		r.LastNotificationRef == other.LastNotificationRef
}

type userRecordJSON struct {
	Balance             int64      `json:"balance"`
	LockedUntil         *time.Time `json:"lockedUntil"`
	NotifyOptOut        bool       `json:"notifyOptOut"`
	LastNotificationRef *string    `json:"lastNotificationRef"`

	// Fields written by the first release of the bot.
	LegacyCandy       *int64 `json:"candy,omitempty"`
	LegacyNudgeOptOut *bool  `json:"nudgeOptOut,omitempty"`
}

// MarshalJSON writes the persisted layout, with nulls for unset optional fields.
func (r UserRecord) MarshalJSON() ([]byte, error) {
	wire := userRecordJSON{
		Balance:      r.Balance,
		NotifyOptOut: r.NotifyOptOut,
	}
	if !r.LockedUntil.IsZero() {
		lockedUntil := r.LockedUntil.UTC()
		wire.LockedUntil = &lockedUntil
	}
	if r.LastNotificationRef != "" {
		ref := r.LastNotificationRef
		wire.LastNotificationRef = &ref
	}

	return json.Marshal(wire)
}

// UnmarshalJSON accepts the persisted layout as well as the legacy candy/nudgeOptOut keys.
func (r *UserRecord) UnmarshalJSON(data []byte) error {
	var wire userRecordJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = UserRecord{
		Balance:      wire.Balance,
		NotifyOptOut: wire.NotifyOptOut,
	}
	if wire.LegacyCandy != nil && wire.Balance == 0 {
		r.Balance = *wire.LegacyCandy
	}
	if wire.LegacyNudgeOptOut != nil && !wire.NotifyOptOut {
		r.NotifyOptOut = *wire.LegacyNudgeOptOut
	}
	if r.Balance < 0 {
		r.Balance = 0
	}
	if wire.LockedUntil != nil {
		r.LockedUntil = wire.LockedUntil.UTC()
	}
	if wire.LastNotificationRef != nil {
		r.LastNotificationRef = *wire.LastNotificationRef
	}

	return nil
}

// Mutation changes a record in place as part of an Update.
type Mutation func(rec *UserRecord) error

// Patch is a partial-field merge: nil fields keep their current value.
type Patch struct {
	Balance             *int64
	LockedUntil         *time.Time
	NotifyOptOut        *bool
	LastNotificationRef *string
}

// Apply merges p into rec. It has the Mutation signature so it can be passed to Update.
func (p Patch) Apply(rec *UserRecord) error {
	if p.Balance != nil {
		if *p.Balance < 0 {
			return ErrNegativeBalance
		}
		rec.Balance = *p.Balance
	}
	if p.LockedUntil != nil {
		rec.LockedUntil = *p.LockedUntil
	}
	if p.NotifyOptOut != nil {
		rec.NotifyOptOut = *p.NotifyOptOut
	}
	if p.LastNotificationRef != nil {
		rec.LastNotificationRef = *p.LastNotificationRef
	}
	return nil
}

// document is the single-file layout: every user plus every banter rotation.
type document struct {
	Users     map[string]UserRecord `json:"users"`
	Rotations map[string][]string   `json:"banter_state"`
}

func newDocument() document {
	return document{
		Users:     make(map[string]UserRecord),
		Rotations: make(map[string][]string),
	}
}

func (d document) clone() document {
	next := document{
		Users:     make(map[string]UserRecord, len(d.Users)),
		Rotations: make(map[string][]string, len(d.Rotations)),
	}
	for id, rec := range d.Users {
		next.Users[id] = rec
	}
	for category, lines := range d.Rotations {
		next.Rotations[category] = lines
	}
	return next
}

func (d *document) apply(changes changeSet) {
	for id, rec := range changes.users {
		d.Users[id] = rec
	}
	for category, lines := range changes.rotations {
		d.Rotations[category] = append([]string(nil), lines...)
	}
}
