package banter

import (
	"context"

	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/random"
)

// Rotation draws lines from a catalog through the persisted per-category remaining list.
type Rotation struct {
	catalog *Catalog
	rnd     random.Source
}

// NewRotation returns a Rotation over catalog shuffled with rnd.
func NewRotation(catalog *Catalog, rnd random.Source) *Rotation {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Rotation{catalog: catalog, rnd: rnd}
}

// Catalog returns the line sets the rotation draws from.
func (r *Rotation) Catalog() *Catalog {
	return r.catalog
}

// Draw pops the next line of category inside tx. An empty remaining list is refilled with a
// fresh permutation of the full set first; remaining lines that are no longer part of the set
// are discarded, so the list never outgrows it.
func (r *Rotation) Draw(tx *store.Tx, category string) (string, error) {
	full := r.catalog.Lines(category)

	remaining, err := tx.Rotation(category)
	if err != nil {
		return "", err
	}
	remaining = keepKnown(remaining, full)

	if len(remaining) == 0 {
		remaining = full
		random.Shuffle(r.rnd, remaining)
	}

	line := remaining[0]
	tx.SetRotation(category, remaining[1:])

	return line, nil
}

// Next draws one line in its own store transaction.
func (r *Rotation) Next(ctx context.Context, s *store.Store, category string) (string, error) {
	var line string
	err := s.Transact(ctx, func(tx *store.Tx) error {
		var err error
		line, err = r.Draw(tx, category)
		return err
	})
	return line, err
}

// keepKnown filters remaining down to lines still present in full, respecting how often
// each line occurs there.
func keepKnown(remaining, full []string) []string {
	if len(remaining) == 0 {
		return nil
	}

	budget := make(map[string]int, len(full))
	for _, line := range full {
		budget[line]++
	}

	kept := remaining[:0]
	for _, line := range remaining {
		if budget[line] == 0 {
			continue
		}
		budget[line]--
		kept = append(kept, line)
	}
	return kept
}
