package banter

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/random"
)

func newStore() *store.Store {
	return store.New(store.NewMemoryBackend(), store.Options{})
}

func TestRotation_ExhaustsBeforeRepeating(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	catalog := NewCatalog(map[string][]string{Lock: {"a", "b", "c", "d"}})
	rotation := NewRotation(catalog, random.NewSeeded(3, 5))

	for cycle := 0; cycle < 3; cycle++ {
		var drawn []string
		for i := 0; i < 4; i++ {
			line, err := rotation.Next(ctx, s, Lock)
			require.NoError(t, err)
			drawn = append(drawn, line)
		}
		sort.Strings(drawn)
		assert.Equal(t, []string{"a", "b", "c", "d"}, drawn, "cycle %d", cycle)
	}
}

func TestRotation_PersistsRemainder(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	catalog := NewCatalog(map[string][]string{Snowball: {"x", "y", "z"}})
	rotation := NewRotation(catalog, random.NewSeeded(1, 1))

	first, err := rotation.Next(ctx, s, Snowball)
	require.NoError(t, err)

	require.NoError(t, s.Transact(ctx, func(tx *store.Tx) error {
		remaining, err := tx.Rotation(Snowball)
		require.NoError(t, err)
		assert.Len(t, remaining, 2)
		assert.NotContains(t, remaining, first)
		return nil
	}))
}

func TestRotation_DiscardsStaleLines(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Transact(ctx, func(tx *store.Tx) error {
		tx.SetRotation(MugFail, []string{"old", "kept", "older"})
		return nil
	}))

	catalog := NewCatalog(map[string][]string{MugFail: {"kept", "new"}})
	rotation := NewRotation(catalog, random.NewSeeded(1, 2))

	line, err := rotation.Next(ctx, s, MugFail)
	require.NoError(t, err)
	assert.Equal(t, "kept", line)

	require.NoError(t, s.Transact(ctx, func(tx *store.Tx) error {
		remaining, err := tx.Rotation(MugFail)
		assert.Empty(t, remaining)
		return err
	}))
}

func TestRotation_UnknownCategoryUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	rotation := NewRotation(NewCatalog(nil), random.NewSeeded(1, 2))
	s := newStore()

	for i := 0; i < 3; i++ {
		line, err := rotation.Next(ctx, s, "does_not_exist")
		require.NoError(t, err)
		assert.Equal(t, Placeholder, line)
	}
}

func TestRotation_DrawDoesNothingWhenTransactionFails(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	rotation := NewRotation(NewCatalog(map[string][]string{Lock: {"a", "b"}}), random.NewSeeded(9, 9))

	err := s.Transact(ctx, func(tx *store.Tx) error {
		_, err := rotation.Draw(tx, Lock)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	require.NoError(t, s.Transact(ctx, func(tx *store.Tx) error {
		remaining, err := tx.Rotation(Lock)
		assert.Empty(t, remaining)
		return err
	}))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "banter.yaml")
		require.NoError(t, os.WriteFile(path, []byte("lock:\n  - one\n  - \"\"\n  - two\n"), 0o600))

		catalog, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, catalog.Lines(Lock))
		assert.Equal(t, []string{Placeholder}, catalog.Lines(GiftSuccess))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "banter.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"snowball": ["splat", "thud"]}`), 0o600))

		catalog, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"splat", "thud"}, catalog.Lines(Snowball))
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		catalog, err := LoadCatalog(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, ErrNoFile)
		require.NotNil(t, catalog)
		assert.Equal(t, defaultLines[Lock], catalog.Lines(Lock))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("lock: [unterminated"), 0o600))

		_, err := LoadCatalog(path)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoFile)
	})

	t.Run("shipped catalog", func(t *testing.T) {
		catalog, err := LoadCatalog(filepath.Join("..", "..", "configs", "banter.yaml"))
		require.NoError(t, err)
		for _, category := range []string{GiftSuccess, MugSuccess, MugFail, Snowball, Lock} {
			assert.NotEqual(t, []string{Placeholder}, catalog.Lines(category), category)
		}
	})
}

func TestCatalog_LinesReturnsCopy(t *testing.T) {
	catalog := NewCatalog(map[string][]string{Lock: {"a"}})
	lines := catalog.Lines(Lock)
	lines[0] = "mutated"
	assert.Equal(t, []string{"a"}, catalog.Lines(Lock))
}
