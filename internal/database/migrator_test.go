package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_second.up.sql":  {Data: []byte("SELECT 2")},
		"sql/0001_first.up.sql":   {Data: []byte("SELECT 1")},
		"sql/0001_first.down.sql": {Data: []byte("SELECT 0")},
		"sql/README.md":           {Data: []byte("docs")},
		"sql/nested/0003.up.sql":  {Data: []byte("SELECT 3")},
	}

	names, err := ListMigrations(fsys, "sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_first.up.sql", "0002_second.up.sql"}, names)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := ListMigrations(Migrations, MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_candy_ledger.up.sql", names[0])
}
