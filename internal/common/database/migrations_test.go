package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_index.sql":    {Data: []byte("CREATE INDEX foo ON bar (baz);")},
		"migrations/001_init.sql":         {Data: []byte("CREATE TABLE bar (baz int);")},
		"migrations/README.md":            {Data: []byte("not a migration")},
		"migrations/nested/003_other.sql": {Data: []byte("SELECT 1;")},
	}

	migrations, err := ReadMigrations(fsys, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, NewMigration(1, "001_init.sql", "CREATE TABLE bar (baz int);"), migrations[0])
	assert.Equal(t, NewMigration(2, "002_add_index.sql", "CREATE INDEX foo ON bar (baz);"), migrations[1])
}

func TestReadMigrations_BadName(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/init.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := ReadMigrations(fsys, "migrations")
	assert.Error(t, err)
}

func TestCreateConnectionString(t *testing.T) {
	s := CreateConnectionString(map[string]string{"password": `it's`})
	assert.Equal(t, `password='it\'s'`, s)
}
