package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsEmbedded(t *testing.T) {
	for _, dialect := range []string{DialectSQLite, DialectPostgres} {
		files, err := loadMigrations("", dialect)
		require.NoError(t, err)
		require.NotEmpty(t, files, dialect)
		assert.Equal(t, "001_init.sql", files[0].name)
	}
}

func TestLoadMigrationsFromDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, DialectSQLite)
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "002_b.sql"), []byte("SELECT 2;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "001_a.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("skip"), 0o644))

	files, err := loadMigrations(dir, DialectSQLite)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_a.sql", files[0].name)
	assert.Equal(t, "002_b.sql", files[1].name)

	// no postgres subdirectory: embedded set is used
	files, err = loadMigrations(dir, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, "001_init.sql", files[0].name)
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, RunMigrations(conn, ""))
	require.NoError(t, RunMigrations(conn, ""))
}
