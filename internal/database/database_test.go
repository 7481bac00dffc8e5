package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/model"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{Host: "db", Port: "5433", Username: "u", Password: "p", Database: "replays"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=replays sslmode=disable", dsn)
}

func TestOpenSQLite_FileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "replays.db")

	db, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db, zerolog.Nop()))
	assert.True(t, db.Migrator().HasTable(&model.Replay{}))
	assert.True(t, db.Migrator().HasTable(&model.ReplayEvent{}))
	assert.FileExists(t, path)
}

func TestOpenSQLite_Memory(t *testing.T) {
	db, err := OpenSQLite(MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db, zerolog.Nop()))
	require.NoError(t, db.Create(&model.Replay{Name: "a", Document: []byte(`{}`)}).Error)

	var n int64
	require.NoError(t, db.Model(&model.Replay{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestOpenWithFallback_UsesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	cfg := config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "none"}

	db, fellBack, err := OpenWithFallback(cfg, path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.True(t, fellBack)
	assert.Equal(t, "sqlite", db.Dialector.Name())
}
