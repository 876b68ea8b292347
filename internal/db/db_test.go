package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	conn, err := Open(Config{Path: path})
	require.NoError(t, err)

	for _, table := range []string{"fiscal_notes", "devices", "print_jobs", "print_history"} {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s must exist", table)
	}
	require.NoError(t, conn.Close())

	// Reopening an already migrated database is a no-op.
	conn, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer conn.Close()

	var applied int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestDeviceStore(t *testing.T) {
	conn, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer conn.Close()

	store := NewDeviceStore(conn)
	ctx := context.Background()

	device := &Device{ID: "d1", Name: "front-desk", KeyHash: "hash"}
	require.NoError(t, store.Create(ctx, device))
	assert.False(t, device.CreatedAt.IsZero())

	loaded, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "front-desk", loaded.Name)
	assert.Nil(t, loaded.LastSeenAt)

	require.NoError(t, store.Touch(ctx, "d1"))
	touched, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, touched.LastSeenAt)
	assert.WithinDuration(t, time.Now().UTC(), *touched.LastSeenAt, time.Minute)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
