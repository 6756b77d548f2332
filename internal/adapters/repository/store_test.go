package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "state", "luck.yaml"), 0)
	require.NoError(t, err)
	db, err := OpenSQLite(filepath.Join(dir, "luck.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{
		BackendMemory: NewMemoryStore(),
		BackendFile:   file,
		BackendSQLite: db,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "intro")
			assert.ErrorIs(t, err, ErrNotFound)

			want := map[string]float64{"Talk1": 0.35, "Talk2": 0.5, "Idle": 0.2}
			require.NoError(t, store.Save(ctx, "intro", want))

			got, err := store.Load(ctx, "intro")
			require.NoError(t, err)
			assert.InDeltaMapValues(t, want, got, 1e-9)

			// Save replaces rather than merges.
			require.NoError(t, store.Save(ctx, "intro", map[string]float64{"Talk1": 1}))
			got, err = store.Load(ctx, "intro")
			require.NoError(t, err)
			assert.Equal(t, map[string]float64{"Talk1": 1}, got)

			// Pools are independent.
			_, err = store.Load(ctx, "drugScreen")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_EmptyPool(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Save(ctx, " ", map[string]float64{"a": 1}), ErrEmptyPool)
			_, err := store.Load(ctx, "")
			assert.ErrorIs(t, err, ErrEmptyPool)
		})
	}
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "intro", map[string]float64{"Talk1": 0.5}))

	got, err := store.Load(ctx, "intro")
	require.NoError(t, err)
	got["Talk1"] = 99

	again, err := store.Load(ctx, "intro")
	require.NoError(t, err)
	assert.Equal(t, 0.5, again["Talk1"])
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "luck.yaml")

	first, err := NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "intro", map[string]float64{"Talk1": 0.7}))
	require.NoError(t, first.Save(ctx, "other", map[string]float64{"Wave": 0.1}))

	second, err := NewFileStore(path, 0)
	require.NoError(t, err)
	got, err := second.Load(ctx, "intro")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Talk1": 0.7}, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools: [not, a, map"), 0o600))

	store, err := NewFileStore(path, 0)
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "intro")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "luck.db")

	first, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "intro", map[string]float64{"Talk1": 0.25, "Idle": 0}))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Load(ctx, "intro")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Talk1": 0.25, "Idle": 0}, got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("FILE", filepath.Join(dir, "luck.yaml"), WithFileMode(0o644))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(BackendSQLite, ":memory:", WithBusyTimeout(100))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(BackendFile, "")
	assert.ErrorIs(t, err, ErrPathRequired)

	_, err = Open("redis", "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
