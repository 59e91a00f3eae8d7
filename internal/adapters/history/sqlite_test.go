package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/diskforge/internal/core/domain"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id string, created time.Time) domain.BuildRecord {
	req := domain.BuildRequest{ID: id, Name: "os", Tag: "latest", Type: domain.ImageQCOW2, EngineID: "e1", Folder: "/out", Arch: "x86_64"}
	return domain.NewRecord(req, "/out/qcow2/disk.qcow2", created)
}

func TestAddOrUpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := record("b1", now)
	require.NoError(t, store.AddOrUpdate(ctx, rec))

	running := rec.WithStatus(domain.StatusRunning, now.Add(time.Second)).
		WithContainer("os-latest-qcow2", "abc", now.Add(2*time.Second))
	require.NoError(t, store.AddOrUpdate(ctx, running))

	got, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, "abc", got.ContainerID)
	assert.Equal(t, "os:latest", got.ImageRef())
	assert.True(t, got.UpdatedAt.Equal(running.UpdatedAt))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now()

	require.NoError(t, store.AddOrUpdate(ctx, record("old", now.Add(-time.Hour))))
	require.NoError(t, store.AddOrUpdate(ctx, record("new", now)))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[1].ID)
}

func TestGetUnknown(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.AddOrUpdate(ctx, record("b1", time.Now())))

	require.NoError(t, store.Remove(ctx, "b1"))
	require.NoError(t, store.Remove(ctx, "b1"))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddOrUpdate(ctx, record("b1", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreating, got.Status)
}
