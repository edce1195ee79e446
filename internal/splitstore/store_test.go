package splitstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/splitstore/fsbackend"
)

func newTestSplitStore(t *testing.T) *SplitStore {
	t.Helper()
	backend, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	sem := NewUploadSemaphore(4, 2)
	store, err := New(backend, t.TempDir(), 4, 1<<20, sem)
	require.NoError(t, err)
	return store
}

func TestSplitStoreStoreAndFetch(t *testing.T) {
	ctx := context.Background()
	store := newTestSplitStore(t)

	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "data"), []byte("hello"), 0o644))

	meta := &model.SplitMetadata{SplitID: "split-1", MaturityTimestamp: time.Now().Add(time.Hour)}
	require.NoError(t, store.Store(ctx, "idx-1", meta, localDir, strings.NewReader("payload"), BudgetIndexing))

	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, store.Fetch(ctx, "idx-1", "split-1", out))
}

func TestSplitStoreMatureSplitSkipsCache(t *testing.T) {
	ctx := context.Background()
	store := newTestSplitStore(t)

	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "data"), []byte("hello"), 0o644))

	meta := &model.SplitMetadata{SplitID: "split-1", MaturityTimestamp: time.Now().Add(-time.Hour)}
	require.NoError(t, store.Store(ctx, "idx-1", meta, localDir, strings.NewReader("payload"), BudgetIndexing))

	_, err := os.Stat(localDir)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, store.cache.Len())
}

func TestSplitStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestSplitStore(t)

	localDir := t.TempDir()
	meta := &model.SplitMetadata{SplitID: "split-1", MaturityTimestamp: time.Now().Add(-time.Hour)}
	require.NoError(t, store.Store(ctx, "idx-1", meta, localDir, strings.NewReader("payload"), BudgetIndexing))

	require.NoError(t, store.Delete(ctx, "idx-1", "split-1"))
	assert.Error(t, store.Fetch(ctx, "idx-1", "split-1", t.TempDir()))
}

func TestSplitStoreRemoveDangling(t *testing.T) {
	ctx := context.Background()
	store := newTestSplitStore(t)

	for _, id := range []string{"live", "dangling"} {
		meta := &model.SplitMetadata{SplitID: id, MaturityTimestamp: time.Now().Add(-time.Hour)}
		require.NoError(t, store.Store(ctx, "idx-1", meta, t.TempDir(), strings.NewReader("x"), BudgetIndexing))
	}

	removed, err := store.RemoveDangling(ctx, "idx-1", map[string]struct{}{"live": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, err := store.backend.Exists(ctx, splitObjectPath("idx-1", "dangling"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.backend.Exists(ctx, splitObjectPath("idx-1", "live"))
	require.NoError(t, err)
	assert.True(t, exists)
}
