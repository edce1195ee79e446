package splitstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkDirWithFile(t *testing.T, root string, size int) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), make([]byte, size), 0o644))
	return dir
}

func TestLocalCacheInsertAndFetch(t *testing.T) {
	c, err := NewLocalCache(4, 1<<20)
	require.NoError(t, err)

	dir := mkDirWithFile(t, t.TempDir(), 100)
	c.TryInsert("split-1", dir, 100)
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 100, c.TotalBytes())

	out := filepath.Join(t.TempDir(), "out")
	got, ok := c.Fetch("split-1", out)
	require.True(t, ok)
	assert.Equal(t, out, got)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCacheFetchMiss(t *testing.T) {
	c, err := NewLocalCache(4, 1<<20)
	require.NoError(t, err)
	_, ok := c.Fetch("missing", t.TempDir())
	assert.False(t, ok)
}

func TestLocalCacheDeclinesOversizedInsert(t *testing.T) {
	c, err := NewLocalCache(4, 50)
	require.NoError(t, err)
	dir := mkDirWithFile(t, t.TempDir(), 100)
	c.TryInsert("split-1", dir, 100)
	assert.Equal(t, 0, c.Len())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalCacheEvictsOldestWhenByteBoundExceeded(t *testing.T) {
	c, err := NewLocalCache(10, 150)
	require.NoError(t, err)

	dir1 := mkDirWithFile(t, t.TempDir(), 100)
	dir2 := mkDirWithFile(t, t.TempDir(), 100)
	c.TryInsert("split-1", dir1, 100)
	c.TryInsert("split-2", dir2, 100)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Fetch("split-1", t.TempDir())
	assert.False(t, ok)
	_, ok = c.Fetch("split-2", filepath.Join(t.TempDir(), "out"))
	assert.True(t, ok)
}

func TestLocalCacheEvict(t *testing.T) {
	c, err := NewLocalCache(4, 1<<20)
	require.NoError(t, err)
	dir := mkDirWithFile(t, t.TempDir(), 10)
	c.TryInsert("split-1", dir, 10)
	c.Evict("split-1")
	assert.Equal(t, 0, c.Len())
}
