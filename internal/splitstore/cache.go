package splitstore

import (
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duskline/duskline/internal/logging"
)

// cacheEntry tracks one cached split's local directory and its size,
// so evictions can enforce the byte bound alongside the LRU's own
// count bound.
type cacheEntry struct {
	dir string
	bytes int64
}

// LocalCache is the bounded local accelerator in front of a Backend.
// Eviction order is least-recently-used, implemented with
// hashicorp/golang-lru/v2, wrapped with a running byte-total so the
// max_num_bytes bound is enforced on top of the LRU's own
// max_num_splits count bound.
type LocalCache struct {
	mu sync.Mutex
	lru *lru.Cache[string, cacheEntry]
	totalBytes int64
	maxNumBytes int64
}

// NewLocalCache builds a cache bounded by maxNumSplits entries and
// maxNumBytes total bytes.
func NewLocalCache(maxNumSplits int, maxNumBytes int64) (*LocalCache, error) {
	c := &LocalCache{maxNumBytes: maxNumBytes}
	evictCallback := func(splitID string, entry cacheEntry) {
		c.totalBytes -= entry.bytes
		if err := os.RemoveAll(entry.dir); err != nil {
			logging.Warnf("splitstore: failed removing evicted cache dir for split %s: %v", splitID, err)
		}
	}
	l, err := lru.NewWithEvict[string, cacheEntry](maxNumSplits, evictCallback)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// TryInsert attempts to move localDir into the cache under splitID. It
// never blocks on I/O contention from other callers beyond the cache's
// own mutex, and silently declines (removing localDir) rather than
// erroring when the byte bound would be exceeded — caching is
// best-effort, the remote copy stays authoritative either way.
func (c *LocalCache) TryInsert(splitID, localDir string, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sizeBytes > c.maxNumBytes {
		_ = os.RemoveAll(localDir)
		return
	}
	for c.totalBytes+sizeBytes > c.maxNumBytes {
		oldestID, _, ok := c.lru.GetOldest()
		if !ok {
			break
		}
		c.lru.Remove(oldestID) // triggers evictCallback, which decrements totalBytes
	}
	c.lru.Add(splitID, cacheEntry{dir: localDir, bytes: sizeBytes})
	c.totalBytes += sizeBytes
}

// Fetch returns the cached directory for splitID, moving it to
// outputDir, or ("", false) on a cache miss.
func (c *LocalCache) Fetch(splitID, outputDir string) (string, bool) {
	c.mu.Lock()
	entry, ok := c.lru.Get(splitID)
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	if err := os.Rename(entry.dir, outputDir); err != nil {
		logging.Warnf("splitstore: cache hit for split %s but move failed: %v", splitID, err)
		return "", false
	}
	c.mu.Lock()
	c.lru.Remove(splitID)
	c.mu.Unlock()
	return outputDir, true
}

// Evict removes splitID from the cache (used when a split becomes
// mature: maturity_timestamp passing evicts it from the local cache).
func (c *LocalCache) Evict(splitID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(splitID)
}

// Len returns the current number of cached splits.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// TotalBytes returns the current total cached bytes.
func (c *LocalCache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// splitCachePath is the conventional on-disk layout for a cached
// split's directory, keyed by split id.
func splitCachePath(cacheRoot, splitID string) string {
	return filepath.Join(cacheRoot, splitID)
}
