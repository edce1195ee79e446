package splitstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/model"
)

// SplitStore is the core's single entrypoint onto split byte storage:
// it uploads sealed splits to a Backend, serves reads through a
// LocalCache, and gates concurrent uploads through an UploadSemaphore.
type SplitStore struct {
	backend Backend
	cache *LocalCache
	semaphore *UploadSemaphore
	cacheRoot string
}

// New builds a SplitStore over backend, with a local cache bounded by
// maxNumSplits/maxNumBytes rooted at cacheRoot.
func New(backend Backend, cacheRoot string, maxNumSplits int, maxNumBytes int64, sem *UploadSemaphore) (*SplitStore, error) {
	cache, err := NewLocalCache(maxNumSplits, maxNumBytes)
	if err != nil {
		return nil, fmt.Errorf("splitstore: building local cache: %w", err)
	}
	return &SplitStore{backend: backend, cache: cache, semaphore: sem, cacheRoot: cacheRoot}, nil
}

func splitObjectPath(indexURI, splitID string) string {
	return fmt.Sprintf("%s/%s.split", indexURI, splitID)
}

// Store uploads the split's byte stream to <index_uri>/<split_id>.split.
// On success, if the split is not yet mature, the local
// folder is opportunistically moved into the local cache; the cache's
// own bounds decide whether that succeeds, and store() never blocks on
// that decision failing — the local folder is simply removed instead.
func (s *SplitStore) Store(ctx context.Context, indexURI string, meta *model.SplitMetadata, localFolder string, payload io.Reader, budget UploadBudget) error {
	if err := s.semaphore.Acquire(ctx, budget); err != nil {
		return fmt.Errorf("splitstore: acquiring upload slot: %w", err)
	}
	defer s.semaphore.Release(budget)

	path := splitObjectPath(indexURI, meta.SplitID)
	if err := s.backend.Put(ctx, path, payload); err != nil {
		return fmt.Errorf("splitstore: uploading split %s: %w", meta.SplitID, err)
	}

	if meta.IsMature(time.Now()) {
		if err := os.RemoveAll(localFolder); err != nil {
			logging.Warnf("splitstore: failed removing local folder for mature split %s: %v", meta.SplitID, err)
		}
		return nil
	}

	sizeBytes, err := dirSize(localFolder)
	if err != nil {
		logging.Warnf("splitstore: failed sizing local folder for split %s, skipping cache: %v", meta.SplitID, err)
		_ = os.RemoveAll(localFolder)
		return nil
	}
	s.cache.TryInsert(meta.SplitID, localFolder, sizeBytes)
	return nil
}

// Fetch resolves a split's contents into outputDir: a local cache hit
// is moved in place; otherwise the single-file split bundle is
// downloaded from the backend.
func (s *SplitStore) Fetch(ctx context.Context, indexURI, splitID, outputDir string) error {
	if _, ok := s.cache.Fetch(splitID, outputDir); ok {
		return nil
	}
	path := splitObjectPath(indexURI, splitID)
	bundlePath := filepath.Join(outputDir, splitID+".split")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("splitstore: preparing output dir: %w", err)
	}
	if err := s.backend.CopyToFile(ctx, path, bundlePath); err != nil {
		return fmt.Errorf("splitstore: downloading split %s: %w", splitID, err)
	}
	return nil
}

// Delete removes a split's object-storage payload (used by the
// janitor's reclaim path).
func (s *SplitStore) Delete(ctx context.Context, indexURI, splitID string) error {
	s.cache.Evict(splitID)
	path := splitObjectPath(indexURI, splitID)
	if err := s.backend.Delete(ctx, path); err != nil {
		return fmt.Errorf("splitstore: deleting split %s: %w", splitID, err)
	}
	return nil
}

// RemoveDangling lists every split object under indexURI and deletes
// those whose split id is not present in liveSplitIDs — used by the
// janitor to reclaim storage for splits whose metastore record is gone
// but whose object-storage payload survived a crash mid-delete.
func (s *SplitStore) RemoveDangling(ctx context.Context, indexURI string, liveSplitIDs map[string]struct{}) (int, error) {
	paths, err := s.backend.ListPrefix(ctx, indexURI+"/")
	if err != nil {
		return 0, fmt.Errorf("splitstore: listing %s: %w", indexURI, err)
	}
	removed := 0
	for _, p := range paths {
		id := splitIDFromPath(p)
		if id == "" {
			continue
		}
		if _, live := liveSplitIDs[id]; live {
			continue
		}
		if err := s.backend.Delete(ctx, p); err != nil {
			logging.Warnf("splitstore: failed removing dangling object %s: %v", p, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func splitIDFromPath(path string) string {
	base := filepath.Base(path)
	const suffix = ".split"
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return ""
	}
	return base[:len(base)-len(suffix)]
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				total += info.Size()
			}
			return nil
	})
	return total, err
}
