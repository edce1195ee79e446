package splitstore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// UploadBudget distinguishes the two upload concurrency pools:
// partitioned into an indexing budget and a merging budget so a merge
// burst cannot starve ingest throughput.
type UploadBudget int

const (
	BudgetIndexing UploadBudget = iota
	BudgetMerging
)

// UploadSemaphore is the process-wide upload concurrency limiter,
// built on golang.org/x/sync/semaphore.
type UploadSemaphore struct {
	indexing *semaphore.Weighted
	merging *semaphore.Weighted
}

// NewUploadSemaphore splits maxConcurrentUploads into an indexing and
// a merging budget. indexingShare is the number of slots reserved for
// ingest uploads, clamped to maxConcurrentUploads; the remainder goes to
// merge uploads. Each budget gets at least one slot, so the two
// together can exceed maxConcurrentUploads.
func NewUploadSemaphore(maxConcurrentUploads, indexingShare int) *UploadSemaphore {
	if indexingShare > maxConcurrentUploads {
		indexingShare = maxConcurrentUploads
	}
	if indexingShare < 1 {
		indexingShare = 1
	}
	mergingShare := maxConcurrentUploads - indexingShare
	if mergingShare < 1 {
		mergingShare = 1
	}
	return &UploadSemaphore{
		indexing: semaphore.NewWeighted(int64(indexingShare)),
		merging: semaphore.NewWeighted(int64(mergingShare)),
	}
}

// Acquire blocks until an upload slot in the given budget is free, or
// ctx is cancelled (e.g. by the pipeline's kill switch).
func (s *UploadSemaphore) Acquire(ctx context.Context, budget UploadBudget) error {
	return s.weighted(budget).Acquire(ctx, 1)
}

// Release frees the upload slot.
func (s *UploadSemaphore) Release(budget UploadBudget) {
	s.weighted(budget).Release(1)
}

func (s *UploadSemaphore) weighted(budget UploadBudget) *semaphore.Weighted {
	if budget == BudgetMerging {
		return s.merging
	}
	return s.indexing
}
