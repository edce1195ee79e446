package splitstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploadSemaphoreSplitsShares(t *testing.T) {
	sem := NewUploadSemaphore(10, 6)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, sem.Acquire(ctx, BudgetIndexing))
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, sem.Acquire(timeoutCtx, BudgetIndexing))

	for i := 0; i < 4; i++ {
		require.NoError(t, sem.Acquire(ctx, BudgetMerging))
	}
}

func TestNewUploadSemaphoreClampsShares(t *testing.T) {
	sem := NewUploadSemaphore(4, 100)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, sem.Acquire(ctx, BudgetIndexing))
	}
	require.NoError(t, sem.Acquire(ctx, BudgetMerging))
}

func TestUploadSemaphoreReleaseFreesSlot(t *testing.T) {
	sem := NewUploadSemaphore(1, 1)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx, BudgetIndexing))
	sem.Release(BudgetIndexing)
	require.NoError(t, sem.Acquire(ctx, BudgetIndexing))
}
