// Package retrying wraps any metastore.Metastore, retrying operations
// that fail with metastore.ErrConnection under bounded exponential
// backoff. Uses github.com/cenkalti/backoff/v4.
package retrying

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// Metastore retries the underlying backend's ErrConnection failures.
type Metastore struct {
	inner metastore.Metastore
	newBackoff func() backoff.BackOff
}

// New wraps inner with a default bounded exponential backoff policy
// (100ms initial interval, the library's default 1.5x multiplier,
// capped at 30s, giving up
// after 1 minute of total retrying).
func New(inner metastore.Metastore) *Metastore {
	return &Metastore{
		inner: inner,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return backoff.WithMaxElapsedTime(b, time.Minute)
		},
	}
}

var _ metastore.Metastore = (*Metastore)(nil)

func isRetryable(err error) bool {
	var connErr *metastore.ErrConnection
	return errors.As(err, &connErr)
}

func retry(ctx context.Context, b func() backoff.BackOff, op func() error) error {
	return backoff.Retry(func() error {
			err := op()
			if err == nil {
				return nil
			}
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(b(), ctx))
}

func (m *Metastore) CreateIndex(ctx context.Context, idx *model.Index) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.CreateIndex(ctx, idx) })
}

func (m *Metastore) DeleteIndex(ctx context.Context, indexUID string) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.DeleteIndex(ctx, indexUID) })
}

func (m *Metastore) IndexMetadata(ctx context.Context, indexUID string) (*model.Index, error) {
	var out *model.Index
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.IndexMetadata(ctx, indexUID)
			return innerErr
	})
	return out, err
}

func (m *Metastore) ListIndexes(ctx context.Context) ([]*model.Index, error) {
	var out []*model.Index
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.ListIndexes(ctx)
			return innerErr
	})
	return out, err
}

func (m *Metastore) AddSource(ctx context.Context, indexUID string, src *model.Source) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.AddSource(ctx, indexUID, src) })
}

func (m *Metastore) DeleteSource(ctx context.Context, indexUID, sourceID string) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.DeleteSource(ctx, indexUID, sourceID) })
}

func (m *Metastore) ToggleSource(ctx context.Context, indexUID, sourceID string, enabled bool) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.ToggleSource(ctx, indexUID, sourceID, enabled) })
}

func (m *Metastore) ResetSourceCheckpoint(ctx context.Context, indexUID, sourceID string) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.ResetSourceCheckpoint(ctx, indexUID, sourceID) })
}

func (m *Metastore) StageSplits(ctx context.Context, indexUID string, splits []*model.SplitMetadata) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.StageSplits(ctx, indexUID, splits) })
}

func (m *Metastore) PublishSplits(ctx context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error {
	return retry(ctx, m.newBackoff, func() error {
			return m.inner.PublishSplits(ctx, indexUID, stagedSplitIDs, replacedSplitIDs, delta)
	})
}

func (m *Metastore) MarkSplitsForDeletion(ctx context.Context, indexUID string, splitIDs []string) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.MarkSplitsForDeletion(ctx, indexUID, splitIDs) })
}

func (m *Metastore) DeleteSplits(ctx context.Context, indexUID string, splitIDs []string) error {
	return retry(ctx, m.newBackoff, func() error { return m.inner.DeleteSplits(ctx, indexUID, splitIDs) })
}

func (m *Metastore) ListSplits(ctx context.Context, query metastore.ListSplitsQuery) ([]*model.SplitMetadata, error) {
	var out []*model.SplitMetadata
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.ListSplits(ctx, query)
			return innerErr
	})
	return out, err
}

func (m *Metastore) CreateDeleteTask(ctx context.Context, indexUID, query string) (*metastore.DeleteTask, error) {
	var out *metastore.DeleteTask
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.CreateDeleteTask(ctx, indexUID, query)
			return innerErr
	})
	return out, err
}

func (m *Metastore) ListDeleteTasks(ctx context.Context, indexUID string, opstampStart uint64) ([]*metastore.DeleteTask, error) {
	var out []*metastore.DeleteTask
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.ListDeleteTasks(ctx, indexUID, opstampStart)
			return innerErr
	})
	return out, err
}

func (m *Metastore) LastDeleteOpstamp(ctx context.Context, indexUID string) (uint64, error) {
	var out uint64
	err := retry(ctx, m.newBackoff, func() error {
			var innerErr error
			out, innerErr = m.inner.LastDeleteOpstamp(ctx, indexUID)
			return innerErr
	})
	return out, err
}

func (m *Metastore) UpdateSplitsDeleteOpstamp(ctx context.Context, indexUID string, splitIDs []string, opstamp uint64) error {
	return retry(ctx, m.newBackoff, func() error {
			return m.inner.UpdateSplitsDeleteOpstamp(ctx, indexUID, splitIDs, opstamp)
	})
}
