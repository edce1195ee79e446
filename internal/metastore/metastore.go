// Package metastore defines the Metastore capability:
// index/source lifecycle, split staging/publication/garbage-collection,
// and delete-task bookkeeping, behind one interface implemented by
// several interchangeable backends (filestore, postgres, grpcapi,
// retrying, controlplaneproxy) — polymorphism over metastore backends,
// one capability surface. Callers program only against Metastore.
package metastore

import (
	"context"

	"github.com/duskline/duskline/internal/model"
)

// Metastore is the single capability surface every backend satisfies.
// Every method's error is one of ErrNotFound, ErrAlreadyExists,
// ErrFailedPrecondition, *model.ErrCheckpointConflict, ErrConnection,
// or ErrInternal.
type Metastore interface {
	CreateIndex(ctx context.Context, idx *model.Index) error
	DeleteIndex(ctx context.Context, indexUID string) error
	IndexMetadata(ctx context.Context, indexUID string) (*model.Index, error)
	ListIndexes(ctx context.Context) ([]*model.Index, error)

	AddSource(ctx context.Context, indexUID string, src *model.Source) error
	DeleteSource(ctx context.Context, indexUID, sourceID string) error
	ToggleSource(ctx context.Context, indexUID, sourceID string, enabled bool) error
	ResetSourceCheckpoint(ctx context.Context, indexUID, sourceID string) error

	StageSplits(ctx context.Context, indexUID string, splits []*model.SplitMetadata) error
	PublishSplits(ctx context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error
	MarkSplitsForDeletion(ctx context.Context, indexUID string, splitIDs []string) error
	DeleteSplits(ctx context.Context, indexUID string, splitIDs []string) error
	ListSplits(ctx context.Context, query ListSplitsQuery) ([]*model.SplitMetadata, error)

	CreateDeleteTask(ctx context.Context, indexUID, query string) (*DeleteTask, error)
	ListDeleteTasks(ctx context.Context, indexUID string, opstampStart uint64) ([]*DeleteTask, error)
	LastDeleteOpstamp(ctx context.Context, indexUID string) (uint64, error)
	UpdateSplitsDeleteOpstamp(ctx context.Context, indexUID string, splitIDs []string, opstamp uint64) error
}
