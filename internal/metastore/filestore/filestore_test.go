package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

func newTestStore(t *testing.T) *Metastore {
	t.Helper()
	ms, err := New(t.TempDir())
	require.NoError(t, err)
	return ms
}

func TestCreateIndexThenListAndGet(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	idx := &model.Index{IndexID: "logs", IndexUID: "logs-01ABC", IndexURI: "file:///tmp/logs"}
	require.NoError(t, ms.CreateIndex(ctx, idx))

	got, err := ms.IndexMetadata(ctx, idx.IndexUID)
	require.NoError(t, err)
	assert.Equal(t, idx.IndexID, got.IndexID)

	list, err := ms.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, idx.IndexUID, list[0].IndexUID)
}

func TestCreateIndexRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	idx := &model.Index{IndexID: "logs", IndexUID: "logs-01ABC"}
	require.NoError(t, ms.CreateIndex(ctx, idx))

	err := ms.CreateIndex(ctx, idx)
	var alreadyExists *metastore.ErrAlreadyExists
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestIndexMetadataNotFound(t *testing.T) {
	ms := newTestStore(t)
	_, err := ms.IndexMetadata(context.Background(), "missing")
	var notFound *metastore.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestStagePublishAndDeleteSplitLifecycle(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	idx := &model.Index{IndexUID: "idx-1", Sources: map[string]*model.Source{
		"src": {SourceID: "src", Checkpoint: model.Checkpoint{}},
	}}
	require.NoError(t, ms.CreateIndex(ctx, idx))

	split := &model.SplitMetadata{SplitID: "split-1", IndexUID: "idx-1"}
	require.NoError(t, ms.StageSplits(ctx, "idx-1", []*model.SplitMetadata{split}))

	staged, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{States: []model.SplitState{model.SplitStaged}})
	require.NoError(t, err)
	require.Len(t, staged, 1)

	delta := &model.CheckpointDelta{SourceID: "src", Entries: []model.CheckpointDeltaEntry{{PartitionID: "0", From: "", To: "100"}}}
	require.NoError(t, ms.PublishSplits(ctx, "idx-1", []string{"split-1"}, nil, delta))

	published, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{States: []model.SplitState{model.SplitPublished}})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, model.SplitPublished, published[0].State)

	idxAfter, err := ms.IndexMetadata(ctx, "idx-1")
	require.NoError(t, err)
	assert.Equal(t, model.Position("100"), idxAfter.Sources["src"].Checkpoint["0"])

	require.NoError(t, ms.MarkSplitsForDeletion(ctx, "idx-1", []string{"split-1"}))
	require.NoError(t, ms.DeleteSplits(ctx, "idx-1", []string{"split-1"}))

	remaining, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{IndexUIDs: []string{"idx-1"}})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPublishSplitsRejectsStaleCheckpointDelta(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	idx := &model.Index{IndexUID: "idx-2", Sources: map[string]*model.Source{
		"src": {SourceID: "src", Checkpoint: model.Checkpoint{"0": "50"}},
	}}
	require.NoError(t, ms.CreateIndex(ctx, idx))
	split := &model.SplitMetadata{SplitID: "split-1", IndexUID: "idx-2"}
	require.NoError(t, ms.StageSplits(ctx, "idx-2", []*model.SplitMetadata{split}))

	delta := &model.CheckpointDelta{SourceID: "src", Entries: []model.CheckpointDeltaEntry{{PartitionID: "0", From: "0", To: "100"}}}
	err := ms.PublishSplits(ctx, "idx-2", []string{"split-1"}, nil, delta)
	var conflict *model.ErrCheckpointConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestDeleteSplitsRequiresMarkedForDeletion(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	idx := &model.Index{IndexUID: "idx-3"}
	require.NoError(t, ms.CreateIndex(ctx, idx))
	split := &model.SplitMetadata{SplitID: "s1", IndexUID: "idx-3"}
	require.NoError(t, ms.StageSplits(ctx, "idx-3", []*model.SplitMetadata{split}))

	err := ms.DeleteSplits(ctx, "idx-3", []string{"s1"})
	var precond *metastore.ErrFailedPrecondition
	assert.ErrorAs(t, err, &precond)
}
