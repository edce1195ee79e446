package queryplan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/metastore/filestore"
	"github.com/duskline/duskline/internal/model"
)

func newTestStore(t *testing.T) *filestore.Metastore {
	t.Helper()
	ms, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return ms
}

func TestPlanReturnsOnlyPublishedSplits(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	idx := &model.Index{IndexID: "logs", IndexUID: "logs-01ABC", IndexURI: "file:///logs"}
	require.NoError(t, ms.CreateIndex(ctx, idx))

	published := &model.SplitMetadata{SplitID: "s1", IndexUID: "logs-01ABC"}
	staged := &model.SplitMetadata{SplitID: "s2", IndexUID: "logs-01ABC"}
	require.NoError(t, ms.StageSplits(ctx, "logs-01ABC", []*model.SplitMetadata{published, staged}))
	require.NoError(t, ms.PublishSplits(ctx, "logs-01ABC", []string{"s1"}, nil, nil))

	refs, err := Plan(ctx, ms, SearchRequest{IndexID: "logs"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "s1", refs[0].SplitID)
	assert.Equal(t, "file:///logs", refs[0].IndexURI)
}

func TestPlanNeverReturnsMarkedForDeletionSplits(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	idx := &model.Index{IndexID: "logs", IndexUID: "logs-01ABC"}
	require.NoError(t, ms.CreateIndex(ctx, idx))

	s := &model.SplitMetadata{SplitID: "s1", IndexUID: "logs-01ABC"}
	require.NoError(t, ms.StageSplits(ctx, "logs-01ABC", []*model.SplitMetadata{s}))
	require.NoError(t, ms.PublishSplits(ctx, "logs-01ABC", []string{"s1"}, nil, nil))
	require.NoError(t, ms.MarkSplitsForDeletion(ctx, "logs-01ABC", []string{"s1"}))

	refs, err := Plan(ctx, ms, SearchRequest{IndexID: "logs"})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPlanUnknownIndexIDReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	_, err := Plan(ctx, ms, SearchRequest{IndexID: "missing"})
	var notFound *metastore.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}
