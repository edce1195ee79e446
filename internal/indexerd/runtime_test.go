package indexerd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/metastore/filestore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline/jsoncodec"
	"github.com/duskline/duskline/internal/scheduler"
	"github.com/duskline/duskline/internal/splitstore"
	"github.com/duskline/duskline/internal/splitstore/fsbackend"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	ms, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	backend, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	store, err := splitstore.New(backend, t.TempDir(), 4, 1<<20, splitstore.NewUploadSemaphore(4, 2))
	require.NoError(t, err)

	return New(RuntimeConfig{
		NodeID: "node-1",
		Metastore: ms,
		SplitStore: store,
		Codec: jsoncodec.New(),
		Bus: eventbus.New(),
		ScratchRoot: t.TempDir(),
		TickInterval: 10 * time.Millisecond,
	})
}

func createVoidIndex(t *testing.T, ctx context.Context, rt *Runtime, indexUID string) {
	t.Helper()
	idx := &model.Index{
		IndexUID: indexUID,
		IndexURI: "file:///" + indexUID,
		Mapping: map[string]interface{}{
			"field_mappings": []interface{}{
				map[string]interface{}{"name": "body", "type": "text"},
			},
		},
		Sources: map[string]*model.Source{
			"src": {SourceID: "src", SourceType: model.SourceTypeVoid},
		},
	}
	require.NoError(t, rt.cfg.Metastore.CreateIndex(ctx, idx))
}

func TestApplyIndexingPlanStartsAndTracksPipelines(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	createVoidIndex(t, ctx, rt, "idx-1")

	require.NoError(t, rt.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{
		{IndexUID: "idx-1", SourceID: "src"},
		{IndexUID: "idx-1", SourceID: "src"},
	}))

	assert.Len(t, rt.RunningTasks(), 2)
}

func TestApplyIndexingPlanStopsNoLongerDesiredPipelines(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	createVoidIndex(t, ctx, rt, "idx-1")

	require.NoError(t, rt.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{
		{IndexUID: "idx-1", SourceID: "src"},
		{IndexUID: "idx-1", SourceID: "src"},
	}))
	require.NoError(t, rt.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{
		{IndexUID: "idx-1", SourceID: "src"},
	}))

	assert.Len(t, rt.RunningTasks(), 1)
}

func TestApplyIndexingPlanEmptyStopsEverything(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	createVoidIndex(t, ctx, rt, "idx-1")

	require.NoError(t, rt.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{{IndexUID: "idx-1", SourceID: "src"}}))
	require.NoError(t, rt.ApplyIndexingPlan(ctx, nil))

	assert.Empty(t, rt.RunningTasks())
}

func TestApplyIndexingPlanSkipsUnsupportedSourceType(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	idx := &model.Index{
		IndexUID: "idx-1",
		Mapping: map[string]interface{}{"field_mappings": []interface{}{}},
		Sources: map[string]*model.Source{
			"src": {SourceID: "src", SourceType: model.SourceTypeQueue},
		},
	}
	require.NoError(t, rt.cfg.Metastore.CreateIndex(ctx, idx))

	require.NoError(t, rt.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{{IndexUID: "idx-1", SourceID: "src"}}))
	assert.Empty(t, rt.RunningTasks())
}

func TestLocalClientDelegatesToRuntime(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	createVoidIndex(t, ctx, rt, "idx-1")
	client := &LocalClient{Runtime: rt}

	require.NoError(t, client.ApplyIndexingPlan(ctx, []scheduler.IndexingTask{{IndexUID: "idx-1", SourceID: "src"}}))
	assert.Len(t, rt.RunningTasks(), 1)
}
