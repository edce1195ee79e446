package merge

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/metastore/filestore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
	"github.com/duskline/duskline/internal/pipeline/jsoncodec"
	"github.com/duskline/duskline/internal/schema"
	"github.com/duskline/duskline/internal/splitstore"
	"github.com/duskline/duskline/internal/splitstore/fsbackend"
)

// publishTestSplit runs one document through the real
// serialize/package/upload/publish path used by the ingest pipeline,
// so the Executor has an authentic bundle to fetch and decode.
func publishTestSplit(t *testing.T, ctx context.Context, ms *filestore.Metastore, store *splitstore.SplitStore, codec pipeline.Codec, scratchRoot, indexUID string, docs int) *model.SplitMetadata {
	t.Helper()

	seg := pipeline.NewSegment("")
	for i := 0; i < docs; i++ {
		seg.Add(pipeline.ParsedDoc{Fields: []schema.FieldValue{{Path: "body", Value: "hello"}}})
	}
	sealed := &pipeline.SealedSegment{Segment: seg, Delta: model.CheckpointDelta{SourceID: "src"}}

	ser := pipeline.NewIndexSerializer(codec, scratchRoot)
	serialized, err := ser.Serialize(sealed)
	require.NoError(t, err)

	packager := pipeline.NewPackager(indexUID, "src", 0, nil, 0, codec)
	pkg, err := packager.Package(serialized)
	require.NoError(t, err)

	require.NoError(t, ms.StageSplits(ctx, indexUID, []*model.SplitMetadata{pkg.Meta}))

	f, err := os.Open(pkg.BundlePath)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.Store(ctx, "file:///"+indexUID, pkg.Meta, pkg.ScratchDir, f, splitstore.BudgetIndexing))

	require.NoError(t, ms.PublishSplits(ctx, indexUID, []string{pkg.Meta.SplitID}, nil, nil))

	published, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{IndexUIDs: []string{indexUID}, States: []model.SplitState{model.SplitPublished}})
	require.NoError(t, err)
	for _, s := range published {
		if s.SplitID == pkg.Meta.SplitID {
			return s
		}
	}
	t.Fatalf("published split %s not found", pkg.Meta.SplitID)
	return nil
}

func newTestExecutor(t *testing.T) (*Executor, *filestore.Metastore, string) {
	t.Helper()
	ms, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	backend, err := fsbackend.New(t.TempDir())
	require.NoError(t, err)
	store, err := splitstore.New(backend, t.TempDir(), 8, 1<<20, splitstore.NewUploadSemaphore(4, 2))
	require.NoError(t, err)
	codec := jsoncodec.New()
	scratchRoot := t.TempDir()

	indexUID := "idx-1"
	require.NoError(t, ms.CreateIndex(context.Background(), &model.Index{IndexUID: indexUID, IndexURI: "file:///" + indexUID}))

	executor := NewExecutor(ExecutorConfig{
		IndexUID: indexUID,
		IndexURI: "file:///" + indexUID,
		Codec: codec,
		Metastore: ms,
		SplitStore: store,
		ScratchRoot: scratchRoot,
	})
	return executor, ms, scratchRoot
}

func TestExecutorMergeCombinesSplitsAndReplacesThem(t *testing.T) {
	ctx := context.Background()
	executor, ms, scratchRoot := newTestExecutor(t)
	codec := jsoncodec.New()

	s1 := publishTestSplit(t, ctx, ms, executor.cfg.SplitStore, codec, scratchRoot, "idx-1", 3)
	s2 := publishTestSplit(t, ctx, ms, executor.cfg.SplitStore, codec, scratchRoot, "idx-1", 2)

	require.NoError(t, executor.Merge(ctx, []*model.SplitMetadata{s1, s2}))

	all, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{IndexUIDs: []string{"idx-1"}})
	require.NoError(t, err)

	var replaced, merged int
	for _, s := range all {
		switch s.State {
		case model.SplitMarkedForDeletion:
			replaced++
		case model.SplitPublished:
			merged++
			assert.EqualValues(t, 5, s.NumDocs)
			assert.Equal(t, 1, s.NumMergeOps)
		}
	}
	assert.Equal(t, 2, replaced)
	assert.Equal(t, 1, merged)
}

func TestExecutorMergeNoOpBelowTwoSplits(t *testing.T) {
	ctx := context.Background()
	executor, ms, scratchRoot := newTestExecutor(t)
	codec := jsoncodec.New()
	s1 := publishTestSplit(t, ctx, ms, executor.cfg.SplitStore, codec, scratchRoot, "idx-1", 1)

	require.NoError(t, executor.Merge(ctx, []*model.SplitMetadata{s1}))

	all, err := ms.ListSplits(ctx, metastore.ListSplitsQuery{IndexUIDs: []string{"idx-1"}, States: []model.SplitState{model.SplitPublished}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, s1.SplitID, all[0].SplitID)
}
