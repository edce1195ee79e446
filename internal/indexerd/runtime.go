// Package indexerd is the indexer-node runtime: it receives a
// scheduler.IndexerClient.ApplyIndexingPlan call naming the
// IndexingTasks this node must now run, and converges its set of
// supervised ingest pipelines (internal/pipeline.Supervisor) plus
// per-index merge planners (internal/pipeline/merge.Planner) towards
// it. This package is the application-level handler; the gRPC
// transport the control plane dials lives in internal/indexerd/grpcapi,
// which calls into ApplyIndexingPlan and RunningTasks.
package indexerd

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
	"github.com/duskline/duskline/internal/pipeline/filesource"
	"github.com/duskline/duskline/internal/pipeline/merge"
	"github.com/duskline/duskline/internal/pipeline/voidsource"
	"github.com/duskline/duskline/internal/scheduler"
	"github.com/duskline/duskline/internal/schema"
	"github.com/duskline/duskline/internal/splitstore"
)

// defaultSealTrigger caps an in-memory segment's life the way the
// ingest pipeline's Indexer stage expects: whichever threshold fires
// first wins.
var defaultSealTrigger = pipeline.SealTrigger{
	MaxUncompressedBytes: 256 << 20,
	MaxNumDocs: 1_000_000,
	MaxAge: 10 * time.Second,
}

// RuntimeConfig wires a Runtime's process-wide, never-recreated
// dependencies — per §9's "process-wide state" note, the upload
// semaphore and local cache live inside SplitStore and are built once
// at service boot.
type RuntimeConfig struct {
	NodeID string
	Metastore metastore.Metastore
	SplitStore *splitstore.SplitStore
	Codec pipeline.Codec
	Bus *eventbus.Bus
	ScratchRoot string
	TickInterval time.Duration
	MaturityAfter time.Duration
	SealTrigger pipeline.SealTrigger
}

// Runtime tracks every ingest pipeline and merge planner currently
// running on one node, and converges them towards the most recently
// applied plan.
type Runtime struct {
	cfg RuntimeConfig

	mu sync.Mutex
	pipelines map[pipeline.Id]context.CancelFunc
	mergePlanners map[string]context.CancelFunc // keyed by index_uid
}

// New builds an empty Runtime.
func New(cfg RuntimeConfig) *Runtime {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaturityAfter <= 0 {
		cfg.MaturityAfter = 2 * time.Hour
	}
	if (cfg.SealTrigger == pipeline.SealTrigger{}) {
		cfg.SealTrigger = defaultSealTrigger
	}
	return &Runtime{
		cfg: cfg,
		pipelines: make(map[pipeline.Id]context.CancelFunc),
		mergePlanners: make(map[string]context.CancelFunc),
	}
}

// ApplyIndexingPlan converges the running pipeline set towards tasks:
// it assigns each distinct (index_uid, source_id) occurrence in tasks
// an ordinal 0..n-1, starts any ordinal not already running, stops any
// running ordinal no longer desired, and, for each pipeline it starts,
// starts a merge planner for that pipeline's index if none is running.
func (rt *Runtime) ApplyIndexingPlan(ctx context.Context, tasks []scheduler.IndexingTask) error {
	desired := make(map[[2]string]int)
	for _, t := range tasks {
		desired[[2]string{t.IndexUID, t.SourceID}]++
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	desiredIDs := make(map[pipeline.Id]struct{})
	for key, n := range desired {
		for ord := 0; ord < n; ord++ {
			desiredIDs[pipeline.Id{IndexUID: key[0], SourceID: key[1], NodeID: rt.cfg.NodeID, PipelineOrd: ord}] = struct{}{}
		}
	}

	for id, cancel := range rt.pipelines {
		if _, ok := desiredIDs[id]; !ok {
			logging.Infof("indexerd: stopping pipeline %s, no longer assigned", id)
			cancel()
			delete(rt.pipelines, id)
		}
	}

	ids := make([]pipeline.Id, 0, len(desiredIDs))
	for id := range desiredIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		if _, running := rt.pipelines[id]; running {
			continue
		}
		if err := rt.startPipeline(ctx, id); err != nil {
			logging.Errorf("indexerd: starting pipeline %s: %v", id, err)
			continue
		}
		rt.ensureMergePlanner(id.IndexUID)
	}
	return nil
}

// RunningTasks reports the IndexingTasks currently running on this
// node, for heartbeating into a scheduler.GossipSource.
func (rt *Runtime) RunningTasks() []scheduler.IndexingTask {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	tasks := make([]scheduler.IndexingTask, 0, len(rt.pipelines))
	for id := range rt.pipelines {
		tasks = append(tasks, scheduler.IndexingTask{IndexUID: id.IndexUID, SourceID: id.SourceID})
	}
	return tasks
}

var _ scheduler.IndexerClient = (*LocalClient)(nil)

// LocalClient adapts a Runtime to scheduler.IndexerClient for a
// single-process deployment where the control plane and the indexer
// share an address space — the in-process alternative to the gRPC
// dispatch transport in internal/indexerd/grpcapi.
type LocalClient struct {
	Runtime *Runtime
}

func (c *LocalClient) ApplyIndexingPlan(ctx context.Context, tasks []scheduler.IndexingTask) error {
	return c.Runtime.ApplyIndexingPlan(ctx, tasks)
}

func (rt *Runtime) startPipeline(ctx context.Context, id pipeline.Id) error {
	cfg, err := rt.buildPipelineConfig(ctx, id)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	rt.pipelines[id] = cancel
	go func() {
		sup := pipeline.NewSupervisor(cfg)
		if err := sup.Run(runCtx); err != nil && runCtx.Err() == nil {
			logging.Warnf("indexerd: pipeline %s exited: %v", id, err)
		}
	}()
	return nil
}

func (rt *Runtime) buildPipelineConfig(ctx context.Context, id pipeline.Id) (pipeline.PipelineConfig, error) {
	idx, err := rt.cfg.Metastore.IndexMetadata(ctx, id.IndexUID)
	if err != nil {
		return pipeline.PipelineConfig{}, fmt.Errorf("indexerd: resolving index %s: %w", id.IndexUID, err)
	}
	src, ok := idx.Sources[id.SourceID]
	if !ok {
		return pipeline.PipelineConfig{}, fmt.Errorf("indexerd: source %s not found on index %s", id.SourceID, id.IndexUID)
	}
	tree, err := schema.CompileDocument(idx.Mapping)
	if err != nil {
		return pipeline.PipelineConfig{}, fmt.Errorf("indexerd: compiling mapping for %s: %w", id.IndexUID, err)
	}

	src = src.Clone()
	var srcImpl pipeline.Source
	switch src.SourceType {
	case model.SourceTypeFile:
		path, _ := src.Params["path"].(string)
		if path == "" {
			return pipeline.PipelineConfig{}, fmt.Errorf("indexerd: file source %s missing params.path", id.SourceID)
		}
		srcImpl, err = filesource.New(path, src.Checkpoint)
		if err != nil {
			return pipeline.PipelineConfig{}, err
		}
	case model.SourceTypeVoid, "":
		srcImpl = voidsource.New()
	default:
		return pipeline.PipelineConfig{}, fmt.Errorf("indexerd: unsupported source type %q (queue/push_api sources are deployment-specific adapters out of core scope)", src.SourceType)
	}

	return pipeline.PipelineConfig{
		IndexUID: id.IndexUID,
		SourceID: id.SourceID,
		PartitionID: uint64(id.PipelineOrd),
		IndexURI: idx.IndexURI,
		Source: srcImpl,
		Tree: tree,
		Trigger: rt.cfg.SealTrigger,
		Codec: rt.cfg.Codec,
		ScratchRoot: rt.cfg.ScratchRoot,
		MaturityAfter: rt.cfg.MaturityAfter,
		TagFields: tree.TagFields(),
		Metastore: rt.cfg.Metastore,
		SplitStore: rt.cfg.SplitStore,
		Budget: splitstore.BudgetIndexing,
		TickInterval: rt.cfg.TickInterval,
	}, nil
}

// ensureMergePlanner starts a merge.Planner for indexUID if one is not
// already running. The merge pipeline is independent of and outlives
// any single ingest pipeline's restarts, so it is keyed only by index,
// never stopped by ApplyIndexingPlan dropping one source's pipelines.
func (rt *Runtime) ensureMergePlanner(indexUID string) {
	if _, ok := rt.mergePlanners[indexUID]; ok {
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	rt.mergePlanners[indexUID] = cancel

	idx, err := rt.cfg.Metastore.IndexMetadata(runCtx, indexUID)
	if err != nil {
		logging.Errorf("indexerd: resolving index %s for merge planner: %v", indexUID, err)
		return
	}
	tree, err := schema.CompileDocument(idx.Mapping)
	if err != nil {
		logging.Errorf("indexerd: compiling mapping for merge planner on %s: %v", indexUID, err)
		return
	}

	executor := merge.NewExecutor(merge.ExecutorConfig{
		IndexUID: indexUID,
		IndexURI: idx.IndexURI,
		TimestampField: tree.TimestampField(),
		TagFields: tree.TagFields(),
		MaturityAfter: rt.cfg.MaturityAfter,
		Codec: rt.cfg.Codec,
		Metastore: rt.cfg.Metastore,
		SplitStore: rt.cfg.SplitStore,
		ScratchRoot: rt.cfg.ScratchRoot,
	})
	planner := merge.NewPlanner(merge.PlannerConfig{
		IndexUID: indexUID,
		Metastore: rt.cfg.Metastore,
		Policy: merge.NewSizeTieredPolicy(4, 12, 6),
		Executor: executor,
		Bus: rt.cfg.Bus,
	})
	go planner.Run(runCtx)
}
