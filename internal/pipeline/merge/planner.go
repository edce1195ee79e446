package merge

import (
	"context"
	"sort"
	"time"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// PlannerConfig is everything a Planner needs to react to newly
// published splits.
type PlannerConfig struct {
	IndexUID string
	Metastore metastore.Metastore
	Policy Policy
	Executor *Executor
	Bus *eventbus.Bus
}

// Planner is the merge pipeline's driver: it subscribes to
// eventbus.TopicNewSplits (the event-bus hop that breaks the cyclic
// Publisher↔MergePlanner reference per §9), and on every new-splits
// notification for its index re-lists published splits per partition,
// asks the Policy which groups are worth merging, and hands each group
// to the Executor. The merge pipeline survives repeated ingest-pipeline
// restarts because it has no reference to any ingest pipeline stage —
// only to the Metastore and the event bus.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner builds a Planner for cfg.
func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{cfg: cfg}
}

// Run subscribes to new-split notifications and drives merge cycles
// until ctx is cancelled. It also runs one cycle immediately on start,
// so a planner started after splits already exist doesn't wait for the
// next publish to catch up.
func (p *Planner) Run(ctx context.Context) {
	events, unsubscribe := p.cfg.Bus.Subscribe(eventbus.TopicNewSplits, 32)
	defer unsubscribe()

	p.cycle(ctx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			nse, ok := ev.(*eventbus.NewSplitsEvent)
			if !ok || nse.IndexUID != p.cfg.IndexUID {
				continue
			}
			p.cycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// cycle lists every published, non-mature split of the index, groups
// them by partition, and runs the policy+executor over each partition
// independently — a crashed merge leaves its output split Staged or
// absent, and the next cycle either finds it still worth merging
// (re-publish) or its inputs already replaced (no-op), so no explicit
// crash-recovery bookkeeping is needed beyond re-running the cycle.
func (p *Planner) cycle(ctx context.Context) {
	now := time.Now()
	splits, err := p.cfg.Metastore.ListSplits(ctx, metastore.ListSplitsQuery{
		IndexUIDs: []string{p.cfg.IndexUID},
		States: []model.SplitState{model.SplitPublished},
		// I6: a mature split is never selected as a merge input.
		MatureAt: &now,
		Mature: false,
	})
	if err != nil {
		logging.Errorf("merge planner: listing published splits for %s: %v", p.cfg.IndexUID, err)
		return
	}

	byPartition := make(map[uint64][]*model.SplitMetadata)
	for _, s := range splits {
		byPartition[s.PartitionID] = append(byPartition[s.PartitionID], s)
	}

	partitionIDs := make([]uint64, 0, len(byPartition))
	for id := range byPartition {
		partitionIDs = append(partitionIDs, id)
	}
	sort.Slice(partitionIDs, func(i, j int) bool { return partitionIDs[i] < partitionIDs[j] })

	for _, partitionID := range partitionIDs {
		groups := p.cfg.Policy.SelectMergeCandidates(byPartition[partitionID])
		for _, group := range groups {
			if err := p.cfg.Executor.Merge(ctx, group); err != nil {
				logging.Errorf("merge planner: merging partition %d of %s: %v", partitionID, p.cfg.IndexUID, err)
			}
		}
	}
}
