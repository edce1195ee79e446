// Package scheduler implements the control-plane reconciliation loop:
// it maps enabled (index, source) configs to a flat logical plan of
// IndexingTasks, bin-packs that plan across the live indexer pool into
// a physical plan, and drives the cluster towards that plan under node
// churn. Grounded on secondary/planner/ (planner.go, executor.go,
// shard_dealer.go) for the overall "compute placement, diff against
// last-applied, dispatch the delta" shape, but the teacher's
// simulated-annealing SAPlanner — built for NP-hard rebalancing under
// memory/CPU/HA constraints across an existing cluster — is not
// imitated verbatim: this package keeps its greedy-placement +
// explicit-diagnostics idiom at the complexity §4.5 actually calls for,
// a deterministic constraint-respecting bin-pack.
package scheduler

import (
	"context"
	"sort"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// IndexingTask is one (index, source) assignment a single pipeline
// ordinal must run somewhere in the cluster.
type IndexingTask struct {
	IndexUID string
	SourceID string
}

// SourceConfig is the subset of a Source's configuration the scheduler
// needs to build the logical plan.
type SourceConfig struct {
	IndexUID string
	SourceID string
	DesiredNumPipelines int
	MaxNumPipelinesPerNode int
}

// Node is one indexer's current membership advertisement, consumed
// from the cluster gossip payload of §6 ({node_id, enabled_services,
// grpc_addr, indexing_tasks}).
type Node struct {
	NodeID string
	GRPCAddr string
	EnabledServices []string
	// IndexingTasks is the multiset of tasks the node self-reports
	// running, as observed via cluster gossip.
	IndexingTasks []IndexingTask
}

// IsIndexer reports whether the node advertises the "indexer" service.
func (n Node) IsIndexer() bool {
	for _, s := range n.EnabledServices {
		if s == "indexer" {
			return true
		}
	}
	return false
}

// PhysicalPlan maps an indexer node id to the multiset of
// IndexingTasks it must run. Task equality is multiset equality:
// duplicate tasks are legal and counted (a source with
// desired_num_pipelines=2 contributes two identical IndexingTask
// entries, each a separate pipeline ordinal).
type PhysicalPlan map[string][]IndexingTask

// FetchSourceConfigs returns the SourceConfig of every enabled source
// across every index known to the metastore, keyed by (index_uid,
// source_id) — step 1 of the algorithm in §4.5.
func FetchSourceConfigs(ctx context.Context, ms metastore.Metastore) (map[[2]string]SourceConfig, error) {
	indexes, err := ms.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[[2]string]SourceConfig)
	for _, idx := range indexes {
		for _, src := range idx.EnabledSources() {
			out[[2]string{idx.IndexUID, src.SourceID}] = SourceConfig{
				IndexUID: idx.IndexUID,
				SourceID: src.SourceID,
				DesiredNumPipelines: src.DesiredNumPipelines,
				MaxNumPipelinesPerNode: effectiveMaxPerNode(src),
			}
		}
	}
	return out, nil
}

func effectiveMaxPerNode(src *model.Source) int {
	if src.MaxNumPipelinesPerNode <= 0 {
		return src.DesiredNumPipelines
	}
	return src.MaxNumPipelinesPerNode
}

// BuildLogicalPlan flattens the fetched source configs into one
// IndexingTask per desired pipeline ordinal — step 2 of §4.5. The
// returned slice is sorted by (index_uid, source_id) so downstream
// assignment is deterministic given the same input map.
func BuildLogicalPlan(sources map[[2]string]SourceConfig) []IndexingTask {
	keys := make([][2]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	var tasks []IndexingTask
	for _, k := range keys {
		cfg := sources[k]
		for i := 0; i < cfg.DesiredNumPipelines; i++ {
			tasks = append(tasks, IndexingTask{IndexUID: cfg.IndexUID, SourceID: cfg.SourceID})
		}
	}
	return tasks
}
