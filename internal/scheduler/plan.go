package scheduler

import "sort"

// BuildPhysicalPlan bin-packs logicalTasks across indexers — step 3 of
// §4.5. For each task, it assigns the task to the indexer currently
// carrying the fewest tasks overall, among indexers that have not yet
// reached that task's source's max_num_pipelines_per_indexer cap;
// ties are broken by ascending node id, so the result is fully
// deterministic given the same indexers/logicalTasks/sources inputs —
// required for P6 (scheduler convergence) to be checkable at all.
func BuildPhysicalPlan(indexers []Node, logicalTasks []IndexingTask, sources map[[2]string]SourceConfig) PhysicalPlan {
	nodeIDs := make([]string, 0, len(indexers))
	for _, n := range indexers {
		if n.IsIndexer() {
			nodeIDs = append(nodeIDs, n.NodeID)
		}
	}
	sort.Strings(nodeIDs)

	plan := make(PhysicalPlan, len(nodeIDs))
	for _, id := range nodeIDs {
		plan[id] = nil
	}
	if len(nodeIDs) == 0 {
		return plan
	}

	totalLoad := make(map[string]int, len(nodeIDs))
	perSourceLoad := make(map[[2]string]map[string]int)

	for _, task := range logicalTasks {
		key := [2]string{task.IndexUID, task.SourceID}
		cap := maxPerNode(sources, key)
		if perSourceLoad[key] == nil {
			perSourceLoad[key] = make(map[string]int, len(nodeIDs))
		}

		best := ""
		bestLoad := -1
		for _, id := range nodeIDs {
			if cap > 0 && perSourceLoad[key][id] >= cap {
				continue
			}
			if bestLoad == -1 || totalLoad[id] < bestLoad {
				best = id
				bestLoad = totalLoad[id]
			}
		}
		if best == "" {
			// Every node is already at the source's per-node cap; the
			// task cannot be placed this cycle (the source is over-
			// provisioned relative to max_num_pipelines_per_indexer ×
			// cluster size). Leave it unassigned rather than violating
			// the cap.
			continue
		}
		plan[best] = append(plan[best], task)
		totalLoad[best]++
		perSourceLoad[key][best]++
	}
	return plan
}

func maxPerNode(sources map[[2]string]SourceConfig, key [2]string) int {
	cfg, ok := sources[key]
	if !ok {
		return 0
	}
	return cfg.MaxNumPipelinesPerNode
}

// Equal reports whether p and other assign the same multiset of tasks
// to every node — the comparison §4.5 step 4/5 use to decide whether a
// diff is a no-op.
func (p PhysicalPlan) Equal(other PhysicalPlan) bool {
	nodes := make(map[string]struct{}, len(p)+len(other))
	for id := range p {
		nodes[id] = struct{}{}
	}
	for id := range other {
		nodes[id] = struct{}{}
	}
	for id := range nodes {
		if !multisetEqual(p[id], other[id]) {
			return false
		}
	}
	return true
}

// Diff returns the set of node ids whose assigned task multiset in
// desired differs from current — the nodes that must receive an
// ApplyIndexingPlanRequest.
func Diff(current, desired PhysicalPlan) []string {
	nodes := make(map[string]struct{}, len(current)+len(desired))
	for id := range current {
		nodes[id] = struct{}{}
	}
	for id := range desired {
		nodes[id] = struct{}{}
	}
	var changed []string
	for id := range nodes {
		if !multisetEqual(current[id], desired[id]) {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed
}

func multisetEqual(a, b []IndexingTask) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[IndexingTask]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	for _, t := range b {
		counts[t]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
