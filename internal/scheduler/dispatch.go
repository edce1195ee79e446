package scheduler

import (
	"context"
	"sync"

	"github.com/duskline/duskline/internal/logging"
)

// IndexerClient is the control plane's view of one indexer node: a
// fire-and-forget ApplyIndexingPlan RPC. Indexers ACK optimistically
// and apply the plan asynchronously, so Dispatch does not wait for the
// indexer to actually converge — only for the RPC to be accepted.
type IndexerClient interface {
	ApplyIndexingPlan(ctx context.Context, tasks []IndexingTask) error
}

// IndexerClientFactory resolves a node id (from the gossip payload's
// grpc_addr) to an IndexerClient, so the scheduler never holds a
// long-lived connection itself.
type IndexerClientFactory func(node Node) IndexerClient

// Dispatch sends each changed node's assignment from plan to its
// indexer in parallel, per §4.5 step 4 ("dispatch
// ApplyIndexingPlanRequest{tasks} to each affected indexer in
// parallel — fire-and-forget"). nodesByID supplies the Node
// advertisement (for grpc_addr resolution) behind each changed node id.
func Dispatch(ctx context.Context, plan PhysicalPlan, changed []string, nodesByID map[string]Node, clientOf IndexerClientFactory) {
	var wg sync.WaitGroup
	for _, id := range changed {
		node, ok := nodesByID[id]
		if !ok {
			logging.Warnf("scheduler: cannot dispatch to unknown node %s, skipping", id)
			continue
		}
		tasks := plan[id]
		wg.Add(1)
		go func(node Node, tasks []IndexingTask) {
			defer wg.Done()
			client := clientOf(node)
			if err := client.ApplyIndexingPlan(ctx, tasks); err != nil {
				logging.Errorf("scheduler: dispatching plan to %s: %v", node.NodeID, err)
			}
		}(node, tasks)
	}
	wg.Wait()
}
