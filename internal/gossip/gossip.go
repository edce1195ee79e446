// Package gossip is an in-memory stand-in for the cluster membership
// transport of §6: indexer nodes advertise themselves into a shared
// Registry and the control plane reads scheduler.Node snapshots back
// out of it. The real deployment wiring (UDP gossip, a service
// discovery backend) is a transport concern out of scope here; this
// package gives single-process and test topologies a working
// scheduler.GossipSource without one. Grounded on
// secondary/common/services_notifier.go's mutex-guarded instance
// registry shape.
package gossip

import (
	"sync"

	"github.com/duskline/duskline/internal/scheduler"
)

// Registry holds the most recent self-reported scheduler.Node for
// every node id that has ever advertised into it.
type Registry struct {
	mu sync.Mutex
	nodes map[string]scheduler.Node
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]scheduler.Node)}
}

// Advertise records n as node n.NodeID's current membership state,
// replacing any previous advertisement from the same node.
func (r *Registry) Advertise(n scheduler.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.NodeID] = n
}

// Forget removes nodeID's advertisement, e.g. on clean shutdown.
func (r *Registry) Forget(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, nodeID)
}

// Nodes implements scheduler.GossipSource.
func (r *Registry) Nodes() map[string]scheduler.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]scheduler.Node, len(r.nodes))
	for id, n := range r.nodes {
		out[id] = n
	}
	return out
}
