package gossip

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/duskline/duskline/internal/indexerd/grpcapi"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/scheduler"
)

// StaticNode is one statically-configured cluster member: the control
// plane dials it directly rather than discovering it, since the real
// gossip transport is out of scope here (see package doc).
type StaticNode struct {
	NodeID string
	GRPCAddr string
	EnabledServices []string
}

// Poller periodically dials every configured indexer and asks it what
// it is running, advertising the result into a Registry — the
// concrete substitute for §6's push-based gossip in a deployment with
// a fixed, known node list.
type Poller struct {
	registry *Registry
	nodes []StaticNode
	interval time.Duration
}

// NewPoller builds a Poller over nodes, refreshing every interval.
func NewPoller(registry *Registry, nodes []StaticNode, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{registry: registry, nodes: nodes, interval: interval}
}

// Run polls every configured node on p.interval until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, n := range p.nodes {
		tasks, err := p.poll(ctx, n)
		if err != nil {
			logging.Warnf("gossip: polling node %s at %s: %v", n.NodeID, n.GRPCAddr, err)
			continue
		}
		schedTasks := make([]scheduler.IndexingTask, len(tasks))
		copy(schedTasks, tasks)
		p.registry.Advertise(scheduler.Node{
			NodeID: n.NodeID,
			GRPCAddr: n.GRPCAddr,
			EnabledServices: n.EnabledServices,
			IndexingTasks: schedTasks,
		})
	}
}

func (p *Poller) poll(ctx context.Context, n StaticNode) ([]scheduler.IndexingTask, error) {
	conn, err := grpc.NewClient(n.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return grpcapi.NewClient(conn).Status(pollCtx)
}
