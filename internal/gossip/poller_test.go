package gossip

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/duskline/duskline/internal/indexerd/grpcapi"
	"github.com/duskline/duskline/internal/scheduler"
)

func startTestIndexer(t *testing.T, tasks []scheduler.IndexingTask) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	grpcapi.NewServer(
		func(_ context.Context, _ []scheduler.IndexingTask) error { return nil },
		func() []scheduler.IndexingTask { return tasks },
	).Register(srv)

	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestPollerAdvertisesObservedTasks(t *testing.T) {
	tasks := []scheduler.IndexingTask{{IndexUID: "idx", SourceID: "src"}}
	addr := startTestIndexer(t, tasks)

	registry := NewRegistry()
	poller := NewPoller(registry, []StaticNode{{NodeID: "n1", GRPCAddr: addr, EnabledServices: []string{"indexer"}}}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.pollAll(ctx)

	nodes := registry.Nodes()
	require.Contains(t, nodes, "n1")
	assert.Equal(t, tasks, nodes["n1"].IndexingTasks)
}

func TestPollerSkipsUnreachableNode(t *testing.T) {
	registry := NewRegistry()
	poller := NewPoller(registry, []StaticNode{{NodeID: "ghost", GRPCAddr: "127.0.0.1:1"}}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	poller.pollAll(ctx)

	assert.Empty(t, registry.Nodes())
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(NewRegistry(), nil, 0)
	assert.Equal(t, 5*time.Second, p.interval)
}
