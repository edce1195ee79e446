package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/duskline/duskline/internal/scheduler"
)

// Client is a scheduler.IndexerClient that dispatches
// ApplyIndexingPlan over a single RPC against a *grpc.ClientConn
// registered with Server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection to one indexer node.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

var _ scheduler.IndexerClient = (*Client)(nil)

func (c *Client) ApplyIndexingPlan(ctx context.Context, tasks []scheduler.IndexingTask) error {
	var resp response
	if err := c.conn.Invoke(ctx, "/duskline.indexerd.IndexerControl/ApplyIndexingPlan",
		request{Tasks: tasks}, &resp, grpc.CallContentSubtype(codecName)); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// Status polls the node for the tasks it currently reports running,
// feeding §4.5 step 5's observed-plan comparison.
func (c *Client) Status(ctx context.Context) ([]scheduler.IndexingTask, error) {
	var resp statusResponse
	if err := c.conn.Invoke(ctx, "/duskline.indexerd.IndexerControl/Status",
		struct{}{}, &resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}
