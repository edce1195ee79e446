// Package grpcapi is the wire transport between the control plane's
// scheduler.Dispatch and one indexer node's indexerd.Runtime — the
// ApplyIndexingPlan half of §4.5 step 4 that internal/scheduler itself
// deliberately stays transport-agnostic about. It follows
// internal/metastore/grpcapi's single-method envelope/JSON-codec
// pattern rather than a protoc-generated stub, since this core module
// has only two RPCs to carry (ApplyIndexingPlan and Status).
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/duskline/duskline/internal/scheduler"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ApplyIndexingPlanFunc is the subset of indexerd.Runtime the server
// depends on, kept as a function type so this package never imports
// internal/indexerd (which already imports internal/scheduler).
type ApplyIndexingPlanFunc func(ctx context.Context, tasks []scheduler.IndexingTask) error

// RunningTasksFunc reports the tasks a node is currently running, for
// the control plane's gossip poll.
type RunningTasksFunc func() []scheduler.IndexingTask

// Server adapts a Runtime's ApplyIndexingPlan and RunningTasks to a
// two-method gRPC service.
type Server struct {
	apply ApplyIndexingPlanFunc
	running RunningTasksFunc
}

// NewServer wraps apply/running for registration on a *grpc.Server.
func NewServer(apply ApplyIndexingPlanFunc, running RunningTasksFunc) *Server {
	return &Server{apply: apply, running: running}
}

// Register attaches the IndexerControl service to s.
func (srv *Server) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "duskline.indexerd.IndexerControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyIndexingPlan", Handler: applyHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type request struct {
	Tasks []scheduler.IndexingTask `json:"tasks"`
}

type response struct {
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	Tasks []scheduler.IndexingTask `json:"tasks"`
}

func applyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req request
	if err := dec(&req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if err := s.apply(ctx, req.Tasks); err != nil {
		return response{Error: err.Error()}, nil
	}
	return response{}, nil
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req struct{}
	if err := dec(&req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	return statusResponse{Tasks: s.running()}, nil
}
