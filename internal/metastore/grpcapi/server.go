package grpcapi

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Server adapts a metastore.Metastore to the single-method gRPC
// service described by serviceDesc.
type Server struct {
	inner metastore.Metastore
}

// NewServer wraps inner for registration on a *grpc.Server.
func NewServer(inner metastore.Metastore) *Server {
	return &Server{inner: inner}
}

// Register attaches the Metastore service to s.
func (srv *Server) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "duskline.metastore.Metastore",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var env envelope
	if err := dec(&env); err != nil {
		return nil, err
	}
	return srv.(*Server).dispatch(ctx, env), nil
}

func toReply(payload interface{}, err error) reply {
	if err != nil {
		return errToReply(err)
	}
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return errToReply(&metastore.ErrInternal{Err: marshalErr})
	}
	return reply{Payload: data}
}

func errToReply(err error) reply {
	var notFound *metastore.ErrNotFound
	var alreadyExists *metastore.ErrAlreadyExists
	var precond *metastore.ErrFailedPrecondition
	var conflict *model.ErrCheckpointConflict
	var connErr *metastore.ErrConnection

	switch {
	case errors.As(err, &notFound):
		return reply{ErrKind: errKindNotFound, Entity: notFound.Entity}
	case errors.As(err, &alreadyExists):
		return reply{ErrKind: errKindAlreadyExists, Entity: alreadyExists.Entity}
	case errors.As(err, &precond):
		return reply{ErrKind: errKindFailedPrecond, Entity: precond.Entity, Message: precond.Message}
	case errors.As(err, &conflict):
		return reply{
			ErrKind: errKindCheckpointConfl,
			ConflictPartition: conflict.PartitionID,
			ConflictExpected: string(conflict.Expected),
			ConflictGot: string(conflict.Got),
		}
	case errors.As(err, &connErr):
		return reply{ErrKind: errKindConnection, Message: err.Error()}
	default:
		return reply{ErrKind: errKindInternal, Message: err.Error()}
	}
}

func (s *Server) dispatch(ctx context.Context, env envelope) reply {
	switch env.Method {
	case "CreateIndex":
		var idx model.Index
		if err := json.Unmarshal(env.Payload, &idx); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.CreateIndex(ctx, &idx))

	case "DeleteIndex":
		var indexUID string
		_ = json.Unmarshal(env.Payload, &indexUID)
		return toReply(struct{}{}, s.inner.DeleteIndex(ctx, indexUID))

	case "IndexMetadata":
		var indexUID string
		_ = json.Unmarshal(env.Payload, &indexUID)
		idx, err := s.inner.IndexMetadata(ctx, indexUID)
		return toReply(idx, err)

	case "ListIndexes":
		idxs, err := s.inner.ListIndexes(ctx)
		return toReply(idxs, err)

	case "StageSplits":
		var req struct {
			IndexUID string `json:"index_uid"`
			Splits []*model.SplitMetadata `json:"splits"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.StageSplits(ctx, req.IndexUID, req.Splits))

	case "PublishSplits":
		var req struct {
			IndexUID string `json:"index_uid"`
			StagedSplitIDs []string `json:"staged_split_ids"`
			ReplacedSplitIDs []string `json:"replaced_split_ids"`
			Delta *model.CheckpointDelta `json:"delta,omitempty"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.PublishSplits(ctx, req.IndexUID, req.StagedSplitIDs, req.ReplacedSplitIDs, req.Delta))

	case "MarkSplitsForDeletion":
		var req struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.MarkSplitsForDeletion(ctx, req.IndexUID, req.SplitIDs))

	case "DeleteSplits":
		var req struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.DeleteSplits(ctx, req.IndexUID, req.SplitIDs))

	case "ListSplits":
		var query metastore.ListSplitsQuery
		if err := json.Unmarshal(env.Payload, &query); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		splits, err := s.inner.ListSplits(ctx, query)
		return toReply(splits, err)

	case "AddSource":
		var req struct {
			IndexUID string `json:"index_uid"`
			Source *model.Source `json:"source"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.AddSource(ctx, req.IndexUID, req.Source))

	case "DeleteSource":
		var req struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.DeleteSource(ctx, req.IndexUID, req.SourceID))

	case "ToggleSource":
		var req struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.ToggleSource(ctx, req.IndexUID, req.SourceID, req.Enabled))

	case "ResetSourceCheckpoint":
		var req struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.ResetSourceCheckpoint(ctx, req.IndexUID, req.SourceID))

	case "ListDeleteTasks":
		var req struct {
			IndexUID string `json:"index_uid"`
			OpstampStart uint64 `json:"opstamp_start"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		tasks, err := s.inner.ListDeleteTasks(ctx, req.IndexUID, req.OpstampStart)
		return toReply(tasks, err)

	case "LastDeleteOpstamp":
		var indexUID string
		_ = json.Unmarshal(env.Payload, &indexUID)
		opstamp, err := s.inner.LastDeleteOpstamp(ctx, indexUID)
		return toReply(opstamp, err)

	case "UpdateSplitsDeleteOpstamp":
		var req struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
			Opstamp uint64 `json:"opstamp"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		return toReply(struct{}{}, s.inner.UpdateSplitsDeleteOpstamp(ctx, req.IndexUID, req.SplitIDs, req.Opstamp))

	case "CreateDeleteTask":
		var req struct {
			IndexUID string `json:"index_uid"`
			Query string `json:"query"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return errToReply(&metastore.ErrInternal{Err: err})
		}
		task, err := s.inner.CreateDeleteTask(ctx, req.IndexUID, req.Query)
		return toReply(task, err)

	default:
		return errToReply(&metastore.ErrInternal{Err: errors.New("grpcapi: unknown method " + env.Method)})
	}
}
