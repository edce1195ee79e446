package grpcapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// Client is a metastore.Metastore that dispatches every operation as
// an envelope over a single Invoke RPC against a *grpc.ClientConn
// registered with Server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

var _ metastore.Metastore = (*Client)(nil)

func (c *Client) call(ctx context.Context, method string, req interface{}, out interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	var rep reply
	if err := c.conn.Invoke(ctx, "/duskline.metastore.Metastore/Invoke",
		envelope{Method: method, Payload: payload}, &rep, grpc.CallContentSubtype(codecName)); err != nil {
		return &metastore.ErrConnection{Err: err}
	}
	if rep.ErrKind != errKindNone {
		return replyToErr(rep)
	}
	if out != nil && len(rep.Payload) > 0 {
		if err := json.Unmarshal(rep.Payload, out); err != nil {
			return &metastore.ErrInternal{Err: err}
		}
	}
	return nil
}

func replyToErr(r reply) error {
	switch r.ErrKind {
	case errKindNotFound:
		return &metastore.ErrNotFound{Entity: r.Entity}
	case errKindAlreadyExists:
		return &metastore.ErrAlreadyExists{Entity: r.Entity}
	case errKindFailedPrecond:
		return &metastore.ErrFailedPrecondition{Entity: r.Entity, Message: r.Message}
	case errKindCheckpointConfl:
		return &model.ErrCheckpointConflict{
			PartitionID: r.ConflictPartition,
			Expected: model.Position(r.ConflictExpected),
			Got: model.Position(r.ConflictGot),
		}
	case errKindConnection:
		return &metastore.ErrConnection{Err: errString(r.Message)}
	default:
		return &metastore.ErrInternal{Err: errString(r.Message)}
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func (c *Client) CreateIndex(ctx context.Context, idx *model.Index) error {
	return c.call(ctx, "CreateIndex", idx, nil)
}

func (c *Client) DeleteIndex(ctx context.Context, indexUID string) error {
	return c.call(ctx, "DeleteIndex", indexUID, nil)
}

func (c *Client) IndexMetadata(ctx context.Context, indexUID string) (*model.Index, error) {
	var idx model.Index
	if err := c.call(ctx, "IndexMetadata", indexUID, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (c *Client) ListIndexes(ctx context.Context) ([]*model.Index, error) {
	var idxs []*model.Index
	err := c.call(ctx, "ListIndexes", struct{}{}, &idxs)
	return idxs, err
}

func (c *Client) AddSource(ctx context.Context, indexUID string, src *model.Source) error {
	return c.call(ctx, "AddSource", struct {
			IndexUID string `json:"index_uid"`
			Source *model.Source `json:"source"`
		}{indexUID, src}, nil)
}

func (c *Client) DeleteSource(ctx context.Context, indexUID, sourceID string) error {
	return c.call(ctx, "DeleteSource", struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
		}{indexUID, sourceID}, nil)
}

func (c *Client) ToggleSource(ctx context.Context, indexUID, sourceID string, enabled bool) error {
	return c.call(ctx, "ToggleSource", struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
			Enabled bool `json:"enabled"`
		}{indexUID, sourceID, enabled}, nil)
}

func (c *Client) ResetSourceCheckpoint(ctx context.Context, indexUID, sourceID string) error {
	return c.call(ctx, "ResetSourceCheckpoint", struct {
			IndexUID string `json:"index_uid"`
			SourceID string `json:"source_id"`
		}{indexUID, sourceID}, nil)
}

func (c *Client) StageSplits(ctx context.Context, indexUID string, splits []*model.SplitMetadata) error {
	return c.call(ctx, "StageSplits", struct {
			IndexUID string `json:"index_uid"`
			Splits []*model.SplitMetadata `json:"splits"`
		}{indexUID, splits}, nil)
}

func (c *Client) PublishSplits(ctx context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error {
	return c.call(ctx, "PublishSplits", struct {
			IndexUID string `json:"index_uid"`
			StagedSplitIDs []string `json:"staged_split_ids"`
			ReplacedSplitIDs []string `json:"replaced_split_ids"`
			Delta *model.CheckpointDelta `json:"delta,omitempty"`
		}{indexUID, stagedSplitIDs, replacedSplitIDs, delta}, nil)
}

func (c *Client) MarkSplitsForDeletion(ctx context.Context, indexUID string, splitIDs []string) error {
	return c.call(ctx, "MarkSplitsForDeletion", struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
		}{indexUID, splitIDs}, nil)
}

func (c *Client) DeleteSplits(ctx context.Context, indexUID string, splitIDs []string) error {
	return c.call(ctx, "DeleteSplits", struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
		}{indexUID, splitIDs}, nil)
}

func (c *Client) ListSplits(ctx context.Context, query metastore.ListSplitsQuery) ([]*model.SplitMetadata, error) {
	var splits []*model.SplitMetadata
	err := c.call(ctx, "ListSplits", query, &splits)
	return splits, err
}

func (c *Client) CreateDeleteTask(ctx context.Context, indexUID, query string) (*metastore.DeleteTask, error) {
	var task metastore.DeleteTask
	err := c.call(ctx, "CreateDeleteTask", struct {
			IndexUID string `json:"index_uid"`
			Query string `json:"query"`
		}{indexUID, query}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) ListDeleteTasks(ctx context.Context, indexUID string, opstampStart uint64) ([]*metastore.DeleteTask, error) {
	var tasks []*metastore.DeleteTask
	err := c.call(ctx, "ListDeleteTasks", struct {
			IndexUID string `json:"index_uid"`
			OpstampStart uint64 `json:"opstamp_start"`
		}{indexUID, opstampStart}, &tasks)
	return tasks, err
}

func (c *Client) LastDeleteOpstamp(ctx context.Context, indexUID string) (uint64, error) {
	var opstamp uint64
	err := c.call(ctx, "LastDeleteOpstamp", indexUID, &opstamp)
	return opstamp, err
}

func (c *Client) UpdateSplitsDeleteOpstamp(ctx context.Context, indexUID string, splitIDs []string, opstamp uint64) error {
	return c.call(ctx, "UpdateSplitsDeleteOpstamp", struct {
			IndexUID string `json:"index_uid"`
			SplitIDs []string `json:"split_ids"`
			Opstamp uint64 `json:"opstamp"`
		}{indexUID, splitIDs, opstamp}, nil)
}
