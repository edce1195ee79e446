package grpcapi

import "encoding/json"

// envelope is the single generic request carried by the one Invoke
// RPC: a Request{OpCode, Key, Value}/Reply{Result} dispatch shape
// generalized from a key-value dictionary to the Metastore
// capability's named operations.
type envelope struct {
	Method string `json:"method"`
	Payload json.RawMessage `json:"payload"`
}

// errKind enumerates the metastore error kinds of the wire protocol,
// carried as a string tag since the envelope has no generated
// error-union type.
type errKind string

const (
	errKindNone errKind = ""
	errKindNotFound errKind = "not_found"
	errKindAlreadyExists errKind = "already_exists"
	errKindFailedPrecond errKind = "failed_precondition"
	errKindCheckpointConfl errKind = "checkpoint_conflict"
	errKindConnection errKind = "connection"
	errKindInternal errKind = "internal"
)

type reply struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrKind errKind `json:"err_kind,omitempty"`
	Entity string `json:"entity,omitempty"`
	Message string `json:"message,omitempty"`

	ConflictPartition string `json:"conflict_partition,omitempty"`
	ConflictExpected string `json:"conflict_expected,omitempty"`
	ConflictGot string `json:"conflict_got,omitempty"`
}
