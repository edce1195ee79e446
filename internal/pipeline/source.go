package pipeline

import (
	"context"

	"github.com/duskline/duskline/internal/model"
)

// Doc is one raw JSON document as produced by a Source, still in its
// untyped map[string]interface{} form before DocProcessor parses it
// through the schema mapping tree.
type Doc struct {
	JSON map[string]interface{}
	// Raw carries the original undecoded bytes when the source read
	// them as text (e.g. a file source's NDJSON line), so DocProcessor
	// can report a decode failure against the original line rather than
	// a partially-parsed value.
	Raw []byte
}

// Batch is one unit of work handed downstream by a Source: a set of
// documents plus the checkpoint delta that will be composed onto the
// source's checkpoint once every document in the batch has been
// durably sealed into a split and published.
type Batch struct {
	Docs  []Doc
	Delta model.CheckpointDelta
	// Flush, when true, forces the Indexer to seal its current segment
	// once this batch's documents are consumed — file sources set this
	// at end-of-file so the tail of a file is never left unpublished.
	Flush bool
}

// Source is the ingestion endpoint ABI: poll/suggest_truncate/finalize.
// A bounded source reports EOF by returning (nil, false, nil) from
// Poll and then having Finalize called, which drives its pipeline to a
// clean, successful exit rather than a supervised restart.
type Source interface {
	// Poll returns the next batch, or ok=false if none is currently
	// available (a transient stall, e.g. an empty queue) — this must
	// not block indefinitely; it should respect ctx cancellation so a
	// stalled source doesn't wedge the whole pipeline's shutdown.
	Poll(ctx context.Context) (batch *Batch, ok bool, err error)

	// SuggestTruncate tells the source it may discard any buffered
	// state at or before position, called once a checkpoint delta
	// covering it has been durably published.
	SuggestTruncate(ctx context.Context, position model.Position) error

	// Finalize is called once Poll has signalled EOF (ok=false, err=nil,
	// with no further data ever available) and the final batch has been
	// fully processed, so the source can release resources.
	Finalize(ctx context.Context) error

	// EOF reports whether the source has permanently run out of data —
	// consulted by the supervisor to distinguish a clean pipeline exit
	// from one that should be restarted.
	EOF() bool
}
