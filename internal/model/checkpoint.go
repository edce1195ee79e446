package model

import "fmt"

// Position is an opaque, ordered per-partition position token. File sources use a decimal byte offset; queue-like sources use
// an opaque offset/seqno string. Checkpoint.Apply compares positions
// only for equality with a delta's from-position; no ordering
// comparator is defined, and "" is the position of a partition the
// checkpoint has not seen yet.
type Position string

// Checkpoint is a per-source, per-partition position map.
type Checkpoint map[string]Position

// Clone returns an independent copy.
func (c Checkpoint) Clone() Checkpoint {
	if c == nil {
		return nil
	}
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// CheckpointDeltaEntry is one partition's advance within a delta.
type CheckpointDeltaEntry struct {
	PartitionID string `json:"partition_id"`
	From Position `json:"from_position"`
	To Position `json:"to_position"`
}

// CheckpointDelta is a per-source set of partition advances produced
// by one Indexer seal and consumed by publish_splits.
type CheckpointDelta struct {
	SourceID string `json:"source_id"`
	Entries []CheckpointDeltaEntry `json:"entries"`
}

// ErrCheckpointConflict is returned when a delta's "from" position does
// not match the checkpoint's current position for that partition.
type ErrCheckpointConflict struct {
	PartitionID string
	Expected Position
	Got Position
}

func (e *ErrCheckpointConflict) Error() string {
	return fmt.Sprintf("checkpoint conflict on partition %q: expected from=%q, got from=%q",
		e.PartitionID, e.Expected, e.Got)
}

// Apply composes delta onto the checkpoint, returning a new checkpoint.
// "Deltas compose only if each partition's from_position
// equals the current checkpoint's position for that partition;
// otherwise the whole delta is rejected." The receiver is never
// mutated in place so a failed Apply leaves the caller's checkpoint
// untouched.
func (c Checkpoint) Apply(delta CheckpointDelta) (Checkpoint, error) {
	next := c.Clone()
	if next == nil {
		next = Checkpoint{}
	}
	for _, e := range delta.Entries {
		current, ok := next[e.PartitionID]
		if ok && current != e.From {
			return nil, &ErrCheckpointConflict{PartitionID: e.PartitionID, Expected: current, Got: e.From}
		}
		if !ok && e.From != "" {
			return nil, &ErrCheckpointConflict{PartitionID: e.PartitionID, Expected: "", Got: e.From}
		}
		next[e.PartitionID] = e.To
	}
	return next, nil
}
