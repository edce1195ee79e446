package pipeline

import "github.com/duskline/duskline/internal/model"

// SplitsUpdate is the accumulated state the Publisher commits in one
// publish_splits call: newly staged splits, the splits they replace
// (non-empty only for the merge pipeline), and the checkpoint delta
// those splits cover.
type SplitsUpdate struct {
	IndexUID         string
	NewSplitIDs      []string
	ReplacedSplitIDs []string
	Delta            *model.CheckpointDelta
}
