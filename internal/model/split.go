package model

import "time"

// SplitState is the split lifecycle state machine.
type SplitState string

const (
	SplitStaged SplitState = "staged"
	SplitPublished SplitState = "published"
	SplitMarkedForDeletion SplitState = "marked_for_deletion"
)

// legalTransitions enumerates the only legal SplitState transitions.
// The zero value "" stands for ∅ (absent / not-yet-created, or
// already-deleted).
var legalTransitions = map[SplitState][]SplitState{
	"": {SplitStaged},
	SplitStaged: {SplitPublished, SplitMarkedForDeletion},
	SplitPublished: {SplitMarkedForDeletion},
	SplitMarkedForDeletion: {""},
}

// CanTransition reports whether from -> to is a legal split-state
// transition.
func CanTransition(from, to SplitState) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TimeRange is the inclusive [min_ts, max_ts] range of a split's
// designated timestamp field, in the field's declared precision units.
type TimeRange struct {
	MinTimestamp int64 `json:"min_timestamp"`
	MaxTimestamp int64 `json:"max_timestamp"`
	// Present is false when the schema does not designate a timestamp
	// field, in which case MinTimestamp/MaxTimestamp are meaningless.
	Present bool `json:"present"`
}

// Overlaps reports whether r overlaps the closed range [from, to].
func (r TimeRange) Overlaps(from, to int64) bool {
	if !r.Present {
		return true
	}
	return r.MinTimestamp <= to && r.MaxTimestamp >= from
}

// FooterRange is the byte range of a split's footer within its bundle
// file, enabling a lazy range-GET open.
type FooterRange struct {
	Start int64 `json:"footer_start"`
	End int64 `json:"footer_end"`
}

// SplitMetadata is the immutable, content-addressed split artifact
// record.
type SplitMetadata struct {
	SplitID string `json:"split_id"`
	IndexUID string `json:"index_uid"`
	SourceID string `json:"source_id"`
	PartitionID uint64 `json:"partition_id"`
	State SplitState `json:"state"`
	NumDocs uint64 `json:"num_docs"`
	TimeRange TimeRange `json:"time_range"`
	UncompressedBytes uint64 `json:"uncompressed_bytes"`
	NumMergeOps int `json:"num_merge_ops"`
	ReplacedSplitIDs []string `json:"replaced_split_ids,omitempty"`
	DeleteOpstamp uint64 `json:"delete_opstamp"`
	Tags []string `json:"tags,omitempty"`
	MaturityTimestamp time.Time `json:"maturity_timestamp"`
	Footer FooterRange `json:"footer"`

	CreateTimestamp int64 `json:"create_timestamp"`
	UpdateTimestamp int64 `json:"update_timestamp"`
}

// IsMature reports whether the split is ineligible for merge/caching
// at instant now.
func (s *SplitMetadata) IsMature(now time.Time) bool {
	return !s.MaturityTimestamp.IsZero() && !now.Before(s.MaturityTimestamp)
}

// Clone returns a deep-enough copy safe for independent mutation.
func (s *SplitMetadata) Clone() *SplitMetadata {
	if s == nil {
		return nil
	}
	c := *s
	if s.ReplacedSplitIDs != nil {
		c.ReplacedSplitIDs = append([]string(nil), s.ReplacedSplitIDs...)
	}
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}

// TagSet is a set view over a split's harvested tags, used to evaluate the tag filter AST.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from a split's tag slice.
func NewTagSet(tags []string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}
