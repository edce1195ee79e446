package metastore

import (
	"time"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/schema"
)

// Int64Range is an inclusive [Start, End] filter range; a nil pointer
// to one of these on ListSplitsQuery means "unbounded".
type Int64Range struct {
	Start int64
	End int64
}

// Uint64Range is the unsigned analogue of Int64Range, used for
// opstamp filters.
type Uint64Range struct {
	Start uint64
	End uint64
}

// ListSplitsQuery composes the conjunctive predicates of list_splits:
// index-uid set, state set, time-range overlap, opstamp ranges, the
// tag filter AST, and maturity at a given instant.
type ListSplitsQuery struct {
	IndexUIDs []string
	States []model.SplitState

	TimeRangeStart *int64
	TimeRangeEnd *int64

	CreateTimestampRange *Int64Range
	UpdateTimestampRange *Int64Range
	DeleteOpstampRange *Uint64Range

	Tags schema.TagFilter

	// MatureAt, if set, restricts to splits mature (or immature) at the
	// given instant, per Mature.
	MatureAt *time.Time
	Mature bool

	Limit int
	Offset int
}

// Matches reports whether split satisfies every predicate present on
// q. Absent predicates are vacuously true.
func (q ListSplitsQuery) Matches(split *model.SplitMetadata) bool {
	if len(q.IndexUIDs) > 0 && !containsString(q.IndexUIDs, split.IndexUID) {
		return false
	}
	if len(q.States) > 0 && !containsState(q.States, split.State) {
		return false
	}
	if q.TimeRangeStart != nil || q.TimeRangeEnd != nil {
		from := int64(minInt64)
		to := int64(maxInt64)
		if q.TimeRangeStart != nil {
			from = *q.TimeRangeStart
		}
		if q.TimeRangeEnd != nil {
			to = *q.TimeRangeEnd
		}
		if !split.TimeRange.Overlaps(from, to) {
			return false
		}
	}
	if q.CreateTimestampRange != nil && !inInt64Range(*q.CreateTimestampRange, split.CreateTimestamp) {
		return false
	}
	if q.UpdateTimestampRange != nil && !inInt64Range(*q.UpdateTimestampRange, split.UpdateTimestamp) {
		return false
	}
	if q.DeleteOpstampRange != nil && !inUint64Range(*q.DeleteOpstampRange, split.DeleteOpstamp) {
		return false
	}
	if q.Tags != nil {
		tagSet := make(map[string]struct{}, len(split.Tags))
		for _, t := range split.Tags {
			tagSet[t] = struct{}{}
		}
		if !q.Tags.Evaluate(tagSet) {
			return false
		}
	}
	if q.MatureAt != nil {
		if split.IsMature(*q.MatureAt) != q.Mature {
			return false
		}
	}
	return true
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsState(haystack []model.SplitState, needle model.SplitState) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func inInt64Range(r Int64Range, v int64) bool { return v >= r.Start && v <= r.End }
func inUint64Range(r Uint64Range, v uint64) bool { return v >= r.Start && v <= r.End }
