// Package merge implements the independent Merge pipeline: a policy
// that picks candidate splits, an executor that combines them into one
// replacement split through the same serialize/package/upload/publish
// path the ingest pipeline uses, and a planner that drives the two off
// newly published splits.
package merge

import (
	"sort"

	"github.com/duskline/duskline/internal/model"
)

// Policy decides which published, non-mature splits within one partition
// should be combined into a single replacement split.
type Policy interface {
	// SelectMergeCandidates returns zero or more disjoint groups of
	// splits to merge, given every currently published split in one
	// partition. Each returned group has at least two splits.
	SelectMergeCandidates(splits []*model.SplitMetadata) [][]*model.SplitMetadata
}

// SizeTieredPolicy merges splits in document-count order once at least
// MinSplitsPerMerge of them accumulate, capped at MaxSplitsPerMerge per
// merged group. Groups are not bounded by a size tier: splits of very
// different document counts can land in the same group.
type SizeTieredPolicy struct {
	// MinSplitsPerMerge is the fewest splits a group must contain to be
	// worth merging.
	MinSplitsPerMerge int
	// MaxSplitsPerMerge caps how many splits one merge op combines.
	MaxSplitsPerMerge int
	// MaxMergeOps bounds how many times a given split may already have
	// been merged before it is excluded from further merging.
	MaxMergeOps int
}

// NewSizeTieredPolicy returns a SizeTieredPolicy with the given bounds.
func NewSizeTieredPolicy(minSplits, maxSplits, maxMergeOps int) *SizeTieredPolicy {
	return &SizeTieredPolicy{MinSplitsPerMerge: minSplits, MaxSplitsPerMerge: maxSplits, MaxMergeOps: maxMergeOps}
}

// SelectMergeCandidates sorts the eligible splits by ascending document
// count and slices them, smallest first, into consecutive groups of up
// to MaxSplitsPerMerge, stopping once fewer than MinSplitsPerMerge
// remain, so merges compound smaller splits first.
func (p *SizeTieredPolicy) SelectMergeCandidates(splits []*model.SplitMetadata) [][]*model.SplitMetadata {
	eligible := make([]*model.SplitMetadata, 0, len(splits))
	for _, s := range splits {
		if p.MaxMergeOps > 0 && s.NumMergeOps >= p.MaxMergeOps {
			continue
		}
		eligible = append(eligible, s)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].NumDocs < eligible[j].NumDocs })

	var groups [][]*model.SplitMetadata
	for len(eligible) >= p.MinSplitsPerMerge {
		n := p.MaxSplitsPerMerge
		if n <= 0 || n > len(eligible) {
			n = len(eligible)
		}
		if n < p.MinSplitsPerMerge {
			break
		}
		groups = append(groups, eligible[:n])
		eligible = eligible[n:]
	}
	return groups
}
