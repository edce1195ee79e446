package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/model"
)

func split(id string, numDocs uint64, numMergeOps int) *model.SplitMetadata {
	return &model.SplitMetadata{SplitID: id, NumDocs: numDocs, NumMergeOps: numMergeOps}
}

func TestSizeTieredPolicySelectsGroupsOfMinSize(t *testing.T) {
	policy := NewSizeTieredPolicy(2, 4, 0)
	splits := []*model.SplitMetadata{split("a", 10, 0), split("b", 5, 0), split("c", 1, 0)}

	groups := policy.SelectMergeCandidates(splits)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
	assert.Equal(t, "c", groups[0][0].SplitID)
}

func TestSizeTieredPolicyRespectsMaxSplitsPerMerge(t *testing.T) {
	policy := NewSizeTieredPolicy(2, 2, 0)
	splits := []*model.SplitMetadata{split("a", 1, 0), split("b", 2, 0), split("c", 3, 0), split("d", 4, 0)}

	groups := policy.SelectMergeCandidates(splits)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 2)
}

func TestSizeTieredPolicyExcludesSplitsPastMaxMergeOps(t *testing.T) {
	policy := NewSizeTieredPolicy(2, 4, 2)
	splits := []*model.SplitMetadata{split("a", 1, 2), split("b", 2, 0), split("c", 3, 0)}

	groups := policy.SelectMergeCandidates(splits)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
	for _, s := range groups[0] {
		assert.NotEqual(t, "a", s.SplitID)
	}
}

func TestSizeTieredPolicyNoGroupsBelowMinimum(t *testing.T) {
	policy := NewSizeTieredPolicy(3, 4, 0)
	splits := []*model.SplitMetadata{split("a", 1, 0), split("b", 2, 0)}
	assert.Empty(t, policy.SelectMergeCandidates(splits))
}
