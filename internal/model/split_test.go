package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestSplitStateLegalTransitions(t *testing.T) {
	assert.True(t, CanTransition("", SplitStaged))
	assert.True(t, CanTransition(SplitStaged, SplitPublished))
	assert.True(t, CanTransition(SplitStaged, SplitMarkedForDeletion))
	assert.True(t, CanTransition(SplitPublished, SplitMarkedForDeletion))
	assert.True(t, CanTransition(SplitMarkedForDeletion, ""))
}

func TestSplitStateIllegalTransitions(t *testing.T) {
	assert.False(t, CanTransition(SplitPublished, SplitStaged))
	assert.False(t, CanTransition("", SplitPublished))
	assert.False(t, CanTransition(SplitMarkedForDeletion, SplitPublished))
	assert.False(t, CanTransition(SplitStaged, SplitStaged))
}

func TestTimeRangeOverlapsWhenAbsent(t *testing.T) {
	var r TimeRange
	assert.True(t, r.Overlaps(10, 20))
}

func TestTimeRangeOverlaps(t *testing.T) {
	r := TimeRange{Present: true, MinTimestamp: 100, MaxTimestamp: 200}
	assert.True(t, r.Overlaps(150, 300))
	assert.True(t, r.Overlaps(0, 100))
	assert.False(t, r.Overlaps(201, 300))
	assert.False(t, r.Overlaps(0, 99))
}

func TestSplitIsMature(t *testing.T) {
	now := parseTime(t, "2026-01-01T00:00:00Z")
	future := parseTime(t, "2026-01-02T00:00:00Z")
	s := &SplitMetadata{MaturityTimestamp: future}
	assert.False(t, s.IsMature(now))
	assert.True(t, s.IsMature(future))

	var noMaturity SplitMetadata
	assert.False(t, noMaturity.IsMature(now))
}

func TestSplitMetadataCloneIsIndependent(t *testing.T) {
	s := &SplitMetadata{SplitID: "a", Tags: []string{"x"}, ReplacedSplitIDs: []string{"y"}}
	clone := s.Clone()
	clone.Tags[0] = "mutated"
	clone.ReplacedSplitIDs[0] = "mutated"
	assert.Equal(t, "x", s.Tags[0])
	assert.Equal(t, "y", s.ReplacedSplitIDs[0])
}
