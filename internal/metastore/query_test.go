package metastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/duskline/duskline/internal/model"
)

func TestListSplitsQueryMatchesIndexUIDAndState(t *testing.T) {
	q := ListSplitsQuery{IndexUIDs: []string{"idx-a"}, States: []model.SplitState{model.SplitPublished}}
	split := &model.SplitMetadata{IndexUID: "idx-a", State: model.SplitPublished}
	assert.True(t, q.Matches(split))

	assert.False(t, q.Matches(&model.SplitMetadata{IndexUID: "idx-b", State: model.SplitPublished}))
	assert.False(t, q.Matches(&model.SplitMetadata{IndexUID: "idx-a", State: model.SplitStaged}))
}

func TestListSplitsQueryMatchesTimeRange(t *testing.T) {
	start, end := int64(100), int64(200)
	q := ListSplitsQuery{TimeRangeStart: &start, TimeRangeEnd: &end}

	overlapping := &model.SplitMetadata{TimeRange: model.TimeRange{Present: true, MinTimestamp: 150, MaxTimestamp: 300}}
	assert.True(t, q.Matches(overlapping))

	disjoint := &model.SplitMetadata{TimeRange: model.TimeRange{Present: true, MinTimestamp: 201, MaxTimestamp: 300}}
	assert.False(t, q.Matches(disjoint))
}

func TestListSplitsQueryMatchesMaturity(t *testing.T) {
	now := time.Now()
	mature := &model.SplitMetadata{MaturityTimestamp: now.Add(-time.Hour)}
	immature := &model.SplitMetadata{MaturityTimestamp: now.Add(time.Hour)}

	wantMature := ListSplitsQuery{MatureAt: &now, Mature: true}
	assert.True(t, wantMature.Matches(mature))
	assert.False(t, wantMature.Matches(immature))

	wantImmature := ListSplitsQuery{MatureAt: &now, Mature: false}
	assert.True(t, wantImmature.Matches(immature))
	assert.False(t, wantImmature.Matches(mature))
}

func TestListSplitsQueryEmptyMatchesEverything(t *testing.T) {
	var q ListSplitsQuery
	assert.True(t, q.Matches(&model.SplitMetadata{IndexUID: "anything", State: model.SplitMarkedForDeletion}))
}
