package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/schema"
)

func TestSegmentAddTracksTimeRange(t *testing.T) {
	seg := NewSegment("ts")
	seg.Add(ParsedDoc{Fields: []schema.FieldValue{{Path: "ts", Value: int64(100)}}})
	seg.Add(ParsedDoc{Fields: []schema.FieldValue{{Path: "ts", Value: int64(50)}}})
	seg.Add(ParsedDoc{Fields: []schema.FieldValue{{Path: "ts", Value: int64(200)}}})

	assert.EqualValues(t, 3, seg.NumDocs)
	require.True(t, seg.TimeRange.Present)
	assert.EqualValues(t, 50, seg.TimeRange.MinTimestamp)
	assert.EqualValues(t, 200, seg.TimeRange.MaxTimestamp)
}

func TestSegmentAddWithoutTimestampField(t *testing.T) {
	seg := NewSegment("")
	seg.Add(ParsedDoc{Fields: []schema.FieldValue{{Path: "body", Value: "hello"}}})
	assert.False(t, seg.TimeRange.Present)
	assert.EqualValues(t, 1, seg.NumDocs)
}

func TestSealTriggerShouldSeal(t *testing.T) {
	trigger := SealTrigger{MaxNumDocs: 2}
	seg := NewSegment("")
	assert.False(t, trigger.ShouldSeal(seg, time.Now()))

	seg.Add(ParsedDoc{Fields: nil})
	assert.False(t, trigger.ShouldSeal(seg, time.Now()))
	seg.Add(ParsedDoc{Fields: nil})
	assert.True(t, trigger.ShouldSeal(seg, time.Now()))
}

func TestSealTriggerNeverSealsEmptySegment(t *testing.T) {
	trigger := SealTrigger{MaxAge: time.Nanosecond}
	seg := NewSegment("")
	time.Sleep(time.Millisecond)
	assert.False(t, trigger.ShouldSeal(seg, time.Now()))
}

func TestIndexerFeedSealsOnTriggerAndMergesDelta(t *testing.T) {
	ix := NewIndexer("src", "", SealTrigger{MaxNumDocs: 2})

	delta1 := model.CheckpointDelta{SourceID: "src", Entries: []model.CheckpointDeltaEntry{{PartitionID: "0", From: "", To: "10"}}}
	sealed := ix.Feed([]ParsedDoc{{}}, delta1, false)
	assert.Nil(t, sealed)

	delta2 := model.CheckpointDelta{SourceID: "src", Entries: []model.CheckpointDeltaEntry{{PartitionID: "0", From: "10", To: "20"}}}
	sealed = ix.Feed([]ParsedDoc{{}}, delta2, false)
	require.NotNil(t, sealed)
	assert.EqualValues(t, 2, sealed.Segment.NumDocs)
	require.Len(t, sealed.Delta.Entries, 1)
	assert.Equal(t, "20", string(sealed.Delta.Entries[0].To))
	assert.Equal(t, "", string(sealed.Delta.Entries[0].From))
}

func TestIndexerFeedFlushForcesSeal(t *testing.T) {
	ix := NewIndexer("src", "", SealTrigger{})
	sealed := ix.Feed([]ParsedDoc{{}}, model.CheckpointDelta{SourceID: "src"}, true)
	require.NotNil(t, sealed)
	assert.EqualValues(t, 1, sealed.Segment.NumDocs)
}

func TestIndexerTickNoOpWithoutOpenSegment(t *testing.T) {
	ix := NewIndexer("src", "", SealTrigger{MaxAge: time.Nanosecond})
	assert.Nil(t, ix.Tick())
}
