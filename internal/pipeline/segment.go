package pipeline

import (
	"time"

	"github.com/duskline/duskline/internal/model"
)

// Segment is the in-memory accumulation of parsed documents the
// Indexer stage builds up before sealing: the pre-serialized form of a
// split.
type Segment struct {
	Docs              []ParsedDoc
	NumDocs           uint64
	UncompressedBytes uint64
	TimeRange         model.TimeRange
	CreatedAt         time.Time

	// TimestampField is the flattened field path the schema designates
	// as the timestamp, "" if the schema has none.
	TimestampField string
}

// NewSegment returns an empty Segment tracking timestampField, for the
// Indexer stage and the Merge pipeline's own segment accumulation.
func NewSegment(timestampField string) *Segment {
	return &Segment{CreatedAt: time.Now(), TimestampField: timestampField}
}

// roughDocSize estimates a parsed document's contribution to
// uncompressed-bytes for the purpose of the Indexer's size-based seal
// trigger. The external codec's own accounting would be exact; this is
// the core's own conservative estimate used only to decide when to
// seal, not persisted anywhere.
func roughDocSize(d ParsedDoc) uint64 {
	var n uint64
	for _, fv := range d.Fields {
		n += uint64(len(fv.Path)) + 16
		if s, ok := fv.Value.(string); ok {
			n += uint64(len(s))
		} else if b, ok := fv.Value.([]byte); ok {
			n += uint64(len(b))
		}
	}
	return n
}

// Add appends a parsed document to the segment, updating its document
// count, byte estimate, and timestamp-field time range.
func (s *Segment) Add(d ParsedDoc) {
	s.Docs = append(s.Docs, d)
	s.NumDocs++
	s.UncompressedBytes += roughDocSize(d)
	if s.TimestampField == "" {
		return
	}
	for _, fv := range d.Fields {
		if fv.Path != s.TimestampField {
			continue
		}
		ts, ok := toUnixMillis(fv.Value)
		if !ok {
			continue
		}
		if !s.TimeRange.Present {
			s.TimeRange = model.TimeRange{Present: true, MinTimestamp: ts, MaxTimestamp: ts}
			continue
		}
		if ts < s.TimeRange.MinTimestamp {
			s.TimeRange.MinTimestamp = ts
		}
		if ts > s.TimeRange.MaxTimestamp {
			s.TimeRange.MaxTimestamp = ts
		}
	}
}

func toUnixMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

// SealTrigger is the set of thresholds that cause the Indexer to seal
// its current segment: whichever fires first wins.
type SealTrigger struct {
	MaxUncompressedBytes uint64
	MaxNumDocs           uint64
	MaxAge               time.Duration
}

// ShouldSeal reports whether seg has crossed any configured threshold.
func (t SealTrigger) ShouldSeal(seg *Segment, now time.Time) bool {
	if seg.NumDocs == 0 {
		return false
	}
	if t.MaxUncompressedBytes > 0 && seg.UncompressedBytes >= t.MaxUncompressedBytes {
		return true
	}
	if t.MaxNumDocs > 0 && seg.NumDocs >= t.MaxNumDocs {
		return true
	}
	if t.MaxAge > 0 && now.Sub(seg.CreatedAt) >= t.MaxAge {
		return true
	}
	return false
}

// SealedSegment pairs a sealed Segment with the checkpoint delta
// covering exactly the batches consumed to build it.
type SealedSegment struct {
	Segment *Segment
	Delta   model.CheckpointDelta
}

// Indexer accumulates ParsedDocs into a Segment, sealing it whenever
// Trigger fires or the upstream source explicitly flushes (end of
// file in file sources). A freshly sealed segment's checkpoint delta
// is exactly the union of every input batch's delta consumed since the
// previous seal.
type Indexer struct {
	trigger        SealTrigger
	timestampField string
	cur            *Segment
	pendingEntries map[string]model.CheckpointDeltaEntry
	sourceID       string
}

// NewIndexer builds an Indexer for one source, sealing segments per
// trigger.
func NewIndexer(sourceID, timestampField string, trigger SealTrigger) *Indexer {
	return &Indexer{
		trigger:        trigger,
		timestampField: timestampField,
		sourceID:       sourceID,
		pendingEntries: make(map[string]model.CheckpointDeltaEntry),
	}
}

// Feed consumes one DocProcessor batch (its parsed docs plus the
// originating checkpoint delta), returning a sealed segment if this
// batch caused one of the seal triggers to fire.
func (ix *Indexer) Feed(parsed []ParsedDoc, delta model.CheckpointDelta, flush bool) *SealedSegment {
	if ix.cur == nil {
		ix.cur = NewSegment(ix.timestampField)
	}
	for _, d := range parsed {
		ix.cur.Add(d)
	}
	ix.mergeDelta(delta)

	if flush || ix.trigger.ShouldSeal(ix.cur, time.Now()) {
		return ix.seal()
	}
	return nil
}

// Tick checks the wall-clock-age trigger even if no new data arrived,
// called periodically by the pipeline driver so a low-traffic source
// does not leave a segment open indefinitely.
func (ix *Indexer) Tick() *SealedSegment {
	if ix.cur == nil {
		return nil
	}
	if ix.trigger.ShouldSeal(ix.cur, time.Now()) {
		return ix.seal()
	}
	return nil
}

func (ix *Indexer) mergeDelta(delta model.CheckpointDelta) {
	for _, e := range delta.Entries {
		existing, ok := ix.pendingEntries[e.PartitionID]
		if !ok {
			ix.pendingEntries[e.PartitionID] = e
			continue
		}
		existing.To = e.To
		ix.pendingEntries[e.PartitionID] = existing
	}
}

func (ix *Indexer) seal() *SealedSegment {
	seg := ix.cur
	ix.cur = nil
	delta := model.CheckpointDelta{SourceID: ix.sourceID}
	for _, e := range ix.pendingEntries {
		delta.Entries = append(delta.Entries, e)
	}
	ix.pendingEntries = make(map[string]model.CheckpointDeltaEntry)
	return &SealedSegment{Segment: seg, Delta: delta}
}
