package pipeline

import (
	"sync/atomic"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/schema"
)

// ParsedDoc is one document that has cleared the schema mapping tree:
// its typed field values plus whatever fell into the dynamic catch-all
// under ModeDynamic.
type ParsedDoc struct {
	Fields  []schema.FieldValue
	Dynamic map[string]interface{}
}

// DocProcessorStats counts the outcomes of a DocProcessor's lifetime,
// surfaced for health metrics; per-document data errors never fail the
// pipeline, only increment NumInvalidDocs.
type DocProcessorStats struct {
	NumParsedDocs  uint64
	NumInvalidDocs uint64
}

func (s *DocProcessorStats) Snapshot() DocProcessorStats {
	return DocProcessorStats{
		NumParsedDocs:  atomic.LoadUint64(&s.NumParsedDocs),
		NumInvalidDocs: atomic.LoadUint64(&s.NumInvalidDocs),
	}
}

// DocProcessor parses each Doc in a Batch through the schema mapping
// tree, applying an optional pre-parse Transform first. Invalid
// documents (malformed JSON, schema violations) are counted and
// dropped rather than failing the batch — the schema engine's
// per-document data errors are absorbed here, never propagated to the
// pipeline supervisor.
type DocProcessor struct {
	tree      *schema.Tree
	transform Transform
	stats     DocProcessorStats
}

// NewDocProcessor builds a DocProcessor over tree, applying transform
// (which may be nil) to every document before parsing.
func NewDocProcessor(tree *schema.Tree, transform Transform) *DocProcessor {
	return &DocProcessor{tree: tree, transform: transform}
}

// Process parses every document in batch, returning the parsed subset.
// The batch's checkpoint delta and flush flag pass through unchanged —
// DocProcessor only filters documents, never checkpoint state.
func (p *DocProcessor) Process(batch *Batch) []ParsedDoc {
	out := make([]ParsedDoc, 0, len(batch.Docs))
	for _, doc := range batch.Docs {
		if doc.JSON == nil {
			atomic.AddUint64(&p.stats.NumInvalidDocs, 1)
			logging.Warnf("docprocessor: dropping document that failed to decode as JSON")
			continue
		}
		body := doc.JSON
		if p.transform != nil {
			body = p.transform.Apply(body)
		}
		fields, dynamic, err := p.tree.Parse(body)
		if err != nil {
			atomic.AddUint64(&p.stats.NumInvalidDocs, 1)
			logging.Warnf("docprocessor: dropping invalid document: %v", err)
			continue
		}
		atomic.AddUint64(&p.stats.NumParsedDocs, 1)
		out = append(out, ParsedDoc{Fields: fields, Dynamic: dynamic})
	}
	return out
}

// Stats returns a point-in-time snapshot of the processor's counters.
func (p *DocProcessor) Stats() DocProcessorStats { return p.stats.Snapshot() }
