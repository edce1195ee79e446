// Package filesource implements the file Source: it reads
// newline-delimited JSON from a local path, checkpointed by byte
// offset, the closest Go analogue of a line-oriented log-file tailer.
package filesource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
)

const defaultBatchSize = 1000

// Source reads NDJSON lines from path starting at an initial byte
// offset, one poll's worth of lines per Batch.
type Source struct {
	path       string
	partitionID string
	f          *os.File
	r          *bufio.Reader
	offset     int64
	batchSize  int
	eof        bool
}

// New opens path for reading, seeking to the byte offset recorded in
// checkpoint (0 if absent). partitionID is conventionally the file
// path itself: a file source has exactly one partition.
func New(path string, checkpoint model.Checkpoint) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: opening %s: %w", path, err)
	}
	var offset int64
	if pos, ok := checkpoint[path]; ok && pos != "" {
		offset, err = strconv.ParseInt(string(pos), 10, 64)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("filesource: invalid checkpoint position %q: %w", pos, err)
		}
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("filesource: seeking to %d: %w", offset, err)
		}
	}
	return &Source{
		path:        path,
		partitionID: path,
		f:           f,
		r:           bufio.NewReaderSize(f, 1<<20),
		offset:      offset,
		batchSize:   defaultBatchSize,
	}, nil
}

var _ pipeline.Source = (*Source)(nil)

// Poll reads up to batchSize lines, each decoded as one JSON document.
// A malformed line is not a source-level error: it is surfaced as a
// Doc carrying only Raw, letting DocProcessor count it as a per-document
// data error instead of failing the whole batch.
func (s *Source) Poll(ctx context.Context) (*pipeline.Batch, bool, error) {
	if s.eof {
		return nil, false, nil
	}
	var docs []pipeline.Doc
	startOffset := s.offset
	for len(docs) < s.batchSize {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}
		line, err := s.r.ReadBytes('\n')
		if len(line) > 0 {
			s.offset += int64(len(line))
			trimmed := trimNewline(line)
			if len(trimmed) > 0 {
				docs = append(docs, decodeLine(trimmed))
			}
		}
		if err != nil {
			if err == io.EOF {
				s.eof = true
				break
			}
			return nil, false, fmt.Errorf("filesource: reading %s: %w", s.path, err)
		}
	}
	if len(docs) == 0 && !s.eof {
		return nil, false, nil
	}
	if len(docs) == 0 && s.eof {
		return nil, false, nil
	}
	// A delta starting at byte 0 carries the empty from-position, the
	// one Checkpoint.Apply expects for a partition it has not seen.
	from := model.Position(strconv.FormatInt(startOffset, 10))
	if startOffset == 0 {
		from = ""
	}
	batch := &pipeline.Batch{
		Docs:  docs,
		Flush: s.eof,
		Delta: model.CheckpointDelta{
			Entries: []model.CheckpointDeltaEntry{{
				PartitionID: s.partitionID,
				From:        from,
				To:          model.Position(strconv.FormatInt(s.offset, 10)),
			}},
		},
	}
	return batch, true, nil
}

func trimNewline(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}

func decodeLine(line []byte) pipeline.Doc {
	var m map[string]interface{}
	if err := json.Unmarshal(line, &m); err != nil {
		return pipeline.Doc{Raw: line}
	}
	return pipeline.Doc{JSON: m, Raw: line}
}

// SuggestTruncate is a no-op: a plain file has no buffer to discard
// ahead of the read cursor.
func (s *Source) SuggestTruncate(_ context.Context, _ model.Position) error { return nil }

// Finalize closes the underlying file.
func (s *Source) Finalize(_ context.Context) error {
	logging.Infof("filesource: finalizing %s at offset %d", s.path, s.offset)
	return s.f.Close()
}

// EOF reports whether the file has been fully consumed.
func (s *Source) EOF() bool { return s.eof }
