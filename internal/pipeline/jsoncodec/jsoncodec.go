// Package jsoncodec is a minimal, dependency-free stand-in for the
// external inverted-index codec: it writes a sealed segment's parsed
// field values as newline-delimited JSON, followed by a small fixed
// hotcache marker and a footer trailer, in the
// [data segments][hotcache][footer] layout. It exists for local
// development and tests; a production deployment swaps in the real
// codec behind the same pipeline.Codec interface.
package jsoncodec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
	"github.com/duskline/duskline/internal/schema"
)

const bundleFileName = "bundle.split"

// Codec implements pipeline.Codec with the NDJSON-plus-trailer layout
// described above.
type Codec struct{}

// New returns a Codec.
func New() *Codec { return &Codec{} }

var _ pipeline.Codec = (*Codec)(nil)

type jsonDoc struct {
	Fields map[string]interface{} `json:"fields"`
}

// WriteSegment dumps every document's field values as one JSON object
// per line, then appends a hotcache block summarizing the document
// count, and finally a fixed-width trailer recording the hotcache's
// offset and the total footer length — exactly the shape a reader
// needs to range-GET only the footer.
func (c *Codec) WriteSegment(dir string, seg *pipeline.Segment) (int64, []byte, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, nil, fmt.Errorf("jsoncodec: preparing %s: %w", dir, err)
	}
	var data bytes.Buffer
	for _, d := range seg.Docs {
		fields := make(map[string]interface{}, len(d.Fields))
		for _, fv := range d.Fields {
			fields[fv.Path] = fv.Value
		}
		line, err := json.Marshal(jsonDoc{Fields: fields})
		if err != nil {
			return 0, nil, fmt.Errorf("jsoncodec: marshalling document: %w", err)
		}
		data.Write(line)
		data.WriteByte('\n')
	}

	hotcache := hotcacheFor(seg)

	var out bytes.Buffer
	out.Write(data.Bytes())
	hotcacheOffset := int64(out.Len())
	out.Write(hotcache)
	footerTrailer := make([]byte, 16)
	binary.BigEndian.PutUint64(footerTrailer[0:8], uint64(hotcacheOffset))
	binary.BigEndian.PutUint64(footerTrailer[8:16], uint64(len(footerTrailer)))
	out.Write(footerTrailer)

	path := filepath.Join(dir, bundleFileName)
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return 0, nil, fmt.Errorf("jsoncodec: writing bundle %s: %w", path, err)
	}
	return int64(out.Len()), hotcache, nil
}

func hotcacheFor(seg *pipeline.Segment) []byte {
	summary := map[string]interface{}{
		"num_docs":           seg.NumDocs,
		"uncompressed_bytes": seg.UncompressedBytes,
	}
	b, _ := json.Marshal(summary)
	return b
}

// BundlePath returns the written bundle file's path and the footer
// range recovered from its trailer.
func (c *Codec) BundlePath(dir string) (string, model.FooterRange, error) {
	path := filepath.Join(dir, bundleFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", model.FooterRange{}, fmt.Errorf("jsoncodec: reading bundle %s: %w", path, err)
	}
	if len(data) < 16 {
		return "", model.FooterRange{}, fmt.Errorf("jsoncodec: bundle %s too small to carry a trailer", path)
	}
	trailer := data[len(data)-16:]
	hotcacheOffset := int64(binary.BigEndian.Uint64(trailer[0:8]))
	return path, model.FooterRange{Start: hotcacheOffset, End: int64(len(data))}, nil
}

// ReadSegment decodes the NDJSON data portion of bundlePath (everything
// before footer.Start) back into ParsedDocs, reversing WriteSegment's
// per-line field-map encoding.
func (c *Codec) ReadSegment(bundlePath string, footer model.FooterRange) ([]pipeline.ParsedDoc, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: opening bundle %s: %w", bundlePath, err)
	}
	defer f.Close()

	data := io.LimitReader(f, footer.Start)
	scanner := bufio.NewScanner(data)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var docs []pipeline.ParsedDoc
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var jd jsonDoc
		if err := json.Unmarshal(line, &jd); err != nil {
			return nil, fmt.Errorf("jsoncodec: decoding segment line: %w", err)
		}
		fields := make([]schema.FieldValue, 0, len(jd.Fields))
		for path, v := range jd.Fields {
			fields = append(fields, schema.FieldValue{Path: path, Value: v})
		}
		docs = append(docs, pipeline.ParsedDoc{Fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsoncodec: scanning bundle %s: %w", bundlePath, err)
	}
	return docs, nil
}
