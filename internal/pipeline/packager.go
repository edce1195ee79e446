package pipeline

import (
	"time"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/schema"
)

// PackagedSplit is a fully-formed SplitMetadata plus its on-disk
// scratch directory and bundle file, ready for the Uploader to stage
// and upload — the Packager's output.
type PackagedSplit struct {
	Meta       *model.SplitMetadata
	ScratchDir string
	BundlePath string
}

// Packager harvests tag values from the schema's declared tag fields
// and assembles the final SplitMetadata (doc count, time range,
// footer, tags, maturity) for a serialized segment.
type Packager struct {
	indexUID       string
	sourceID       string
	partitionID    uint64
	tagFields      map[string]struct{}
	maturityAfter  time.Duration
	codec          Codec
}

// NewPackager builds a Packager for splits of one (index, source,
// partition), harvesting the given tag fields and setting each split's
// maturity_timestamp to creation time plus maturityAfter.
func NewPackager(indexUID, sourceID string, partitionID uint64, tagFields []string, maturityAfter time.Duration, codec Codec) *Packager {
	set := make(map[string]struct{}, len(tagFields))
	for _, f := range tagFields {
		set[f] = struct{}{}
	}
	return &Packager{
		indexUID:      indexUID,
		sourceID:      sourceID,
		partitionID:   partitionID,
		tagFields:     set,
		maturityAfter: maturityAfter,
		codec:         codec,
	}
}

// Package finalizes a serialized segment into a PackagedSplit.
func (p *Packager) Package(ser *SerializedSegment) (*PackagedSplit, error) {
	bundlePath, footer, err := p.codec.BundlePath(ser.ScratchDir)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, d := range ser.Sealed.Segment.Docs {
		tags = append(tags, schema.ExtractTags(d.Fields, p.tagFields)...)
	}
	tags = dedupStrings(tags)

	now := time.Now()
	meta := &model.SplitMetadata{
		SplitID:           ser.SplitID,
		IndexUID:          p.indexUID,
		SourceID:          p.sourceID,
		PartitionID:       p.partitionID,
		State:             model.SplitStaged,
		NumDocs:           ser.Sealed.Segment.NumDocs,
		TimeRange:         ser.Sealed.Segment.TimeRange,
		UncompressedBytes: uint64(ser.BytesWritten),
		Tags:              tags,
		Footer:            footer,
		CreateTimestamp:   now.Unix(),
		UpdateTimestamp:   now.Unix(),
	}
	if p.maturityAfter > 0 {
		meta.MaturityTimestamp = now.Add(p.maturityAfter)
	}
	return &PackagedSplit{Meta: meta, ScratchDir: ser.ScratchDir, BundlePath: bundlePath}, nil
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
