package pipeline

import "github.com/duskline/duskline/internal/model"

// Codec is the boundary onto the external inverted-index codec: per
// this project's scope, the low-level codec that turns a sealed
// in-memory segment into split bytes is an assumed dependency, so this
// interface specifies only what the core consumes from it — writing a
// segment to a scratch directory and producing the hotcache bytes and
// footer byte range a split's bundle file carries.
type Codec interface {
	// WriteSegment serializes seg into dir, returning the number of
	// bytes written to the scratch directory and the hotcache payload
	// (a small, codec-defined summary kept in the split's footer for
	// lazy opens).
	WriteSegment(dir string, seg *Segment) (bytesWritten int64, hotcache []byte, err error)

	// BundlePath returns the scratch-local path of the finished,
	// single-file split bundle once WriteSegment has run, along with
	// the footer's byte range within it.
	BundlePath(dir string) (path string, footer model.FooterRange, err error)

	// ReadSegment decodes a split bundle's data portion (everything
	// before footer.Start) back into the field values the Merge
	// pipeline recombines into a new segment. This is the one read path
	// the core needs from the codec beyond what a write-only ingest
	// path would require.
	ReadSegment(bundlePath string, footer model.FooterRange) ([]ParsedDoc, error)
}
