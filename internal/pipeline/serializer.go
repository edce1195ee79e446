package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/duskline/duskline/internal/ids"
)

// SerializedSegment is a sealed segment written to a scratch directory
// by the codec, ready for the Packager to harvest tags from its source
// documents. Hotcache holds the bytes the codec returned; the Packager
// does not read them.
type SerializedSegment struct {
	Sealed    *SealedSegment
	SplitID   string
	ScratchDir string
	Hotcache  []byte
	BytesWritten int64
}

// IndexSerializer writes each sealed segment to a fresh scratch
// directory using the pluggable Codec.
type IndexSerializer struct {
	codec      Codec
	scratchRoot string
}

// NewIndexSerializer builds an IndexSerializer rooted at scratchRoot,
// one subdirectory per split.
func NewIndexSerializer(codec Codec, scratchRoot string) *IndexSerializer {
	return &IndexSerializer{codec: codec, scratchRoot: scratchRoot}
}

// Serialize writes sealed to a new scratch directory, returning the
// identifiers and byte accounting the Packager and Uploader need.
func (s *IndexSerializer) Serialize(sealed *SealedSegment) (*SerializedSegment, error) {
	splitID := ids.NewSplitID()
	dir := filepath.Join(s.scratchRoot, splitID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("serializer: preparing scratch dir %s: %w", dir, err)
	}
	n, hotcache, err := s.codec.WriteSegment(dir, sealed.Segment)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("serializer: writing segment for split %s: %w", splitID, err)
	}
	return &SerializedSegment{
		Sealed:       sealed,
		SplitID:      splitID,
		ScratchDir:   dir,
		Hotcache:     hotcache,
		BytesWritten: n,
	}, nil
}
