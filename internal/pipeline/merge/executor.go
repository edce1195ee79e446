package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
	"github.com/duskline/duskline/internal/splitstore"
)

// ExecutorConfig is everything one Executor needs to turn a group of
// published splits into their replacement.
type ExecutorConfig struct {
	IndexUID      string
	IndexURI      string
	TimestampField string
	TagFields     []string
	MaturityAfter time.Duration
	Codec         pipeline.Codec
	Metastore     metastore.Metastore
	SplitStore    *splitstore.SplitStore
	ScratchRoot   string
}

// Executor merges one group of splits at a time: download, decode,
// recombine, re-serialize, upload, and publish with
// replaced_split_ids set to the merged-away splits — the same
// staging/publication contract the ingest pipeline's Uploader and
// Publisher stages use, so a merged split becomes visible to readers
// at the same instant its inputs are marked for deletion.
type Executor struct {
	cfg ExecutorConfig
	ser *pipeline.IndexSerializer
}

// NewExecutor builds an Executor from cfg.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		cfg: cfg,
		ser: pipeline.NewIndexSerializer(cfg.Codec, cfg.ScratchRoot),
	}
}

// Merge combines group (splits of one partition, already selected by a
// Policy) into one replacement split. It does not check beforehand
// whether group is still Published: if any of its splits has already
// been replaced, the final PublishSplits fails its precondition and
// Merge returns that error, so a crash-and-retry never double merges.
func (e *Executor) Merge(ctx context.Context, group []*model.SplitMetadata) error {
	if len(group) < 2 {
		return nil
	}

	downloadRoot, err := os.MkdirTemp(e.cfg.ScratchRoot, "merge-fetch-*")
	if err != nil {
		return fmt.Errorf("merge: preparing fetch scratch dir: %w", err)
	}
	defer os.RemoveAll(downloadRoot)

	seg := pipeline.NewSegment(e.cfg.TimestampField)
	var partitionID uint64
	var sourceID string
	replacedIDs := make([]string, 0, len(group))
	maxMergeOps := 0

	for _, split := range group {
		partitionID = split.PartitionID
		sourceID = split.SourceID
		replacedIDs = append(replacedIDs, split.SplitID)
		if split.NumMergeOps > maxMergeOps {
			maxMergeOps = split.NumMergeOps
		}

		splitDir := filepath.Join(downloadRoot, split.SplitID)
		if err := e.cfg.SplitStore.Fetch(ctx, e.cfg.IndexURI, split.SplitID, splitDir); err != nil {
			return fmt.Errorf("merge: fetching split %s: %w", split.SplitID, err)
		}
		bundlePath, _, err := e.cfg.Codec.BundlePath(splitDir)
		if err != nil {
			return fmt.Errorf("merge: locating bundle for split %s: %w", split.SplitID, err)
		}
		docs, err := e.cfg.Codec.ReadSegment(bundlePath, split.Footer)
		if err != nil {
			return fmt.Errorf("merge: decoding split %s: %w", split.SplitID, err)
		}
		for _, d := range docs {
			seg.Add(d)
		}
	}

	if seg.NumDocs == 0 {
		logging.Warnf("merge: group %v produced zero documents, skipping", replacedIDs)
		return nil
	}

	sealed := &pipeline.SealedSegment{Segment: seg, Delta: model.CheckpointDelta{SourceID: sourceID}}
	serialized, err := e.ser.Serialize(sealed)
	if err != nil {
		return fmt.Errorf("merge: serializing merged segment: %w", err)
	}

	packager := pipeline.NewPackager(e.cfg.IndexUID, sourceID, partitionID, e.cfg.TagFields, e.cfg.MaturityAfter, e.cfg.Codec)
	pkg, err := packager.Package(serialized)
	if err != nil {
		return fmt.Errorf("merge: packaging merged split: %w", err)
	}
	pkg.Meta.NumMergeOps = maxMergeOps + 1
	pkg.Meta.ReplacedSplitIDs = append([]string(nil), replacedIDs...)

	if err := e.cfg.Metastore.StageSplits(ctx, e.cfg.IndexUID, []*model.SplitMetadata{pkg.Meta}); err != nil {
		if isAlreadyStaged(err) {
			logging.Warnf("merge: split %s already staged, treating as retry of a prior attempt", pkg.Meta.SplitID)
		} else {
			return fmt.Errorf("merge: staging merged split %s: %w", pkg.Meta.SplitID, err)
		}
	}

	f, err := os.Open(pkg.BundlePath)
	if err != nil {
		return fmt.Errorf("merge: opening merged bundle: %w", err)
	}
	defer f.Close()

	if err := e.cfg.SplitStore.Store(ctx, e.cfg.IndexURI, pkg.Meta, pkg.ScratchDir, f, splitstore.BudgetMerging); err != nil {
		return fmt.Errorf("merge: uploading merged split %s: %w", pkg.Meta.SplitID, err)
	}

	if err := e.cfg.Metastore.PublishSplits(ctx, e.cfg.IndexUID, []string{pkg.Meta.SplitID}, replacedIDs, nil); err != nil {
		return fmt.Errorf("merge: publishing merged split %s: %w", pkg.Meta.SplitID, err)
	}

	logging.Infof("merge: replaced %d splits with %s in partition %d", len(replacedIDs), pkg.Meta.SplitID, partitionID)
	return nil
}

func isAlreadyStaged(err error) bool {
	var exists *metastore.ErrAlreadyExists
	return errors.As(err, &exists)
}
