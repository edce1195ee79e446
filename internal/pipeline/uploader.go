package pipeline

import (
	"context"
	"os"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/splitstore"
)

// Uploader stages a packaged split in the metastore, then uploads its
// bytes via the Split Store under the global upload semaphore. Its
// inbox is effectively capacity 0: it pulls only when an upload slot
// is free, enforced by SplitStore.Store blocking on the semaphore. On
// upload failure it trips its kill switch, killing the pipeline — the
// supervisor is responsible for the restart.
type Uploader struct {
	ms         metastore.Metastore
	store      *splitstore.SplitStore
	indexURI   string
	budget     splitstore.UploadBudget
	killSwitch *KillSwitch
}

// NewUploader builds an Uploader for one pipeline's splits, uploading
// under budget (BudgetIndexing for the ingest pipeline, BudgetMerging
// for the merge pipeline) and tripping killSwitch on failure.
func NewUploader(ms metastore.Metastore, store *splitstore.SplitStore, indexURI string, budget splitstore.UploadBudget, killSwitch *KillSwitch) *Uploader {
	return &Uploader{ms: ms, store: store, indexURI: indexURI, budget: budget, killSwitch: killSwitch}
}

// Upload stages pkg, uploads its bytes, and resolves ticket with the
// resulting SplitsUpdate (or discards it on failure). delta identifies
// the checkpoint advance this split covers.
func (u *Uploader) Upload(ctx context.Context, pkg *PackagedSplit, delta model.CheckpointDelta, ticket *Ticket) {
	if err := u.ms.StageSplits(ctx, pkg.Meta.IndexUID, []*model.SplitMetadata{pkg.Meta}); err != nil {
		logging.Errorf("uploader: staging split %s: %v", pkg.Meta.SplitID, err)
		ticket.Discard()
		u.killSwitch.Trip()
		return
	}

	f, err := os.Open(pkg.BundlePath)
	if err != nil {
		logging.Errorf("uploader: opening bundle for split %s: %v", pkg.Meta.SplitID, err)
		ticket.Discard()
		u.killSwitch.Trip()
		return
	}
	defer f.Close()

	if err := u.store.Store(ctx, u.indexURI, pkg.Meta, pkg.ScratchDir, f, u.budget); err != nil {
		logging.Errorf("uploader: uploading split %s: %v", pkg.Meta.SplitID, err)
		ticket.Discard()
		u.killSwitch.Trip()
		return
	}

	update := &SplitsUpdate{
		IndexUID:    pkg.Meta.IndexUID,
		NewSplitIDs: []string{pkg.Meta.SplitID},
		Delta:       cloneDelta(delta),
	}
	ticket.Proceed(update)
}

func cloneDelta(d model.CheckpointDelta) *model.CheckpointDelta {
	if len(d.Entries) == 0 && d.SourceID == "" {
		return nil
	}
	c := d
	c.Entries = append([]model.CheckpointDeltaEntry(nil), d.Entries...)
	return &c
}
