// Package janitor implements the periodic reclaim loop implied by
// spec.md §2/§3 ("a janitor reclaims marked splits after a grace
// period"): it lists splits in state MarkedForDeletion older than a
// configured grace period, deletes their object-storage payload
// through the Split Store, and then calls delete_splits so the
// metastore record is removed too. Grounded on
// secondary/indexer/pause_pauser.go / pause_resumer.go's shape — a
// small dedicated background loop with its own kill switch, distinct
// from the ingest and merge pipelines.
package janitor

import (
	"context"
	"time"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/splitstore"
)

// Config wires a Janitor's dependencies and tunables.
type Config struct {
	Metastore metastore.Metastore
	SplitStore *splitstore.SplitStore
	// GracePeriod is how long a split must have sat in
	// MarkedForDeletion (by UpdateTimestamp) before it is reclaimed —
	// giving any in-flight reader that resolved the split reference
	// before the mark time to finish its read.
	GracePeriod time.Duration
	// Interval is how often the reclaim sweep runs.
	Interval time.Duration
}

// Janitor periodically reclaims MarkedForDeletion splits.
type Janitor struct {
	cfg Config
}

// New builds a Janitor from cfg, applying defaults for zero-valued
// tunables.
func New(cfg Config) *Janitor {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 15 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Janitor{cfg: cfg}
}

// Run sweeps every index known to the metastore on cfg.Interval until
// ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	indexes, err := j.cfg.Metastore.ListIndexes(ctx)
	if err != nil {
		logging.Errorf("janitor: listing indexes: %v", err)
		return
	}
	for _, idx := range indexes {
		if err := j.sweepIndex(ctx, idx); err != nil {
			logging.Errorf("janitor: sweeping index %s: %v", idx.IndexUID, err)
		}
	}
}

func (j *Janitor) sweepIndex(ctx context.Context, idx *model.Index) error {
	splits, err := j.cfg.Metastore.ListSplits(ctx, metastore.ListSplitsQuery{
		IndexUIDs: []string{idx.IndexUID},
		States: []model.SplitState{model.SplitMarkedForDeletion},
	})
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-j.cfg.GracePeriod)
	var ripe []string
	for _, s := range splits {
		if time.Unix(s.UpdateTimestamp, 0).After(cutoff) {
			continue
		}
		if err := j.cfg.SplitStore.Delete(ctx, idx.IndexURI, s.SplitID); err != nil {
			logging.Warnf("janitor: deleting object-storage payload for split %s: %v", s.SplitID, err)
			continue
		}
		ripe = append(ripe, s.SplitID)
	}
	if len(ripe) == 0 {
		return nil
	}

	if err := j.cfg.Metastore.DeleteSplits(ctx, idx.IndexUID, ripe); err != nil {
		return err
	}
	logging.Infof("janitor: reclaimed %d split(s) for index %s", len(ripe), idx.IndexUID)
	return nil
}
