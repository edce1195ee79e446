// Package controlplaneproxy wraps a Metastore so that indexer nodes'
// mutations become observable by the control plane without a direct
// reference back to it, publishing to an eventbus.Bus on every
// successful mutation.
package controlplaneproxy

import (
	"context"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// Metastore publishes eventbus.TopicIndexChange and
// eventbus.TopicNewSplits events alongside delegating to inner.
type Metastore struct {
	inner metastore.Metastore
	bus *eventbus.Bus
}

// New wraps inner, publishing change notifications onto bus.
func New(inner metastore.Metastore, bus *eventbus.Bus) *Metastore {
	return &Metastore{inner: inner, bus: bus}
}

var _ metastore.Metastore = (*Metastore)(nil)

func (m *Metastore) notifyIndexChange(indexUID string) {
	m.bus.Publish(eventbus.TopicIndexChange, &eventbus.IndexChangeEvent{IndexUID: indexUID})
}

func (m *Metastore) CreateIndex(ctx context.Context, idx *model.Index) error {
	if err := m.inner.CreateIndex(ctx, idx); err != nil {
		return err
	}
	m.notifyIndexChange(idx.IndexUID)
	return nil
}

func (m *Metastore) DeleteIndex(ctx context.Context, indexUID string) error {
	if err := m.inner.DeleteIndex(ctx, indexUID); err != nil {
		return err
	}
	m.notifyIndexChange(indexUID)
	return nil
}

func (m *Metastore) IndexMetadata(ctx context.Context, indexUID string) (*model.Index, error) {
	return m.inner.IndexMetadata(ctx, indexUID)
}

func (m *Metastore) ListIndexes(ctx context.Context) ([]*model.Index, error) {
	return m.inner.ListIndexes(ctx)
}

func (m *Metastore) AddSource(ctx context.Context, indexUID string, src *model.Source) error {
	if err := m.inner.AddSource(ctx, indexUID, src); err != nil {
		return err
	}
	m.notifyIndexChange(indexUID)
	return nil
}

func (m *Metastore) DeleteSource(ctx context.Context, indexUID, sourceID string) error {
	if err := m.inner.DeleteSource(ctx, indexUID, sourceID); err != nil {
		return err
	}
	m.notifyIndexChange(indexUID)
	return nil
}

func (m *Metastore) ToggleSource(ctx context.Context, indexUID, sourceID string, enabled bool) error {
	if err := m.inner.ToggleSource(ctx, indexUID, sourceID, enabled); err != nil {
		return err
	}
	m.notifyIndexChange(indexUID)
	return nil
}

func (m *Metastore) ResetSourceCheckpoint(ctx context.Context, indexUID, sourceID string) error {
	if err := m.inner.ResetSourceCheckpoint(ctx, indexUID, sourceID); err != nil {
		return err
	}
	m.notifyIndexChange(indexUID)
	return nil
}

func (m *Metastore) StageSplits(ctx context.Context, indexUID string, splits []*model.SplitMetadata) error {
	return m.inner.StageSplits(ctx, indexUID, splits)
}

// PublishSplits delegates, then publishes a NewSplitsEvent for the
// merge planner — the event-bus hop that breaks the direct
// Publisher→MergePlanner reference.
func (m *Metastore) PublishSplits(ctx context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error {
	if err := m.inner.PublishSplits(ctx, indexUID, stagedSplitIDs, replacedSplitIDs, delta); err != nil {
		return err
	}
	if len(stagedSplitIDs) > 0 {
		m.bus.Publish(eventbus.TopicNewSplits, &eventbus.NewSplitsEvent{IndexUID: indexUID, SplitIDs: stagedSplitIDs})
	}
	return nil
}

func (m *Metastore) MarkSplitsForDeletion(ctx context.Context, indexUID string, splitIDs []string) error {
	return m.inner.MarkSplitsForDeletion(ctx, indexUID, splitIDs)
}

func (m *Metastore) DeleteSplits(ctx context.Context, indexUID string, splitIDs []string) error {
	return m.inner.DeleteSplits(ctx, indexUID, splitIDs)
}

func (m *Metastore) ListSplits(ctx context.Context, query metastore.ListSplitsQuery) ([]*model.SplitMetadata, error) {
	return m.inner.ListSplits(ctx, query)
}

func (m *Metastore) CreateDeleteTask(ctx context.Context, indexUID, query string) (*metastore.DeleteTask, error) {
	return m.inner.CreateDeleteTask(ctx, indexUID, query)
}

func (m *Metastore) ListDeleteTasks(ctx context.Context, indexUID string, opstampStart uint64) ([]*metastore.DeleteTask, error) {
	return m.inner.ListDeleteTasks(ctx, indexUID, opstampStart)
}

func (m *Metastore) LastDeleteOpstamp(ctx context.Context, indexUID string) (uint64, error) {
	return m.inner.LastDeleteOpstamp(ctx, indexUID)
}

func (m *Metastore) UpdateSplitsDeleteOpstamp(ctx context.Context, indexUID string, splitIDs []string, opstamp uint64) error {
	return m.inner.UpdateSplitsDeleteOpstamp(ctx, indexUID, splitIDs, opstamp)
}
