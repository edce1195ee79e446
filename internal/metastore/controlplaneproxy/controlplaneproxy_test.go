package controlplaneproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// fakeMetastore records calls and returns a canned error.
type fakeMetastore struct {
	metastore.Metastore
	err error
}

func (f *fakeMetastore) CreateIndex(_ context.Context, _ *model.Index) error { return f.err }
func (f *fakeMetastore) PublishSplits(_ context.Context, _ string, _, _ []string, _ *model.CheckpointDelta) error {
	return f.err
}

func TestCreateIndexPublishesIndexChangeOnSuccess(t *testing.T) {
	bus := eventbus.New()
	ch, unsubscribe := bus.Subscribe(eventbus.TopicIndexChange, 1)
	defer unsubscribe()

	ms := New(&fakeMetastore{}, bus)
	require.NoError(t, ms.CreateIndex(context.Background(), &model.Index{IndexUID: "idx"}))

	select {
	case ev := <-ch:
		change, ok := ev.(*eventbus.IndexChangeEvent)
		require.True(t, ok)
		assert.Equal(t, "idx", change.IndexUID)
	default:
		t.Fatal("expected an IndexChangeEvent to be published")
	}
}

func TestCreateIndexDoesNotPublishOnError(t *testing.T) {
	bus := eventbus.New()
	ch, unsubscribe := bus.Subscribe(eventbus.TopicIndexChange, 1)
	defer unsubscribe()

	ms := New(&fakeMetastore{err: errors.New("boom")}, bus)
	err := ms.CreateIndex(context.Background(), &model.Index{IndexUID: "idx"})
	require.Error(t, err)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event published: %v", ev)
	default:
	}
}

func TestPublishSplitsPublishesNewSplitsEventOnlyWhenStaged(t *testing.T) {
	bus := eventbus.New()
	ch, unsubscribe := bus.Subscribe(eventbus.TopicNewSplits, 1)
	defer unsubscribe()

	ms := New(&fakeMetastore{}, bus)
	require.NoError(t, ms.PublishSplits(context.Background(), "idx", []string{"split-1"}, nil, nil))

	select {
	case ev := <-ch:
		newSplits, ok := ev.(*eventbus.NewSplitsEvent)
		require.True(t, ok)
		assert.Equal(t, "idx", newSplits.IndexUID)
		assert.Equal(t, []string{"split-1"}, newSplits.SplitIDs)
	default:
		t.Fatal("expected a NewSplitsEvent to be published")
	}
}

func TestPublishSplitsSkipsEventWhenNoStagedIDs(t *testing.T) {
	bus := eventbus.New()
	ch, unsubscribe := bus.Subscribe(eventbus.TopicNewSplits, 1)
	defer unsubscribe()

	ms := New(&fakeMetastore{}, bus)
	require.NoError(t, ms.PublishSplits(context.Background(), "idx", nil, []string{"old-split"}, nil))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event published: %v", ev)
	default:
	}
}
