package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerPreservesSubmissionOrderAcrossOutOfOrderResolution(t *testing.T) {
	out := make(chan *SplitsUpdate, 2)
	seq := NewSequencer(4, out)
	ctx := context.Background()
	killSwitch := NewKillSwitch()

	go seq.Run(ctx, killSwitch)

	t1, err := seq.Submit(ctx)
	require.NoError(t, err)
	t2, err := seq.Submit(ctx)
	require.NoError(t, err)

	// t2 resolves first, but t1 was submitted first, so out must still
	// receive t1's update before t2's.
	t2.Proceed(&SplitsUpdate{IndexUID: "second"})
	time.Sleep(10 * time.Millisecond)
	select {
	case <-out:
		t.Fatal("expected out-of-order ticket to block until its predecessor resolves")
	default:
	}

	t1.Proceed(&SplitsUpdate{IndexUID: "first"})
	first := <-out
	second := <-out
	assert.Equal(t, "first", first.IndexUID)
	assert.Equal(t, "second", second.IndexUID)
}

func TestSequencerDiscardEmitsNothing(t *testing.T) {
	out := make(chan *SplitsUpdate, 1)
	seq := NewSequencer(2, out)
	ctx := context.Background()
	killSwitch := NewKillSwitch()
	go seq.Run(ctx, killSwitch)

	ticket, err := seq.Submit(ctx)
	require.NoError(t, err)
	ticket.Discard()

	select {
	case <-out:
		t.Fatal("discard must not forward an update")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSequencerRunExitsOnKillSwitch(t *testing.T) {
	out := make(chan *SplitsUpdate, 1)
	seq := NewSequencer(2, out)
	ctx := context.Background()
	killSwitch := NewKillSwitch()

	done := make(chan struct{})
	go func() {
		seq.Run(ctx, killSwitch)
		close(done)
	}()
	killSwitch.Trip()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to exit once kill switch trips")
	}
}
