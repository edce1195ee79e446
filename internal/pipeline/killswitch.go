// Package pipeline implements the indexing pipeline: the staged,
// backpressured actor chain Source → DocProcessor → Indexer →
// IndexSerializer → Packager → Uploader → Sequencer → Publisher, its
// kill-switch/supervisor cancellation discipline, and the independent
// Merge pipeline.
package pipeline

import (
	"context"
	"sync"
)

// KillSwitch is a shared, hierarchical cancellation flag. Tripping a
// parent trips every child; tripping a child affects only that child's
// subtree — the supervisor owns the pipeline's switch, and the
// Uploader owns a child switch so one failed upload kills only the
// current pipeline, not the whole process.
type KillSwitch struct {
	mu       sync.Mutex
	tripped  bool
	ch       chan struct{}
	children []*KillSwitch
}

// NewKillSwitch returns an untripped, top-level kill switch.
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{ch: make(chan struct{})}
}

// Child returns a new kill switch that is tripped whenever either it
// or k is tripped.
func (k *KillSwitch) Child() *KillSwitch {
	c := NewKillSwitch()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tripped {
		c.Trip()
	} else {
		k.children = append(k.children, c)
	}
	return c
}

// Trip fires the kill switch and every descendant. Idempotent.
func (k *KillSwitch) Trip() {
	k.mu.Lock()
	if k.tripped {
		k.mu.Unlock()
		return
	}
	k.tripped = true
	children := k.children
	k.children = nil
	close(k.ch)
	k.mu.Unlock()

	for _, c := range children {
		c.Trip()
	}
}

// IsTripped reports the current state without blocking.
func (k *KillSwitch) IsTripped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tripped
}

// Done returns a channel closed when the switch trips, so a stage can
// select on it at any suspension point (mailbox send/receive, network
// call).
func (k *KillSwitch) Done() <-chan struct{} {
	return k.ch
}

// Context returns a context.Context cancelled when k trips, for
// suspension points that already take a context (metastore calls,
// object-storage I/O).
func (k *KillSwitch) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-k.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
