// Package eventbus decouples the indexing Publisher from the Merge
// pipeline's planner. Register(id, EventType) (<-chan interface{}, error)
// / notify(EventType, obj) subscription shape, generalized from a
// fixed enum of event kinds to duskline's own Topic constants.
package eventbus

import "sync"

// Topic names one event stream on the bus.
type Topic string

const (
	// TopicNewSplits carries *NewSplitsEvent after a successful
	// publish_splits call, consumed by the merge
	// planner.
	TopicNewSplits Topic = "new_splits"

	// TopicIndexChange carries *IndexChangeEvent whenever an index's
	// sources or mapping change, consumed by the control plane's
	// RefreshPlanLoop.
	TopicIndexChange Topic = "index_change"
)

// NewSplitsEvent is published by the Publisher stage.
type NewSplitsEvent struct {
	IndexUID string
	SplitIDs []string
}

// IndexChangeEvent is published whenever an index's source set or
// desired concurrency changes.
type IndexChangeEvent struct {
	IndexUID string
}

// Bus is an in-process, multi-subscriber fan-out. Each subscriber gets
// its own buffered channel; a slow subscriber drops events rather than
// blocking the publisher.
type Bus struct {
	mu sync.Mutex
	subs map[Topic]map[int]chan interface{}
	next int
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]map[int]chan interface{})}
}

// Subscribe registers a new listener on topic, returning a channel
// that receives every subsequently published event and an unsubscribe
// function.
func (b *Bus) Subscribe(topic Topic, bufSize int) (<-chan interface{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan interface{})
	}
	id := b.next
	b.next++
	ch := make(chan interface{}, bufSize)
	b.subs[topic][id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[topic]; ok {
			delete(m, id)
		}
		close(ch)
	}
	return ch, unsubscribe
}

// Publish fans event out to every current subscriber of topic. A
// subscriber whose channel is full has the event dropped for it rather
// than blocking the publisher.
func (b *Bus) Publish(topic Topic, event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}
