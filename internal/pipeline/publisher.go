package pipeline

import (
	"context"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
)

// Publisher is the pipeline's last stage: it takes Sequencer-ordered
// SplitsUpdates and commits each one through a single transactional
// publish_splits call, coupling split-state transitions to the
// checkpoint advance they cover. A failed publish trips the kill
// switch — retrying a publish blind would risk re-advancing a
// checkpoint past documents the retry itself re-reads.
type Publisher struct {
	ms         metastore.Metastore
	killSwitch *KillSwitch
	in         <-chan *SplitsUpdate
}

// NewPublisher builds a Publisher reading ordered updates off in.
func NewPublisher(ms metastore.Metastore, in <-chan *SplitsUpdate, killSwitch *KillSwitch) *Publisher {
	return &Publisher{ms: ms, in: in, killSwitch: killSwitch}
}

// Run drains in until it closes, ctx is cancelled, or the kill switch
// trips.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case update, ok := <-p.in:
			if !ok {
				return
			}
			if err := p.publish(ctx, update); err != nil {
				logging.Errorf("publisher: publishing splits for index %s: %v", update.IndexUID, err)
				p.killSwitch.Trip()
				return
			}
		case <-p.killSwitch.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, update *SplitsUpdate) error {
	return p.ms.PublishSplits(ctx, update.IndexUID, update.NewSplitIDs, update.ReplacedSplitIDs, update.Delta)
}
