package pipeline

import "context"

// SequencerCommand is what a ticket's holder decided once its upload
// settled.
type SequencerCommand int

const (
	// CmdProceed carries the SplitsUpdate forward to the Publisher.
	CmdProceed SequencerCommand = iota
	// CmdDiscard drops this ticket silently — its upload failed and the
	// pipeline is being killed, or the split was superseded.
	CmdDiscard
)

// SequencerResult is what a ticket resolves to.
type SequencerResult struct {
	Command SequencerCommand
	Update  *SplitsUpdate
}

// Ticket is a oneshot handle a caller uses to resolve its submission
// once the corresponding upload completes, in whatever order that
// happens to finish in.
type Ticket struct {
	resultCh chan SequencerResult
}

// Proceed resolves the ticket with update, to be forwarded to the
// Publisher once every earlier-submitted ticket has itself resolved.
func (t *Ticket) Proceed(update *SplitsUpdate) {
	t.resultCh <- SequencerResult{Command: CmdProceed, Update: update}
}

// Discard resolves the ticket with no update: its upload failed.
func (t *Ticket) Discard() {
	t.resultCh <- SequencerResult{Command: CmdDiscard}
}

// Sequencer restores submission order across uploads that complete out
// of order: every in-flight split is given a ticket at submission
// time, and Run awaits tickets strictly in submission order before
// forwarding the next one's resolution downstream — so checkpoints
// still advance monotonically even though the Uploader's individual
// uploads may finish in any order.
type Sequencer struct {
	tickets chan *Ticket
	out     chan<- *SplitsUpdate
}

// NewSequencer builds a Sequencer with the given inbox capacity,
// forwarding resolved updates onto out.
func NewSequencer(capacity int, out chan<- *SplitsUpdate) *Sequencer {
	return &Sequencer{tickets: make(chan *Ticket, capacity), out: out}
}

// Submit registers a new in-flight split in submission order, blocking
// if the inbox is full (the pipeline's own backpressure) or ctx is
// cancelled.
func (s *Sequencer) Submit(ctx context.Context) (*Ticket, error) {
	t := &Ticket{resultCh: make(chan SequencerResult, 1)}
	select {
	case s.tickets <- t:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drains tickets strictly in submission order, forwarding each
// CmdProceed result to out before considering the next ticket — this
// is the actor loop; it exits once ctx is done or killSwitch trips.
func (s *Sequencer) Run(ctx context.Context, killSwitch *KillSwitch) {
	for {
		select {
		case t, ok := <-s.tickets:
			if !ok {
				return
			}
			select {
			case res := <-t.resultCh:
				if res.Command == CmdProceed {
					select {
					case s.out <- res.Update:
					case <-killSwitch.Done():
						return
					case <-ctx.Done():
						return
					}
				}
			case <-killSwitch.Done():
				return
			case <-ctx.Done():
				return
			}
		case <-killSwitch.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
