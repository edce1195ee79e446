package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/schema"
	"github.com/duskline/duskline/internal/splitstore"
)

// MaxRetryDelay is the ceiling on a pipeline's supervised-restart
// backoff: retry_delay = min(MaxRetryDelay, 2^(retry_count+1) seconds).
const MaxRetryDelay = 10 * time.Minute

// PipelineConfig is everything a Supervisor needs to build and rebuild
// one ingest pipeline.
type PipelineConfig struct {
	IndexUID      string
	SourceID      string
	PartitionID   uint64
	IndexURI      string
	Source        Source
	Tree          *schema.Tree
	Transform     Transform
	Trigger       SealTrigger
	Codec         Codec
	ScratchRoot   string
	MaturityAfter time.Duration
	TagFields     []string
	Metastore     metastore.Metastore
	SplitStore    *splitstore.SplitStore
	Budget        splitstore.UploadBudget
	TickInterval  time.Duration
}

// Supervisor runs one ingest pipeline under a restart policy: if any
// stage trips the kill switch, the whole pipeline (every in-flight
// batch, segment, and ticket) is torn down and a fresh one is built
// from the source's last durable checkpoint, after an exponential
// backoff capped at MaxRetryDelay. A clean Source EOF exits without
// restarting; an IndexNotFound from the metastore exits without
// restarting, since no further progress is possible until the index
// exists again.
type Supervisor struct {
	cfg PipelineConfig
}

// NewSupervisor builds a Supervisor for cfg.
func NewSupervisor(cfg PipelineConfig) *Supervisor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Supervisor{cfg: cfg}
}

// Run drives the supervised restart loop until ctx is cancelled, the
// source reaches EOF, or the index is found to no longer exist.
func (sup *Supervisor) Run(ctx context.Context) error {
	retryCount := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := sup.runOnce(ctx)
		if err == nil {
			logging.Infof("pipeline %s/%s: source reached EOF, exiting cleanly", sup.cfg.IndexUID, sup.cfg.SourceID)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var notFound *metastore.ErrNotFound
		if errors.As(err, &notFound) {
			logging.Warnf("pipeline %s/%s: index no longer exists, exiting without restart", sup.cfg.IndexUID, sup.cfg.SourceID)
			return err
		}

		delay := retryDelay(retryCount)
		logging.Errorf("pipeline %s/%s: failed, restarting in %s: %v", sup.cfg.IndexUID, sup.cfg.SourceID, delay, err)
		retryCount++
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryDelay implements retry_delay = min(MaxRetryDelay, 2^(n+1)s)
// using backoff.ExponentialBackOff's doubling so the policy is built
// from the same curve used elsewhere for transient metastore retries,
// rather than a bespoke power computation.
func retryDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = MaxRetryDelay
	b.RandomizationFactor = 0
	d := b.InitialInterval
	for i := 0; i < retryCount; i++ {
		next := time.Duration(float64(d) * b.Multiplier)
		if next > b.MaxInterval {
			next = b.MaxInterval
		}
		d = next
	}
	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

// runOnce builds one generation of the pipeline's stages and runs them
// to completion: either a clean Source EOF (nil error) or a kill-switch
// trip (non-nil error). It first looks the index up and returns the
// metastore's error as is (ErrNotFound once the index is deleted)
// without building any stage.
func (sup *Supervisor) runOnce(ctx context.Context) error {
	if _, err := sup.cfg.Metastore.IndexMetadata(ctx, sup.cfg.IndexUID); err != nil {
		return err
	}
	killSwitch := NewKillSwitch()
	runCtx, cancel := killSwitch.Context(ctx)
	defer cancel()

	cfg := sup.cfg
	dp := NewDocProcessor(cfg.Tree, cfg.Transform)
	ix := NewIndexer(cfg.SourceID, cfg.Tree.TimestampField(), cfg.Trigger)
	serializer := NewIndexSerializer(cfg.Codec, cfg.ScratchRoot)
	packager := NewPackager(cfg.IndexUID, cfg.SourceID, cfg.PartitionID, cfg.TagFields, cfg.MaturityAfter, cfg.Codec)
	uploaderKS := killSwitch.Child()
	uploader := NewUploader(cfg.Metastore, cfg.SplitStore, cfg.IndexURI, cfg.Budget, uploaderKS)

	published := make(chan *SplitsUpdate, 8)
	seq := NewSequencer(8, published)
	pub := NewPublisher(cfg.Metastore, published, killSwitch)

	errCh := make(chan error, 1)
	go func() {
		seq.Run(runCtx, killSwitch)
	}()
	go func() {
		pub.Run(runCtx)
	}()

	go func() {
		errCh <- sup.driveSource(runCtx, cfg, dp, ix, serializer, packager, uploader, seq, killSwitch)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			killSwitch.Trip()
			return nil
		}
		killSwitch.Trip()
		return err
	case <-killSwitch.Done():
		return errors.New("pipeline: kill switch tripped by a downstream stage")
	case <-ctx.Done():
		killSwitch.Trip()
		return ctx.Err()
	}
}

// driveSource is the actor loop for Source→DocProcessor→Indexer→
// Serializer→Packager→Uploader: it polls the source, and whenever a
// batch causes the Indexer to seal a segment, pushes it the rest of
// the way through synchronously, submitting a Sequencer ticket before
// handing the upload to the Uploader so ticket order always matches
// seal order.
func (sup *Supervisor) driveSource(
	ctx context.Context,
	cfg PipelineConfig,
	dp *DocProcessor,
	ix *Indexer,
	serializer *IndexSerializer,
	packager *Packager,
	uploader *Uploader,
	seq *Sequencer,
	killSwitch *KillSwitch,
) error {
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-killSwitch.Done():
			return errors.New("pipeline: kill switch tripped")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if sealed := ix.Tick(); sealed != nil {
				if err := sup.emit(ctx, sealed, serializer, packager, uploader, seq); err != nil {
					return err
				}
			}
			continue
		default:
		}

		batch, ok, err := cfg.Source.Poll(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if cfg.Source.EOF() {
				if err := cfg.Source.Finalize(ctx); err != nil {
					return err
				}
				return nil
			}
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			case <-killSwitch.Done():
				return errors.New("pipeline: kill switch tripped")
			}
			continue
		}

		parsed := dp.Process(batch)
		sealed := ix.Feed(parsed, batch.Delta, batch.Flush)
		if sealed == nil {
			continue
		}
		if err := sup.emit(ctx, sealed, serializer, packager, uploader, seq); err != nil {
			return err
		}
	}
}

func (sup *Supervisor) emit(ctx context.Context, sealed *SealedSegment, serializer *IndexSerializer, packager *Packager, uploader *Uploader, seq *Sequencer) error {
	if sealed.Segment.NumDocs == 0 {
		return nil
	}
	ticket, err := seq.Submit(ctx)
	if err != nil {
		return err
	}
	ser, err := serializer.Serialize(sealed)
	if err != nil {
		ticket.Discard()
		return err
	}
	pkg, err := packager.Package(ser)
	if err != nil {
		ticket.Discard()
		return err
	}
	uploader.Upload(ctx, pkg, sealed.Delta, ticket)
	return nil
}
