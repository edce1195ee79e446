package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore"
)

const (
	// ControlPlanLoopInterval is how often the scheduler diffs the
	// observed running plan against the last-applied one (§4.5 step 5).
	ControlPlanLoopInterval = 30 * time.Second

	// MinDurationBetweenScheduling bounds how often a full
	// fetch→build→diff→dispatch cycle may run, so transient
	// observation skew in the gossip layer does not cause oscillation
	// (§4.5 step 6).
	MinDurationBetweenScheduling = 10 * time.Second
)

// Config wires a Scheduler's dependencies.
type Config struct {
	Metastore metastore.Metastore
	Gossip GossipSource
	ClientOf IndexerClientFactory
	Bus *eventbus.Bus
}

// Scheduler drives the reconciliation loop of §4.5: it computes a
// physical plan from enabled sources and the live indexer pool,
// dispatches the delta against the last-applied plan, and separately
// watches for drift between the last-applied plan and what indexers
// self-report running via cluster gossip.
type Scheduler struct {
	cfg Config

	mu sync.Mutex
	lastApplied PhysicalPlan
	lastScheduledAt time.Time
}

// New builds a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, lastApplied: PhysicalPlan{}}
}

// Run drives every scheduling trigger until ctx is cancelled:
// NotifyIndexChange events off the bus, the periodic RefreshPlanLoop,
// and the periodic ControlPlanLoop.
func (s *Scheduler) Run(ctx context.Context) {
	events, unsubscribe := s.cfg.Bus.Subscribe(eventbus.TopicIndexChange, 32)
	defer unsubscribe()

	refreshTicker := time.NewTicker(MinDurationBetweenScheduling)
	defer refreshTicker.Stop()
	controlTicker := time.NewTicker(ControlPlanLoopInterval)
	defer controlTicker.Stop()

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			s.reconcile(ctx)
		case <-refreshTicker.C:
			s.reconcile(ctx)
		case <-controlTicker.C:
			s.reconcileObserved(ctx)
		}
	}
}

// reconcile is steps 1-4 of §4.5: fetch source configs, build the
// logical plan, bin-pack it into a physical plan, diff against the
// last-applied plan, and dispatch the delta. It is a no-op if called
// again within MinDurationBetweenScheduling of its own last run.
func (s *Scheduler) reconcile(ctx context.Context) {
	s.mu.Lock()
	if !s.lastScheduledAt.IsZero() && time.Since(s.lastScheduledAt) < MinDurationBetweenScheduling {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	sources, err := FetchSourceConfigs(ctx, s.cfg.Metastore)
	if err != nil {
		logging.Errorf("scheduler: fetching source configs: %v", err)
		return
	}
	logical := BuildLogicalPlan(sources)

	nodesByID := s.cfg.Gossip.Nodes()
	nodes := make([]Node, 0, len(nodesByID))
	for _, n := range nodesByID {
		nodes = append(nodes, n)
	}

	desired := BuildPhysicalPlan(nodes, logical, sources)

	s.mu.Lock()
	current := s.lastApplied
	changed := Diff(current, desired)
	if len(changed) == 0 {
		s.lastScheduledAt = time.Now()
		s.mu.Unlock()
		return
	}
	s.lastApplied = desired
	s.lastScheduledAt = time.Now()
	s.mu.Unlock()

	logging.Infof("scheduler: applying plan to %d changed node(s)", len(changed))
	Dispatch(ctx, desired, changed, nodesByID, s.cfg.ClientOf)
}

// reconcileObserved is §4.5 step 5: compare the running plan observed
// via cluster gossip against the last-applied plan.
//   - same node set + same task multisets -> no action.
//   - task multisets differ (messages lost) -> re-send the
//     last-applied plan, without recomputing it.
//   - node set differs -> a full reconcile (step 1 onward) is needed.
func (s *Scheduler) reconcileObserved(ctx context.Context) {
	nodesByID := s.cfg.Gossip.Nodes()

	s.mu.Lock()
	applied := s.lastApplied
	s.mu.Unlock()

	if nodeSetChanged(applied, nodesByID) {
		s.reconcile(ctx)
		return
	}

	observed := make(PhysicalPlan, len(nodesByID))
	for id, n := range nodesByID {
		observed[id] = n.IndexingTasks
	}

	var drifted []string
	for id := range applied {
		if !multisetEqual(applied[id], observed[id]) {
			drifted = append(drifted, id)
		}
	}
	if len(drifted) == 0 {
		return
	}
	sort.Strings(drifted)
	logging.Warnf("scheduler: observed plan drifted from last-applied on %d node(s), re-sending", len(drifted))
	Dispatch(ctx, applied, drifted, nodesByID, s.cfg.ClientOf)
}

func nodeSetChanged(applied PhysicalPlan, observed map[string]Node) bool {
	for id := range applied {
		if _, ok := observed[id]; !ok {
			return true
		}
	}
	for id, n := range observed {
		if !n.IsIndexer() {
			continue
		}
		if _, ok := applied[id]; !ok {
			return true
		}
	}
	return false
}
