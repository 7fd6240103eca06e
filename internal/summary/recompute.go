package summary

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/feedback"
	"github.com/skillmesh/trust-engine/internal/metrics"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/internal/scoring"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Recompute Worker
//
// Subscribes to feedback mutations and re-derives the scoring triple for
// the affected agent. Coordination rules:
//
//   - At most one in-flight recomputation per agent
//   - A newer mutation for the same agent preempts an in-flight
//     recomputation that has not yet published score:updated
//   - score:updated is published only after the cache write of a run that
//     was not preempted; mutation events are published by the store as
//     they happen, so subscribers can see a later mutation for an agent
//     before the score:updated of an earlier one
//   - No cross-agent ordering
//
// Preemption is context cancellation checked at the publish boundary: a
// cancelled recomputation discards its result and the queued rerun picks
// up the newer corpus.

// ScoreUpdate is the payload published with score:updated
type ScoreUpdate struct {
	AgentID       string  `json:"agentId"`
	Naive         float64 `json:"naive"`
	Hardened      float64 `json:"hardened"`
	UsageWeighted float64 `json:"usageWeighted"`
}

type agentJob struct {
	cancel context.CancelFunc
	rerun  bool
}

// Recomputer drives per-agent summary recomputation off the event bus
type Recomputer struct {
	store    *feedback.Store
	cache    *Cache
	naive    *scoring.NaiveScorer
	usage    *scoring.UsageScorer
	bus      *events.Bus
	clock    providers.Clock

	mu   sync.Mutex
	jobs map[string]*agentJob
	wg   sync.WaitGroup
	sub  *events.Subscription
}

// NewRecomputer wires the worker and subscribes to mutation events
// immediately, so nothing published before Run starts is missed.
// usage carries the hardened scorer and credibility resolver internally.
func NewRecomputer(store *feedback.Store, cache *Cache, naive *scoring.NaiveScorer, usage *scoring.UsageScorer, bus *events.Bus, clock providers.Clock) *Recomputer {
	return &Recomputer{
		store: store,
		cache: cache,
		naive: naive,
		usage: usage,
		bus:   bus,
		clock: clock,
		jobs:  make(map[string]*agentJob),
		sub:   bus.Subscribe(events.KindFeedbackNew, events.KindFeedbackRevoked),
	}
}

// Run consumes mutation events until the context is cancelled. Blocks;
// callers run it in a goroutine or an errgroup.
func (r *Recomputer) Run(ctx context.Context) error {
	sub := r.sub
	defer r.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				r.wg.Wait()
				return nil
			}
			if evt.AgentID == "" {
				continue
			}
			r.Trigger(ctx, evt.AgentID)
		}
	}
}

// Trigger schedules a recomputation for an agent, preempting any
// in-flight run for the same agent.
func (r *Recomputer) Trigger(ctx context.Context, agentID string) {
	r.mu.Lock()
	if job, ok := r.jobs[agentID]; ok {
		// In-flight: cancel it and ask for a rerun against the newer corpus.
		job.cancel()
		job.rerun = true
		r.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	r.jobs[agentID] = &agentJob{cancel: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, jobCtx, agentID)
}

func (r *Recomputer) run(parent, jobCtx context.Context, agentID string) {
	defer r.wg.Done()

	preempted := !r.recomputeOnce(jobCtx, agentID)

	r.mu.Lock()
	job := r.jobs[agentID]
	rerun := job != nil && job.rerun
	delete(r.jobs, agentID)
	r.mu.Unlock()

	if preempted {
		metrics.Recomputations.WithLabelValues("preempted").Inc()
	}
	if rerun && parent.Err() == nil {
		r.Trigger(parent, agentID)
	}
}

// recomputeOnce derives the triple and publishes it. Returns false when
// the run was preempted before publishing.
func (r *Recomputer) recomputeOnce(ctx context.Context, agentID string) bool {
	start := time.Now()

	entries := r.store.ListForAgent(agentID)
	corpusCtx := scoring.CorpusContext{
		All:       r.store.ListAll(),
		FirstSeen: r.store.FirstSeenAll(),
	}

	naive := r.naive.Score(agentID, entries)
	usageSummary, hardened, err := r.usage.Score(agentID, entries, corpusCtx)
	if err != nil {
		// Invariant violation: abort this recomputation, leave the cached
		// triple intact. The next mutation retries.
		log.Printf("[Recompute] aborted for agent %s: %v", agentID, err)
		metrics.Recomputations.WithLabelValues("failed").Inc()
		return true
	}

	// Preemption boundary: a cancelled run must not publish.
	if ctx.Err() != nil {
		return false
	}

	r.cache.Put(models.AgentSummary{
		AgentID:       agentID,
		Naive:         naive,
		Hardened:      hardened.Summary,
		UsageWeighted: usageSummary,
		LastUpdatedMs: r.clock.NowMs(),
	})

	r.bus.Publish(events.Event{
		Kind:    events.KindScoreUpdated,
		AgentID: agentID,
		Payload: ScoreUpdate{
			AgentID:       agentID,
			Naive:         naive.SummaryValue,
			Hardened:      hardened.Summary.SummaryValue,
			UsageWeighted: usageSummary.SummaryValue,
		},
	})

	if len(hardened.Clusters) > 0 {
		ids := make([]string, 0)
		for _, c := range hardened.Clusters {
			ids = append(ids, c.Members...)
		}
		r.bus.Publish(events.Event{
			Kind:    events.KindClusterDetected,
			AgentID: agentID,
			Payload: ids,
		})
	}
	r.bus.Publish(events.Event{Kind: events.KindGraphUpdated, AgentID: agentID})

	metrics.Recomputations.WithLabelValues("completed").Inc()
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	return true
}

// Summary returns the cached triple, computing it synchronously when the
// agent has never been scored. Query paths use this so a cold cache still
// answers.
func (r *Recomputer) Summary(agentID string) (models.AgentSummary, error) {
	if cached, ok := r.cache.Get(agentID); ok {
		return cached, nil
	}

	entries := r.store.ListForAgent(agentID)
	corpusCtx := scoring.CorpusContext{
		All:       r.store.ListAll(),
		FirstSeen: r.store.FirstSeenAll(),
	}
	naive := r.naive.Score(agentID, entries)
	usageSummary, hardened, err := r.usage.Score(agentID, entries, corpusCtx)
	if err != nil {
		return models.AgentSummary{}, err
	}
	entry := models.AgentSummary{
		AgentID:       agentID,
		Naive:         naive,
		Hardened:      hardened.Summary,
		UsageWeighted: usageSummary,
		LastUpdatedMs: r.clock.NowMs(),
	}
	r.cache.Put(entry)
	return entry, nil
}
