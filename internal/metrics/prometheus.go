package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine instrumentation. All collectors register on the default registry
// and are served by promhttp on /metrics.

var (
	// FeedbackSubmitted counts accepted feedback entries
	FeedbackSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "feedback_submitted_total",
		Help:      "Feedback entries accepted into the corpus.",
	})

	// FeedbackRejected counts validation failures by kind
	FeedbackRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "feedback_rejected_total",
		Help:      "Feedback submissions rejected at validation.",
	}, []string{"kind"})

	// FeedbackRevoked counts revocations
	FeedbackRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "feedback_revoked_total",
		Help:      "Feedback entries revoked.",
	})

	// Recomputations counts summary recomputations by outcome
	Recomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "recomputations_total",
		Help:      "Per-agent summary recomputations.",
	}, []string{"outcome"}) // completed / preempted / failed

	// RecomputeDuration tracks recomputation latency
	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trust_engine",
		Name:      "recompute_duration_seconds",
		Help:      "Wall time of one summary recomputation.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// EventsDropped counts drop-oldest evictions on subscriber queues
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "events_dropped_total",
		Help:      "Events dropped from full subscriber queues.",
	}, []string{"kind"})

	// AttestationVerifications counts TEE pipeline outcomes
	AttestationVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trust_engine",
		Name:      "attestation_verifications_total",
		Help:      "TEE attestation verifications by outcome.",
	}, []string{"outcome"}) // tier3 / valid / invalid
)
