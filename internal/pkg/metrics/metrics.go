package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notemarket"

var (
	// SettlementOutcomes counts every settlement call by entry point and result code.
	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "outcomes_total",
		Help:      "Settlement calls by source (webhook/manual) and result.",
	}, []string{"source", "result"})

	SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "atomic_unit_duration_seconds",
		Help:      "Duration of the settlement database transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	// SettlementConflictRetries counts atomic units rerun after a lock or
	// serialization conflict.
	SettlementConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "conflict_retries_total",
		Help:      "Settlement transactions retried after a transient database conflict.",
	}, []string{"source"})

	EscrowReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "escrow_released_total",
		Help:      "Transactions whose pending earnings were made available.",
	})

	AlertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "deliveries_total",
		Help:      "Alerts by terminal delivery status.",
	}, []string{"status"})

	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "dropped_total",
		Help:      "Alerts dropped because the dispatch queue was full or stopped.",
	})

	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Rejected requests by limiter and layer.",
	}, []string{"limiter", "layer"})

	RateLimitStoreFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "store_fallbacks_total",
		Help:      "Consumptions served by the in-process store after a shared store error.",
	})

	NotificationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "published_total",
		Help:      "Notifications relayed to the message broker.",
	})
)
