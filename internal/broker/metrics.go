package broker

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telcobridge",
			Name:      "cache_lookups_total",
			Help:      "Total cache lookups by namespace and result.",
		},
		[]string{"namespace", "result"}, // result: "hit", "miss"
	)

	providerRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telcobridge",
			Name:      "provider_requests_total",
			Help:      "Total provider token requests by outcome.",
		},
		[]string{"outcome"}, // "success", "unauthorized", "unavailable"
	)

	issuanceDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telcobridge",
			Name:      "issuance_duration_seconds",
			Help:      "Duration of token issuance by source.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	issuanceFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telcobridge",
			Name:      "issuance_failures_total",
			Help:      "Total failed issuances by reason.",
		},
		[]string{"reason"}, // "no_route", "unauthorized", "provider_unavailable", "internal"
	)

	droppedCacheWritesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telcobridge",
			Name:      "dropped_cache_writes_total",
			Help:      "Cache writes discarded because the write queue was full.",
		},
	)

	followerTimeoutsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telcobridge",
			Name:      "singleflight_follower_timeouts_total",
			Help:      "Deduplicated requests that gave up waiting and issued independently.",
		},
	)
)

// CountDroppedCacheWrite is handed to the cache writer as its overflow
// callback
func CountDroppedCacheWrite() {
	droppedCacheWritesCounter.Inc()
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "internal"
	}
}
