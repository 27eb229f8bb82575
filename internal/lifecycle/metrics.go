package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal        *prometheus.CounterVec
	eventDuration      *prometheus.HistogramVec
	keysGeneratedTotal *prometheus.CounterVec
	cleanupFailures    prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// InitMetrics registers the controller metrics with the default registry.
// Until it is called, recording is a no-op.
func InitMetrics() {
	metricsOnce.Do(func() {
		eventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgpsecret_events_total",
				Help: "Lifecycle events handled, by request type, action and outcome",
			},
			[]string{"request_type", "action", "status"},
		)

		eventDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgpsecret_event_duration_seconds",
				Help:    "Duration of lifecycle event handling in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"action"},
		)

		keysGeneratedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgpsecret_keys_generated_total",
				Help: "Keypairs generated and stored, by key size",
			},
			[]string{"bits"},
		)

		cleanupFailures = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pgpsecret_legacy_cleanup_failures_total",
				Help: "Legacy parameter deletions that failed after a metadata update",
			},
		)

		metricsRegistered.Store(true)
	})
}

func recordEvent(requestType RequestType, action Action, status string, seconds float64) {
	if !metricsRegistered.Load() {
		return
	}
	eventsTotal.WithLabelValues(requestTypeLabel(requestType), action.String(), status).Inc()
	eventDuration.WithLabelValues(action.String()).Observe(seconds)
}

// requestTypeLabel keeps the request_type label bounded when callers pass
// arbitrary request types.
func requestTypeLabel(requestType RequestType) string {
	switch requestType {
	case RequestCreate, RequestUpdate, RequestDelete:
		return string(requestType)
	}
	return "unknown"
}

func recordKeyGenerated(bits string) {
	if !metricsRegistered.Load() {
		return
	}
	keysGeneratedTotal.WithLabelValues(bits).Inc()
}

func recordCleanupFailure() {
	if !metricsRegistered.Load() {
		return
	}
	cleanupFailures.Inc()
}

// GetEventsTotal returns the events counter for testing.
func GetEventsTotal() *prometheus.CounterVec {
	return eventsTotal
}

// GetKeysGeneratedTotal returns the generated keys counter for testing.
func GetKeysGeneratedTotal() *prometheus.CounterVec {
	return keysGeneratedTotal
}
