package portal

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks portal API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_client_request_duration_seconds",
			Help:    "Portal API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// PollsTotal counts poll cycles by target and outcome.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_polls_total",
			Help: "Poll cycles run by the sync engine",
		},
		[]string{"target", "mode", "result"},
	)

	// CacheUpdatesTotal counts message cache poll merges.
	CacheUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_cache_updates_total",
			Help: "Message cache poll merges, replaced or skipped as equivalent",
		},
		[]string{"outcome"},
	)

	// SendsTotal counts optimistic sends by outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_sends_total",
			Help: "Optimistic message sends",
		},
		[]string{"result"},
	)

	// AuthErrorsTotal counts auth-error path activations.
	AuthErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_sync_auth_errors_total",
			Help: "Times the session was dropped after a 401",
		},
	)
)

func observeRequest(method, path, status string, d time.Duration) {
	RequestDuration.WithLabelValues(method, routeLabel(path), status).Observe(d.Seconds())
}

// routeLabel collapses ids so the route label stays low-cardinality.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "conversations" && parts[i] != "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
