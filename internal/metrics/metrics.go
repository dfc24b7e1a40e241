// Package metrics provides Prometheus instrumentation for modbot. It exposes
// counters for routed events, report outcomes, and moderator actions, a
// histogram for classifier latency, and gauges for open sessions and bridge
// connections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
)

var (
	// EventsTotal counts inbound events by triage route: "direct", "moderator",
	// "monitored", "ignored", "self", or "deleted".
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_events_total",
		Help: "Total number of inbound events by route",
	}, []string{"route"})

	// ReportsTotal counts report sessions by outcome.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_reports_total",
		Help: "Total number of report sessions by outcome",
	}, []string{"outcome"}) // outcome = "started", "completed", "cancelled"

	// ModeratorActionsTotal counts enforcement actions applied to posts.
	ModeratorActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_moderator_actions_total",
		Help: "Total number of enforcement actions applied",
	}, []string{"action"})

	// ScoringLatency records classifier round-trip time in seconds.
	ScoringLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modbot_scoring_latency_seconds",
		Help:    "Toxicity classifier latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// ScoringFailures counts classifier calls that returned no scores.
	ScoringFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_scoring_failures_total",
		Help: "Total number of failed classifier calls",
	})

	// ActiveSessions tracks the current number of open report sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_active_sessions",
		Help: "Current number of open report sessions",
	})

	// BridgeConnections tracks connected WebSocket bridges.
	BridgeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_bridge_connections",
		Help: "Current number of connected WebSocket bridges",
	})
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		ReportsTotal,
		ModeratorActionsTotal,
		ScoringLatency,
		ScoringFailures,
		ActiveSessions,
		BridgeConnections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
