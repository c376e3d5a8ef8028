// Package observability exposes prometheus instrumentation for conversation
// playback. Everything is registered against an injected Registerer so tests
// and embedders can keep their own registries.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the conversation counters and gauges.
type Metrics struct {
	TurnsRendered  *prometheus.CounterVec
	PointsAwarded  prometheus.Counter
	EventsHandled  *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	ScriptLoads    prometheus.Counter
}

// NewMetrics registers the conversation metrics with reg. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsRendered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "converse",
			Name:      "turns_rendered_total",
			Help:      "Turns materialized, by speaker.",
		}, []string{"speaker"}),
		PointsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "converse",
			Name:      "points_awarded_total",
			Help:      "Points granted across all conversations.",
		}),
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "converse",
			Name:      "turn_events_total",
			Help:      "Renderer events applied, by type.",
		}, []string{"type"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "converse",
			Name:      "sessions_active",
			Help:      "Conversation sessions currently open.",
		}),
		ScriptLoads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "converse",
			Name:      "script_loads_total",
			Help:      "Scripts fetched from the content store.",
		}),
	}
}
