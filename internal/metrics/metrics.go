// Package metrics exposes the supervisor's Prometheus instrumentation: an
// active-session gauge, stall-event counters, and a rendezvous-resolve
// latency histogram, scraped via the HTTP transport's /metrics endpoint
// (spec.md §4.12).
//
// Grounded on the teacher's pkg/agent/middleware/metrics.PrometheusRecorder
// — a struct of CounterVec/HistogramVec fields built with promauto,
// generalized here from per-LLM-request labels to per-session/per-stall
// labels. Unlike the teacher, which registers against the global default
// registry, this package carries its own prometheus.Registry so a test (or
// a second Recorder in the same process) never collides with a prior
// registration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder bundles every metric the supervisor emits, plus the registry
// the HTTP transport's /metrics endpoint gathers from.
type Recorder struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	StallEventsTotal  *prometheus.CounterVec
	RendezvousLatency *prometheus.HistogramVec
	SessionsTotal     *prometheus.CounterVec
}

// NewRecorder builds a Recorder against a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "overseer_active_sessions",
			Help: "Number of sessions currently in the Active status.",
		}),
		StallEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_stall_events_total",
			Help: "Count of stall detector events by kind.",
		}, []string{"kind"}),
		RendezvousLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overseer_rendezvous_resolve_seconds",
			Help:    "Time from a rendezvous entry being registered to it being resolved.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_sessions_total",
			Help: "Count of sessions created, by terminal outcome.",
		}, []string{"outcome"}),
	}
}

// Gatherer returns the registry backing this Recorder's metrics, for
// wiring into promhttp.HandlerFor at the HTTP transport's /metrics route.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SetActiveSessions reports the current count of Active sessions, called
// after every transition that changes it (spec.md §3's cap invariant).
func (r *Recorder) SetActiveSessions(n int) {
	r.ActiveSessions.Set(float64(n))
}

// ObserveStallEvent increments the counter for one stall detector event
// kind (Stalled, AutoNudge, Escalated, SelfRecovered).
func (r *Recorder) ObserveStallEvent(kind string) {
	r.StallEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveRendezvousResolve records how long a rendezvous entry of kind
// (approval, prompt, wait) stayed outstanding before it resolved.
func (r *Recorder) ObserveRendezvousResolve(kind string, d time.Duration) {
	r.RendezvousLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveSessionOutcome increments the sessions-total counter for a
// terminal session outcome (terminated, interrupted).
func (r *Recorder) ObserveSessionOutcome(outcome string) {
	r.SessionsTotal.WithLabelValues(outcome).Inc()
}
