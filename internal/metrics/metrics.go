// Package metrics exposes steward's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry so multiple instances
// (tests in particular) never collide.
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunsActive   prometheus.Gauge
	RunDuration  prometheus.Histogram

	EventsEmitted      prometheus.Counter
	ConnectionsOpen    prometheus.Gauge
	ConnectionsRefused prometheus.Counter

	MonitoredTasks prometheus.Gauge
}

// New builds a registry with all steward collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_runs_started_total",
			Help: "Tool runs accepted by the engine.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_runs_finished_total",
			Help: "Tool runs reaching a terminal status.",
		}, []string{"status"}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steward_runs_active",
			Help: "Tool runs currently counted against the concurrency limit.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "steward_run_duration_seconds",
			Help:    "Wall time of finished tool runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_events_emitted_total",
			Help: "Events appended to the stream log.",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steward_stream_connections_open",
			Help: "Open stream subscriber connections.",
		}),
		ConnectionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_stream_connections_refused_total",
			Help: "Subscriber connections refused by admission control.",
		}),
		MonitoredTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steward_watchdog_monitored_tasks",
			Help: "Tasks currently monitored by the liveness watchdog.",
		}),
	}

	m.registry.MustRegister(
		m.RunsStarted, m.RunsFinished, m.RunsActive, m.RunDuration,
		m.EventsEmitted, m.ConnectionsOpen, m.ConnectionsRefused,
		m.MonitoredTasks,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
