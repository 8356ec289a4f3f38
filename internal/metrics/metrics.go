// Package metrics provides Prometheus metrics for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RepliesTotal     *prometheus.CounterVec
	ModelErrorsTotal *prometheus.CounterVec
	ModelDuration    prometheus.Histogram
	SessionsActive   prometheus.Gauge
	EvictionsTotal   *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	CommandsTotal    *prometheus.CounterVec
	DroppedTotal     prometheus.Counter
	NameCacheEntries prometheus.Gauge
	NameCacheHitRate prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_replies_total",
				Help: "Replies produced, by outcome (ok or fallback).",
			},
			[]string{"outcome"},
		),
		ModelErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_model_errors_total",
				Help: "Failed model calls by failure kind.",
			},
			[]string{"kind"},
		),
		ModelDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bot_model_call_duration_seconds",
				Help:    "Wall-clock time spent waiting on the model, retries included.",
				Buckets: prometheus.DefBuckets,
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_sessions_active",
				Help: "Number of live conversation sessions.",
			},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_session_evictions_total",
				Help: "Sessions removed, by reason (idle or reset).",
			},
			[]string{"reason"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bot_sweep_duration_seconds",
				Help:    "Duration of eviction sweep cycles.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
			},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_admin_commands_total",
				Help: "Admin commands by command and result.",
			},
			[]string{"command", "result"},
		),
		DroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_messages_dropped_total",
				Help: "Inbound mentions dropped because the bridge was at capacity or the user was rate limited.",
			},
		),
		NameCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_name_cache_entries",
				Help: "Slack display names currently cached.",
			},
		),
		NameCacheHitRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_name_cache_hit_ratio",
				Help: "Share of display-name lookups served from cache.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RepliesTotal,
		m.ModelErrorsTotal,
		m.ModelDuration,
		m.SessionsActive,
		m.EvictionsTotal,
		m.SweepDuration,
		m.CommandsTotal,
		m.DroppedTotal,
		m.NameCacheEntries,
		m.NameCacheHitRate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReply increments the reply counter.
func (m *Metrics) RecordReply(outcome string) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(outcome).Inc()
}

// RecordModelError increments the model error counter.
func (m *Metrics) RecordModelError(kind string) {
	if m == nil {
		return
	}
	m.ModelErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveModelCall records how long a model call took.
func (m *Metrics) ObserveModelCall(seconds float64) {
	if m == nil {
		return
	}
	m.ModelDuration.Observe(seconds)
}

// SetSessions sets the live session gauge.
func (m *Metrics) SetSessions(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordEvictions adds n evictions for reason.
func (m *Metrics) RecordEvictions(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

// ObserveSweep records a sweep cycle duration.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

// RecordCommand increments the admin command counter.
func (m *Metrics) RecordCommand(command, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}

// RecordDropped counts a dropped inbound message.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// SetNameCache reports the size and hit ratio of the display-name cache.
func (m *Metrics) SetNameCache(entries int, hitRate float64) {
	if m == nil {
		return
	}
	m.NameCacheEntries.Set(float64(entries))
	m.NameCacheHitRate.Set(hitRate)
}
