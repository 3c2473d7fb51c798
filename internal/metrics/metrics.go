// Package metrics exposes refresh and source outcomes as Prometheus
// collectors.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/pulse"
	"github.com/janekbaraniewski/openpulse/internal/selector"
)

const namespace = "openpulse"

// Collector owns a private registry so several instances can coexist in
// one process.
type Collector struct {
	registry *prometheus.Registry

	refreshDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	lastRefresh     prometheus.Gauge
	sourceReads     *prometheus.CounterVec
	sourceDuration  *prometheus.HistogramVec
	usedPercent     *prometheus.GaugeVec
	confidence      *prometheus.GaugeVec
	costUSD         *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of full refresh cycles",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"trigger"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Full refresh cycles by trigger and result",
		}, []string{"trigger", "result"}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last published refresh",
		}),
		sourceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_reads_total",
			Help:      "Signal source reads by outcome",
		}, []string{"provider", "source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_read_duration_seconds",
			Help:      "Signal source read duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"provider", "source"}),
		usedPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used_percent",
			Help:      "Used share of a quota window, 0-100",
		}, []string{"provider", "window"}),
		confidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading_confidence",
			Help:      "Confidence of the selected reading (0 unknown .. 3 high)",
		}, []string{"provider", "source"}),
		costUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_usd",
			Help:      "Estimated spend from local logs",
		}, []string{"provider", "period"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the metrics server",
		}, []string{"method", "path", "status"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.refreshDuration, c.refreshTotal, c.lastRefresh,
		c.sourceReads, c.sourceDuration,
		c.usedPercent, c.confidence, c.costUSD,
		c.httpRequests,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveSource records one source read. It is safe for concurrent use.
func (c *Collector) ObserveSource(o selector.Outcome) {
	provider := string(o.Provider)
	c.sourceReads.WithLabelValues(provider, o.Source, outcome(o)).Inc()
	c.sourceDuration.WithLabelValues(provider, o.Source).Observe(o.Elapsed.Seconds())
}

func outcome(o selector.Outcome) string {
	switch {
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		return "canceled"
	case o.Err != nil:
		return "error"
	case o.Reading.Confidence == core.ConfidenceUnknown:
		return "unavailable"
	default:
		return "ok"
	}
}

// ObserveCycle records a finished full refresh and the state it produced.
func (c *Collector) ObserveCycle(r pulse.CycleReport) {
	trigger := string(r.Trigger)
	result := "ok"
	if r.Err != nil {
		result = "error"
	}
	c.refreshTotal.WithLabelValues(trigger, result).Inc()
	c.refreshDuration.WithLabelValues(trigger).Observe(r.Duration.Seconds())
	if r.Err == nil {
		c.ObserveState(r.State)
	}
}

// ObserveState sets the per-provider gauges from state.
func (c *Collector) ObserveState(state core.PulseState) {
	if !state.LastRefresh.IsZero() {
		c.lastRefresh.Set(float64(state.LastRefresh.Unix()))
	}
	for id, r := range state.Readings {
		provider := string(id)
		c.confidence.DeletePartialMatch(prometheus.Labels{"provider": provider})
		c.confidence.WithLabelValues(provider, string(r.Source)).Set(float64(r.Confidence))
		if r.Usage == nil {
			continue
		}
		setPercent(c.usedPercent, provider, "session", r.Usage.Session)
		setPercent(c.usedPercent, provider, "week", r.Usage.Week)
		if d := r.Usage.Digest; d != nil {
			c.costUSD.WithLabelValues(provider, "today").Set(d.TodayCostUSD)
			c.costUSD.WithLabelValues(provider, "window").Set(d.WindowCostUSD)
		}
	}
}

func setPercent(g *prometheus.GaugeVec, provider, window string, w *core.WindowUsage) {
	if w == nil {
		g.DeleteLabelValues(provider, window)
		return
	}
	if pct, ok := w.UsedPercent(); ok {
		g.WithLabelValues(provider, window).Set(pct)
		return
	}
	g.DeleteLabelValues(provider, window)
}
