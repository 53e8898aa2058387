package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

const namespace = "mpdchat"

// Node results.
const (
	resultOK        = "ok"
	resultError     = "error"
	resultCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors and serves them.
type Metrics struct {
	registry *prometheus.Registry
	nodes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	turns    *prometheus.CounterVec
	now      func() time.Time
}

var _ workflow.Observer = (*Metrics)(nil)

// NewMetrics creates a registry with the node collectors plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "node_runs_total",
			Help:      "Node executions by node and result.",
		}, []string{"node", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution time.",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 10, 30, 60},
		}, []string{"node"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "turns_started_total",
			Help:      "Turns that entered the graph, by mode.",
		}, []string{"mode"}),
		now: time.Now,
	}
	m.registry.MustRegister(
		m.nodes, m.duration, m.turns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NodeStart implements workflow.Observer.
func (m *Metrics) NodeStart(ctx context.Context, ev workflow.NodeEvent) context.Context {
	if ev.Step == 1 {
		m.turns.WithLabelValues(string(ev.Mode)).Inc()
	}
	return ctx
}

// NodeEnd implements workflow.Observer.
func (m *Metrics) NodeEnd(_ context.Context, ev workflow.NodeEvent, err error) {
	result := resultOK
	switch {
	case errors.Is(err, context.Canceled):
		result = resultCancelled
	case err != nil:
		result = resultError
	}
	m.nodes.WithLabelValues(ev.Node, result).Inc()
	if !ev.Start.IsZero() {
		m.duration.WithLabelValues(ev.Node).Observe(m.now().Sub(ev.Start).Seconds())
	}
}

// HealthReporter is the part of the provider chain the health collector
// reads. *provider.Chain implements it.
type HealthReporter interface {
	HealthReport() []provider.Status
}

// providerCollector reads provider health at scrape time.
type providerCollector struct {
	chain     HealthReporter
	available *prometheus.Desc
	failures  *prometheus.Desc
}

// RegisterProviderHealth exports the availability and consecutive failure
// count of every chain entry.
func (m *Metrics) RegisterProviderHealth(chain HealthReporter) error {
	return m.registry.Register(&providerCollector{
		chain: chain,
		available: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "available"),
			"1 when the provider may take requests.",
			[]string{"provider", "role", "model"}, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "consecutive_failures"),
			"Consecutive failures since the last success.",
			[]string{"provider", "role", "model"}, nil,
		),
	})
}

// Describe implements prometheus.Collector.
func (c *providerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.available
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *providerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.chain.HealthReport() {
		avail := 0.0
		if s.Available {
			avail = 1
		}
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, avail, s.Name, string(s.Role), s.Model)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(s.Failures), s.Name, string(s.Role), s.Model)
	}
}
