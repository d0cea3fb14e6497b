// Package metrics exposes project tree activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trace_project"

// Collector records tree lifecycle events. A nil Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	// elementsCreated counts attached elements.
	// Labels: kind
	elementsCreated *prometheus.CounterVec

	// elementsRemoved counts removed and disposed elements.
	// Labels: kind
	elementsRemoved *prometheus.CounterVec

	// refreshDuration measures reconciliation of one element, children included.
	// Labels: kind
	refreshDuration *prometheus.HistogramVec

	// analysesScheduled counts analyses started in the background.
	// Labels: analysis
	analysesScheduled *prometheus.CounterVec
}

// NewCollector registers the metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		elementsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "elements_created_total",
			Help:      "Elements attached to the project tree",
		}, []string{"kind"}),
		elementsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "elements_removed_total",
			Help:      "Elements removed from the project tree",
		}, []string{"kind"}),
		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent reconciling an element and its subtree",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		analysesScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "scheduled_total",
			Help:      "Analyses scheduled for background execution",
		}, []string{"analysis"}),
	}
}

func (c *Collector) ElementCreated(kind string) {
	if c == nil {
		return
	}
	c.elementsCreated.WithLabelValues(kind).Inc()
}

func (c *Collector) ElementRemoved(kind string) {
	if c == nil {
		return
	}
	c.elementsRemoved.WithLabelValues(kind).Inc()
}

func (c *Collector) RefreshCompleted(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.refreshDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) AnalysisScheduled(analysisID string) {
	if c == nil {
		return
	}
	c.analysesScheduled.WithLabelValues(analysisID).Inc()
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
