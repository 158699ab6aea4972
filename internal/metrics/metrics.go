// Package metrics collects Prometheus metrics for the build monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records monitor activity. A nil *Collector is a valid no-op, so
// callers don't have to guard every observation site.
type Collector struct {
	sweeps        prometheus.Counter
	probesTotal   *prometheus.CounterVec
	probeLatency  prometheus.Histogram
	transitions   prometheus.Counter
	notifyFailure prometheus.Counter
	storeFailure  prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcheck_sweeps_total",
			Help: "Number of completed monitor sweeps.",
		}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightcheck_probes_total",
			Help: "Probes performed, labelled by classified status.",
		}, []string{"status"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightcheck_probe_latency_seconds",
			Help:    "Latency of individual invite-URL probes.",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcheck_status_transitions_total",
			Help: "Persisted build status transitions.",
		}),
		notifyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcheck_notify_failures_total",
			Help: "Notification deliveries that failed.",
		}),
		storeFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcheck_store_failures_total",
			Help: "Repository writes that failed during a sweep.",
		}),
	}

	reg.MustRegister(
		c.sweeps,
		c.probesTotal,
		c.probeLatency,
		c.transitions,
		c.notifyFailure,
		c.storeFailure,
	)

	return c
}

// RecordSweep counts one completed sweep.
func (c *Collector) RecordSweep() {
	if c == nil {
		return
	}
	c.sweeps.Inc()
}

// RecordProbe counts one probe by its classified status and observes latency.
func (c *Collector) RecordProbe(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.probesTotal.WithLabelValues(status).Inc()
	c.probeLatency.Observe(duration.Seconds())
}

// RecordTransition counts one persisted status change.
func (c *Collector) RecordTransition() {
	if c == nil {
		return
	}
	c.transitions.Inc()
}

// RecordNotifyFailure counts one failed notification delivery.
func (c *Collector) RecordNotifyFailure() {
	if c == nil {
		return
	}
	c.notifyFailure.Inc()
}

// RecordStoreFailure counts one failed repository write.
func (c *Collector) RecordStoreFailure() {
	if c == nil {
		return
	}
	c.storeFailure.Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
