package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
)

const namespace = "teampay"

// Collector holds the Prometheus metrics of the service on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	SweepRuns        *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	SweepTransitions *prometheus.CounterVec
	Payments         *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	QueueJobs        *prometheus.CounterVec
}

// NewCollector creates and registers all collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of sweep passes",
		}, []string{"status"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of sweep passes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "rows_total",
			Help:      "Rows handled by the sweep, by outcome",
		}, []string{"outcome"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment confirmations by provider and result",
		}, []string{"provider", "result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Received payment webhooks by outcome",
		}, []string{"provider", "outcome"}),
		QueueJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "jobs_total",
			Help:      "Background jobs by type and result",
		}, []string{"type", "result"}),
	}

	reg.MustRegister(c.SweepRuns, c.SweepDuration, c.SweepTransitions, c.Payments, c.WebhookEvents, c.QueueJobs)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveSweep records the outcome of one sweep pass.
func (c *Collector) ObserveSweep(res membership.SweepResult, took time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.SweepRuns.WithLabelValues(status).Inc()
	c.SweepDuration.Observe(took.Seconds())
	c.SweepTransitions.WithLabelValues("scanned").Add(float64(res.Scanned))
	c.SweepTransitions.WithLabelValues("due").Add(float64(res.Due))
	c.SweepTransitions.WithLabelValues("overdue").Add(float64(res.Overdue))
	c.SweepTransitions.WithLabelValues("superseded").Add(float64(res.Superseded))
	c.SweepTransitions.WithLabelValues("failed").Add(float64(res.Failed))
}

// PaymentResult records a payment confirmation attempt.
func (c *Collector) PaymentResult(provider, result string) {
	if c == nil {
		return
	}
	c.Payments.WithLabelValues(provider, result).Inc()
}

// WebhookOutcome records how a webhook delivery was handled.
func (c *Collector) WebhookOutcome(provider, outcome string) {
	if c == nil {
		return
	}
	c.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

// JobResult records a processed background job.
func (c *Collector) JobResult(jobType, result string) {
	if c == nil {
		return
	}
	c.QueueJobs.WithLabelValues(jobType, result).Inc()
}
