// Package metrics exports bridge activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/resource"
)

// Collector observes the registry, the future bridge and the HTTP adapter.
// It satisfies resource.Observer, future.Observer and http.Observer.
type Collector struct {
	handles     *prometheus.GaugeVec
	pending     prometheus.Gauge
	completed   *prometheus.CounterVec
	late        prometheus.Counter
	httpReqs    *prometheus.CounterVec
	httpRetries prometheus.Counter
	violations  prometheus.Counter
}

// New creates a Collector. Call Register to expose it.
func New() *Collector {
	return &Collector{
		handles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tanker_handles_outstanding",
				Help: "Number of live native handles",
			},
			[]string{"kind"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tanker_operations_pending",
				Help: "Number of submitted operations not yet completed by native",
			},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tanker_operations_completed_total",
				Help: "Number of operations resolved, by outcome",
			},
			[]string{"outcome"},
		),
		late: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tanker_late_completions_total",
				Help: "Number of completions that arrived after the caller gave up",
			},
		),
		httpReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tanker_http_requests_total",
				Help: "Number of native HTTP requests finished, by outcome",
			},
			[]string{"outcome"},
		),
		httpRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tanker_http_retries_total",
				Help: "Number of HTTP attempts retried after a transient failure",
			},
		),
		violations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tanker_protocol_violations_total",
				Help: "Number of native contract violations detected",
			},
		),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.handles, c.pending, c.completed, c.late,
		c.httpReqs, c.httpRetries, c.violations,
	}
}

// Register adds every metric to r.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, m := range c.collectors() {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes every metric from r.
func (c *Collector) Unregister(r prometheus.Registerer) {
	for _, m := range c.collectors() {
		r.Unregister(m)
	}
}

// OnResourceEvent implements resource.Observer.
func (c *Collector) OnResourceEvent(e resource.Event) {
	g := c.handles.WithLabelValues(e.Kind.String())
	switch e.Type {
	case resource.EventRegistered:
		g.Inc()
	case resource.EventReleased, resource.EventCollected:
		g.Dec()
	}
}

// OperationSubmitted implements future.Observer.
func (c *Collector) OperationSubmitted(string) { c.pending.Inc() }

// OperationCompleted implements future.Observer.
func (c *Collector) OperationCompleted(_ string, outcome future.Outcome) {
	c.pending.Dec()
	c.completed.WithLabelValues(string(outcome)).Inc()
}

// LateCompletion implements future.Observer.
func (c *Collector) LateCompletion(string) {
	c.pending.Dec()
	c.late.Inc()
}

// ProtocolViolation implements future.Observer.
func (c *Collector) ProtocolViolation(string) { c.violations.Inc() }

// HTTPRequestFinished implements http.Observer.
func (c *Collector) HTTPRequestFinished(outcome string) {
	c.httpReqs.WithLabelValues(outcome).Inc()
}

// HTTPRequestRetried implements http.Observer.
func (c *Collector) HTTPRequestRetried() { c.httpRetries.Inc() }

// Handles returns the outstanding handle gauge for kind.
func (c *Collector) Handles(kind resource.Kind) prometheus.Gauge {
	return c.handles.WithLabelValues(kind.String())
}

// Pending returns the pending operations gauge.
func (c *Collector) Pending() prometheus.Gauge { return c.pending }

// Completed returns the completed operations counter for outcome.
func (c *Collector) Completed(outcome future.Outcome) prometheus.Counter {
	return c.completed.WithLabelValues(string(outcome))
}

// Late returns the late completion counter.
func (c *Collector) Late() prometheus.Counter { return c.late }

// HTTPRequests returns the finished HTTP request counter for outcome.
func (c *Collector) HTTPRequests(outcome string) prometheus.Counter {
	return c.httpReqs.WithLabelValues(outcome)
}

// HTTPRetries returns the HTTP retry counter.
func (c *Collector) HTTPRetries() prometheus.Counter { return c.httpRetries }

// Violations returns the protocol violation counter.
func (c *Collector) Violations() prometheus.Counter { return c.violations }
