// Package metrics collects and exposes Prometheus metrics for the
// privileged API surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the collection interface handlers and middleware use.
type Recorder interface {
	RecordRequest(method, path string, statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRateLimited(scope string)
	RecordGateAttempt(tier, outcome string)
	RecordLockoutTrip(tier string)
	RecordAggregation(duration time.Duration)
}

// Collector is the Prometheus-backed Recorder implementation.
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency prometheus.Histogram
	rateLimited    *prometheus.CounterVec
	gateAttempts   *prometheus.CounterVec
	lockoutTrips   *prometheus.CounterVec
	aggregation    prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitbox_requests_total",
			Help: "Requests handled, by method, route, and status code.",
		}, []string{"method", "path", "status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kitbox_request_latency_seconds",
			Help:    "Request handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitbox_rate_limited_total",
			Help: "Requests rejected by a rate limiter, by scope.",
		}, []string{"scope"}),
		gateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitbox_gate_attempts_total",
			Help: "Privileged gate verification attempts, by tier and outcome.",
		}, []string{"tier", "outcome"}),
		lockoutTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kitbox_lockout_trips_total",
			Help: "Lockouts tripped by repeated gate failures, by tier.",
		}, []string{"tier"}),
		aggregation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kitbox_aggregation_seconds",
			Help:    "Analytics aggregation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.rateLimited,
		c.gateAttempts,
		c.lockoutTrips,
		c.aggregation,
	)

	return c
}

// RecordRequest counts one handled request.
func (c *Collector) RecordRequest(method, path string, statusCode int) {
	c.requests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency observes one request's handling latency.
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRateLimited counts one throttled request.
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordGateAttempt counts one gate verification attempt.
func (c *Collector) RecordGateAttempt(tier, outcome string) {
	c.gateAttempts.WithLabelValues(tier, outcome).Inc()
}

// RecordLockoutTrip counts one tripped lockout.
func (c *Collector) RecordLockoutTrip(tier string) {
	c.lockoutTrips.WithLabelValues(tier).Inc()
}

// RecordAggregation observes one analytics aggregation run.
func (c *Collector) RecordAggregation(duration time.Duration) {
	c.aggregation.Observe(duration.Seconds())
}

// Handler returns the scrape handler for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop is a Recorder that records nothing. Useful in tests.
type Noop struct{}

func (Noop) RecordRequest(string, string, int)  {}
func (Noop) RecordRequestLatency(time.Duration) {}
func (Noop) RecordRateLimited(string)           {}
func (Noop) RecordGateAttempt(string, string)   {}
func (Noop) RecordLockoutTrip(string)           {}
func (Noop) RecordAggregation(time.Duration)    {}
