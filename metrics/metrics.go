// Package metrics instruments the header factory and fetch
// interceptor with Prometheus metrics. Neither core package imports
// this one: *Metrics satisfies header.MetricsRecorder and
// interceptor.MetricsRecorder structurally, so a host opts in by
// passing one in via header.WithMetrics or interceptor.Options.Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for a payfetch client.
type Metrics struct {
	cacheTotal       *prometheus.CounterVec
	signTotal        *prometheus.CounterVec
	nonceReadSeconds prometheus.Histogram
	retryTotal       *prometheus.CounterVec
	activeSigns      prometheus.Gauge
}

// New creates and registers the collectors. Call once per process;
// registering twice panics, matching prometheus.MustRegister.
func New() *Metrics {
	m := &Metrics{
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfetch_header_cache_total",
				Help: "Header factory cache outcomes.",
			},
			[]string{"outcome"}, // hit | miss | forced_refresh
		),
		signTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfetch_sign_total",
				Help: "Signing function invocations by result.",
			},
			[]string{"result"}, // success | error
		),
		nonceReadSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payfetch_nonce_read_duration_seconds",
				Help:    "Latency of the on-chain Permit nonce read.",
				Buckets: prometheus.DefBuckets,
			},
		),
		retryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfetch_retry_total",
				Help: "Interceptor retry outcomes per chargeable call.",
			},
			[]string{"outcome"}, // retried | not_classifiable | static_skip
		),
		activeSigns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "payfetch_active_signs",
				Help: "Signing function calls currently in flight.",
			},
		),
	}

	prometheus.MustRegister(
		m.cacheTotal,
		m.signTotal,
		m.nonceReadSeconds,
		m.retryTotal,
		m.activeSigns,
	)

	return m
}

// RecordCacheHit records a header factory cache reuse.
func (m *Metrics) RecordCacheHit() { m.cacheTotal.WithLabelValues("hit").Inc() }

// RecordCacheMiss records a header factory cache miss.
func (m *Metrics) RecordCacheMiss() { m.cacheTotal.WithLabelValues("miss").Inc() }

// RecordForcedRefresh records a getHeader call that bypassed the cache
// because a minDeadlineExclusive was set.
func (m *Metrics) RecordForcedRefresh() { m.cacheTotal.WithLabelValues("forced_refresh").Inc() }

// RecordSign wraps a signing function invocation, recording its
// outcome and the active-sign gauge around the call.
func (m *Metrics) RecordSign(fn func() error) error {
	m.activeSigns.Inc()
	defer m.activeSigns.Dec()

	err := fn()
	if err != nil {
		m.signTotal.WithLabelValues("error").Inc()
		return err
	}
	m.signTotal.WithLabelValues("success").Inc()
	return nil
}

// ObserveNonceRead records how long an on-chain Permit nonce read took.
func (m *Metrics) ObserveNonceRead(d time.Duration) {
	m.nonceReadSeconds.Observe(d.Seconds())
}

// RecordRetry records the interceptor's retry outcome for one call:
// "retried" or "not_classifiable" after a 401/402 response, and
// "static_skip" for every chargeable request in static-header mode,
// whatever the response.
func (m *Metrics) RecordRetry(outcome string) {
	m.retryTotal.WithLabelValues(outcome).Inc()
}

// Handler returns a bare http.Handler exposing the registered
// collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
