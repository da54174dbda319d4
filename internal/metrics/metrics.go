// Package metrics exports proxy counters and upstream latency to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one proxy instance on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	requestCounter   *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// New creates and registers the proxy collectors together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visionproxy_requests_total",
			Help: "Total number of /vision requests by response status",
		}, []string{"status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visionproxy_upstream_duration_seconds",
			Help:    "Latency of Vision API calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "outcome"}),
	}

	m.registry.MustRegister(
		m.requestCounter,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(status int) {
	m.requestCounter.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveUpstream records the latency of one Vision API call.
func (m *Metrics) ObserveUpstream(backend, outcome string, elapsed time.Duration) {
	m.upstreamDuration.WithLabelValues(backend, outcome).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
