package core

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "stash"

type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	storedBytes  *prometheus.CounterVec
	fetchedBytes *prometheus.CounterVec
}

// newMetrics creates the server metrics and registers them with registry.
func newMetrics(registry prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		storedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stored_bytes_total",
			Help:      "Payload bytes written by successful stores",
		}, []string{"root"}),

		fetchedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetched_bytes_total",
			Help:      "Payload bytes streamed to clients",
		}, []string{"root"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.storedBytes, m.fetchedBytes} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}
