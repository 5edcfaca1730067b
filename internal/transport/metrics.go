package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polygo_requests_total",
		Help: "Outbound API requests by surface, method and final status",
	}, []string{"surface", "method", "status"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polygo_retries_total",
		Help: "Retries after a throttled response",
	}, []string{"surface"})

	rateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polygo_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate-limit permits",
		Buckets: prometheus.DefBuckets,
	}, []string{"surface"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polygo_request_duration_seconds",
		Help:    "Request latency in seconds, all attempts included",
		Buckets: prometheus.DefBuckets,
	}, []string{"surface", "method"})
)
