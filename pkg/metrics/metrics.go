package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// CacheLookups counts TTL cache lookups by namespace and outcome (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"namespace", "result"},
	)

	// SignedURLRequests counts presign operations by outcome (success|failure).
	SignedURLRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_signed_url_requests_total",
			Help: "Total number of presigned URL requests issued to object storage",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
