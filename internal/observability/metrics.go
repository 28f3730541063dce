package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "enrollments_total",
		Help:      "Total number of enrollment attempts",
	}, []string{"status"})

	Identifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "identifications_total",
		Help:      "Total number of 1:N identification attempts",
	}, []string{"result"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "match_distance",
		Help:      "Best-match L2 distance per identification",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 12),
	})

	SessionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "sessions_issued_total",
		Help:      "Total number of sessions issued",
	}, []string{"method"})

	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "extract_duration_seconds",
		Help:      "Duration of embedding extraction calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"op"})

	EnrolledEmbeddings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "enrolled_embeddings",
		Help:      "Number of embeddings in the store (updated on snapshot reads)",
	})

	AuditEventsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "audit_events_stored_total",
		Help:      "Audit events persisted by the auditor",
	}, []string{"type"})

	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "audit_queue_depth",
		Help:      "Auth events waiting in the audit stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
