package server

import (
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterread_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterread_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Meter processing metrics
	readingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterread_readings_total",
			Help: "Total number of meter readings by outcome",
		},
		[]string{"source", "outcome"}, // source: http, websocket; outcome: found, none, error
	)

	serviceTypesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterread_service_types_total",
			Help: "Classified meters by service type",
		},
		[]string{"service_type"},
	)

	displayFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterread_display_fallbacks_total",
			Help: "Number of photos where the fixed fallback crop was used",
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterread_stage_duration_seconds",
			Help:    "Processing duration per pipeline stage in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // stage: classify, locate, extract, total
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterread_rate_limit_hits_total",
			Help: "Requests rejected by rate limits or daily quotas",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meterread_upload_size_bytes",
			Help:    "Size of uploaded photos in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meterread_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterread_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// observeReading records the outcome and stage timings of r.
func observeReading(source string, r *meter.Reading) {
	readingsTotal.WithLabelValues(source, r.Outcome()).Inc()
	serviceTypesTotal.WithLabelValues(r.ServiceType.Code()).Inc()
	if r.Display != nil && r.Display.Fallback {
		displayFallbacksTotal.Inc()
	}
	stageDuration.WithLabelValues("classify").Observe(r.Processing.ClassifyMs / 1000)
	stageDuration.WithLabelValues("locate").Observe(r.Processing.LocateMs / 1000)
	stageDuration.WithLabelValues("extract").Observe(r.Processing.ExtractMs / 1000)
	stageDuration.WithLabelValues("total").Observe(r.Processing.TotalMs / 1000)
}
