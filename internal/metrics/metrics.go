package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_redemptions_total",
			Help: "Check-in attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	SessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_sessions_issued_total",
			Help: "QR attendance sessions created",
		},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_events_consumed_total",
			Help: "Queue events handled by the worker",
		},
		[]string{"type", "result"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
