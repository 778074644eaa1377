package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AIRequests counts gateway calls by call kind (chat, mood, document)
	// and outcome (ok, remote_error, parse_error, error, missing_credential).
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartaid_ai_requests_total",
			Help: "Total number of AI gateway calls",
		},
		[]string{"call", "outcome"},
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartaid_ai_request_duration_seconds",
			Help:    "Duration of AI gateway calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"call"},
	)

	// ChatMessages counts relay posts by outcome (persisted, rejected, failed).
	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartaid_chat_messages_total",
			Help: "Total number of chat messages handled by the relay",
		},
		[]string{"outcome"},
	)

	ChatConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartaid_chat_connections",
			Help: "Current number of open chat WebSocket connections",
		},
	)
)
