package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panelchat_sessions_active",
			Help: "Currently connected chat sessions",
		},
	)

	ConnectRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelchat_connect_rejected_total",
			Help: "Connection attempts refused during authentication",
		},
		[]string{"reason"}, // "invalid_identity", "timeout", "error"
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelchat_messages_delivered_total",
			Help: "Messages persisted and broadcast",
		},
		[]string{"channel_kind"},
	)

	MessagesBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelchat_messages_blocked_total",
			Help: "Sends rejected by the moderation filter",
		},
		[]string{"reason"},
	)

	SendsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelchat_sends_rejected_total",
			Help: "Sends rejected before moderation or by the store",
		},
		[]string{"reason"}, // "empty", "not_subscribed", "rate_limited", "server_error"
	)

	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "panelchat_broadcast_fanout",
			Help:    "Sessions reached per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	SlowConsumersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panelchat_slow_consumers_dropped_total",
			Help: "Sessions disconnected because their send queue was full",
		},
	)

	RateLimiterErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panelchat_rate_limiter_errors_total",
			Help: "Rate limiter backend failures (the limiter fails open)",
		},
	)
)
