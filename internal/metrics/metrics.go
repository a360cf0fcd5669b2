package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Presence
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_live_connections",
			Help: "Open websocket sessions, joined or not",
		},
	)

	JoinedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_joined_users",
			Help: "Connections bound to a display name",
		},
	)

	Evictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_evictions_total",
			Help: "Connections closed because their display name was claimed again",
		},
	)

	// Chat
	MessagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_messages_accepted_total",
			Help: "Chat messages broadcast to the room",
		},
	)

	MessagesRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_messages_rate_limited_total",
			Help: "Chat messages rejected by the rate limiter",
		},
	)

	MessagesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_messages_filtered_total",
			Help: "Chat messages altered by the profanity filter",
		},
	)

	// Infrastructure
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_store_errors_total",
			Help: "Message store failures",
		},
		[]string{"op"}, // "append" or "recent"
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_dropped_frames_total",
			Help: "Outbound frames dropped because a send buffer was full",
		},
	)
)
