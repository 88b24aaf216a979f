package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by channel (login|token) and result
	// (success or the lowercased error code).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"channel", "result"},
	)

	// RealtimeConnections tracks open socket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// OnlineUsers tracks users holding a presence record.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_realtime_online_users",
			Help: "Number of users with at least one open connection",
		},
	)

	// RealtimeEvents counts inbound events by type and outcome (ok|invalid|error).
	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_realtime_events_total",
			Help: "Total number of inbound realtime events",
		},
		[]string{"event", "result"},
	)

	// RealtimeDropped counts connections dropped because their send buffer was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskpulse_realtime_dropped_total",
			Help: "Connections dropped due to send backpressure",
		},
	)

	// PresenceDepartures counts presence records removed, by reason
	// (disconnect|timeout|shutdown). The timeout series is the idle reaper's evictions.
	PresenceDepartures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_presence_departures_total",
			Help: "Total number of presence records removed",
		},
		[]string{"reason"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpulse_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
