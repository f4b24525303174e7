// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSentTotal tracks persisted chat messages by type.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total chat messages persisted",
		},
		[]string{"type"},
	)

	// BroadcastDeliveriesTotal tracks events delivered to live sessions.
	BroadcastDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_deliveries_total",
			Help: "Total events delivered over live sessions",
		},
	)

	// BroadcastMissesTotal tracks notify attempts with no live session.
	BroadcastMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_misses_total",
			Help: "Total notify attempts that found no live session",
		},
	)

	// ConnectionsActive tracks currently registered socket sessions.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket sessions",
		},
	)

	// ReadReceiptsTotal tracks mark-read operations.
	ReadReceiptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_read_receipts_total",
			Help: "Total mark-conversation-read operations",
		},
	)
)
