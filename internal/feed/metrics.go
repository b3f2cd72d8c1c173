package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики внешних источников
// ============================================================

// TicksReceived - тики, полученные от источника
var TicksReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "feed",
		Name:      "ticks_received_total",
		Help:      "Total number of ticks received from a tick source",
	},
	[]string{"source"},
)

// DecodeErrors - сообщения источника, которые не удалось разобрать
var DecodeErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Total number of feed messages that failed to decode",
	},
	[]string{"source"},
)

// SourceReconnects - переподключения WebSocket источника
var SourceReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "feed",
		Name:      "ws_reconnects_total",
		Help:      "Total number of WebSocket feed reconnect attempts",
	},
)

// SourceConnected - 1 если WebSocket источник подключён
var SourceConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "feed",
		Name:      "ws_connected",
		Help:      "Whether the WebSocket feed is currently connected (1) or not (0)",
	},
)

// SnapshotRequests - запросы снимков счетов по результату
var SnapshotRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "feed",
		Name:      "snapshot_requests_total",
		Help:      "Total number of account snapshot HTTP requests by result",
	},
	[]string{"result"},
)

const (
	sourceSimulator = "simulator"
	sourceWS        = "ws"
)
