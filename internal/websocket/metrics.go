package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConnectedClients - активные WebSocket клиенты
var ConnectedClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Number of connected WebSocket viewers",
	},
)

// MessagesDropped - сообщения, не попавшие в очередь hub
var MessagesDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "ws",
		Name:      "messages_dropped_total",
		Help:      "Total number of broadcast messages dropped because the hub queue was full",
	},
)

// SlowClientsRemoved - клиенты, отключённые за переполненный буфер
var SlowClientsRemoved = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "ws",
		Name:      "slow_clients_removed_total",
		Help:      "Total number of viewers disconnected for not keeping up",
	},
)
