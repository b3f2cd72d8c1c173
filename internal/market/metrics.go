package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики агрегации котировок
// ============================================================

// TicksProcessed - тики по результату обработки (new, mutated, stale, invalid)
var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "market",
		Name:      "ticks_processed_total",
		Help:      "Total number of ingested ticks by result",
	},
	[]string{"result"},
)

// StaleTicks - тики старше текущей свечи
var StaleTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "market",
		Name:      "stale_ticks_total",
		Help:      "Ticks rejected because their period predates the current candle",
	},
	[]string{"instrument"},
)

// CandlesRetired - свечи, ушедшие в историю
var CandlesRetired = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "market",
		Name:      "candles_retired_total",
		Help:      "Total number of candles frozen into history",
	},
)

// IngestLatency - время обработки тика воркером
var IngestLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "propdesk",
		Subsystem: "market",
		Name:      "ingest_latency_ms",
		Help:      "Time to ingest a tick and notify observers in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)

// ShardQueueSize - размер очереди воркера
var ShardQueueSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "market",
		Name:      "shard_queue_size",
		Help:      "Current size of shard tick queue",
	},
	[]string{"shard"},
)

// ============ Хелперы ============

const (
	resultNew     = "new"
	resultMutated = "mutated"
	resultStale   = "stale"
	resultInvalid = "invalid"
)

func recordTick(result string) {
	TicksProcessed.WithLabelValues(result).Inc()
}
