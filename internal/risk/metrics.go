package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики мониторинга риска
// ============================================================

// CyclesTotal - циклы опроса по результату (ok, fetch_error, discarded)
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "risk",
		Name:      "cycles_total",
		Help:      "Total number of risk monitor poll cycles by result",
	},
	[]string{"result"},
)

// FetchDuration - длительность запроса снимков
var FetchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "propdesk",
		Subsystem: "risk",
		Name:      "snapshot_fetch_duration_ms",
		Help:      "Time to fetch account snapshots in milliseconds",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
)

// DangerAccounts - счета в опасной зоне по последней публикации
var DangerAccounts = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "risk",
		Name:      "danger_accounts",
		Help:      "Number of accounts flagged as danger in the last published assessment",
	},
)

// MonitoredAccounts - счета в последней публикации
var MonitoredAccounts = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "risk",
		Name:      "monitored_accounts",
		Help:      "Number of accounts in the last published assessment",
	},
)

// LastPublishTimestamp - unix-время последней успешной публикации
var LastPublishTimestamp = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "risk",
		Name:      "last_publish_timestamp_seconds",
		Help:      "Unix time of the last successful assessment publish",
	},
)

const (
	cycleOK        = "ok"
	cycleFetchErr  = "fetch_error"
	cycleDiscarded = "discarded"
)
