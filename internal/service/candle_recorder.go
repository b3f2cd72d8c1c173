package service

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"propdesk/internal/market"
	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// CandleWriter - пакетная запись свечей
type CandleWriter interface {
	UpsertBatch(ctx context.Context, candles []models.Candle) error
}

const (
	defaultRecorderBuffer = 1024
	defaultRecorderBatch  = 100
	defaultFlushInterval  = 2 * time.Second
	recorderWriteTimeout  = 5 * time.Second
)

// RecorderDropped - свечи, не попавшие в очередь записи
var RecorderDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "storage",
		Name:      "candles_dropped_total",
		Help:      "Retired candles dropped because the write queue was full",
	},
)

// RecorderWritten - успешно записанные свечи
var RecorderWritten = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "storage",
		Name:      "candles_written_total",
		Help:      "Retired candles persisted to the candle store",
	},
)

// CandleRecorderConfig - параметры записи
type CandleRecorderConfig struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// CandleRecorder сохраняет свечи, ушедшие в историю
//
// OnCandleUpdate вызывается из воркеров конвейера и не блокируется:
// при переполнении очереди свеча отбрасывается с метрикой.
// Запись идёт пачками по BatchSize или по FlushInterval.
type CandleRecorder struct {
	writer CandleWriter
	cfg    CandleRecorderConfig
	logger *zap.Logger

	queue chan models.Candle
	done  chan struct{}
	once  sync.Once
}

var _ market.CandleObserver = (*CandleRecorder)(nil)

// NewCandleRecorder создаёт рекордер; Run запускает запись
func NewCandleRecorder(writer CandleWriter, cfg CandleRecorderConfig, logger *zap.Logger) *CandleRecorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultRecorderBuffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRecorderBatch
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandleRecorder{
		writer: writer,
		cfg:    cfg,
		logger: logger.With(utils.Component("candle_recorder")),
		queue:  make(chan models.Candle, cfg.Buffer),
		done:   make(chan struct{}),
	}
}

// OnCandleUpdate ставит в очередь вытесненную свечу
func (r *CandleRecorder) OnCandleUpdate(update models.CandleUpdate) {
	if update.Retired == nil {
		return
	}
	select {
	case r.queue <- *update.Retired:
	default:
		RecorderDropped.Inc()
	}
}

// Done закрывается после финальной записи
func (r *CandleRecorder) Done() <-chan struct{} {
	return r.done
}

// Run пишет свечи до отмены ctx, затем сбрасывает остаток очереди
func (r *CandleRecorder) Run(ctx context.Context) {
	defer r.once.Do(func() { close(r.done) })

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.Candle, 0, r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.drain(&batch)
			r.flush(batch)
			return
		case c := <-r.queue:
			batch = append(batch, c)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *CandleRecorder) drain(batch *[]models.Candle) {
	for {
		select {
		case c := <-r.queue:
			*batch = append(*batch, c)
		default:
			return
		}
	}
}

// flush пишет пачку; ошибка только логируется, свечи остаются в памяти агрегатора
func (r *CandleRecorder) flush(batch []models.Candle) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()

	if err := r.writer.UpsertBatch(ctx, batch); err != nil {
		r.logger.Warn("failed to persist candles", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	RecorderWritten.Add(float64(len(batch)))
}
