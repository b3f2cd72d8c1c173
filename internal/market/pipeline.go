package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// ErrSourceClosed - источник закрыл канал тиков до отмены контекста
var ErrSourceClosed = errors.New("tick source closed subscription")

// TickSource - внешний источник котировок
//
// Subscribe отдаёт канал тиков, который закрывается при отмене ctx.
// Переподключение и backoff - ответственность источника.
type TickSource interface {
	Subscribe(ctx context.Context, instruments []string) (<-chan models.Tick, error)
	History(ctx context.Context, instrument string, from, to int64) ([]models.Candle, error)
}

// CandleObserver получает каждое изменение свечи
// Вызывается из воркера шарда: обработчик не должен блокироваться надолго
type CandleObserver interface {
	OnCandleUpdate(update models.CandleUpdate)
}

// ObserverFunc - адаптер функции к CandleObserver
type ObserverFunc func(update models.CandleUpdate)

func (f ObserverFunc) OnCandleUpdate(update models.CandleUpdate) { f(update) }

// PipelineConfig - параметры конвейера
type PipelineConfig struct {
	Instruments     []string
	ShardBuffer     int
	HistoryLookback time.Duration // 0 - не загружать историю
}

// PipelineStats - счётчики для health/UI
type PipelineStats struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Stale     int64 `json:"stale"`
	Invalid   int64 `json:"invalid"`
}

// Pipeline - конвейер тик -> свеча -> наблюдатели
//
// Архитектура:
// - по одному воркеру на шард агрегатора
// - инструмент -> шард через FNV-1a, поэтому тики одного инструмента
//   обрабатываются последовательно и в порядке получения
// - очереди ограничены; при заполнении роутер ждёт (back-pressure), тики не теряются
type Pipeline struct {
	agg    *Aggregator
	source TickSource
	cfg    PipelineConfig
	logger *zap.Logger

	queues      []chan models.Tick
	queueGauges []prometheus.Gauge

	obsMu     sync.RWMutex
	observers []CandleObserver

	received  atomic.Int64
	processed atomic.Int64
	stale     atomic.Int64
	invalid   atomic.Int64
}

// NewPipeline создаёт конвейер поверх агрегатора
func NewPipeline(agg *Aggregator, source TickSource, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShardBuffer <= 0 {
		cfg.ShardBuffer = 256
	}

	p := &Pipeline{
		agg:         agg,
		source:      source,
		cfg:         cfg,
		logger:      logger.With(utils.Component("pipeline")),
		queues:      make([]chan models.Tick, agg.NumShards()),
		queueGauges: make([]prometheus.Gauge, agg.NumShards()),
	}
	for i := range p.queues {
		p.queues[i] = make(chan models.Tick, cfg.ShardBuffer)
		p.queueGauges[i] = ShardQueueSize.WithLabelValues(strconv.Itoa(i))
	}
	return p
}

// AddObserver регистрирует наблюдателя; безопасно вызывать во время работы
func (p *Pipeline) AddObserver(o CandleObserver) {
	if o == nil {
		return
	}
	p.obsMu.Lock()
	p.observers = append(p.observers, o)
	p.obsMu.Unlock()
}

// Aggregator возвращает агрегатор конвейера
func (p *Pipeline) Aggregator() *Aggregator {
	return p.agg
}

// Stats возвращает счётчики
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Received:  p.received.Load(),
		Processed: p.processed.Load(),
		Stale:     p.stale.Load(),
		Invalid:   p.invalid.Load(),
	}
}

// Run загружает историю, подписывается на источник и обрабатывает тики до отмены ctx
//
// Возвращает ctx.Err() при штатной остановке или ErrSourceClosed,
// если источник закрыл подписку сам
func (p *Pipeline) Run(ctx context.Context) error {
	p.seedHistory(ctx)

	ticks, err := p.source.Subscribe(ctx, p.cfg.Instruments)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var wg sync.WaitGroup
	for i := range p.queues {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p.worker(idx)
		}(i)
	}

	p.logger.Info("pipeline started",
		zap.Int("shards", len(p.queues)),
		zap.Strings("instruments", p.cfg.Instruments),
	)

	runErr := p.route(ctx, ticks)

	// воркеры дорабатывают то, что уже в очередях
	for _, q := range p.queues {
		close(q)
	}
	wg.Wait()

	p.logger.Info("pipeline stopped",
		zap.Int64("processed", p.processed.Load()),
		zap.Int64("stale", p.stale.Load()),
	)
	return runErr
}

// route - роутинг тиков к воркерам по инструменту
func (p *Pipeline) route(ctx context.Context, ticks <-chan models.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSourceClosed
			}
			p.received.Add(1)

			idx := ShardIndex(tick.Instrument, len(p.queues))
			select {
			case p.queues[idx] <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// worker - обработка тиков одного шарда
func (p *Pipeline) worker(idx int) {
	q := p.queues[idx]
	gauge := p.queueGauges[idx]

	for tick := range q {
		gauge.Set(float64(len(q)))
		p.handleTick(tick)
	}
	gauge.Set(0)
}

func (p *Pipeline) handleTick(tick models.Tick) {
	start := time.Now()

	update, err := p.agg.Ingest(tick)
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleTick):
			p.stale.Add(1)
		case errors.Is(err, ErrInvalidTick):
			p.invalid.Add(1)
			p.logger.Debug("invalid tick dropped", utils.Instrument(tick.Instrument), zap.Error(err))
		}
		return
	}
	p.processed.Add(1)

	p.obsMu.RLock()
	observers := p.observers
	p.obsMu.RUnlock()

	for _, o := range observers {
		o.OnCandleUpdate(update)
	}

	IngestLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// seedHistory загружает историю по каждому инструменту
// Ошибки источника не фатальны: свечи начнут строиться с живых тиков
func (p *Pipeline) seedHistory(ctx context.Context) {
	if p.cfg.HistoryLookback <= 0 {
		return
	}

	to := time.Now().Unix()
	from := to - int64(p.cfg.HistoryLookback/time.Second)

	for _, inst := range p.cfg.Instruments {
		candles, err := p.source.History(ctx, inst, from, to)
		if err != nil {
			p.logger.Warn("history fetch failed", utils.Instrument(inst), zap.Error(err))
			continue
		}
		p.agg.Seed(inst, candles)
	}
}
