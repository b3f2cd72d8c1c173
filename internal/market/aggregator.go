package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// Ошибки агрегатора
var (
	// ErrStaleTick - период тика старше текущей свечи; состояние не меняется
	ErrStaleTick = errors.New("stale tick")

	// ErrInvalidTick - пустой инструмент или цена не конечное положительное число
	ErrInvalidTick = errors.New("invalid tick")
)

const (
	defaultMaxHistory = 1000
	defaultShards     = 8
)

// AggregatorConfig - параметры агрегатора
type AggregatorConfig struct {
	Period     time.Duration // длина периода, кратна секунде
	MaxHistory int           // лимит закрытых свечей на инструмент
	Shards     int           // количество шардов состояния
}

// Aggregator собирает OHLC-свечи из тиков последней цены
//
// Состояние разбито на шарды по FNV-1a hash инструмента, у каждого шарда свой мьютекс:
// Ingest по разным инструментам не блокируют друг друга, а по одному инструменту
// сериализуются.
type Aggregator struct {
	period     int64 // секунды
	maxHistory int
	shards     []*candleShard
	logger     *zap.Logger
}

type candleShard struct {
	mu     sync.RWMutex
	series map[string]*candleSeries
}

// candleSeries - текущая свеча и история одного инструмента
type candleSeries struct {
	current    models.Candle
	hasCurrent bool
	history    []models.Candle // закрытые свечи, по возрастанию Time
}

// NewAggregator создаёт агрегатор
func NewAggregator(cfg AggregatorConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	period := int64(cfg.Period / time.Second)
	if period <= 0 {
		period = 1
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}

	a := &Aggregator{
		period:     period,
		maxHistory: cfg.MaxHistory,
		shards:     make([]*candleShard, cfg.Shards),
		logger:     logger.With(utils.Component("aggregator")),
	}
	for i := range a.shards {
		a.shards[i] = &candleShard{series: make(map[string]*candleSeries)}
	}
	return a
}

// Period возвращает длину периода в секундах
func (a *Aggregator) Period() int64 {
	return a.period
}

// NumShards возвращает количество шардов
func (a *Aggregator) NumShards() int {
	return len(a.shards)
}

func (a *Aggregator) shardFor(instrument string) *candleShard {
	return a.shards[ShardIndex(instrument, len(a.shards))]
}

// PeriodKey выравнивает timestamp по началу периода (floor, корректно для отрицательных)
func (a *Aggregator) PeriodKey(ts int64) int64 {
	return utils.AlignDown(ts, a.period)
}

// Ingest обрабатывает один тик
//
//   - нет текущей свечи или период новее: открывается новая свеча o=h=l=c=ltp,
//     предыдущая уходит в историю и возвращается в Retired
//   - нет текущей свечи, но период совпадает с последней загруженной из истории:
//     эта свеча продолжается как текущая (CandleMutated)
//   - тот же период: close=ltp, high/low расширяются
//   - период старше текущего: ErrStaleTick, без изменений
func (a *Aggregator) Ingest(tick models.Tick) (models.CandleUpdate, error) {
	if tick.Instrument == "" || utils.ValidatePrice(tick.LTP) != nil {
		recordTick(resultInvalid)
		return models.CandleUpdate{}, fmt.Errorf("%w: instrument=%q ltp=%v", ErrInvalidTick, tick.Instrument, tick.LTP)
	}

	key := a.PeriodKey(tick.Timestamp)
	price := tick.LTP

	shard := a.shardFor(tick.Instrument)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s := shard.series[tick.Instrument]
	if s == nil {
		s = &candleSeries{}
		shard.series[tick.Instrument] = s
	}

	latest, hasLatest := s.latest()

	// первый живой тик попал в период последней загруженной свечи:
	// она ещё не закрыта и становится текущей
	if !s.hasCurrent && hasLatest && key == latest {
		s.promoteLast()
	}

	switch {
	case !hasLatest || key > latest:
		var retired *models.Candle
		if s.hasCurrent {
			frozen := s.current
			retired = &frozen
			s.history = append(s.history, frozen)
			a.trimHistory(s)
			CandlesRetired.Inc()
		}

		s.current = models.Candle{
			Instrument: tick.Instrument,
			Time:       key,
			Open:       price,
			High:       price,
			Low:        price,
			Close:      price,
		}
		s.hasCurrent = true
		recordTick(resultNew)

		return models.CandleUpdate{Kind: models.CandleNew, Candle: s.current, Retired: retired}, nil

	case s.hasCurrent && key == s.current.Time:
		s.current.Close = price
		if price > s.current.High {
			s.current.High = price
		}
		if price < s.current.Low {
			s.current.Low = price
		}
		recordTick(resultMutated)

		return models.CandleUpdate{Kind: models.CandleMutated, Candle: s.current}, nil

	default:
		recordTick(resultStale)
		StaleTicks.WithLabelValues(tick.Instrument).Inc()
		a.logger.Debug("stale tick rejected",
			utils.Instrument(tick.Instrument),
			utils.PeriodStart(key),
			zap.Int64("latest_period_start", latest),
		)
		return models.CandleUpdate{}, fmt.Errorf("%w: %s period %d <= latest %d", ErrStaleTick, tick.Instrument, key, latest)
	}
}

// latest - начало самого нового известного периода:
// текущей свечи или, если её ещё нет, последней загруженной из истории
func (s *candleSeries) latest() (int64, bool) {
	if s.hasCurrent {
		return s.current.Time, true
	}
	if n := len(s.history); n > 0 {
		return s.history[n-1].Time, true
	}
	return 0, false
}

// promoteLast делает последнюю свечу истории текущей
// ВАЖНО: вызывается под lock'ом шарда
func (s *candleSeries) promoteLast() {
	n := len(s.history)
	s.current = s.history[n-1]
	s.hasCurrent = true
	s.history = s.history[:n-1]
}

// trimHistory отрезает самые старые свечи сверх лимита
// ВАЖНО: вызывается под lock'ом шарда
func (a *Aggregator) trimHistory(s *candleSeries) {
	if over := len(s.history) - a.maxHistory; over > 0 {
		// копируем, чтобы не держать старый массив в памяти
		trimmed := make([]models.Candle, a.maxHistory, a.maxHistory+1)
		copy(trimmed, s.history[over:])
		s.history = trimmed
	}
}

// History возвращает закрытые свечи и текущую по возрастанию Time
// Каждый вызов отдаёт новую копию
func (a *Aggregator) History(instrument string) []models.Candle {
	shard := a.shardFor(instrument)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	s := shard.series[instrument]
	if s == nil {
		return []models.Candle{}
	}

	out := make([]models.Candle, 0, len(s.history)+1)
	out = append(out, s.history...)
	if s.hasCurrent {
		out = append(out, s.current)
	}
	return out
}

// Current возвращает текущую свечу инструмента
func (a *Aggregator) Current(instrument string) (models.Candle, bool) {
	shard := a.shardFor(instrument)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	s := shard.series[instrument]
	if s == nil || !s.hasCurrent {
		return models.Candle{}, false
	}
	return s.current, true
}

// LastPrice - close текущей свечи, то есть последняя принятая цена
func (a *Aggregator) LastPrice(instrument string) (float64, bool) {
	c, ok := a.Current(instrument)
	if !ok {
		return 0, false
	}
	return c.Close, true
}

// LastPrices возвращает последние цены по всем инструментам
func (a *Aggregator) LastPrices() map[string]float64 {
	out := make(map[string]float64)
	for _, shard := range a.shards {
		shard.mu.RLock()
		for inst, s := range shard.series {
			if s.hasCurrent {
				out[inst] = s.current.Close
			}
		}
		shard.mu.RUnlock()
	}
	return out
}

// Instruments возвращает отсортированный список инструментов с данными
func (a *Aggregator) Instruments() []string {
	out := []string{}
	for _, shard := range a.shards {
		shard.mu.RLock()
		for inst := range shard.series {
			out = append(out, inst)
		}
		shard.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Seed загружает исторические свечи (например, из TickSource.History при старте)
//
// Принимаются только валидные свечи строго старше текущей; дубликаты по Time
// отбрасываются, уже имеющиеся свечи приоритетнее загружаемых.
// Возвращает количество принятых свечей.
func (a *Aggregator) Seed(instrument string, candles []models.Candle) int {
	if instrument == "" || len(candles) == 0 {
		return 0
	}

	shard := a.shardFor(instrument)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s := shard.series[instrument]
	if s == nil {
		s = &candleSeries{}
		shard.series[instrument] = s
	}

	existing := make(map[int64]struct{}, len(s.history))
	for _, c := range s.history {
		existing[c.Time] = struct{}{}
	}

	accepted := 0
	merged := make([]models.Candle, 0, len(s.history)+len(candles))
	merged = append(merged, s.history...)
	for _, c := range candles {
		if !c.Valid() || !utils.IsFinite(c.High) || !utils.IsFinite(c.Low) {
			continue
		}
		c.Instrument = instrument
		c.Time = a.PeriodKey(c.Time)
		if s.hasCurrent && c.Time >= s.current.Time {
			continue
		}
		if _, dup := existing[c.Time]; dup {
			continue
		}
		existing[c.Time] = struct{}{}
		merged = append(merged, c)
		accepted++
	}

	if accepted == 0 {
		return 0
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time < merged[j].Time })
	s.history = merged
	a.trimHistory(s)

	a.logger.Info("history seeded",
		utils.Instrument(instrument),
		zap.Int("accepted", accepted),
		zap.Int("total", len(s.history)),
	)
	return accepted
}
