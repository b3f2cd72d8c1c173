package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// Параметры случайного блуждания
const (
	defaultVolatility = 0.0005 // σ относительного шага
	priceTick         = 0.05   // шаг цены индексных контрактов
	minPrice          = priceTick
)

// стартовые цены известных инструментов
var defaultStartPrices = map[string]float64{
	"NIFTY":     22000,
	"BANKNIFTY": 48000,
	"FINNIFTY":  21000,
	"SENSEX":    73000,
}

// SimulatorConfig - параметры симулятора котировок
type SimulatorConfig struct {
	Instruments []string
	Interval    time.Duration      // период генерации тиков
	Seed        int64              // 0 - от текущего времени
	Volatility  float64            // σ относительного шага, 0 - по умолчанию
	StartPrices map[string]float64 // переопределение стартовых цен
}

// Simulator генерирует LTP-тики случайным блужданием
//
// При одинаковом Seed последовательность цен воспроизводима.
// Исторических баров у симулятора нет.
type Simulator struct {
	cfg    SimulatorConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

// NewSimulator создаёт симулятор
func NewSimulator(cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = defaultVolatility
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Simulator{
		cfg:    cfg,
		logger: logger.With(utils.Component("simulator")),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
	}
}

// Subscribe запускает генерацию тиков; канал закрывается при отмене ctx
func (s *Simulator) Subscribe(ctx context.Context, instruments []string) (<-chan models.Tick, error) {
	if len(instruments) == 0 {
		instruments = s.cfg.Instruments
	}
	list := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if inst = utils.NormalizeInstrument(inst); inst != "" {
			list = append(list, inst)
		}
	}

	out := make(chan models.Tick, len(list)*4+1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.logger.Info("simulator started",
			zap.Strings("instruments", list),
			zap.Duration("interval", s.cfg.Interval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, inst := range list {
					tick := s.Next(inst)
					select {
					case out <- tick:
						TicksReceived.WithLabelValues(sourceSimulator).Inc()
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// History - у симулятора нет прошлых баров
func (s *Simulator) History(ctx context.Context, instrument string, from, to int64) ([]models.Candle, error) {
	return []models.Candle{}, nil
}

// Next делает один шаг блуждания и возвращает тик
func (s *Simulator) Next(instrument string) models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[instrument]
	if !ok {
		price = s.startPrice(instrument)
	} else {
		price *= 1 + s.rng.NormFloat64()*s.cfg.Volatility
	}
	price = snapPrice(price)
	s.prices[instrument] = price

	return models.Tick{
		Instrument: instrument,
		Timestamp:  s.now().Unix(),
		LTP:        price,
	}
}

// Price возвращает последнюю сгенерированную цену
func (s *Simulator) Price(instrument string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[instrument]
	return p, ok
}

func (s *Simulator) startPrice(instrument string) float64 {
	if p, ok := s.cfg.StartPrices[instrument]; ok && p > 0 {
		return p
	}
	if p, ok := defaultStartPrices[instrument]; ok {
		return p
	}
	return 100
}

// snapPrice округляет цену до шага и не даёт ей уйти в ноль
func snapPrice(p float64) float64 {
	p = math.Round(p/priceTick) * priceTick
	p = utils.Round(p, 2)
	if p < minPrice || !utils.IsFinite(p) {
		return minPrice
	}
	return p
}

// DemoPositions строит демонстрационный набор открытых позиций счёта
// по текущим ценам симулятора (используется без БД)
func (s *Simulator) DemoPositions(accountID string) []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Position, 0, len(s.cfg.Instruments))
	for i, inst := range s.cfg.Instruments {
		inst = utils.NormalizeInstrument(inst)
		entry, ok := s.prices[inst]
		if !ok {
			entry = s.startPrice(inst)
		}

		side := models.SideBuy
		if i%2 == 1 {
			side = models.SideSell
		}

		out = append(out, models.Position{
			ID:         uuid.NewString(),
			AccountID:  accountID,
			Instrument: inst,
			Side:       side,
			EntryPrice: models.NewAmount(entry),
			Lots:       models.NewAmountFromInt(int64(1 + s.rng.Intn(3))),
		})
	}
	return out
}
