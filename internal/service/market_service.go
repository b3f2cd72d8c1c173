package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/market"
	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// Ошибки сервиса котировок
var (
	ErrNoPositionSource = errors.New("no position source configured")
)

const (
	defaultCandleLimit = 500
	maxCandleLimit     = 5000
)

// MarketService предоставляет котировки, свечи и оценку позиций.
//
// Живые данные берутся из агрегатора; если подключено хранилище,
// история дополняется закрытыми свечами из БД (старше самой ранней живой).
type MarketService struct {
	candles     CandleReader
	store       CandleStore // может быть nil
	positions   PositionStore
	demo        PositionProvider
	instruments []string // сконфигурированная подписка
	logger      *zap.Logger
}

// MarketServiceConfig - зависимости сервиса
type MarketServiceConfig struct {
	Candles     CandleReader
	Store       CandleStore
	Positions   PositionStore
	Demo        PositionProvider
	Instruments []string
	Logger      *zap.Logger
}

// NewMarketService создает новый экземпляр MarketService.
func NewMarketService(cfg MarketServiceConfig) *MarketService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &MarketService{
		candles:     cfg.Candles,
		store:       cfg.Store,
		positions:   cfg.Positions,
		demo:        cfg.Demo,
		instruments: cfg.Instruments,
		logger:      cfg.Logger.With(utils.Component("market_service")),
	}
}

// Instruments возвращает отсортированное объединение подписки, живых и сохранённых инструментов
func (s *MarketService) Instruments(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})
	for _, inst := range s.instruments {
		if inst = utils.NormalizeInstrument(inst); inst != "" {
			set[inst] = struct{}{}
		}
	}
	for _, inst := range s.candles.Instruments() {
		set[inst] = struct{}{}
	}
	if s.store != nil {
		stored, err := s.store.Instruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("stored instruments: %w", err)
		}
		for _, inst := range stored {
			set[inst] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for inst := range set {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out, nil
}

// Candles возвращает последние limit свечей инструмента в интервале interval
//
// Пустой interval - базовый период агрегатора. Интервал мельче базового
// отдаёт базовые свечи. Неизвестный инструмент даёт пустой список.
func (s *MarketService) Candles(ctx context.Context, instrument, interval string, limit int) ([]models.Candle, error) {
	instrument = utils.NormalizeInstrument(instrument)
	if err := utils.ValidateInstrument(instrument); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultCandleLimit
	}
	if limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	period := time.Duration(s.candles.Period()) * time.Second
	if interval != "" {
		d, err := market.ParseInterval(interval)
		if err != nil {
			return nil, err
		}
		if d > period {
			period = d
		}
	}

	candles := s.candles.History(instrument)
	if s.store != nil {
		stored, err := s.storedBefore(ctx, instrument, candles)
		if err != nil {
			// живые свечи всё равно отдаём
			s.logger.Warn("stored candles unavailable", utils.Instrument(instrument), zap.Error(err))
		} else if len(stored) > 0 {
			candles = append(stored, candles...)
		}
	}

	out := market.Resample(candles, period)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// storedBefore загружает из БД свечи старше первой живой
func (s *MarketService) storedBefore(ctx context.Context, instrument string, live []models.Candle) ([]models.Candle, error) {
	var to int64
	if len(live) > 0 {
		to = live[0].Time - 1
		if to <= 0 {
			return nil, nil
		}
	}
	return s.store.GetRange(ctx, instrument, 0, to, maxCandleLimit)
}

// Prices возвращает последние цены по всем инструментам
func (s *MarketService) Prices() map[string]float64 {
	return s.candles.LastPrices()
}

// Valuate оценивает позиции по последним ценам агрегатора
func (s *MarketService) Valuate(positions []models.Position) []models.PositionValue {
	normalized := make([]models.Position, len(positions))
	for i, p := range positions {
		p.Instrument = utils.NormalizeInstrument(p.Instrument)
		normalized[i] = p
	}
	return market.ValuateAll(normalized, s.candles.LastPrice)
}

// AccountPositions возвращает открытые позиции счёта с плавающим PNL
//
// Позиции берутся из БД, а без неё из демо-книги (если настроена)
func (s *MarketService) AccountPositions(ctx context.Context, accountID string) ([]models.PositionValue, error) {
	if err := utils.ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	var positions []models.Position
	switch {
	case s.positions != nil:
		var err error
		positions, err = s.positions.GetOpenByAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("open positions of %s: %w", accountID, err)
		}
	case s.demo != nil:
		positions = s.demo(accountID)
	default:
		return nil, ErrNoPositionSource
	}

	return s.Valuate(positions), nil
}
