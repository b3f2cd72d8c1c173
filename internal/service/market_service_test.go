package service

import (
	"context"
	"errors"
	"testing"

	"propdesk/internal/market"
	"propdesk/internal/models"
)

func candle(inst string, t int64, o, h, l, c float64) models.Candle {
	return models.Candle{Instrument: inst, Time: t, Open: o, High: h, Low: l, Close: c}
}

func TestMarketService_Instruments(t *testing.T) {
	reader := NewMockCandleReader(1)
	reader.history["NIFTY"] = []models.Candle{candle("NIFTY", 0, 1, 1, 1, 1)}
	store := &MockCandleStore{instruments: []string{"SENSEX", "NIFTY"}}

	svc := NewMarketService(MarketServiceConfig{
		Candles:     reader,
		Store:       store,
		Instruments: []string{" banknifty", "NIFTY"},
	})

	got, err := svc.Instruments(context.Background())
	if err != nil {
		t.Fatalf("Instruments: %v", err)
	}
	want := []string{"BANKNIFTY", "NIFTY", "SENSEX"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	store.err = errors.New("db down")
	if _, err := svc.Instruments(context.Background()); err == nil {
		t.Error("ошибка хранилища должна возвращаться")
	}
}

func TestMarketService_Candles(t *testing.T) {
	reader := NewMockCandleReader(1)
	reader.history["NIFTY"] = []models.Candle{
		candle("NIFTY", 60, 100, 105, 99, 104),
		candle("NIFTY", 61, 104, 106, 103, 105),
		candle("NIFTY", 120, 105, 107, 101, 102),
	}

	svc := NewMarketService(MarketServiceConfig{Candles: reader})
	ctx := context.Background()

	tests := []struct {
		name      string
		interval  string
		limit     int
		wantLen   int
		wantErr   error
		wantFirst models.Candle
	}{
		{"base period", "", 0, 3, nil, candle("NIFTY", 60, 100, 105, 99, 104)},
		{"one minute", "1m", 0, 2, nil, candle("NIFTY", 60, 100, 106, 99, 105)},
		{"limit keeps newest", "", 1, 1, nil, candle("NIFTY", 120, 105, 107, 101, 102)},
		{"unknown interval", "7m", 0, 0, market.ErrUnknownInterval, models.Candle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Candles(ctx, "nifty", tt.interval, tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d: %+v", len(got), tt.wantLen, got)
			}
			if got[0] != tt.wantFirst {
				t.Errorf("first = %+v, want %+v", got[0], tt.wantFirst)
			}
		})
	}
}

func TestMarketService_CandlesUnknownInstrument(t *testing.T) {
	svc := NewMarketService(MarketServiceConfig{Candles: NewMockCandleReader(1)})

	got, err := svc.Candles(context.Background(), "FINNIFTY", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ожидался пустой список, got %v", got)
	}

	if _, err := svc.Candles(context.Background(), "bad instrument!", "", 0); err == nil {
		t.Error("невалидный инструмент должен давать ошибку")
	}
}

func TestMarketService_CandlesMergesStored(t *testing.T) {
	reader := NewMockCandleReader(1)
	reader.history["NIFTY"] = []models.Candle{candle("NIFTY", 100, 10, 10, 10, 10)}
	store := &MockCandleStore{candles: map[string][]models.Candle{
		"NIFTY": {
			candle("NIFTY", 98, 8, 8, 8, 8),
			candle("NIFTY", 99, 9, 9, 9, 9),
			candle("NIFTY", 100, 1, 1, 1, 1), // перекрыта живой свечой
		},
	}}

	svc := NewMarketService(MarketServiceConfig{Candles: reader, Store: store})

	got, err := svc.Candles(context.Background(), "NIFTY", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastTo != 99 {
		t.Errorf("верхняя граница запроса = %d, want 99", store.lastTo)
	}
	if len(got) != 3 || got[0].Time != 98 || got[2].Close != 10 {
		t.Errorf("got %+v", got)
	}

	// ошибка БД не мешает отдать живые свечи
	store.err = errors.New("db down")
	got, err = svc.Candles(context.Background(), "NIFTY", "", 0)
	if err != nil || len(got) != 1 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestMarketService_Valuate(t *testing.T) {
	reader := NewMockCandleReader(1)
	reader.prices["NIFTY"] = 22010

	svc := NewMarketService(MarketServiceConfig{Candles: reader})

	values := svc.Valuate([]models.Position{
		{ID: "p1", Instrument: "nifty", Side: "buy", EntryPrice: models.NewAmount(22000), Lots: models.NewAmountFromInt(2)},
		{ID: "p2", Instrument: "SENSEX", Side: "sell", EntryPrice: models.NewAmount(73000), Lots: models.NewAmountFromInt(1)},
	})

	if len(values) != 2 {
		t.Fatalf("len = %d", len(values))
	}
	// (22010 - 22000) * 2 лота * 50
	if values[0].PNL != 1000 || !values[0].Priced {
		t.Errorf("p1 = %+v", values[0])
	}
	if values[1].PNL != 0 || values[1].Priced {
		t.Errorf("p2 без цены = %+v", values[1])
	}
}

func TestMarketService_AccountPositions(t *testing.T) {
	reader := NewMockCandleReader(1)
	reader.prices["BANKNIFTY"] = 47900
	book := []models.Position{
		{ID: "p1", AccountID: "acc-1", Instrument: "BANKNIFTY", Side: "sell", EntryPrice: models.NewAmount(48000), Lots: models.NewAmountFromInt(1)},
	}

	t.Run("from store", func(t *testing.T) {
		svc := NewMarketService(MarketServiceConfig{
			Candles:   reader,
			Positions: &MockPositionStore{positions: map[string][]models.Position{"acc-1": book}},
		})
		got, err := svc.AccountPositions(context.Background(), "acc-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// (48000 - 47900) * 15
		if len(got) != 1 || got[0].PNL != 1500 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("store error", func(t *testing.T) {
		svc := NewMarketService(MarketServiceConfig{
			Candles:   reader,
			Positions: &MockPositionStore{err: errors.New("db down")},
		})
		if _, err := svc.AccountPositions(context.Background(), "acc-1"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("demo book", func(t *testing.T) {
		svc := NewMarketService(MarketServiceConfig{
			Candles: reader,
			Demo:    func(string) []models.Position { return book },
		})
		got, err := svc.AccountPositions(context.Background(), "acc-1")
		if err != nil || len(got) != 1 {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("no source", func(t *testing.T) {
		svc := NewMarketService(MarketServiceConfig{Candles: reader})
		if _, err := svc.AccountPositions(context.Background(), "acc-1"); !errors.Is(err, ErrNoPositionSource) {
			t.Errorf("err = %v, want ErrNoPositionSource", err)
		}
	})

	t.Run("invalid account", func(t *testing.T) {
		svc := NewMarketService(MarketServiceConfig{Candles: reader, Demo: func(string) []models.Position { return nil }})
		if _, err := svc.AccountPositions(context.Background(), "acc 1"); err == nil {
			t.Error("expected validation error")
		}
	})
}
