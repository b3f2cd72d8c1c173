package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"propdesk/internal/models"
)

// fakeSource - источник тиков для тестов
type fakeSource struct {
	ch         chan models.Tick
	history    map[string][]models.Candle
	historyErr error
	subErr     error

	mu          sync.Mutex
	subscribed  []string
	historyReqs []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan models.Tick, 64), history: map[string][]models.Candle{}}
}

func (f *fakeSource) Subscribe(ctx context.Context, instruments []string) (<-chan models.Tick, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.mu.Lock()
	f.subscribed = instruments
	f.mu.Unlock()
	return f.ch, nil
}

func (f *fakeSource) History(ctx context.Context, instrument string, from, to int64) ([]models.Candle, error) {
	f.mu.Lock()
	f.historyReqs = append(f.historyReqs, instrument)
	f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[instrument], nil
}

// recorder собирает события наблюдателя
type recorder struct {
	mu      sync.Mutex
	updates []models.CandleUpdate
}

func (r *recorder) OnCandleUpdate(u models.CandleUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []models.CandleUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CandleUpdate(nil), r.updates...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("условие не выполнено за 2s")
}

func TestPipeline_OrderedPerInstrument(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(AggregatorConfig{Period: time.Second, Shards: 4}, nil)
	p := NewPipeline(agg, src, PipelineConfig{Instruments: []string{"NIFTY", "BANKNIFTY"}, ShardBuffer: 2}, nil)

	rec := &recorder{}
	p.AddObserver(rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// буфер шарда меньше числа тиков: роутер должен ждать, а не терять
	for ts := int64(0); ts < 20; ts++ {
		src.ch <- tick("NIFTY", ts, float64(100+ts))
		src.ch <- tick("BANKNIFTY", ts, float64(200+ts))
	}

	waitFor(t, func() bool { return p.Stats().Processed == 40 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	last := map[string]int64{"NIFTY": -1, "BANKNIFTY": -1}
	for _, u := range rec.snapshot() {
		if u.Kind != models.CandleNew {
			t.Errorf("ожидались только новые свечи: %+v", u)
		}
		if u.Candle.Time <= last[u.Candle.Instrument] {
			t.Fatalf("%s: порядок нарушен %d после %d", u.Candle.Instrument, u.Candle.Time, last[u.Candle.Instrument])
		}
		last[u.Candle.Instrument] = u.Candle.Time
	}

	if got := len(agg.History("NIFTY")); got != 20 {
		t.Errorf("len(History(NIFTY)) = %d, want 20", got)
	}
}

func TestPipeline_StaleAndInvalidCounted(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(AggregatorConfig{Period: time.Second, Shards: 1}, nil)
	p := NewPipeline(agg, src, PipelineConfig{}, nil)

	rec := &recorder{}
	p.AddObserver(ObserverFunc(rec.OnCandleUpdate))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src.ch <- tick("NIFTY", 10, 100)
	src.ch <- tick("NIFTY", 5, 90) // устаревший
	src.ch <- tick("NIFTY", 10, 0) // невалидный
	src.ch <- tick("NIFTY", 10, 101)

	waitFor(t, func() bool { return p.Stats().Received == 4 && p.Stats().Processed == 2 })

	st := p.Stats()
	if st.Stale != 1 || st.Invalid != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("наблюдатель получил %d событий, want 2", n)
	}
}

func TestPipeline_SeedsHistory(t *testing.T) {
	src := newFakeSource()
	src.history["NIFTY"] = []models.Candle{
		{Time: 1, Open: 1, High: 1, Low: 1, Close: 1},
		{Time: 2, Open: 1, High: 2, Low: 1, Close: 2},
	}
	agg := NewAggregator(AggregatorConfig{Period: time.Second}, nil)
	p := NewPipeline(agg, src, PipelineConfig{Instruments: []string{"NIFTY", "BANKNIFTY"}, HistoryLookback: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, func() bool { return len(agg.History("NIFTY")) == 2 })
	cancel()
	<-done

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.historyReqs) != 2 {
		t.Errorf("history запрошена для %v", src.historyReqs)
	}
	if len(src.subscribed) != 2 {
		t.Errorf("подписка на %v", src.subscribed)
	}
}

func TestPipeline_LiveTicksContinueSeededBar(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Period: time.Minute}, nil)
	now := time.Now().Unix()
	open := agg.PeriodKey(now)

	// источник отдаёт и ещё не закрытую минуту
	src := newFakeSource()
	src.history["NIFTY"] = []models.Candle{
		{Time: open - 60, Open: 100, High: 101, Low: 99, Close: 100},
		{Time: open, Open: 100, High: 100.5, Low: 99.5, Close: 100.2},
	}
	p := NewPipeline(agg, src, PipelineConfig{Instruments: []string{"NIFTY"}, HistoryLookback: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for _, ltp := range []float64{100.3, 101.5, 99} {
		src.ch <- models.Tick{Instrument: "NIFTY", Timestamp: now, LTP: ltp}
	}

	waitFor(t, func() bool { return p.Stats().Processed == 3 })
	cancel()
	<-done

	if st := p.Stats(); st.Stale != 0 {
		t.Errorf("Stats() = %+v, живые тики не должны отбрасываться", st)
	}
	c, ok := agg.Current("NIFTY")
	if !ok {
		t.Fatal("текущая свеча не открыта")
	}
	if c.Time != open || c.Open != 100 || c.High != 101.5 || c.Low != 99 || c.Close != 99 {
		t.Errorf("Current() = %+v", c)
	}
}

func TestPipeline_HistoryFailureNotFatal(t *testing.T) {
	src := newFakeSource()
	src.historyErr = errors.New("history endpoint down")
	agg := NewAggregator(AggregatorConfig{Period: time.Second}, nil)
	p := NewPipeline(agg, src, PipelineConfig{Instruments: []string{"NIFTY"}, HistoryLookback: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src.ch <- tick("NIFTY", 1, 100)
	waitFor(t, func() bool { return p.Stats().Processed == 1 })
}

func TestPipeline_SourceClosed(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(AggregatorConfig{Period: time.Second}, nil)
	p := NewPipeline(agg, src, PipelineConfig{}, nil)

	src.ch <- tick("NIFTY", 1, 100)
	close(src.ch)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Run() = %v, want ErrSourceClosed", err)
	}
	// тик из канала обработан до выхода
	if p.Stats().Processed != 1 {
		t.Errorf("Processed = %d, want 1", p.Stats().Processed)
	}
}

func TestPipeline_SubscribeError(t *testing.T) {
	src := newFakeSource()
	src.subErr = errors.New("dial failed")
	p := NewPipeline(NewAggregator(AggregatorConfig{}, nil), src, PipelineConfig{}, nil)

	if err := p.Run(context.Background()); !errors.Is(err, src.subErr) {
		t.Errorf("Run() = %v, want wrapped subscribe error", err)
	}
}
