package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// ErrSnapshotFetch - не удалось получить снимки счетов (сеть, таймаут, ответ сервиса)
var ErrSnapshotFetch = errors.New("snapshot fetch failed")

const (
	DefaultPollInterval = 5 * time.Second
	DefaultFetchTimeout = 3 * time.Second
)

// State - состояние цикла мониторинга
type State string

const (
	StateIdle    State = "IDLE"
	StatePolling State = "POLLING"
)

// SnapshotFetcher - поставщик снимков счетов
type SnapshotFetcher interface {
	FetchSnapshots(ctx context.Context) ([]models.AccountSnapshot, error)
}

// FetcherFunc - адаптер функции к SnapshotFetcher
type FetcherFunc func(ctx context.Context) ([]models.AccountSnapshot, error)

func (f FetcherFunc) FetchSnapshots(ctx context.Context) ([]models.AccountSnapshot, error) {
	return f(ctx)
}

// UpdateFunc получает полный упорядоченный список оценок
//
// Вызывается под внутренним мьютексом монитора: обработчик не должен
// вызывать Stop и блокироваться надолго. Срез принадлежит получателю.
type UpdateFunc func(assessments []models.RiskAssessment)

// MonitorConfig - параметры цикла
type MonitorConfig struct {
	PollInterval time.Duration
	FetchTimeout time.Duration // приводится к значению меньше PollInterval
	Logger       *zap.Logger
}

// normalize подставляет значения по умолчанию
func (c *MonitorConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FetchTimeout >= c.PollInterval {
		c.FetchTimeout = c.PollInterval * 4 / 5
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// MonitorStatus - сводка для health/API
type MonitorStatus struct {
	State         State     `json:"state"`
	Stopped       bool      `json:"stopped"`
	Cycles        int64     `json:"cycles"`
	Failures      int64     `json:"failures"`
	LastPublishAt time.Time `json:"last_publish_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Monitor - цикл опроса снимков счетов
//
// IDLE -> POLLING -> IDLE: сразу после Start выполняется первый цикл,
// далее каждые PollInterval до Stop.
//
// Гарантии:
//   - ошибка или таймаут запроса пропускают цикл; последний опубликованный список сохраняется
//   - после возврата из Stop onUpdate больше не вызывается, даже если запрос ещё в полёте
//     (публикация и Stop разделяют мьютекс, поздний цикл видит флаг остановки)
type Monitor struct {
	cfg      MonitorConfig
	fetcher  SnapshotFetcher
	onUpdate UpdateFunc
	logger   *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex  // публикация vs Stop
	stopped atomic.Bool // пишется под mu, читается без него

	latest atomic.Pointer[[]models.RiskAssessment]
	state  atomic.Value // State

	cycles    atomic.Int64
	failures  atomic.Int64
	statusMu  sync.RWMutex
	lastPub   time.Time
	lastError string
}

// Start запускает мониторинг и возвращает handle для остановки
func Start(ctx context.Context, cfg MonitorConfig, fetcher SnapshotFetcher, onUpdate UpdateFunc) *Monitor {
	cfg.normalize()

	runCtx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		cfg:      cfg,
		fetcher:  fetcher,
		onUpdate: onUpdate,
		logger:   cfg.Logger.With(utils.Component("risk_monitor")),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.state.Store(StateIdle)

	m.logger.Info("risk monitor started",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
	)

	go m.run(runCtx)
	return m
}

// Stop останавливает мониторинг; повторный вызов - no-op
//
// После возврата onUpdate больше не вызывается. Горутина цикла может
// ещё дожидаться зависшего запроса; Done() закрывается, когда она выйдет.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped.Store(true)
		m.mu.Unlock()

		m.cancel()
		m.logger.Info("risk monitor stopped")
	})
}

// Done закрывается после выхода горутины цикла
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Latest возвращает копию последнего опубликованного списка (nil до первой публикации)
func (m *Monitor) Latest() []models.RiskAssessment {
	p := m.latest.Load()
	if p == nil {
		return nil
	}
	return cloneAssessments(*p)
}

// State возвращает текущее состояние цикла
func (m *Monitor) State() State {
	return m.state.Load().(State)
}

// Status возвращает сводку по работе монитора
func (m *Monitor) Status() MonitorStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return MonitorStatus{
		State:         m.State(),
		Stopped:       m.stopped.Load(),
		Cycles:        m.cycles.Load(),
		Failures:      m.failures.Load(),
		LastPublishAt: m.lastPub,
		LastError:     m.lastError,
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	m.cycle(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// cycle - один цикл fetch -> evaluate -> publish
func (m *Monitor) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	m.state.Store(StatePolling)
	defer m.state.Store(StateIdle)
	m.cycles.Add(1)

	snapshots, err := m.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// остановлены во время запроса
			CyclesTotal.WithLabelValues(cycleDiscarded).Inc()
			return
		}
		m.failures.Add(1)
		CyclesTotal.WithLabelValues(cycleFetchErr).Inc()
		m.setLastError(err)
		m.logger.Warn("snapshot fetch failed, keeping last known assessments",
			zap.Error(err),
			zap.Int("last_known", m.latestLen()),
		)
		return
	}

	assessments := EvaluateAll(snapshots)
	if !m.publish(assessments) {
		CyclesTotal.WithLabelValues(cycleDiscarded).Inc()
		return
	}
	CyclesTotal.WithLabelValues(cycleOK).Inc()
}

// fetch запрашивает снимки с таймаутом
func (m *Monitor) fetch(ctx context.Context) ([]models.AccountSnapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	snapshots, err := m.fetcher.FetchSnapshots(fetchCtx)
	FetchDuration.Observe(float64(time.Since(start).Milliseconds()))

	if err == nil && fetchCtx.Err() != nil {
		// поставщик проигнорировал дедлайн, результат опоздал
		err = fetchCtx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotFetch, err)
	}
	return snapshots, nil
}

// publish атомарно заменяет опубликованный список и уведомляет наблюдателя
// Возвращает false, если монитор уже остановлен
func (m *Monitor) publish(assessments []models.RiskAssessment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped.Load() {
		return false
	}

	m.latest.Store(&assessments)

	danger := 0
	for _, a := range assessments {
		if a.IsDanger {
			danger++
		}
	}
	DangerAccounts.Set(float64(danger))
	MonitoredAccounts.Set(float64(len(assessments)))

	now := time.Now()
	LastPublishTimestamp.Set(float64(now.Unix()))
	m.statusMu.Lock()
	m.lastPub = now
	m.lastError = ""
	m.statusMu.Unlock()

	if m.onUpdate != nil {
		m.notify(cloneAssessments(assessments))
	}
	return true
}

// notify вызывает onUpdate, паника наблюдателя не останавливает цикл
func (m *Monitor) notify(assessments []models.RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("risk update observer panicked", zap.Any("panic", r))
		}
	}()
	m.onUpdate(assessments)
}

func (m *Monitor) setLastError(err error) {
	m.statusMu.Lock()
	m.lastError = err.Error()
	m.statusMu.Unlock()
}

func (m *Monitor) latestLen() int {
	if p := m.latest.Load(); p != nil {
		return len(*p)
	}
	return 0
}

func cloneAssessments(in []models.RiskAssessment) []models.RiskAssessment {
	out := make([]models.RiskAssessment, len(in))
	copy(out, in)
	return out
}
