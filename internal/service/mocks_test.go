package service

import (
	"context"
	"sync"
	"time"

	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// ============ Mock CandleReader ============

type MockCandleReader struct {
	history map[string][]models.Candle
	prices  map[string]float64
	period  int64
}

func NewMockCandleReader(period int64) *MockCandleReader {
	return &MockCandleReader{
		history: make(map[string][]models.Candle),
		prices:  make(map[string]float64),
		period:  period,
	}
}

func (m *MockCandleReader) History(instrument string) []models.Candle {
	return append([]models.Candle{}, m.history[instrument]...)
}

func (m *MockCandleReader) LastPrice(instrument string) (float64, bool) {
	p, ok := m.prices[instrument]
	return p, ok
}

func (m *MockCandleReader) LastPrices() map[string]float64 {
	out := make(map[string]float64, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

func (m *MockCandleReader) Instruments() []string {
	out := []string{}
	for inst := range m.history {
		out = append(out, inst)
	}
	return out
}

func (m *MockCandleReader) Period() int64 {
	return m.period
}

// ============ Mock CandleStore ============

type MockCandleStore struct {
	candles     map[string][]models.Candle
	instruments []string
	err         error

	lastTo int64
}

func (m *MockCandleStore) GetRange(_ context.Context, instrument string, from, to int64, limit int) ([]models.Candle, error) {
	m.lastTo = to
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Candle{}
	for _, c := range m.candles[instrument] {
		if c.Time >= from && (to == 0 || c.Time <= to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCandleStore) Instruments(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.instruments, nil
}

// ============ Mock PositionStore ============

type MockPositionStore struct {
	positions map[string][]models.Position
	err       error
}

func (m *MockPositionStore) GetOpenByAccount(_ context.Context, accountID string) ([]models.Position, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.positions[accountID], nil
}

// ============ Mock NotificationStore ============

type MockNotificationStore struct {
	created   []*models.Notification
	createErr error
	getErr    error
	lastTypes []string
	lastLimit int
}

func (m *MockNotificationStore) Create(_ context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = len(m.created) + 1
	m.created = append(m.created, n)
	return nil
}

func (m *MockNotificationStore) GetRecent(_ context.Context, types []string, limit int) ([]*models.Notification, error) {
	m.lastTypes = types
	m.lastLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.created, nil
}

func (m *MockNotificationStore) GetByAccount(_ context.Context, accountID string, limit int) ([]*models.Notification, error) {
	m.lastLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := []*models.Notification{}
	for _, n := range m.created {
		if n.AccountID != nil && *n.AccountID == accountID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MockNotificationStore) DeleteAll(_ context.Context) (int64, error) {
	n := int64(len(m.created))
	m.created = nil
	return n, nil
}

func (m *MockNotificationStore) Count(_ context.Context) (int, error) {
	return len(m.created), nil
}

// ============ Mock AssessmentStore ============

type MockAssessmentStore struct {
	mu        sync.Mutex
	appended  [][]models.RiskAssessment
	appendErr error
	history   []repository.AssessmentRecord
}

func (m *MockAssessmentStore) Append(_ context.Context, _ time.Time, assessments []models.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, assessments)
	return nil
}

func (m *MockAssessmentStore) GetHistory(_ context.Context, accountID string, limit int) ([]repository.AssessmentRecord, error) {
	out := []repository.AssessmentRecord{}
	for _, r := range m.history {
		if r.AccountID == accountID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

// ============ Mock AssessmentSource ============

type MockAssessmentSource struct {
	latest []models.RiskAssessment
	status risk.MonitorStatus
}

func (m *MockAssessmentSource) Latest() []models.RiskAssessment {
	return m.latest
}

func (m *MockAssessmentSource) Status() risk.MonitorStatus {
	return m.status
}

// ============ Mock WebSocketBroadcaster ============

type MockBroadcaster struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (m *MockBroadcaster) BroadcastNotification(n *models.Notification) {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
}

func (m *MockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ============ Mock CandleWriter ============

type MockCandleWriter struct {
	mu      sync.Mutex
	batches [][]models.Candle
	err     error
}

func (m *MockCandleWriter) UpsertBatch(_ context.Context, candles []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]models.Candle{}, candles...))
	return nil
}

func (m *MockCandleWriter) written() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *MockCandleWriter) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}
