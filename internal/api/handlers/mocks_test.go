package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"propdesk/internal/market"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/service"
	"propdesk/pkg/utils"
)

// ============ Mock Market Service ============

// MockMarketService мок для MarketServiceInterface
type MockMarketService struct {
	instruments []string
	candles     map[string][]models.Candle
	prices      map[string]float64
	positions   map[string][]models.Position
	err         error

	lastInterval string
	lastLimit    int
}

func NewMockMarketService() *MockMarketService {
	return &MockMarketService{
		candles:   make(map[string][]models.Candle),
		prices:    make(map[string]float64),
		positions: make(map[string][]models.Position),
	}
}

func (m *MockMarketService) Instruments(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.instruments, nil
}

func (m *MockMarketService) Candles(_ context.Context, instrument, interval string, limit int) ([]models.Candle, error) {
	m.lastInterval = interval
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	instrument = utils.NormalizeInstrument(instrument)
	if err := utils.ValidateInstrument(instrument); err != nil {
		return nil, err
	}
	if interval != "" {
		if _, err := market.ParseInterval(interval); err != nil {
			return nil, err
		}
	}
	out := m.candles[instrument]
	if out == nil {
		out = []models.Candle{}
	}
	return out, nil
}

func (m *MockMarketService) Prices() map[string]float64 {
	return m.prices
}

func (m *MockMarketService) Valuate(positions []models.Position) []models.PositionValue {
	return market.ValuateAll(positions, func(inst string) (float64, bool) {
		p, ok := m.prices[strings.ToUpper(inst)]
		return p, ok
	})
}

func (m *MockMarketService) AccountPositions(_ context.Context, accountID string) ([]models.PositionValue, error) {
	if err := utils.ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.Valuate(m.positions[accountID]), nil
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	latest     []models.RiskAssessment
	status     risk.MonitorStatus
	history    []repository.AssessmentRecord
	historyErr error
}

func (m *MockRiskService) Latest() []models.RiskAssessment {
	return m.latest
}

func (m *MockRiskService) Account(accountID string) (*models.RiskAssessment, error) {
	for _, a := range m.latest {
		if a.AccountID == accountID {
			a := a
			return &a, nil
		}
	}
	return nil, service.ErrAccountNotAssessed
}

func (m *MockRiskService) Evaluate(snapshots []models.AccountSnapshot) []models.RiskAssessment {
	return risk.EvaluateAll(snapshots)
}

func (m *MockRiskService) History(_ context.Context, _ string, _ int) ([]repository.AssessmentRecord, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *MockRiskService) Status() risk.MonitorStatus {
	return m.status
}

// ============ Mock Notification Service ============

// MockNotificationService мок для NotificationServiceInterface
type MockNotificationService struct {
	notifications []*models.Notification
	getErr        error
	clearErr      error
	nextID        int
	mu            sync.RWMutex
}

// NewMockNotificationService создает новый мок сервиса уведомлений
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{nextID: 1}
}

// AddNotification добавляет уведомление в мок (новые в начало)
func (m *MockNotificationService) AddNotification(notifType, severity, accountID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := &models.Notification{
		ID:        m.nextID,
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  severity,
		Message:   message,
	}
	if accountID != "" {
		n.AccountID = &accountID
	}
	m.nextID++
	m.notifications = append([]*models.Notification{n}, m.notifications...)
}

func (m *MockNotificationService) CreateNotification(_ context.Context, n *models.Notification) error {
	m.AddNotification(n.Type, n.Severity, "", n.Message)
	return nil
}

func (m *MockNotificationService) GetNotifications(_ context.Context, types []string, accountID string, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	out := []*models.Notification{}
	for _, n := range m.notifications {
		if len(out) >= limit {
			break
		}
		if accountID != "" && (n.AccountID == nil || *n.AccountID != accountID) {
			continue
		}
		if len(types) > 0 && !contains(types, n.Type) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *MockNotificationService) ClearNotifications(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return 0, m.clearErr
	}
	n := int64(len(m.notifications))
	m.notifications = nil
	return n, nil
}

func (m *MockNotificationService) GetNotificationCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
