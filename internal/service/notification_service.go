package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"propdesk/internal/models"
)

// ErrInvalidNotificationType - тип не из DANGER, RECOVERED, FEED, ERROR
var ErrInvalidNotificationType = errors.New("invalid notification type")

const (
	defaultNotificationLimit = 100
	maxNotificationLimit     = 500
	memoryJournalSize        = 100
)

// WebSocketBroadcaster - интерфейс для отправки WebSocket сообщений
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type WebSocketBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// NotificationService предоставляет бизнес-логику для журнала уведомлений.
//
// Отвечает за:
// - Создание уведомлений и broadcast через WebSocket
// - Получение списка с фильтрацией по типу и счёту
// - Очистку журнала
//
// Без БД журнал хранится в памяти (последние 100 событий).
type NotificationService struct {
	store NotificationStore
	wsHub WebSocketBroadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
// nil store - журнал в памяти
func NewNotificationService(store NotificationStore) *NotificationService {
	if store == nil {
		store = newMemoryJournal(memoryJournalSize)
	}
	return &NotificationService{store: store}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
func (s *NotificationService) SetWebSocketHub(hub WebSocketBroadcaster) {
	s.wsHub = hub
}

// CreateNotification сохраняет уведомление и рассылает его клиентам
func (s *NotificationService) CreateNotification(ctx context.Context, notif *models.Notification) error {
	notif.Type = strings.ToUpper(strings.TrimSpace(notif.Type))
	if !models.ValidNotificationType(notif.Type) {
		return ErrInvalidNotificationType
	}
	if notif.Severity == "" {
		notif.Severity = models.SeverityInfo
	}

	if err := s.store.Create(ctx, notif); err != nil {
		return err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}
	return nil
}

// GetNotifications возвращает уведомления, новые первыми
//
// types - фильтр по типу (неизвестные игнорируются), accountID - фильтр по счёту.
// limit по умолчанию 100, не больше 500.
func (s *NotificationService) GetNotifications(ctx context.Context, types []string, accountID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	if accountID != "" {
		return s.store.GetByAccount(ctx, accountID, limit)
	}

	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if models.ValidNotificationType(t) {
			normalized = append(normalized, t)
		}
	}
	return s.store.GetRecent(ctx, normalized, limit)
}

// ClearNotifications очищает журнал
func (s *NotificationService) ClearNotifications(ctx context.Context) (int64, error) {
	return s.store.DeleteAll(ctx)
}

// GetNotificationCount возвращает количество уведомлений в журнале
func (s *NotificationService) GetNotificationCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// ============ Журнал в памяти ============

// memoryJournal - кольцевой журнал для режима без БД
type memoryJournal struct {
	mu     sync.RWMutex
	items  []*models.Notification // по возрастанию ID
	size   int
	nextID int
}

func newMemoryJournal(size int) *memoryJournal {
	return &memoryJournal{size: size, nextID: 1}
}

func (j *memoryJournal) Create(_ context.Context, n *models.Notification) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	n.ID = j.nextID
	j.nextID++

	stored := *n
	j.items = append(j.items, &stored)
	if over := len(j.items) - j.size; over > 0 {
		j.items = append([]*models.Notification(nil), j.items[over:]...)
	}
	return nil
}

func (j *memoryJournal) GetRecent(_ context.Context, types []string, limit int) ([]*models.Notification, error) {
	return j.collect(limit, func(n *models.Notification) bool {
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if n.Type == t {
				return true
			}
		}
		return false
	}), nil
}

func (j *memoryJournal) GetByAccount(_ context.Context, accountID string, limit int) ([]*models.Notification, error) {
	return j.collect(limit, func(n *models.Notification) bool {
		return n.AccountID != nil && *n.AccountID == accountID
	}), nil
}

// collect обходит журнал от новых к старым
func (j *memoryJournal) collect(limit int, match func(*models.Notification) bool) []*models.Notification {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := []*models.Notification{}
	for i := len(j.items) - 1; i >= 0 && len(out) < limit; i-- {
		if match(j.items[i]) {
			n := *j.items[i]
			out = append(out, &n)
		}
	}
	return out
}

func (j *memoryJournal) DeleteAll(_ context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := int64(len(j.items))
	j.items = nil
	return n, nil
}

func (j *memoryJournal) Count(_ context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.items), nil
}
