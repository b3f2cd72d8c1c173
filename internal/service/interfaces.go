package service

import (
	"context"
	"time"

	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// ============ Интерфейсы хранилищ ============

// CandleStore - сохранённые закрытые свечи
type CandleStore interface {
	GetRange(ctx context.Context, instrument string, from, to int64, limit int) ([]models.Candle, error)
	Instruments(ctx context.Context) ([]string, error)
}

// PositionStore - открытые позиции счетов
type PositionStore interface {
	GetOpenByAccount(ctx context.Context, accountID string) ([]models.Position, error)
}

// NotificationStore - журнал уведомлений
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetRecent(ctx context.Context, types []string, limit int) ([]*models.Notification, error)
	GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.Notification, error)
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}

// AssessmentStore - аудит опубликованных оценок
type AssessmentStore interface {
	Append(ctx context.Context, recordedAt time.Time, assessments []models.RiskAssessment) error
	GetHistory(ctx context.Context, accountID string, limit int) ([]repository.AssessmentRecord, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ CandleStore = (*repository.CandleRepository)(nil)
var _ PositionStore = (*repository.PositionRepository)(nil)
var _ NotificationStore = (*repository.NotificationRepository)(nil)
var _ AssessmentStore = (*repository.AssessmentRepository)(nil)

// ============ Источники runtime-данных ============

// CandleReader - живое состояние агрегатора
type CandleReader interface {
	History(instrument string) []models.Candle
	LastPrice(instrument string) (float64, bool)
	LastPrices() map[string]float64
	Instruments() []string
	Period() int64
}

// AssessmentSource - последний опубликованный список оценок
type AssessmentSource interface {
	Latest() []models.RiskAssessment
	Status() risk.MonitorStatus
}

// PositionProvider - позиции счёта без БД (например, демо-книга симулятора)
type PositionProvider func(accountID string) []models.Position

// ============ Интерфейсы сервисов для Dependency Injection ============

// MarketServiceInterface определяет интерфейс сервиса котировок
type MarketServiceInterface interface {
	Instruments(ctx context.Context) ([]string, error)
	Candles(ctx context.Context, instrument, interval string, limit int) ([]models.Candle, error)
	Prices() map[string]float64
	Valuate(positions []models.Position) []models.PositionValue
	AccountPositions(ctx context.Context, accountID string) ([]models.PositionValue, error)
}

// RiskServiceInterface определяет интерфейс сервиса рисков
type RiskServiceInterface interface {
	Latest() []models.RiskAssessment
	Account(accountID string) (*models.RiskAssessment, error)
	Evaluate(snapshots []models.AccountSnapshot) []models.RiskAssessment
	History(ctx context.Context, accountID string, limit int) ([]repository.AssessmentRecord, error)
	Status() risk.MonitorStatus
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	CreateNotification(ctx context.Context, notif *models.Notification) error
	GetNotifications(ctx context.Context, types []string, accountID string, limit int) ([]*models.Notification, error)
	ClearNotifications(ctx context.Context) (int64, error)
	GetNotificationCount(ctx context.Context) (int, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ MarketServiceInterface = (*MarketService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
