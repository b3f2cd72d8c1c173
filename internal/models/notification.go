package models

import "time"

// Notification представляет уведомление о событии риска
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // DANGER, RECOVERED, FEED, ERROR
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	AccountID *string                `json:"account_id,omitempty" db:"account_id"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeDanger    = "DANGER"    // счёт вошёл в опасную зону
	NotificationTypeRecovered = "RECOVERED" // счёт вышел из опасной зоны
	NotificationTypeFeed      = "FEED"      // проблемы источника котировок
	NotificationTypeError     = "ERROR"     // внутренняя ошибка
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// ValidNotificationType проверяет тип уведомления
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationTypeDanger, NotificationTypeRecovered, NotificationTypeFeed, NotificationTypeError:
		return true
	}
	return false
}
