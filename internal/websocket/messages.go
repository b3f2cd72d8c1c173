package websocket

import (
	"time"

	"propdesk/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeCandleUpdate - новая или изменённая свеча
	// Отправляется на каждый принятый тик
	MessageTypeCandleUpdate MessageType = "candleUpdate"

	// MessageTypeRiskUpdate - полный список оценок риска после цикла мониторинга
	MessageTypeRiskUpdate MessageType = "riskUpdate"

	// MessageTypeNotification - новое уведомление (DANGER, RECOVERED, FEED, ERROR)
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - общие поля всех сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// CandleUpdateMessage - обновление свечи
//
// Kind: NewCandle (открыт новый период, retired - закрытая свеча)
// или CandleMutated (изменена текущая)
type CandleUpdateMessage struct {
	BaseMessage
	Data models.CandleUpdate `json:"data"`
}

// RiskUpdateMessage - опубликованные оценки риска
type RiskUpdateMessage struct {
	BaseMessage
	DangerCount int                     `json:"danger_count"`
	Data        []models.RiskAssessment `json:"data"`
}

// NotificationMessage - уведомление
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// NewCandleUpdateMessage создаёт сообщение об изменении свечи
func NewCandleUpdateMessage(update models.CandleUpdate) *CandleUpdateMessage {
	return &CandleUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeCandleUpdate, Timestamp: time.Now().UTC()},
		Data:        update,
	}
}

// NewRiskUpdateMessage создаёт сообщение с оценками риска
func NewRiskUpdateMessage(assessments []models.RiskAssessment) *RiskUpdateMessage {
	if assessments == nil {
		assessments = []models.RiskAssessment{}
	}
	danger := 0
	for _, a := range assessments {
		if a.IsDanger {
			danger++
		}
	}
	return &RiskUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeRiskUpdate, Timestamp: time.Now().UTC()},
		DangerCount: danger,
		Data:        assessments,
	}
}

// NewNotificationMessage создаёт сообщение с уведомлением
func NewNotificationMessage(n *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{Type: MessageTypeNotification, Timestamp: time.Now().UTC()},
		Data:        n,
	}
}
