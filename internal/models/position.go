package models

import "strings"

// Стороны позиции
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position - открытая позиция трейдера (только чтение для ядра)
type Position struct {
	ID         string `json:"id" db:"id"`
	AccountID  string `json:"account_id" db:"account_id"`
	Instrument string `json:"instrument" db:"instrument"`
	Side       string `json:"side" db:"side"`
	EntryPrice Amount `json:"entry_price" db:"entry_price"`
	Lots       Amount `json:"lots" db:"lots"`
}

// NormalizedSide возвращает сторону в нижнем регистре или "" для неизвестной
func (p Position) NormalizedSide() string {
	switch s := strings.ToLower(strings.TrimSpace(p.Side)); s {
	case SideBuy, SideSell:
		return s
	}
	return ""
}

// PositionValue - позиция с рассчитанным плавающим PNL
type PositionValue struct {
	Position
	CurrentPrice Amount  `json:"current_price"`
	Quantity     int64   `json:"quantity"`
	PNL          float64 `json:"pnl"`
	Priced       bool    `json:"priced"` // false - нет текущей цены по инструменту
}
