package models

// AccountSnapshot - состояние фондированного счёта на момент опроса
// Заменяется целиком при каждом цикле мониторинга
type AccountSnapshot struct {
	AccountID             string  `json:"account_id" db:"account_id"`
	StartingSize          Amount  `json:"starting_size" db:"starting_size"`
	Equity                Amount  `json:"equity" db:"equity"`
	DailyDrawdownPct      float64 `json:"daily_drawdown_pct" db:"daily_drawdown_pct"`
	CumulativeDrawdownPct float64 `json:"cumulative_drawdown_pct" db:"cumulative_drawdown_pct"`
	ExternalDanger        bool    `json:"is_danger" db:"is_danger"` // флаг опасности от внешней системы
}

// RiskAssessment - производная оценка риска по счёту
//
// Ядро её не хранит; все суммы в валюте счёта
type RiskAssessment struct {
	AccountID      string  `json:"account_id"`
	LossAmount     float64 `json:"loss_amount"`
	MaxAllowedLoss float64 `json:"max_allowed_loss"`
	UsagePct       float64 `json:"usage_pct"` // 0..100
	IsDanger       bool    `json:"is_danger"`
	MaxLossLimit   float64 `json:"max_loss_limit"` // минимально допустимый equity
}
