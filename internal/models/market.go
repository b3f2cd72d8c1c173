package models

// Tick - последняя цена сделки по инструменту
// Timestamp в unix-секундах
type Tick struct {
	Instrument string  `json:"instrument"`
	Timestamp  int64   `json:"timestamp"`
	LTP        float64 `json:"ltp"`
}

// Candle - OHLC-бар за один период
//
// Инвариант: Low <= min(Open, Close) <= max(Open, Close) <= High
type Candle struct {
	Instrument string  `json:"instrument" db:"instrument"`
	Time       int64   `json:"time" db:"period_start"` // начало периода, выровнено по длине периода
	Open       float64 `json:"open" db:"open"`
	High       float64 `json:"high" db:"high"`
	Low        float64 `json:"low" db:"low"`
	Close      float64 `json:"close" db:"close"`
}

// Valid проверяет OHLC-инвариант
func (c Candle) Valid() bool {
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	return c.Low <= lo && hi <= c.High
}

// CandleUpdateKind - тип изменения свечи
type CandleUpdateKind string

const (
	CandleNew     CandleUpdateKind = "NewCandle"     // открыт новый период
	CandleMutated CandleUpdateKind = "CandleMutated" // обновлён текущий период
)

// CandleUpdate - результат обработки тика агрегатором
//
// Retired заполнен, когда новый период вытеснил предыдущую текущую свечу
type CandleUpdate struct {
	Kind    CandleUpdateKind `json:"kind"`
	Candle  Candle           `json:"candle"`
	Retired *Candle          `json:"retired,omitempty"`
}
