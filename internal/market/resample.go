package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

// ErrUnknownInterval - интервал не из списка поддерживаемых
var ErrUnknownInterval = errors.New("unknown interval")

// Поддерживаемые интервалы графика
var intervals = map[string]time.Duration{
	"1s":  time.Second,
	"5s":  5 * time.Second,
	"15s": 15 * time.Second,
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
}

// IntervalNames - интервалы в порядке возрастания
var IntervalNames = []string{"1s", "5s", "15s", "1m", "5m", "15m", "1h"}

// ParseInterval разбирает имя интервала ("1m", "5M", "1h")
func ParseInterval(name string) (time.Duration, error) {
	d, ok := intervals[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownInterval, name, strings.Join(IntervalNames, ", "))
	}
	return d, nil
}

// Resample строит свечи старшего таймфрейма из базовых
//
// Вход должен быть отсортирован по Time. Для каждого окна:
// open первой свечи, max high, min low, close последней.
// Период не больше базового возвращает копию входа.
func Resample(candles []models.Candle, period time.Duration) []models.Candle {
	step := int64(period / time.Second)
	out := make([]models.Candle, 0, len(candles))
	if len(candles) == 0 {
		return out
	}
	if step <= 1 {
		return append(out, candles...)
	}

	var cur models.Candle
	open := false
	for _, c := range candles {
		key := utils.AlignDown(c.Time, step)
		if open && key == cur.Time {
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
			cur.Close = c.Close
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = c
		cur.Time = key
		open = true
	}
	return append(out, cur)
}
