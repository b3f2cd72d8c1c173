package models

import (
	"bytes"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount - числовое поле, пришедшее от внешнего поставщика данных
//
// Поставщики (аккаунт-сервис, позиции из БД, браузер) присылают цены и размеры
// то числом, то строкой, а иногда пустым значением или мусором.
// Amount принимает всё это и НИКОГДА не возвращает ошибку десериализации:
// нераспознанное значение становится невалидным (Valid=false).
//
// Потребители обязаны проверять Valid и подставлять безопасное значение по умолчанию
// (нулевой PNL, нулевое использование лимита).
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

// NewAmount создает валидный Amount из float64
// NaN и Inf дают невалидный Amount
func NewAmount(f float64) Amount {
	if f != f || f > maxFloat || f < -maxFloat {
		return Amount{}
	}
	return Amount{Value: decimal.NewFromFloat(f), Valid: true}
}

// NewAmountFromInt создает валидный Amount из целого числа
func NewAmountFromInt(i int64) Amount {
	return Amount{Value: decimal.NewFromInt(i), Valid: true}
}

// ParseAmount разбирает строку; пустая строка или мусор дают невалидный Amount
func ParseAmount(s string) Amount {
	s = string(bytes.TrimSpace([]byte(s)))
	if s == "" {
		return Amount{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return Amount{Value: d, Valid: true}
}

// maxFloat - граница, за которой float64 считается бесконечностью
const maxFloat = 1.7976931348623157e308

// Float возвращает значение как float64 и признак валидности
func (a Amount) Float() (float64, bool) {
	if !a.Valid {
		return 0, false
	}
	return a.Value.InexactFloat64(), true
}

// IsPositive - валидное и строго больше нуля
func (a Amount) IsPositive() bool {
	return a.Valid && a.Value.IsPositive()
}

// String для логов
func (a Amount) String() string {
	if !a.Valid {
		return "<invalid>"
	}
	return a.Value.String()
}

// UnmarshalJSON принимает число, строку с числом, null или что угодно ещё
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			*a = Amount{}
			return nil
		}
		*a = ParseAmount(s)
		return nil
	}

	*a = ParseAmount(string(data))
	return nil
}

// MarshalJSON отдаёт число или null для невалидного значения
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Value.String()), nil
}

// Scan реализует sql.Scanner (NUMERIC/TEXT/NULL колонки)
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
	case float64:
		*a = NewAmount(v)
	case int64:
		*a = NewAmountFromInt(v)
	case []byte:
		*a = ParseAmount(string(v))
	case string:
		*a = ParseAmount(v)
	default:
		*a = Amount{}
	}
	return nil
}
