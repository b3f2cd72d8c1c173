package market

import (
	"strings"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// Размеры контрактов индексных семейств
const (
	bankNiftyMultiplier = 15
	niftyMultiplier     = 50
)

// Multiplier возвращает множитель контракта по имени инструмента
//
// Фиксированная политика: содержит BANKNIFTY - 15, содержит NIFTY - 50, иначе 1.
// Регистр не важен.
func Multiplier(instrument string) int64 {
	up := strings.ToUpper(instrument)
	switch {
	case strings.Contains(up, "BANKNIFTY"):
		return bankNiftyMultiplier
	case strings.Contains(up, "NIFTY"):
		return niftyMultiplier
	default:
		return 1
	}
}

// Lots возвращает целое количество лотов; невалидное или <= 0 даёт 1
func Lots(lots models.Amount) int64 {
	if !lots.Valid {
		return 1
	}
	n := lots.Value.IntPart()
	if n <= 0 {
		return 1
	}
	return n
}

// Quantity - эффективное количество: лоты * множитель
func Quantity(p models.Position) int64 {
	return Lots(p.Lots) * Multiplier(p.Instrument)
}

// Valuate считает плавающий PNL позиции по текущей цене
//
// buy: (current - entry) * qty, sell: (entry - current) * qty.
// Невалидная цена или неизвестная сторона дают 0, ошибки не бывает.
func Valuate(p models.Position, current models.Amount) float64 {
	if !p.EntryPrice.Valid || !current.Valid {
		return 0
	}

	qty := decimal.NewFromInt(Quantity(p))

	var diff decimal.Decimal
	switch p.NormalizedSide() {
	case models.SideBuy:
		diff = current.Value.Sub(p.EntryPrice.Value)
	case models.SideSell:
		diff = p.EntryPrice.Value.Sub(current.Value)
	default:
		return 0
	}

	return diff.Mul(qty).InexactFloat64()
}

// PriceFunc отдаёт текущую цену инструмента
type PriceFunc func(instrument string) (float64, bool)

// ValuateAll оценивает книгу позиций; порядок сохраняется
// Позиции без текущей цены получают PNL 0 и Priced=false
func ValuateAll(positions []models.Position, priceOf PriceFunc) []models.PositionValue {
	out := make([]models.PositionValue, 0, len(positions))
	for _, p := range positions {
		v := models.PositionValue{Position: p, Quantity: Quantity(p)}
		if priceOf != nil {
			if price, ok := priceOf(p.Instrument); ok {
				v.CurrentPrice = models.NewAmount(price)
				v.Priced = v.CurrentPrice.Valid
				v.PNL = Valuate(p, v.CurrentPrice)
			}
		}
		out = append(out, v)
	}
	return out
}
