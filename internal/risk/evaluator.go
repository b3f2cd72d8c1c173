package risk

import (
	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// Бизнес-правила фондированного счёта
var (
	// maxLossRatio - допустимая общая просадка от стартового размера
	maxLossRatio = decimal.NewFromFloat(0.10)

	// equityFloorRatio - equity ниже этого уровня означает проваленный счёт
	equityFloorRatio = decimal.NewFromFloat(0.90)

	hundred = decimal.NewFromInt(100)
)

// Evaluate рассчитывает оценку риска по снимку счёта
//
//	maxAllowedLoss = startingSize * 0.10
//	lossAmount     = max(0, startingSize - equity)
//	usagePct       = clamp(loss / maxAllowed * 100, 0, 100)
//	isDanger       = usagePct >= 100 || внешний флаг
//	maxLossLimit   = startingSize * 0.90
//
// Невалидный или нулевой стартовый размер даёт usage 0; невалидный equity даёт loss 0.
// Внешний флаг опасности только добавляется к расчётному, никогда не снимается.
func Evaluate(s models.AccountSnapshot) models.RiskAssessment {
	a := models.RiskAssessment{
		AccountID: s.AccountID,
		IsDanger:  s.ExternalDanger,
	}

	if !s.StartingSize.IsPositive() {
		return a
	}
	starting := s.StartingSize.Value

	maxAllowed := starting.Mul(maxLossRatio)
	a.MaxAllowedLoss = maxAllowed.InexactFloat64()
	a.MaxLossLimit = starting.Mul(equityFloorRatio).InexactFloat64()

	if !s.Equity.Valid {
		return a
	}

	loss := starting.Sub(s.Equity.Value)
	if loss.IsNegative() {
		loss = decimal.Zero
	}
	a.LossAmount = loss.InexactFloat64()

	usage := loss.Div(maxAllowed).Mul(hundred)
	if usage.GreaterThan(hundred) {
		usage = hundred
	}
	a.UsagePct = usage.InexactFloat64()

	if usage.GreaterThanOrEqual(hundred) {
		a.IsDanger = true
	}

	return a
}

// EvaluateAll оценивает список снимков, сохраняя порядок
func EvaluateAll(snapshots []models.AccountSnapshot) []models.RiskAssessment {
	out := make([]models.RiskAssessment, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, Evaluate(s))
	}
	return out
}
