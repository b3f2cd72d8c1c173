package utils

import "math"

// IsFinite - не NaN и не ±Inf
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// FloorDiv - целочисленное деление с округлением вниз (корректно для отрицательных)
// b должен быть > 0
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && (a < 0) {
		q--
	}
	return q
}

// AlignDown выравнивает значение вниз до кратного step
//
// Пример:
//
//	AlignDown(125, 60)  // 120
//	AlignDown(-1, 60)   // -60
func AlignDown(v, step int64) int64 {
	if step <= 0 {
		return v
	}
	return FloorDiv(v, step) * step
}

// Round округляет до places знаков после запятой
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
