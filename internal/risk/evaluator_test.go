package risk

import (
	"math"
	"testing"

	"propdesk/internal/models"
)

func snapshot(id string, starting, equity float64) models.AccountSnapshot {
	return models.AccountSnapshot{
		AccountID:    id,
		StartingSize: models.NewAmount(starting),
		Equity:       models.NewAmount(equity),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============ Evaluate Tests ============

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		snap       models.AccountSnapshot
		wantLoss   float64
		wantMax    float64
		wantUsage  float64
		wantDanger bool
		wantLimit  float64
	}{
		{
			name:      "в пределах лимита",
			snap:      snapshot("a1", 100000, 91000),
			wantLoss:  9000,
			wantMax:   10000,
			wantUsage: 90,
			wantLimit: 90000,
		},
		{
			name:       "лимит превышен",
			snap:       snapshot("a2", 100000, 89000),
			wantLoss:   11000,
			wantMax:    10000,
			wantUsage:  100,
			wantDanger: true,
			wantLimit:  90000,
		},
		{
			name:       "ровно на лимите",
			snap:       snapshot("a3", 100000, 90000),
			wantLoss:   10000,
			wantMax:    10000,
			wantUsage:  100,
			wantDanger: true,
			wantLimit:  90000,
		},
		{
			name:      "прибыль не даёт отрицательного убытка",
			snap:      snapshot("a4", 50000, 55000),
			wantLoss:  0,
			wantMax:   5000,
			wantUsage: 0,
			wantLimit: 45000,
		},
		{
			name:      "нулевой стартовый размер",
			snap:      snapshot("a5", 0, 1000),
			wantLoss:  0,
			wantUsage: 0,
		},
		{
			name:      "отрицательный стартовый размер",
			snap:      snapshot("a6", -100, 1000),
			wantUsage: 0,
		},
		{
			name: "невалидный стартовый размер",
			snap: models.AccountSnapshot{
				AccountID:    "a7",
				StartingSize: models.Amount{},
				Equity:       models.NewAmount(1000),
			},
		},
		{
			name: "невалидный equity",
			snap: models.AccountSnapshot{
				AccountID:    "a8",
				StartingSize: models.NewAmount(100000),
				Equity:       models.ParseAmount("n/a"),
			},
			wantMax:   10000,
			wantLimit: 90000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.snap)

			if got.AccountID != tt.snap.AccountID {
				t.Errorf("AccountID = %q, want %q", got.AccountID, tt.snap.AccountID)
			}
			if !almostEqual(got.LossAmount, tt.wantLoss) {
				t.Errorf("LossAmount = %v, want %v", got.LossAmount, tt.wantLoss)
			}
			if !almostEqual(got.MaxAllowedLoss, tt.wantMax) {
				t.Errorf("MaxAllowedLoss = %v, want %v", got.MaxAllowedLoss, tt.wantMax)
			}
			if !almostEqual(got.UsagePct, tt.wantUsage) {
				t.Errorf("UsagePct = %v, want %v", got.UsagePct, tt.wantUsage)
			}
			if got.IsDanger != tt.wantDanger {
				t.Errorf("IsDanger = %v, want %v", got.IsDanger, tt.wantDanger)
			}
			if !almostEqual(got.MaxLossLimit, tt.wantLimit) {
				t.Errorf("MaxLossLimit = %v, want %v", got.MaxLossLimit, tt.wantLimit)
			}
		})
	}
}

func TestEvaluate_ExternalDangerFlag(t *testing.T) {
	// внешний флаг добавляется к расчётному даже при нулевом использовании
	s := snapshot("ext", 100000, 100000)
	s.ExternalDanger = true

	got := Evaluate(s)
	if !got.IsDanger {
		t.Error("внешний флаг опасности должен сохраняться")
	}
	if got.UsagePct != 0 {
		t.Errorf("UsagePct = %v, want 0", got.UsagePct)
	}

	// и при невалидном стартовом размере
	s.StartingSize = models.Amount{}
	if !Evaluate(s).IsDanger {
		t.Error("внешний флаг опасности должен сохраняться без расчёта")
	}
}

func TestEvaluate_UsageBounds(t *testing.T) {
	for equity := 0.0; equity <= 120000; equity += 2500 {
		got := Evaluate(snapshot("b", 100000, equity))
		if got.UsagePct < 0 || got.UsagePct > 100 {
			t.Fatalf("equity=%v: UsagePct = %v вне [0, 100]", equity, got.UsagePct)
		}
		if got.LossAmount < 0 {
			t.Fatalf("equity=%v: LossAmount = %v < 0", equity, got.LossAmount)
		}
		if got.IsDanger != (got.UsagePct >= 100) {
			t.Fatalf("equity=%v: IsDanger = %v при usage %v", equity, got.IsDanger, got.UsagePct)
		}
	}
}

func TestEvaluateAll_PreservesOrder(t *testing.T) {
	in := []models.AccountSnapshot{
		snapshot("z", 100000, 95000),
		snapshot("a", 100000, 80000),
		snapshot("m", 0, 0),
	}

	out := EvaluateAll(in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].AccountID != in[i].AccountID {
			t.Errorf("out[%d] = %q, want %q", i, out[i].AccountID, in[i].AccountID)
		}
	}

	if empty := EvaluateAll(nil); empty == nil || len(empty) != 0 {
		t.Errorf("EvaluateAll(nil) = %v, want пустой срез", empty)
	}
}

func BenchmarkEvaluate(b *testing.B) {
	s := snapshot("bench", 100000, 93750.25)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Evaluate(s)
	}
}
