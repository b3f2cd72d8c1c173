package risk

import (
	"testing"
	"time"

	"propdesk/internal/models"
)

func assessment(id string, danger bool) models.RiskAssessment {
	usage := 50.0
	if danger {
		usage = 100
	}
	return models.RiskAssessment{AccountID: id, IsDanger: danger, UsagePct: usage}
}

func TestDangerTracker_Transitions(t *testing.T) {
	tr := NewDangerTracker()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	steps := []struct {
		name  string
		input []models.RiskAssessment
		want  []string // "<type>:<account>"
	}{
		{
			name:  "первый цикл: опасный счёт сразу даёт DANGER",
			input: []models.RiskAssessment{assessment("a", false), assessment("b", true)},
			want:  []string{"DANGER:b"},
		},
		{
			name:  "без изменений - без уведомлений",
			input: []models.RiskAssessment{assessment("a", false), assessment("b", true)},
			want:  nil,
		},
		{
			name:  "a входит, b выходит",
			input: []models.RiskAssessment{assessment("a", true), assessment("b", false)},
			want:  []string{"DANGER:a", "RECOVERED:b"},
		},
		{
			name:  "a пропал из списка",
			input: []models.RiskAssessment{assessment("b", false)},
			want:  nil,
		},
		{
			name:  "a вернулся опасным - снова DANGER",
			input: []models.RiskAssessment{assessment("a", true), assessment("b", false)},
			want:  []string{"DANGER:a"},
		},
	}

	for _, step := range steps {
		got := tr.Observe(step.input)
		if len(got) != len(step.want) {
			t.Fatalf("%s: получено %d уведомлений, want %d (%+v)", step.name, len(got), len(step.want), got)
		}
		for i, n := range got {
			if n.AccountID == nil {
				t.Fatalf("%s: AccountID не заполнен", step.name)
			}
			key := n.Type + ":" + *n.AccountID
			if key != step.want[i] {
				t.Errorf("%s: [%d] = %s, want %s", step.name, i, key, step.want[i])
			}
			if !n.Timestamp.Equal(fixed) {
				t.Errorf("%s: Timestamp = %v", step.name, n.Timestamp)
			}
		}
	}
}

func TestDangerTracker_Severity(t *testing.T) {
	tr := NewDangerTracker()

	got := tr.Observe([]models.RiskAssessment{assessment("x", true)})
	if len(got) != 1 || got[0].Severity != models.SeverityError {
		t.Fatalf("DANGER должен иметь severity error: %+v", got)
	}
	if got[0].Meta["usage_pct"] != 100.0 {
		t.Errorf("meta usage_pct = %v", got[0].Meta["usage_pct"])
	}

	got = tr.Observe([]models.RiskAssessment{assessment("x", false)})
	if len(got) != 1 || got[0].Severity != models.SeverityInfo {
		t.Fatalf("RECOVERED должен иметь severity info: %+v", got)
	}
}

func TestDangerTracker_InDanger(t *testing.T) {
	tr := NewDangerTracker()
	tr.Observe([]models.RiskAssessment{
		assessment("a", true),
		assessment("b", true),
		assessment("c", false),
		{AccountID: "", IsDanger: true}, // без идентификатора игнорируется
	})

	if n := tr.InDanger(); n != 2 {
		t.Errorf("InDanger() = %d, want 2", n)
	}

	tr.Observe(nil)
	if n := tr.InDanger(); n != 0 {
		t.Errorf("после пустого списка InDanger() = %d, want 0", n)
	}
}
