package risk

import (
	"fmt"
	"sync"
	"time"

	"propdesk/internal/models"
)

// DangerTracker отслеживает переходы счетов в опасную зону и обратно
//
// Каждая публикация монитора сравнивается с предыдущей:
//   - счёт стал опасным (в том числе впервые увиденный) -> DANGER
//   - счёт перестал быть опасным -> RECOVERED
//   - пропавшие из списка счета забываются без уведомления
type DangerTracker struct {
	mu     sync.Mutex
	danger map[string]bool
	now    func() time.Time
}

// NewDangerTracker создаёт трекер
func NewDangerTracker() *DangerTracker {
	return &DangerTracker{
		danger: make(map[string]bool),
		now:    time.Now,
	}
}

// Observe принимает полный список оценок и возвращает уведомления о переходах
// Порядок уведомлений совпадает с порядком оценок
func (t *DangerTracker) Observe(assessments []models.RiskAssessment) []models.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UTC()
	next := make(map[string]bool, len(assessments))
	var out []models.Notification

	for _, a := range assessments {
		if a.AccountID == "" {
			continue
		}
		prev := t.danger[a.AccountID]
		next[a.AccountID] = a.IsDanger

		switch {
		case a.IsDanger && !prev:
			out = append(out, newTransition(ts, a, models.NotificationTypeDanger, models.SeverityError,
				fmt.Sprintf("account %s entered danger zone: usage %.2f%%, loss %.2f of %.2f",
					a.AccountID, a.UsagePct, a.LossAmount, a.MaxAllowedLoss)))
		case !a.IsDanger && prev:
			out = append(out, newTransition(ts, a, models.NotificationTypeRecovered, models.SeverityInfo,
				fmt.Sprintf("account %s left danger zone: usage %.2f%%", a.AccountID, a.UsagePct)))
		}
	}

	t.danger = next
	return out
}

// InDanger возвращает количество счетов в опасной зоне
func (t *DangerTracker) InDanger() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, d := range t.danger {
		if d {
			n++
		}
	}
	return n
}

func newTransition(ts time.Time, a models.RiskAssessment, typ, severity, msg string) models.Notification {
	id := a.AccountID
	return models.Notification{
		Timestamp: ts,
		Type:      typ,
		Severity:  severity,
		AccountID: &id,
		Message:   msg,
		Meta: map[string]interface{}{
			"usage_pct":        a.UsagePct,
			"loss_amount":      a.LossAmount,
			"max_allowed_loss": a.MaxAllowedLoss,
			"max_loss_limit":   a.MaxLossLimit,
		},
	}
}
