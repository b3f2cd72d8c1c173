package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/pkg/utils"
)

// Ошибки сервиса рисков
var (
	ErrAccountNotAssessed = errors.New("account not present in latest assessments")
	ErrNoAssessmentStore  = errors.New("assessment history is not persisted")
)

// RiskService - чтение опубликованных оценок риска и разовые расчёты
//
// Сам цикл опроса живёт в risk.Monitor; сервис только читает его последний
// список и, если подключено хранилище, пишет аудит публикаций.
type RiskService struct {
	source  AssessmentSource
	store   AssessmentStore // может быть nil
	tracker *risk.DangerTracker
	notify  *NotificationService // может быть nil
	logger  *zap.Logger
}

// NewRiskService создает новый экземпляр RiskService.
func NewRiskService(store AssessmentStore, logger *zap.Logger) *RiskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskService{
		store:   store,
		tracker: risk.NewDangerTracker(),
		logger:  logger.With(utils.Component("risk_service")),
	}
}

// SetSource подключает монитор после его запуска
//
// Вызывается в main.go:
//
//	riskService := service.NewRiskService(assessmentRepo, logger)
//	monitor := risk.Start(ctx, cfg, fetcher, riskService.HandleUpdate)
//	riskService.SetSource(monitor)
func (s *RiskService) SetSource(source AssessmentSource) {
	s.source = source
}

// SetNotificationService включает уведомления о входе в опасную зону и выходе из неё
func (s *RiskService) SetNotificationService(n *NotificationService) {
	s.notify = n
}

// Latest возвращает последний опубликованный список (пустой до первой публикации)
func (s *RiskService) Latest() []models.RiskAssessment {
	if s.source == nil {
		return []models.RiskAssessment{}
	}
	if latest := s.source.Latest(); latest != nil {
		return latest
	}
	return []models.RiskAssessment{}
}

// Account возвращает оценку одного счёта из последнего списка
func (s *RiskService) Account(accountID string) (*models.RiskAssessment, error) {
	for _, a := range s.Latest() {
		if a.AccountID == accountID {
			a := a
			return &a, nil
		}
	}
	return nil, ErrAccountNotAssessed
}

// Evaluate считает оценки для переданных снимков без публикации
func (s *RiskService) Evaluate(snapshots []models.AccountSnapshot) []models.RiskAssessment {
	return risk.EvaluateAll(snapshots)
}

// History возвращает сохранённые оценки счёта
func (s *RiskService) History(ctx context.Context, accountID string, limit int) ([]repository.AssessmentRecord, error) {
	if s.store == nil {
		return nil, ErrNoAssessmentStore
	}
	return s.store.GetHistory(ctx, accountID, limit)
}

// Status возвращает состояние монитора
func (s *RiskService) Status() risk.MonitorStatus {
	if s.source == nil {
		return risk.MonitorStatus{State: risk.StateIdle, Stopped: true}
	}
	return s.source.Status()
}

// DangerCount - количество счетов в опасной зоне по последней публикации
func (s *RiskService) DangerCount() int {
	return s.tracker.InDanger()
}

// HandleUpdate - обработчик публикации монитора
//
// Вызывается под мьютексом монитора, поэтому запись в БД и создание
// уведомлений ограничены таймаутом.
func (s *RiskService) HandleUpdate(assessments []models.RiskAssessment) {
	transitions := s.tracker.Observe(assessments)

	if s.store == nil && (s.notify == nil || len(transitions) == 0) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Append(ctx, time.Now().UTC(), assessments); err != nil {
			s.logger.Warn("failed to persist assessments", zap.Error(err), zap.Int("accounts", len(assessments)))
		}
	}

	if s.notify == nil {
		return
	}
	for i := range transitions {
		n := transitions[i]
		if err := s.notify.CreateNotification(ctx, &n); err != nil {
			s.logger.Warn("failed to create risk notification",
				utils.AccountID(*n.AccountID),
				zap.String("type", n.Type),
				zap.Error(err),
			)
		}
	}
}
