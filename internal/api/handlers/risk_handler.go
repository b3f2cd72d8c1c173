package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/service"
)

// maxEvaluateSnapshots - лимит снимков в одном запросе оценки
const maxEvaluateSnapshots = 1000

// RiskHandler отвечает за оценки риска фондированных счетов
//
// Endpoints:
// - GET /api/v1/risk - последний опубликованный список
// - GET /api/v1/risk/{accountId} - оценка одного счёта
// - GET /api/v1/risk/{accountId}/history - сохранённые оценки счёта
// - POST /api/v1/risk/evaluate - разовый расчёт по переданным снимкам
type RiskHandler struct {
	riskService service.RiskServiceInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(riskService service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{riskService: riskService}
}

// RiskListResponse - список оценок с состоянием монитора
type RiskListResponse struct {
	Assessments []models.RiskAssessment `json:"assessments"`
	Total       int                     `json:"total"`
	DangerCount int                     `json:"danger_count"`
	Monitor     risk.MonitorStatus      `json:"monitor"`
}

// GetRisk возвращает последний опубликованный список оценок
//
// GET /api/v1/risk
//
// Query параметры:
// - danger (bool): только счета в опасной зоне
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	onlyDanger, _ := strconv.ParseBool(r.URL.Query().Get("danger"))

	latest := h.riskService.Latest()
	danger := 0
	out := make([]models.RiskAssessment, 0, len(latest))
	for _, a := range latest {
		if a.IsDanger {
			danger++
		} else if onlyDanger {
			continue
		}
		out = append(out, a)
	}

	respondWithJSON(w, http.StatusOK, RiskListResponse{
		Assessments: out,
		Total:       len(out),
		DangerCount: danger,
		Monitor:     h.riskService.Status(),
	})
}

// GetAccountRisk возвращает оценку одного счёта
//
// GET /api/v1/risk/{accountId}
//
// HTTP коды:
// - 200 OK
// - 404 Not Found: счёта нет в последнем списке
func (h *RiskHandler) GetAccountRisk(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	assessment, err := h.riskService.Account(accountID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotAssessed) {
			respondWithError(w, http.StatusNotFound, CodeNotFound, "account "+accountID+" not found in latest assessments")
			return
		}
		respondWithError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, assessment)
}

// RiskHistoryResponse - сохранённые оценки счёта
type RiskHistoryResponse struct {
	AccountID string                        `json:"account_id"`
	History   []repository.AssessmentRecord `json:"history"`
}

// GetAccountRiskHistory возвращает сохранённые оценки счёта, новые первыми
//
// GET /api/v1/risk/{accountId}/history?limit=100
//
// HTTP коды:
// - 200 OK
// - 503 Service Unavailable: аудит оценок не ведётся (нет БД)
func (h *RiskHandler) GetAccountRiskHistory(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.riskService.History(r.Context(), accountID, limit)
	if err != nil {
		if errors.Is(err, service.ErrNoAssessmentStore) {
			respondWithError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to get history: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, RiskHistoryResponse{AccountID: accountID, History: history})
}

// EvaluateRequest - снимки счетов; принимается также голый массив
type EvaluateRequest struct {
	Accounts []models.AccountSnapshot `json:"accounts"`
}

// EvaluateResponse - рассчитанные оценки в порядке снимков
type EvaluateResponse struct {
	Assessments []models.RiskAssessment `json:"assessments"`
}

// EvaluateRisk считает оценки по переданным снимкам без публикации
//
// POST /api/v1/risk/evaluate
func (h *RiskHandler) EvaluateRisk(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeList(r, &req.Accounts, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Accounts) > maxEvaluateSnapshots {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest,
			"too many accounts, max "+strconv.Itoa(maxEvaluateSnapshots))
		return
	}

	respondWithJSON(w, http.StatusOK, EvaluateResponse{
		Assessments: h.riskService.Evaluate(req.Accounts),
	})
}
