package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/service"
)

// ============ RiskHandler Tests ============

func newRiskMock() *MockRiskService {
	return &MockRiskService{
		latest: []models.RiskAssessment{
			{AccountID: "acc-1", LossAmount: 9000, MaxAllowedLoss: 10000, UsagePct: 90, MaxLossLimit: 90000},
			{AccountID: "acc-2", LossAmount: 11000, MaxAllowedLoss: 10000, UsagePct: 100, IsDanger: true, MaxLossLimit: 90000},
		},
		status: risk.MonitorStatus{State: risk.StateIdle, Cycles: 7},
	}
}

func TestRiskHandler_GetRisk(t *testing.T) {
	handler := NewRiskHandler(newRiskMock())

	tests := []struct {
		name      string
		query     string
		wantTotal int
	}{
		{"all accounts", "", 2},
		{"only danger", "?danger=true", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.GetRisk(w, httptest.NewRequest(http.MethodGet, "/api/v1/risk"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}

			var response RiskListResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Total != tt.wantTotal || len(response.Assessments) != tt.wantTotal {
				t.Errorf("total = %d, want %d", response.Total, tt.wantTotal)
			}
			if response.DangerCount != 1 {
				t.Errorf("danger_count = %d, want 1", response.DangerCount)
			}
			if response.Monitor.Cycles != 7 {
				t.Errorf("monitor = %+v", response.Monitor)
			}
		})
	}
}

func TestRiskHandler_GetRiskEmpty(t *testing.T) {
	handler := NewRiskHandler(&MockRiskService{})

	w := httptest.NewRecorder()
	handler.GetRisk(w, httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil))

	// до первой публикации отдаём пустой массив, а не null
	if !strings.Contains(w.Body.String(), `"assessments":[]`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestRiskHandler_GetAccountRisk(t *testing.T) {
	handler := NewRiskHandler(newRiskMock())

	tests := []struct {
		name       string
		accountID  string
		wantStatus int
	}{
		{"found", "acc-2", http.StatusOK},
		{"not found", "acc-9", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/"+tt.accountID, nil)
			req = mux.SetURLVars(req, map[string]string{"accountId": tt.accountID})
			w := httptest.NewRecorder()

			handler.GetAccountRisk(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusOK {
				var a models.RiskAssessment
				if err := json.NewDecoder(w.Body).Decode(&a); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if !a.IsDanger || a.AccountID != "acc-2" {
					t.Errorf("unexpected assessment: %+v", a)
				}
			}
		})
	}
}

func TestRiskHandler_GetAccountRiskHistory(t *testing.T) {
	mockSvc := newRiskMock()
	mockSvc.history = []repository.AssessmentRecord{
		{RiskAssessment: models.RiskAssessment{AccountID: "acc-1", UsagePct: 90}},
	}
	handler := NewRiskHandler(mockSvc)

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/acc-1/history?limit=5", nil)
		req = mux.SetURLVars(req, map[string]string{"accountId": "acc-1"})
		w := httptest.NewRecorder()
		handler.GetAccountRiskHistory(w, req)
		return w
	}

	if w := call(); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	mockSvc.historyErr = service.ErrNoAssessmentStore
	if w := call(); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	mockSvc.historyErr = errors.New("db down")
	if w := call(); w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestRiskHandler_EvaluateRisk(t *testing.T) {
	handler := NewRiskHandler(newRiskMock())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDanger []bool
	}{
		{
			name:       "envelope",
			body:       `{"accounts":[{"account_id":"a","starting_size":100000,"equity":91000}]}`,
			wantStatus: http.StatusOK,
			wantDanger: []bool{false},
		},
		{
			name:       "bare array keeps order",
			body:       `[{"account_id":"a","starting_size":"100000","equity":"89000"},{"account_id":"b","starting_size":100000,"equity":99000,"is_danger":true}]`,
			wantStatus: http.StatusOK,
			wantDanger: []bool{true, true},
		},
		{
			name:       "garbage values are not errors",
			body:       `[{"account_id":"a","starting_size":"oops","equity":null}]`,
			wantStatus: http.StatusOK,
			wantDanger: []bool{false},
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not json",
			body:       `accounts`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/evaluate", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.EvaluateRisk(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response EvaluateResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(response.Assessments) != len(tt.wantDanger) {
				t.Fatalf("len = %d, want %d", len(response.Assessments), len(tt.wantDanger))
			}
			for i, want := range tt.wantDanger {
				if response.Assessments[i].IsDanger != want {
					t.Errorf("[%d] is_danger = %v, want %v", i, response.Assessments[i].IsDanger, want)
				}
			}
		})
	}
}
