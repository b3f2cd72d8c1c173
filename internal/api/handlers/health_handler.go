package handlers

import (
	"context"
	"net/http"
	"time"

	"propdesk/internal/market"
	"propdesk/internal/risk"
)

// Статусы health check
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// DBPinger - проверка доступности БД (*sql.DB)
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// HealthDeps - компоненты, состояние которых попадает в /health
// Любое поле может быть nil
type HealthDeps struct {
	DB        DBPinger
	Monitor   interface{ Status() risk.MonitorStatus }
	Pipeline  interface{ Stats() market.PipelineStats }
	Hub       interface{ ClientCount() int }
	FeedState func() string
}

// HealthHandler отдаёт сводку состояния сервиса
//
// GET /health
//
// 200 - всё работает, 503 - БД недоступна или монитор остановлен
type HealthHandler struct {
	deps    HealthDeps
	started time.Time
}

// NewHealthHandler создает HealthHandler
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps, started: time.Now()}
}

// HealthResponse - ответ /health
type HealthResponse struct {
	Status   string                `json:"status"`
	Uptime   string                `json:"uptime"`
	Database string                `json:"database,omitempty"`
	Feed     string                `json:"feed,omitempty"`
	Clients  int                   `json:"ws_clients"`
	Monitor  *risk.MonitorStatus   `json:"monitor,omitempty"`
	Pipeline *market.PipelineStats `json:"pipeline,omitempty"`
}

// Health проверяет компоненты
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: HealthOK,
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	}

	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.DB.PingContext(ctx)
		cancel()
		if err != nil {
			resp.Status = HealthDegraded
			resp.Database = "unavailable: " + err.Error()
		} else {
			resp.Database = "ok"
		}
	}

	if h.deps.Monitor != nil {
		st := h.deps.Monitor.Status()
		resp.Monitor = &st
		if st.Stopped {
			resp.Status = HealthDegraded
		}
	}

	if h.deps.Pipeline != nil {
		stats := h.deps.Pipeline.Stats()
		resp.Pipeline = &stats
	}

	if h.deps.Hub != nil {
		resp.Clients = h.deps.Hub.ClientCount()
	}

	if h.deps.FeedState != nil {
		resp.Feed = h.deps.FeedState()
	}

	code := http.StatusOK
	if resp.Status != HealthOK {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}
