package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"propdesk/internal/api/handlers"
	"propdesk/internal/api/middleware"
	"propdesk/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	MarketService       service.MarketServiceInterface
	RiskService         service.RiskServiceInterface
	NotificationService service.NotificationServiceInterface

	// WebSocket endpoint (websocket.Hub)
	Stream http.Handler

	Health      handlers.HealthDeps
	CORSOrigins []string
	Logger      *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET /instruments - инструменты и интервалы
//	├── GET /candles/{instrument} - история свечей (?interval=&limit=)
//	├── GET /prices - последние цены
//	├── POST /positions/valuate - PNL переданных позиций
//	├── GET /accounts/{id}/positions - открытые позиции счёта
//	├── /risk/
//	│   ├── GET / - последний список оценок
//	│   ├── POST /evaluate - разовый расчёт
//	│   ├── GET /{accountId} - оценка счёта
//	│   └── GET /{accountId}/history - аудит оценок
//	└── /notifications/
//	    ├── GET / - получить уведомления
//	    └── DELETE / - очистить журнал
//
// /ws/stream - WebSocket: candleUpdate, riskUpdate, notification
// /metrics - prometheus
// /health - состояние компонентов
//
// Middleware применяется в следующем порядке:
// 1. Recovery
// 2. RequestID
// 3. Logging
// 4. CORS
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.CORSOrigins))

	api := router.PathPrefix("/api/v1").Subrouter()

	// Market routes
	if deps.MarketService != nil {
		marketHandler := handlers.NewMarketHandler(deps.MarketService)
		api.HandleFunc("/instruments", marketHandler.GetInstruments).Methods("GET")
		api.HandleFunc("/candles/{instrument}", marketHandler.GetCandles).Methods("GET")
		api.HandleFunc("/prices", marketHandler.GetPrices).Methods("GET")
		api.HandleFunc("/positions/valuate", marketHandler.ValuatePositions).Methods("POST")
		api.HandleFunc("/accounts/{id}/positions", marketHandler.GetAccountPositions).Methods("GET")
	}

	// Risk routes
	if deps.RiskService != nil {
		riskHandler := handlers.NewRiskHandler(deps.RiskService)
		api.HandleFunc("/risk", riskHandler.GetRisk).Methods("GET")
		api.HandleFunc("/risk/evaluate", riskHandler.EvaluateRisk).Methods("POST")
		api.HandleFunc("/risk/{accountId}", riskHandler.GetAccountRisk).Methods("GET")
		api.HandleFunc("/risk/{accountId}/history", riskHandler.GetAccountRiskHistory).Methods("GET")
	}

	// Notification routes
	if deps.NotificationService != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	// WebSocket route
	if deps.Stream != nil {
		router.Handle("/ws/stream", deps.Stream).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	healthHandler := handlers.NewHealthHandler(deps.Health)
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")

	// preflight: без этого маршрута mux ответит 405 до CORS middleware
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}
