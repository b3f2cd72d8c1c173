package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"propdesk/internal/market"
	"propdesk/internal/models"
	"propdesk/internal/service"
	"propdesk/pkg/utils"
)

// maxValuatePositions - лимит позиций в одном запросе оценки
const maxValuatePositions = 1000

// MarketHandler отвечает за котировки, свечи и оценку позиций
//
// Endpoints:
// - GET /api/v1/instruments - список инструментов
// - GET /api/v1/candles/{instrument}?interval=1m&limit=200 - история свечей
// - GET /api/v1/prices - последние цены
// - POST /api/v1/positions/valuate - плавающий PNL переданных позиций
// - GET /api/v1/accounts/{id}/positions - открытые позиции счёта с PNL
type MarketHandler struct {
	marketService service.MarketServiceInterface
}

// NewMarketHandler создает новый MarketHandler с внедрением зависимости
func NewMarketHandler(marketService service.MarketServiceInterface) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// InstrumentsResponse - список инструментов и поддерживаемых интервалов
type InstrumentsResponse struct {
	Instruments []string `json:"instruments"`
	Intervals   []string `json:"intervals"`
}

// GetInstruments возвращает инструменты с данными
//
// GET /api/v1/instruments
func (h *MarketHandler) GetInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.marketService.Instruments(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to get instruments: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, InstrumentsResponse{
		Instruments: instruments,
		Intervals:   market.IntervalNames,
	})
}

// CandlesResponse - свечи инструмента
type CandlesResponse struct {
	Instrument string          `json:"instrument"`
	Interval   string          `json:"interval,omitempty"`
	Candles    []models.Candle `json:"candles"`
}

// GetCandles возвращает историю свечей
//
// GET /api/v1/candles/{instrument}
//
// Query параметры:
// - interval (string): 1s, 5s, 15s, 1m, 5m, 15m, 1h; пусто - базовый период
// - limit (int): количество последних свечей (по умолчанию 500)
//
// HTTP коды:
// - 200 OK
// - 400 Bad Request: невалидный инструмент или интервал
// - 500 Internal Server Error
func (h *MarketHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]
	interval := r.URL.Query().Get("interval")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	candles, err := h.marketService.Candles(r.Context(), instrument, interval, limit)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrInvalidInstrument), errors.Is(err, market.ErrUnknownInterval):
			respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to get candles: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, CandlesResponse{
		Instrument: utils.NormalizeInstrument(instrument),
		Interval:   interval,
		Candles:    candles,
	})
}

// GetPrices возвращает последние цены
//
// GET /api/v1/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"prices": h.marketService.Prices(),
	})
}

// ValuateRequest - книга позиций; принимается также голый массив
type ValuateRequest struct {
	Positions []models.Position `json:"positions"`
}

// PositionsResponse - позиции с плавающим PNL
type PositionsResponse struct {
	Positions []models.PositionValue `json:"positions"`
	TotalPNL  float64                `json:"total_pnl"`
}

// ValuatePositions считает PNL переданных позиций по последним ценам
//
// POST /api/v1/positions/valuate
//
// Невалидные цены или лоты не ошибка: такие позиции получают PNL 0
func (h *MarketHandler) ValuatePositions(w http.ResponseWriter, r *http.Request) {
	var req ValuateRequest
	if err := decodeList(r, &req.Positions, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Positions) > maxValuatePositions {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest,
			"too many positions, max "+strconv.Itoa(maxValuatePositions))
		return
	}

	respondWithJSON(w, http.StatusOK, newPositionsResponse(h.marketService.Valuate(req.Positions)))
}

// GetAccountPositions возвращает открытые позиции счёта
//
// GET /api/v1/accounts/{id}/positions
//
// HTTP коды:
// - 200 OK
// - 400 Bad Request: невалидный id
// - 503 Service Unavailable: нет источника позиций
func (h *MarketHandler) GetAccountPositions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	values, err := h.marketService.AccountPositions(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrInvalidAccountID):
			respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		case errors.Is(err, service.ErrNoPositionSource):
			respondWithError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to get positions: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, newPositionsResponse(values))
}

func newPositionsResponse(values []models.PositionValue) PositionsResponse {
	resp := PositionsResponse{Positions: values}
	if resp.Positions == nil {
		resp.Positions = []models.PositionValue{}
	}
	for _, v := range values {
		resp.TotalPNL += v.PNL
	}
	return resp
}
