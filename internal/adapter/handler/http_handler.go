package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/auth"
	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/core/service"
	"github.com/rl1809/collectible-trade/internal/port"
)

const (
	defaultRecordLimit = 20
	maxRecordLimit     = 100
)

type HTTPHandler struct {
	trades    *service.TradeService
	inventory port.InventoryRepository
	records   port.TradeRepository
	logger    *zap.Logger
}

type StartTradeHTTPRequest struct {
	RecipientID string `json:"recipient_id"`
}

type SelectItemHTTPRequest struct {
	ItemID string `json:"item_id"`
}

type ProposeQuantityHTTPRequest struct {
	Quantity *int `json:"quantity"`
}

// TradeHTTPResponse is a stage view plus the parties it is waiting for.
type TradeHTTPResponse struct {
	domain.StageView
	Awaiting []domain.Party `json:"awaiting"`
}

type ErrorHTTPResponse struct {
	Error string             `json:"error"`
	Code  string             `json:"code"`
	Trade *TradeHTTPResponse `json:"trade,omitempty"`
}

func NewHTTPHandler(
	trades *service.TradeService,
	inventory port.InventoryRepository,
	records port.TradeRepository,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{trades: trades, inventory: inventory, records: records, logger: logger}
}

// Routes mounts the API. Everything under /api requires a bearer token.
func (h *HTTPHandler) Routes(jwtService *auth.JWTService) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/trades", h.StartTrade)
	api.HandleFunc("GET /api/trades/{id}", h.GetTrade)
	api.HandleFunc("POST /api/trades/{id}/select", h.SelectItem)
	api.HandleFunc("POST /api/trades/{id}/quantity", h.ProposeQuantity)
	api.HandleFunc("POST /api/trades/{id}/confirm", h.Confirm)
	api.HandleFunc("POST /api/trades/{id}/decline", h.Decline)
	api.HandleFunc("POST /api/trades/{id}/cancel", h.Cancel)
	api.HandleFunc("GET /api/holdings", h.ListHoldings)
	api.HandleFunc("GET /api/records", h.ListRecords)
	api.HandleFunc("GET /api/records/{id}", h.GetRecord)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("/api/", auth.Middleware(jwtService)(api))
	return mux
}

func (h *HTTPHandler) StartTrade(w http.ResponseWriter, r *http.Request) {
	var req StartTradeHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RecipientID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "missing recipient_id", Code: "bad_request"})
		return
	}

	view, err := h.trades.Start(r.Context(), auth.UserID(r.Context()), req.RecipientID)
	h.respond(w, http.StatusCreated, view, err)
}

func (h *HTTPHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	view, err := h.trades.Get(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) SelectItem(w http.ResponseWriter, r *http.Request) {
	var req SelectItemHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.trades.SelectItem(r.Context(), r.PathValue("id"), auth.UserID(r.Context()), req.ItemID)
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) ProposeQuantity(w http.ResponseWriter, r *http.Request) {
	var req ProposeQuantityHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "missing quantity", Code: "bad_request"})
		return
	}
	view, err := h.trades.ProposeQuantity(r.Context(), r.PathValue("id"), auth.UserID(r.Context()), *req.Quantity)
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	view, err := h.trades.Confirm(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) Decline(w http.ResponseWriter, r *http.Request) {
	view, err := h.trades.Decline(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	view, err := h.trades.Cancel(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	h.respond(w, http.StatusOK, view, err)
}

func (h *HTTPHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.inventory.ListHoldings(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, errors.Join(domain.ErrStoreUnavailable, err), nil)
		return
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (h *HTTPHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "limit must be a positive integer", Code: "bad_request"})
			return
		}
		limit = min(n, maxRecordLimit)
	}

	records, err := h.records.ListTrades(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		h.writeError(w, errors.Join(domain.ErrStoreUnavailable, err), nil)
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetRecord only reveals records the caller took part in.
func (h *HTTPHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.records.GetTrade(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, errors.Join(domain.ErrStoreUnavailable, err), nil)
		return
	}
	if record == nil || !record.Involves(auth.UserID(r.Context())) {
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: "trade record not found", Code: "record_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.trades.ActiveSessions(),
	})
}

func (h *HTTPHandler) respond(w http.ResponseWriter, status int, view domain.StageView, err error) {
	if err != nil {
		var trade *TradeHTTPResponse
		if view.SessionID != "" {
			resp := newTradeHTTPResponse(view)
			trade = &resp
		}
		h.writeError(w, err, trade)
		return
	}
	writeJSON(w, status, newTradeHTTPResponse(view))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, trade *TradeHTTPResponse) {
	c := classify(err)
	if c.status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", c.code), zap.Error(err))
	}
	writeJSON(w, c.status, ErrorHTTPResponse{Error: err.Error(), Code: c.code, Trade: trade})
}

func newTradeHTTPResponse(view domain.StageView) TradeHTTPResponse {
	awaiting := view.Awaiting()
	if awaiting == nil {
		awaiting = []domain.Party{}
	}
	return TradeHTTPResponse{StageView: view, Awaiting: awaiting}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body", Code: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
