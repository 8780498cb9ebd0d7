package trades

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/pkg/timeutil"
)

// Handler handles trade mirror HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new trades handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "trades").Logger(),
	}
}

// HandleListAccounts handles GET /accounts - tradable gateway accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts()
	if err != nil {
		h.respondError(w, err, "Failed to list accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// HandleRefreshTrades handles POST /accounts/{accountID}/trades/refresh
func (h *Handler) HandleRefreshTrades(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	result, err := h.service.RefreshAccountTrades(accountID, start, end)
	if err != nil {
		h.respondError(w, err, "Failed to refresh trades")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleListTrades handles GET /accounts/{accountID}/trades
func (h *Handler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	limit := 200
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > 1000 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit. Must be 1-1000")
			return
		}
		limit = l
	}
	symbol := r.URL.Query().Get("symbol")

	trades, err := h.service.ListTradeEvents(accountID, limit, start, end, symbol, refreshRequested(r))
	if err != nil {
		h.respondError(w, err, "Failed to list trades")
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// HandleTradeSummary handles GET /accounts/{accountID}/trades/summary
func (h *Handler) HandleTradeSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	summary, err := h.service.SummarizeTradeEvents(accountID, start, end, refreshRequested(r))
	if err != nil {
		h.respondError(w, err, "Failed to compute trade summary")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleTradeCalendar handles GET /accounts/{accountID}/trades/calendar
func (h *Handler) HandleTradeCalendar(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	calendar, err := h.service.TradeEventPnlCalendar(accountID, start, end, refreshRequested(r))
	if err != nil {
		h.respondError(w, err, "Failed to compute daily calendar")
		return
	}
	h.writeJSON(w, http.StatusOK, calendar)
}

// HandleStreakMetrics handles GET /accounts/{accountID}/metrics/streaks
func (h *Handler) HandleStreakMetrics(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	metrics, err := h.service.StreakMetrics(accountID, start, end, refreshRequested(r))
	if err != nil {
		h.respondError(w, err, "Failed to compute streak metrics")
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

// HandleBucketMetrics handles GET /accounts/{accountID}/metrics/buckets
func (h *Handler) HandleBucketMetrics(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	start, end, ok := h.timeWindow(w, r)
	if !ok {
		return
	}

	metrics, err := h.service.BucketMetrics(accountID, start, end, refreshRequested(r))
	if err != nil {
		h.respondError(w, err, "Failed to compute bucket metrics")
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

// accountID parses the {accountID} route parameter.
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "accountID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid account id %q", raw))
		return 0, false
	}
	return id, true
}

// timeWindow parses optional start/end query parameters as ISO-8601.
func (h *Handler) timeWindow(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	parse := func(name string) (*time.Time, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, true
		}
		t, ok := timeutil.ParseTimestamp(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid %s timestamp %q. Use ISO-8601", name, raw))
			return nil, false
		}
		return &t, true
	}

	start, ok := parse("start")
	if !ok {
		return nil, nil, false
	}
	end, ok := parse("end")
	if !ok {
		return nil, nil, false
	}
	return start, end, true
}

func refreshRequested(r *http.Request) bool {
	switch r.URL.Query().Get("refresh") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// respondError maps service errors onto HTTP statuses: caller mistakes are
// 400, gateway rejections are 502, everything else is 500.
func (h *Handler) respondError(w http.ResponseWriter, err error, logMsg string) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	var clientErr *projectx.ClientError
	if errors.As(err, &clientErr) {
		h.log.Error().Err(err).Msg(logMsg)
		if clientErr.StatusCode != nil {
			h.writeError(w, http.StatusBadGateway, clientErr.Message)
		} else {
			h.writeError(w, http.StatusInternalServerError, clientErr.Message)
		}
		return
	}

	h.log.Error().Err(err).Msg(logMsg)
	h.writeError(w, http.StatusInternalServerError, logMsg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
