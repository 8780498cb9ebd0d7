package trades

import (
	"fmt"
	"time"

	"github.com/topsignal/trader-go/internal/modules/analytics"
)

// Day-sync states. A day is complete only after a full non-truncated page
// walk, and today can never be complete.
const (
	SyncStatusPartial  = "partial"
	SyncStatusComplete = "complete"
)

// TradeEvent is a persisted execution row mirrored from the gateway.
// PnL is nil for open-leg rows.
type TradeEvent struct {
	ID             int64
	AccountID      int64
	ContractID     string
	Symbol         string
	Side           string
	Size           float64
	Price          float64
	TradeTimestamp time.Time
	Fees           float64
	PnL            *float64
	OrderID        string
	SourceTradeID  string
	Status         string
	RawPayload     string
	CreatedAt      time.Time
}

// DisplaySymbol falls back to the contract id when the gateway omitted a
// symbol.
func (e *TradeEvent) DisplaySymbol() string {
	if e.Symbol != "" {
		return e.Symbol
	}
	return e.ContractID
}

// MetricSample prepares the row for the metrics engine. The stored fee is
// per leg; a closing row represents a round trip whose entry fee was charged
// on a separate open-leg event, so its fee is doubled here.
func (e *TradeEvent) MetricSample() analytics.Sample {
	fees := e.Fees
	if e.PnL != nil {
		fees *= 2
	}
	return analytics.Sample{
		Timestamp: e.TradeTimestamp,
		PnL:       e.PnL,
		Fees:      fees,
		OrderID:   e.OrderID,
		Symbol:    e.DisplaySymbol(),
		Side:      e.Side,
		Size:      e.Size,
		Price:     e.Price,
	}
}

// ListedTrade is the JSON shape served to the HTTP adapter.
type ListedTrade struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	ContractID string    `json:"contract_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	Fees       float64   `json:"fees"`
	PnL        *float64  `json:"pnl"`
	OrderID    string    `json:"order_id"`
}

// Serialize builds the API view of a row.
func (e *TradeEvent) Serialize() ListedTrade {
	return ListedTrade{
		ID:         e.ID,
		AccountID:  e.AccountID,
		ContractID: e.ContractID,
		Symbol:     e.DisplaySymbol(),
		Side:       e.Side,
		Size:       e.Size,
		Price:      e.Price,
		Timestamp:  e.TradeTimestamp,
		Fees:       e.Fees,
		PnL:        e.PnL,
		OrderID:    e.OrderID,
	}
}

// DaySync is the per-account, per-UTC-date sync bookkeeping row.
type DaySync struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	TradeDate    string    `json:"trade_date"`
	SyncStatus   string    `json:"sync_status"`
	RowCount     int       `json:"row_count"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidationError marks caller mistakes rejected before any I/O; the HTTP
// adapter maps it to a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
