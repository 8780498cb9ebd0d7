package projectx

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/topsignal/trader-go/pkg/timeutil"
)

// Account is a tradeable upstream account.
type Account struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	Status  string  `json:"status"`
}

// TradeEvent is one normalized execution row from the gateway. PnL is nil
// for the opening half-turn of a position; the gateway only reports realized
// P&L on the closing fill.
type TradeEvent struct {
	AccountID      int64                  `json:"account_id"`
	ContractID     string                 `json:"contract_id"`
	Symbol         string                 `json:"symbol"`
	Side           string                 `json:"side"`
	Size           float64                `json:"size"`
	Price          float64                `json:"price"`
	Timestamp      time.Time              `json:"timestamp"`
	Fees           float64                `json:"fees"`
	PnL            *float64               `json:"pnl"`
	OrderID        string                 `json:"order_id"`
	SourceTradeID  string                 `json:"source_trade_id"`
	Status         string                 `json:"status"`
	Voided         bool                   `json:"-"`
	Raw            map[string]interface{} `json:"-"`
}

// NormalizeSide maps the side variants the gateway emits onto BUY/SELL.
// Numeric sides follow the gateway enum: 0 is a buy, 1 is a sell.
func NormalizeSide(raw interface{}) string {
	if s, ok := raw.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "BUY", "LONG", "BID":
			return "BUY"
		case "SELL", "SHORT", "ASK":
			return "SELL"
		}
		return "UNKNOWN"
	}

	if numeric, ok := asFloat(raw); ok {
		switch int(numeric) {
		case 0:
			return "BUY"
		case 1:
			return "SELL"
		}
	}
	return "UNKNOWN"
}

// NormalizeTradeEvent coerces a raw gateway row into a TradeEvent. Returns
// ok=false when the row has no parseable timestamp. Voided rows come back
// with Voided=true so callers can decide whether to drop them.
func NormalizeTradeEvent(row map[string]interface{}, fallbackAccountID int64) (TradeEvent, bool) {
	timestamp, ok := timeutil.ParseTimestamp(firstValue(row, []string{
		"creationTimestamp", "timestamp", "createdAt", "updatedAt",
	}))
	if !ok {
		return TradeEvent{}, false
	}

	accountID := fallbackAccountID
	if id, ok := safeInt(firstValue(row, []string{"accountId", "account_id"})); ok {
		accountID = id
	}

	sourceTradeID := stringOrEmpty(firstValue(row, []string{"id", "tradeId", "executionId"}))
	orderID := stringOrEmpty(firstValue(row, []string{"orderId", "order_id"}))
	if orderID == "" {
		// Keep dedupe stable even if orderId is omitted.
		orderID = sourceTradeID
		if orderID == "" {
			orderID = fmt.Sprintf("fallback-%d", timestamp.UnixMilli())
		}
	}

	contractID := stringOrEmpty(firstValue(row, []string{"contractId", "contract_id", "symbolId", "symbol"}))
	if contractID == "" {
		contractID = "UNKNOWN"
	}
	symbol := stringOrEmpty(firstValue(row, []string{"symbol", "symbolId", "contractSymbol", "contractId"}))
	if symbol == "" {
		symbol = contractID
	}

	var pnl *float64
	if raw := firstValue(row, []string{"profitAndLoss", "pnl", "realizedPnl"}); raw != nil {
		value := safeFloat(raw)
		pnl = &value
	}

	return TradeEvent{
		AccountID:     accountID,
		ContractID:    contractID,
		Symbol:        symbol,
		Side:          NormalizeSide(firstValue(row, []string{"side", "direction", "positionSide"})),
		Size:          safeFloat(firstValue(row, []string{"size", "quantity", "qty"})),
		Price:         safeFloat(firstValue(row, []string{"price", "fillPrice", "averagePrice"})),
		Timestamp:     timestamp,
		Fees:          safeFloat(firstValue(row, []string{"fees", "commission", "totalFees"})),
		PnL:           pnl,
		OrderID:       orderID,
		SourceTradeID: sourceTradeID,
		Status:        stringOrEmpty(firstValue(row, []string{"status", "tradeStatus", "state"})),
		Voided:        isTruthy(firstValue(row, []string{"voided", "isVoided", "is_voided"})),
		Raw:           row,
	}, true
}

func firstValue(payload map[string]interface{}, keys []string) interface{} {
	for _, key := range keys {
		if value, ok := payload[key]; ok {
			return value
		}
	}
	return nil
}

func unwrapList(payload interface{}, preferredKeys []string) []interface{} {
	if list, ok := payload.([]interface{}); ok {
		return list
	}
	if obj, ok := payload.(map[string]interface{}); ok {
		for _, key := range preferredKeys {
			if list, ok := obj[key].([]interface{}); ok {
				return list
			}
		}
	}
	return nil
}

func safeFloat(value interface{}) float64 {
	if f, ok := asFloat(value); ok {
		return f
	}
	if s, ok := value.(string); ok {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err == nil {
			return f
		}
	}
	return 0
}

func safeInt(value interface{}) (int64, bool) {
	if f, ok := asFloat(value); ok {
		return int64(f), true
	}
	if s, ok := value.(string); ok {
		var i int64
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// stringOrEmpty renders identifiers that arrive as JSON numbers without
// scientific notation, so numeric trade ids survive the round trip.
func stringOrEmpty(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
	}
	return false
}
