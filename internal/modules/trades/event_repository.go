package trades

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/pkg/timeutil"
)

// executor is satisfied by both *sql.DB and *sql.Tx so batch writes can run
// inside a caller-owned transaction.
type executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Voided executions stay in the table for audit but are excluded from every
// read path. json_extract yields integer 1 for JSON true, so both spellings
// are checked.
const notVoided = `lower(coalesce(cast(json_extract(raw_payload, '$.voided') as text), 'false')) NOT IN ('1', 'true')`

const eventColumns = `id, account_id, contract_id, coalesce(symbol, ''), side, size, price,
	trade_timestamp, fees, pnl, order_id, coalesce(source_trade_id, ''), status, raw_payload, created_at`

// EventRepository persists mirrored trade executions.
type EventRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log.With().Str("repository", "trade_events").Logger(),
	}
}

// StoreTradeEvents upserts a fetched batch. Voided events are dropped and
// the batch is ordered by (timestamp, order id) first, so duplicate
// identities collapse to the last-seen row regardless of input order.
// Identity is resolved in two tiers: by the gateway's own trade id when
// present, otherwise by the (account, order, timestamp) triple. Matched rows
// get their mutable fields refreshed; symbol is kept as first written. Runs
// against ex so callers can wrap a chunk in one transaction.
func (r *EventRepository) StoreTradeEvents(ex executor, events []projectx.TradeEvent) (inserted, updated int, err error) {
	batch := make([]projectx.TradeEvent, 0, len(events))
	for i := range events {
		if events[i].Voided {
			continue
		}
		batch = append(batch, events[i])
	}
	if len(batch) == 0 {
		return 0, 0, nil
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].Timestamp.Equal(batch[j].Timestamp) {
			return batch[i].Timestamp.Before(batch[j].Timestamp)
		}
		return batch[i].OrderID < batch[j].OrderID
	})

	bySource, byTriple, err := r.preloadIdentities(ex, batch)
	if err != nil {
		return 0, 0, err
	}

	for i := range batch {
		e := &batch[i]
		ts := timeutil.ISOUTC(e.Timestamp)

		var existingID int64
		if e.SourceTradeID != "" {
			existingID = bySource[sourceKey(e.AccountID, e.SourceTradeID)]
		}
		if existingID == 0 {
			existingID = byTriple[tripleKey(e.AccountID, e.OrderID, ts)]
		}

		if existingID != 0 {
			if err := r.updateEvent(ex, existingID, e); err != nil {
				return inserted, updated, err
			}
			if e.SourceTradeID != "" {
				bySource[sourceKey(e.AccountID, e.SourceTradeID)] = existingID
			}
			updated++
			continue
		}

		newID, err := r.insertEvent(ex, e, ts)
		if err != nil {
			return inserted, updated, err
		}
		if e.SourceTradeID != "" {
			bySource[sourceKey(e.AccountID, e.SourceTradeID)] = newID
		}
		byTriple[tripleKey(e.AccountID, e.OrderID, ts)] = newID
		inserted++
	}

	return inserted, updated, nil
}

// preloadIdentities loads the identity keys of rows the batch could collide
// with in one query: same accounts, matching source ids or overlapping
// timestamp range.
func (r *EventRepository) preloadIdentities(ex executor, events []projectx.TradeEvent) (map[string]int64, map[string]int64, error) {
	accountSet := map[int64]struct{}{}
	sourceIDs := []interface{}{}
	var minTS, maxTS string

	for i := range events {
		e := &events[i]
		accountSet[e.AccountID] = struct{}{}
		if e.SourceTradeID != "" {
			sourceIDs = append(sourceIDs, e.SourceTradeID)
		}
		ts := timeutil.ISOUTC(e.Timestamp)
		if minTS == "" || ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
	}

	accountArgs := make([]interface{}, 0, len(accountSet))
	for id := range accountSet {
		accountArgs = append(accountArgs, id)
	}

	conds := "trade_timestamp >= ? AND trade_timestamp <= ?"
	args := append(accountArgs, minTS, maxTS)
	if len(sourceIDs) > 0 {
		conds = fmt.Sprintf("(%s) OR source_trade_id IN (%s)", conds, placeholders(len(sourceIDs)))
		args = append(args, sourceIDs...)
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, order_id, trade_timestamp, coalesce(source_trade_id, '')
		FROM projectx_trade_events
		WHERE account_id IN (%s) AND (%s)`,
		placeholders(len(accountArgs)), conds)

	rows, err := ex.Query(query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("preloading trade identities: %w", err)
	}
	defer rows.Close()

	bySource := map[string]int64{}
	byTriple := map[string]int64{}
	for rows.Next() {
		var id, accountID int64
		var orderID, ts, sourceID string
		if err := rows.Scan(&id, &accountID, &orderID, &ts, &sourceID); err != nil {
			return nil, nil, err
		}
		if sourceID != "" {
			bySource[sourceKey(accountID, sourceID)] = id
		}
		byTriple[tripleKey(accountID, orderID, ts)] = id
	}
	return bySource, byTriple, rows.Err()
}

func (r *EventRepository) insertEvent(ex executor, e *projectx.TradeEvent, ts string) (int64, error) {
	result, err := ex.Exec(`
		INSERT INTO projectx_trade_events
			(account_id, contract_id, symbol, side, size, price, trade_timestamp,
			 fees, pnl, order_id, source_trade_id, status, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.ContractID, nullIfEmpty(e.Symbol), e.Side, e.Size, e.Price, ts,
		e.Fees, nullableFloat(e.PnL), e.OrderID, nullIfEmpty(e.SourceTradeID),
		e.Status, rawJSON(e), timeutil.ISOUTC(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("inserting trade event: %w", err)
	}
	return result.LastInsertId()
}

func (r *EventRepository) updateEvent(ex executor, id int64, e *projectx.TradeEvent) error {
	_, err := ex.Exec(`
		UPDATE projectx_trade_events
		SET side = ?, size = ?, price = ?, fees = ?, pnl = ?, raw_payload = ?,
		    status = coalesce(nullif(?, ''), status),
		    source_trade_id = coalesce(nullif(?, ''), source_trade_id)
		WHERE id = ?`,
		e.Side, e.Size, e.Price, e.Fees, nullableFloat(e.PnL), rawJSON(e),
		e.Status, e.SourceTradeID, id)
	if err != nil {
		return fmt.Errorf("updating trade event %d: %w", id, err)
	}
	return nil
}

// ListTradeEvents returns closed, non-voided executions newest first.
// symbolQuery is a case-insensitive substring match against the display
// symbol.
func (r *EventRepository) ListTradeEvents(accountID int64, limit int, start, end *time.Time, symbolQuery string) ([]TradeEvent, error) {
	conds := []string{"account_id = ?", notVoided, "pnl IS NOT NULL"}
	args := []interface{}{accountID}
	if start != nil {
		conds = append(conds, "trade_timestamp >= ?")
		args = append(args, timeutil.ISOUTC(*start))
	}
	if end != nil {
		conds = append(conds, "trade_timestamp <= ?")
		args = append(args, timeutil.ISOUTC(*end))
	}
	if symbolQuery != "" {
		conds = append(conds, "instr(lower(coalesce(symbol, contract_id)), ?) > 0")
		args = append(args, strings.ToLower(symbolQuery))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM projectx_trade_events
		WHERE %s
		ORDER BY trade_timestamp DESC, id DESC
		LIMIT ?`, eventColumns, strings.Join(conds, " AND "))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trade events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListForMetrics returns all non-voided executions in the window, open legs
// included, oldest first.
func (r *EventRepository) ListForMetrics(accountID int64, start, end *time.Time) ([]TradeEvent, error) {
	conds := []string{"account_id = ?", notVoided}
	args := []interface{}{accountID}
	if start != nil {
		conds = append(conds, "trade_timestamp >= ?")
		args = append(args, timeutil.ISOUTC(*start))
	}
	if end != nil {
		conds = append(conds, "trade_timestamp <= ?")
		args = append(args, timeutil.ISOUTC(*end))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM projectx_trade_events
		WHERE %s
		ORDER BY trade_timestamp ASC, id ASC`, eventColumns, strings.Join(conds, " AND "))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trade events for metrics: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// HasLocalTrades reports whether any non-voided execution exists for the
// account.
func (r *EventRepository) HasLocalTrades(accountID int64) (bool, error) {
	var one int
	err := r.db.QueryRow(fmt.Sprintf(`
		SELECT 1 FROM projectx_trade_events
		WHERE account_id = ? AND %s LIMIT 1`, notVoided), accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetLatestTradeTimestamp returns the newest non-voided execution timestamp,
// or nil when the account has no local data.
func (r *EventRepository) GetLatestTradeTimestamp(accountID int64) (*time.Time, error) {
	return r.boundaryTimestamp(accountID, "MAX")
}

// GetEarliestTradeTimestamp returns the oldest non-voided execution
// timestamp, or nil when the account has no local data.
func (r *EventRepository) GetEarliestTradeTimestamp(accountID int64) (*time.Time, error) {
	return r.boundaryTimestamp(accountID, "MIN")
}

func (r *EventRepository) boundaryTimestamp(accountID int64, fn string) (*time.Time, error) {
	var ts sql.NullString
	err := r.db.QueryRow(fmt.Sprintf(`
		SELECT %s(trade_timestamp) FROM projectx_trade_events
		WHERE account_id = ? AND %s`, fn, notVoided), accountID).Scan(&ts)
	if err != nil {
		return nil, err
	}
	if !ts.Valid || ts.String == "" {
		return nil, nil
	}
	t, ok := timeutil.ParseISO(ts.String)
	if !ok {
		return nil, fmt.Errorf("unparseable stored timestamp %q", ts.String)
	}
	return &t, nil
}

// CountEventsOnDay counts non-voided executions on a UTC calendar day.
func (r *EventRepository) CountEventsOnDay(accountID int64, day time.Time) (int, error) {
	start, end := timeutil.DayBounds(day)
	var count int
	err := r.db.QueryRow(fmt.Sprintf(`
		SELECT COUNT(*) FROM projectx_trade_events
		WHERE account_id = ? AND %s AND trade_timestamp >= ? AND trade_timestamp <= ?`, notVoided),
		accountID, timeutil.ISOUTC(start), timeutil.ISOUTC(end)).Scan(&count)
	return count, err
}

// CountEvents returns the total number of stored executions, voided rows
// included.
func (r *EventRepository) CountEvents() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM projectx_trade_events`).Scan(&count)
	return count, err
}

func scanEvents(rows *sql.Rows) ([]TradeEvent, error) {
	var events []TradeEvent
	for rows.Next() {
		var e TradeEvent
		var ts, created string
		var pnl sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.AccountID, &e.ContractID, &e.Symbol, &e.Side,
			&e.Size, &e.Price, &ts, &e.Fees, &pnl, &e.OrderID, &e.SourceTradeID,
			&e.Status, &e.RawPayload, &created); err != nil {
			return nil, err
		}
		if t, ok := timeutil.ParseISO(ts); ok {
			e.TradeTimestamp = t
		}
		if t, ok := timeutil.ParseISO(created); ok {
			e.CreatedAt = t
		}
		if pnl.Valid {
			v := pnl.Float64
			e.PnL = &v
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func sourceKey(accountID int64, sourceID string) string {
	return fmt.Sprintf("%d|%s", accountID, sourceID)
}

func tripleKey(accountID int64, orderID, ts string) string {
	return fmt.Sprintf("%d|%s|%s", accountID, orderID, ts)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func rawJSON(e *projectx.TradeEvent) string {
	if e.Raw == nil {
		return "{}"
	}
	data, err := json.Marshal(e.Raw)
	if err != nil {
		return "{}"
	}
	return string(data)
}
