package trades

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/internal/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "trades_test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchemas(InitSchema))
	t.Cleanup(func() { db.Close() })
	return db
}

func gwEvent(accountID int64, orderID, sourceID string, ts time.Time, pnl *float64) projectx.TradeEvent {
	return projectx.TradeEvent{
		AccountID:     accountID,
		ContractID:    "CON.F.US.EP.H24",
		Symbol:        "ES",
		Side:          "BUY",
		Size:          1,
		Price:         5000,
		Timestamp:     ts,
		Fees:          2.1,
		PnL:           pnl,
		OrderID:       orderID,
		SourceTradeID: sourceID,
		Raw:           map[string]interface{}{"id": sourceID},
	}
}

func pnlOf(v float64) *float64 { return &v }

func TestStoreTradeEvents_InsertThenIdempotentUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	batch := []projectx.TradeEvent{
		gwEvent(1001, "ord-1", "t-1", ts, nil),
		gwEvent(1001, "ord-2", "t-2", ts.Add(time.Minute), pnlOf(50)),
	}

	inserted, updated, err := repo.StoreTradeEvents(db.Conn(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, updated)

	// Re-storing the same batch must not create duplicates.
	inserted, updated, err = repo.StoreTradeEvents(db.Conn(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 2, updated)

	rows, err := repo.ListForMetrics(1001, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStoreTradeEvents_TripleIdentityThenSourceBackfill(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	// First sighting has no gateway trade id, only the order/timestamp triple.
	first := gwEvent(1001, "ord-1", "", ts, nil)
	inserted, _, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{first})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	// The next fetch carries the trade id and the settled P&L.
	settled := gwEvent(1001, "ord-1", "t-77", ts, pnlOf(125))
	inserted, updated, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{settled})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, updated)

	// From now on the gateway id alone identifies the row, even if the
	// reported timestamp drifts.
	drifted := gwEvent(1001, "ord-1", "t-77", ts.Add(2*time.Second), pnlOf(125))
	inserted, updated, err = repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{drifted})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, updated)

	rows, err := repo.ListForMetrics(1001, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t-77", rows[0].SourceTradeID)
	require.NotNil(t, rows[0].PnL)
	assert.InDelta(t, 125, *rows[0].PnL, 0.005)
}

func TestStoreTradeEvents_SymbolKeptAsFirstWritten(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	first := gwEvent(1001, "ord-1", "t-1", ts, nil)
	_, _, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{first})
	require.NoError(t, err)

	renamed := gwEvent(1001, "ord-1", "t-1", ts, pnlOf(10))
	renamed.Symbol = "RENAMED"
	_, _, err = repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{renamed})
	require.NoError(t, err)

	rows, err := repo.ListForMetrics(1001, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ES", rows[0].Symbol)
	require.NotNil(t, rows[0].PnL)
}

func TestStoreTradeEvents_UnsortedBatchAndVoidedInput(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	// Two sightings of the same execution supplied newest first, plus a
	// voided one. The store must order the batch itself so the later
	// observation wins, and must not insert the voided event.
	later := gwEvent(1001, "ord-1", "t-1", ts.Add(time.Minute), pnlOf(20))
	earlier := gwEvent(1001, "ord-1", "t-1", ts, pnlOf(10))
	voided := gwEvent(1001, "ord-9", "t-9", ts, nil)
	voided.Voided = true

	inserted, updated, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{later, earlier, voided})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, updated)

	rows, err := repo.ListForMetrics(1001, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].PnL)
	assert.InDelta(t, 20, *rows[0].PnL, 0.005)
}

func TestListTradeEvents_ExcludesOpenAndVoided(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	closed := gwEvent(1001, "ord-1", "t-1", ts, pnlOf(40))
	open := gwEvent(1001, "ord-2", "t-2", ts.Add(time.Minute), nil)
	voided := gwEvent(1001, "ord-3", "t-3", ts.Add(2*time.Minute), pnlOf(-10))
	voided.Raw = map[string]interface{}{"id": "t-3", "voided": true}

	_, _, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{closed, open, voided})
	require.NoError(t, err)

	listed, err := repo.ListTradeEvents(1001, 100, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "ord-1", listed[0].OrderID)

	// Metrics reads keep the open leg but still drop the voided row.
	metrics, err := repo.ListForMetrics(1001, nil, nil)
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
}

func TestListTradeEvents_SymbolFilterAndOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	ts := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	es := gwEvent(1001, "ord-1", "t-1", ts, pnlOf(40))
	nq := gwEvent(1001, "ord-2", "t-2", ts.Add(time.Hour), pnlOf(-5))
	nq.Symbol = "NQ"
	bare := gwEvent(1001, "ord-3", "t-3", ts.Add(2*time.Hour), pnlOf(15))
	bare.Symbol = ""
	bare.ContractID = "CON.F.US.ENQ.H24"

	_, _, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{es, nq, bare})
	require.NoError(t, err)

	all, err := repo.ListTradeEvents(1001, 100, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "ord-3", all[0].OrderID)
	assert.Equal(t, "ord-1", all[2].OrderID)

	// Case-insensitive substring over the display symbol, which falls back
	// to the contract id.
	matched, err := repo.ListTradeEvents(1001, 100, nil, nil, "enq")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "ord-3", matched[0].OrderID)

	limited, err := repo.ListTradeEvents(1001, 2, nil, nil, "")
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestBoundaryTimestampsAndDayCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())

	latest, err := repo.GetLatestTradeTimestamp(1001)
	require.NoError(t, err)
	assert.Nil(t, latest)

	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 16, 45, 0, 0, time.UTC)
	_, _, err = repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{
		gwEvent(1001, "ord-1", "t-1", day1, pnlOf(10)),
		gwEvent(1001, "ord-2", "t-2", day2, pnlOf(20)),
		gwEvent(2002, "ord-9", "t-9", day2.Add(time.Hour), nil),
	})
	require.NoError(t, err)

	earliest, err := repo.GetEarliestTradeTimestamp(1001)
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.True(t, earliest.Equal(day1))

	latest, err = repo.GetLatestTradeTimestamp(1001)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(day2))

	count, err := repo.CountEventsOnDay(1001, day2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	has, err := repo.HasLocalTrades(1001)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasLocalTrades(9999)
	require.NoError(t, err)
	assert.False(t, has)
}
