package trades

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/internal/events"
)

type fetchCall struct {
	accountID    int64
	start, end   time.Time
	limit, offset *int
}

type mockGateway struct {
	accounts []projectx.Account
	fetch    func(accountID int64, start time.Time, end *time.Time, limit, offset *int) ([]projectx.TradeEvent, error)
	calls    []fetchCall
}

func (m *mockGateway) ListAccounts() ([]projectx.Account, error) {
	return m.accounts, nil
}

func (m *mockGateway) FetchTradeHistory(accountID int64, start time.Time, end *time.Time, limit, offset *int) ([]projectx.TradeEvent, error) {
	call := fetchCall{accountID: accountID, start: start}
	if end != nil {
		call.end = *end
	}
	if limit != nil {
		l := *limit
		call.limit = &l
	}
	if offset != nil {
		o := *offset
		call.offset = &o
	}
	m.calls = append(m.calls, call)
	if m.fetch == nil {
		return nil, nil
	}
	return m.fetch(accountID, start, end, limit, offset)
}

func testOptions() Options {
	return Options{
		InitialLookbackDays:     30,
		SyncChunkDays:           90,
		DaySyncLimit:            1000,
		YesterdayRefreshMinutes: 180,
	}
}

func testBus() *events.Manager {
	return events.NewManager(zerolog.Nop())
}

func TestBuildSyncWindows_ExplicitWindow(t *testing.T) {
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	start := now.AddDate(0, 0, -3)
	end := now.AddDate(0, 0, -1)

	windows, err := buildSyncWindows(now, &start, &end, nil, nil, 30)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.True(t, windows[0].start.Equal(start))
	assert.True(t, windows[0].end.Equal(end))
}

func TestBuildSyncWindows_StartAfterEndRejected(t *testing.T) {
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	start := now
	end := now.AddDate(0, 0, -1)

	_, err := buildSyncWindows(now, &start, &end, nil, nil, 30)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestBuildSyncWindows_EmptyMirrorGetsFullLookback(t *testing.T) {
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)

	windows, err := buildSyncWindows(now, nil, nil, nil, nil, 30)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.True(t, windows[0].start.Equal(now.AddDate(0, 0, -30)))
	assert.True(t, windows[0].end.Equal(now))
}

func TestBuildSyncWindows_BackfillPlusIncremental(t *testing.T) {
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 2, 19, 14, 10, 0, 0, time.UTC)
	earliest := time.Date(2024, 2, 18, 1, 0, 0, 0, time.UTC)

	windows, err := buildSyncWindows(now, nil, nil, &latest, &earliest, 30)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	// Backfill reaches from the history floor to the oldest local row.
	assert.True(t, windows[0].start.Equal(time.Date(2024, 1, 21, 12, 0, 0, 0, time.UTC)))
	assert.True(t, windows[0].end.Equal(earliest))

	// Incremental overlaps the newest local row by five minutes.
	assert.True(t, windows[1].start.Equal(time.Date(2024, 2, 19, 14, 5, 0, 0, time.UTC)))
	assert.True(t, windows[1].end.Equal(now))
}

func TestBuildSyncWindows_NoBackfillWhenHistoryCovered(t *testing.T) {
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	latest := now.Add(-time.Hour)
	earliest := now.AddDate(0, 0, -45) // already older than the floor

	windows, err := buildSyncWindows(now, nil, nil, &latest, &earliest, 30)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.True(t, windows[0].start.Equal(latest.Add(-5*time.Minute)))
}

func TestIterTimeChunks(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 200)

	chunks := iterTimeChunks(start, end, 90)
	require.Len(t, chunks, 3)
	assert.True(t, chunks[0].start.Equal(start))
	assert.True(t, chunks[0].end.Equal(start.AddDate(0, 0, 90)))
	// Adjacent chunks never share an inclusive boundary.
	assert.True(t, chunks[1].start.Equal(chunks[0].end.Add(time.Microsecond)))
	assert.True(t, chunks[2].end.Equal(end))
}

func TestIterTimeChunks_ShortWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)

	chunks := iterTimeChunks(start, end, 90)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].start.Equal(start))
	assert.True(t, chunks[0].end.Equal(end))
}

func TestRefreshAccountTrades_InitialSync(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)

	gateway := &mockGateway{
		fetch: func(accountID int64, start time.Time, end *time.Time, limit, offset *int) ([]projectx.TradeEvent, error) {
			return []projectx.TradeEvent{
				gwEvent(1001, "ord-1", "t-1", now.Add(-2*time.Hour), pnlOf(40)),
				gwEvent(1001, "ord-2", "t-2", now.Add(-time.Hour), nil),
			}, nil
		},
	}

	svc := NewSyncService(db, repo, gateway, testBus(), testOptions())
	svc.now = func() time.Time { return now }

	result, err := svc.RefreshAccountTrades(1001, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Windows)

	require.Len(t, gateway.calls, 1)
	assert.True(t, gateway.calls[0].start.Equal(now.AddDate(0, 0, -30)))
	assert.True(t, gateway.calls[0].end.Equal(now))
	assert.Nil(t, gateway.calls[0].limit)
	assert.Nil(t, gateway.calls[0].offset)
}

func TestRefreshAccountTrades_IncrementalPlusBackfill(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	latest := now.Add(-time.Hour)
	earliest := now.Add(-2 * time.Hour)

	_, _, err := repo.StoreTradeEvents(db.Conn(), []projectx.TradeEvent{
		gwEvent(1001, "ord-1", "t-1", earliest, pnlOf(40)),
		gwEvent(1001, "ord-2", "t-2", latest, pnlOf(-5)),
	})
	require.NoError(t, err)

	gateway := &mockGateway{}
	svc := NewSyncService(db, repo, gateway, testBus(), testOptions())
	svc.now = func() time.Time { return now }

	result, err := svc.RefreshAccountTrades(1001, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Windows)
	assert.Equal(t, 0, result.Fetched)

	require.Len(t, gateway.calls, 2)
	assert.True(t, gateway.calls[0].start.Equal(now.AddDate(0, 0, -30)))
	assert.True(t, gateway.calls[0].end.Equal(earliest))
	assert.True(t, gateway.calls[1].start.Equal(latest.Add(-5*time.Minute)))
	assert.True(t, gateway.calls[1].end.Equal(now))
}

func TestRefreshAccountTrades_InvalidAccount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSyncService(db, NewEventRepository(db.Conn()), &mockGateway{}, testBus(), testOptions())

	_, err := svc.RefreshAccountTrades(0, nil, nil)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestRefreshAccountTrades_GatewayErrorPropagates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db.Conn())
	gatewayErr := errors.New("gateway down")
	gateway := &mockGateway{
		fetch: func(int64, time.Time, *time.Time, *int, *int) ([]projectx.TradeEvent, error) {
			return nil, gatewayErr
		},
	}

	svc := NewSyncService(db, repo, gateway, testBus(), testOptions())
	_, err := svc.RefreshAccountTrades(1001, nil, nil)
	require.ErrorIs(t, err, gatewayErr)
}
