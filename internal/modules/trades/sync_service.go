package trades

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/internal/database"
	"github.com/topsignal/trader-go/internal/events"
	"github.com/topsignal/trader-go/pkg/timeutil"
)

// GatewayClient is the slice of the gateway API the sync services need.
type GatewayClient interface {
	ListAccounts() ([]projectx.Account, error)
	FetchTradeHistory(accountID int64, start time.Time, end *time.Time, limit, offset *int) ([]projectx.TradeEvent, error)
}

// Options carries the sync tuning knobs from configuration.
type Options struct {
	InitialLookbackDays     int
	SyncChunkDays           int
	DaySyncLimit            int
	YesterdayRefreshMinutes int
}

// SyncResult summarizes one refresh run.
type SyncResult struct {
	AccountID int64 `json:"account_id"`
	Fetched   int   `json:"fetched"`
	Inserted  int   `json:"inserted"`
	Updated   int   `json:"updated"`
	Windows   int   `json:"windows"`
	Chunks    int   `json:"chunks"`
}

type timeWindow struct {
	start time.Time
	end   time.Time
}

// SyncService plans fetch windows and mirrors gateway history into the
// local store.
type SyncService struct {
	db     *database.DB
	events *EventRepository
	client GatewayClient
	bus    *events.Manager
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
}

func NewSyncService(db *database.DB, repo *EventRepository, client GatewayClient, bus *events.Manager, opts Options) *SyncService {
	return &SyncService{
		db:     db,
		events: repo,
		client: client,
		bus:    bus,
		opts:   opts,
		log:    log.With().Str("service", "trade_sync").Logger(),
		now:    time.Now,
	}
}

// RefreshAccountTrades fetches missing history for one account and upserts
// it. With no explicit window it backfills toward the history floor and
// re-fetches from five minutes before the newest local row, so rows whose
// P&L settled late get refreshed. Each chunk commits independently.
func (s *SyncService) RefreshAccountTrades(accountID int64, start, end *time.Time) (*SyncResult, error) {
	if accountID <= 0 {
		return nil, validationErrorf("account id must be a positive integer, got %d", accountID)
	}

	now := s.now().UTC()
	latest, err := s.events.GetLatestTradeTimestamp(accountID)
	if err != nil {
		return nil, err
	}
	earliest, err := s.events.GetEarliestTradeTimestamp(accountID)
	if err != nil {
		return nil, err
	}

	windows, err := buildSyncWindows(now, start, end, latest, earliest, s.opts.InitialLookbackDays)
	if err != nil {
		return nil, err
	}

	s.bus.Emit(events.TradeSyncStart, "trades", map[string]interface{}{
		"account_id": accountID,
		"windows":    len(windows),
	})

	result := &SyncResult{AccountID: accountID, Windows: len(windows)}
	for _, window := range windows {
		for _, chunk := range iterTimeChunks(window.start, window.end, s.opts.SyncChunkDays) {
			chunkEnd := chunk.end
			batch, err := s.client.FetchTradeHistory(accountID, chunk.start, &chunkEnd, nil, nil)
			if err != nil {
				s.bus.EmitError("trades", err, map[string]interface{}{"account_id": accountID})
				return result, err
			}
			result.Fetched += len(batch)
			result.Chunks++
			if len(batch) == 0 {
				continue
			}

			tx, err := s.db.Begin()
			if err != nil {
				return result, fmt.Errorf("opening sync transaction: %w", err)
			}
			inserted, updated, err := s.events.StoreTradeEvents(tx, batch)
			if err != nil {
				tx.Rollback()
				return result, err
			}
			if err := tx.Commit(); err != nil {
				return result, fmt.Errorf("committing sync chunk: %w", err)
			}
			result.Inserted += inserted
			result.Updated += updated
		}
	}

	s.log.Info().
		Int64("account_id", accountID).
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("windows", result.Windows).
		Msg("Trade history refreshed")
	s.bus.Emit(events.TradesSynced, "trades", result)

	return result, nil
}

// buildSyncWindows decides what to fetch. An explicit start pins a single
// window. Otherwise: an empty mirror gets the full lookback, an existing one
// gets an optional backfill window down to the history floor plus an
// incremental window overlapping the newest local row by five minutes.
func buildSyncWindows(now time.Time, start, end, latest, earliest *time.Time, lookbackDays int) ([]timeWindow, error) {
	endTS := now
	if end != nil {
		endTS = end.UTC()
	}

	if start != nil {
		startTS := start.UTC()
		if startTS.After(endTS) {
			return nil, validationErrorf("start %s is after end %s",
				timeutil.ISOUTC(startTS), timeutil.ISOUTC(endTS))
		}
		return []timeWindow{{startTS, endTS}}, nil
	}

	historyFloor := now.AddDate(0, 0, -lookbackDays)
	if latest == nil {
		return []timeWindow{{historyFloor, endTS}}, nil
	}

	var windows []timeWindow
	if earliest != nil && earliest.After(historyFloor) {
		windows = append(windows, timeWindow{historyFloor, earliest.UTC()})
	}
	incrementalStart := latest.UTC().Add(-5 * time.Minute)
	if !incrementalStart.After(endTS) {
		windows = append(windows, timeWindow{incrementalStart, endTS})
	}
	return windows, nil
}

// iterTimeChunks splits a window into spans of at most chunkDays, each
// starting one microsecond after the previous span's inclusive end.
func iterTimeChunks(start, end time.Time, chunkDays int) []timeWindow {
	if chunkDays <= 0 {
		chunkDays = 90
	}
	span := time.Duration(chunkDays) * 24 * time.Hour

	var chunks []timeWindow
	for cursor := start; !cursor.After(end); {
		chunkEnd := cursor.Add(span)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, timeWindow{cursor, chunkEnd})
		cursor = chunkEnd.Add(time.Microsecond)
	}
	return chunks
}
