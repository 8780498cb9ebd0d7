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

// Hard ceiling on the page walk. A day needing more pages than this is
// recorded as truncated rather than looping forever against a gateway that
// ignores offsets.
const maxDaySyncPages = 200

// DaySyncOutcome reports what one day-level sync did.
type DaySyncOutcome struct {
	AccountID int64  `json:"account_id"`
	TradeDate string `json:"trade_date"`
	Status    string `json:"sync_status"`
	RowCount  int    `json:"row_count"`
	Fetched   int    `json:"fetched"`
	FromCache bool   `json:"from_cache"`
	Truncated bool   `json:"truncated"`
}

// DaySyncService mirrors single UTC calendar days with completeness
// bookkeeping, so repeated requests for settled days become cache hits.
type DaySyncService struct {
	db       *database.DB
	events   *EventRepository
	daySyncs *DaySyncRepository
	client   GatewayClient
	bus      *events.Manager
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

func NewDaySyncService(db *database.DB, eventRepo *EventRepository, daySyncRepo *DaySyncRepository, client GatewayClient, bus *events.Manager, opts Options) *DaySyncService {
	return &DaySyncService{
		db:       db,
		events:   eventRepo,
		daySyncs: daySyncRepo,
		client:   client,
		bus:      bus,
		opts:     opts,
		log:      log.With().Str("service", "trade_day_sync").Logger(),
		now:      time.Now,
	}
}

// SyncTradeDay ensures one account-day is mirrored. A day already marked
// complete is served from cache, except yesterday, which goes stale after
// YesterdayRefreshMinutes; today is never marked complete because more
// executions can still arrive. refresh forces a fetch regardless.
func (s *DaySyncService) SyncTradeDay(accountID int64, day time.Time, refresh bool) (*DaySyncOutcome, error) {
	if accountID <= 0 {
		return nil, validationErrorf("account id must be a positive integer, got %d", accountID)
	}

	now := s.now().UTC()
	dayKey := timeutil.DayKey(day)
	isToday := dayKey == timeutil.DayKey(now)
	isYesterday := dayKey == timeutil.DayKey(now.AddDate(0, 0, -1))

	if !refresh && !isToday {
		marker, err := s.daySyncs.Get(accountID, dayKey)
		if err != nil {
			return nil, err
		}
		if marker != nil && marker.SyncStatus == SyncStatusComplete {
			stale := isYesterday &&
				now.Sub(marker.LastSyncedAt) > time.Duration(s.opts.YesterdayRefreshMinutes)*time.Minute
			if !stale {
				return &DaySyncOutcome{
					AccountID: accountID,
					TradeDate: dayKey,
					Status:    marker.SyncStatus,
					RowCount:  marker.RowCount,
					FromCache: true,
				}, nil
			}
		}
	}

	dayStart, dayEnd := timeutil.DayBounds(day)
	fetched, truncated, err := s.fetchDayPages(accountID, dayStart, dayEnd)
	if err != nil {
		s.writePartialMarker(accountID, dayKey, now)
		s.bus.EmitError("trades", err, map[string]interface{}{
			"account_id": accountID,
			"trade_date": dayKey,
		})
		return nil, err
	}

	if len(fetched) > 0 {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("opening day sync transaction: %w", err)
		}
		if _, _, err := s.events.StoreTradeEvents(tx, fetched); err != nil {
			tx.Rollback()
			s.writePartialMarker(accountID, dayKey, now)
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			s.writePartialMarker(accountID, dayKey, now)
			return nil, fmt.Errorf("committing day sync: %w", err)
		}
	}

	rowCount, err := s.events.CountEventsOnDay(accountID, day)
	if err != nil {
		return nil, err
	}

	status := SyncStatusPartial
	if !isToday && !truncated {
		status = SyncStatusComplete
	}
	marker := &DaySync{
		AccountID:    accountID,
		TradeDate:    dayKey,
		SyncStatus:   status,
		RowCount:     rowCount,
		LastSyncedAt: now,
		UpdatedAt:    now,
	}
	if err := s.daySyncs.Upsert(s.db.Conn(), marker); err != nil {
		return nil, err
	}

	if truncated {
		s.log.Warn().
			Int64("account_id", accountID).
			Str("trade_date", dayKey).
			Msg("Day sync truncated, gateway did not honor pagination offset")
	}

	outcome := &DaySyncOutcome{
		AccountID: accountID,
		TradeDate: dayKey,
		Status:    status,
		RowCount:  rowCount,
		Fetched:   len(fetched),
		Truncated: truncated,
	}
	s.bus.Emit(events.TradeDaySynced, "trades", outcome)
	return outcome, nil
}

// fetchDayPages walks the gateway's offset pagination for one day and
// deduplicates by execution identity, keeping first-seen order and last-seen
// data. A repeated full page at a nonzero offset means the gateway ignored
// the offset; the walk stops and the day is flagged truncated.
func (s *DaySyncService) fetchDayPages(accountID int64, start, end time.Time) ([]projectx.TradeEvent, bool, error) {
	limit := s.opts.DaySyncLimit
	if limit <= 0 {
		limit = 1000
	}

	seenSignatures := map[string]struct{}{}
	byIdentity := map[string]projectx.TradeEvent{}
	var order []string
	offset := 0
	truncated := false

	for page := 0; ; page++ {
		if page >= maxDaySyncPages {
			truncated = true
			break
		}

		pageLimit, pageOffset := limit, offset
		batch, err := s.client.FetchTradeHistory(accountID, start, &end, &pageLimit, &pageOffset)
		if err != nil {
			return nil, false, err
		}
		if len(batch) == 0 {
			break
		}

		signature := pageSignature(batch)
		if len(batch) == limit && offset > 0 {
			if _, dup := seenSignatures[signature]; dup {
				truncated = true
				break
			}
		}
		seenSignatures[signature] = struct{}{}

		for _, e := range batch {
			key := identityKey(e)
			if _, ok := byIdentity[key]; !ok {
				order = append(order, key)
			}
			byIdentity[key] = e
		}

		if len(batch) < limit {
			break
		}
		offset += len(batch)
	}

	merged := make([]projectx.TradeEvent, 0, len(order))
	for _, key := range order {
		merged = append(merged, byIdentity[key])
	}
	return merged, truncated, nil
}

// writePartialMarker records a best-effort partial state after a failed
// sync, so later requests know the day is incomplete.
func (s *DaySyncService) writePartialMarker(accountID int64, dayKey string, now time.Time) {
	day, err := timeutil.ParseDay(dayKey)
	if err != nil {
		return
	}
	rowCount, err := s.events.CountEventsOnDay(accountID, day)
	if err != nil {
		rowCount = 0
	}
	marker := &DaySync{
		AccountID:    accountID,
		TradeDate:    dayKey,
		SyncStatus:   SyncStatusPartial,
		RowCount:     rowCount,
		LastSyncedAt: now,
		UpdatedAt:    now,
	}
	if err := s.daySyncs.Upsert(s.db.Conn(), marker); err != nil {
		s.log.Warn().Err(err).
			Int64("account_id", accountID).
			Str("trade_date", dayKey).
			Msg("Failed to record partial day sync marker")
	}
}

func identityKey(e projectx.TradeEvent) string {
	if e.SourceTradeID != "" {
		return fmt.Sprintf("%d:source:%s", e.AccountID, e.SourceTradeID)
	}
	return fmt.Sprintf("%d:fallback:%s:%s", e.AccountID, e.OrderID, timeutil.ISOUTC(e.Timestamp))
}

func pageSignature(batch []projectx.TradeEvent) string {
	keys := make([]byte, 0, len(batch)*24)
	for _, e := range batch {
		keys = append(keys, identityKey(e)...)
		keys = append(keys, '\n')
	}
	return string(keys)
}
