package trades

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/internal/database"
	"github.com/topsignal/trader-go/internal/events"
	"github.com/topsignal/trader-go/internal/modules/analytics"
	"github.com/topsignal/trader-go/pkg/timeutil"
)

// Service is the module facade used by the HTTP handlers and scheduled
// jobs. Reads serve from the local mirror; EnsureTradeCache decides when a
// read needs a fetch first.
type Service struct {
	client   GatewayClient
	events   *EventRepository
	daySyncs *DaySyncRepository
	sync     *SyncService
	daySync  *DaySyncService
	log      zerolog.Logger
}

func NewService(db *database.DB, client GatewayClient, bus *events.Manager, opts Options) *Service {
	eventRepo := NewEventRepository(db.Conn())
	daySyncRepo := NewDaySyncRepository(db.Conn())
	return &Service{
		client:   client,
		events:   eventRepo,
		daySyncs: daySyncRepo,
		sync:     NewSyncService(db, eventRepo, client, bus, opts),
		daySync:  NewDaySyncService(db, eventRepo, daySyncRepo, client, bus, opts),
		log:      log.With().Str("service", "trades").Logger(),
	}
}

// ListAccounts proxies the gateway's tradable account list.
func (s *Service) ListAccounts() ([]projectx.Account, error) {
	return s.client.ListAccounts()
}

// RefreshAccountTrades forces a window-planned sync for one account.
func (s *Service) RefreshAccountTrades(accountID int64, start, end *time.Time) (*SyncResult, error) {
	return s.sync.RefreshAccountTrades(accountID, start, end)
}

// SyncTradeDay mirrors a single UTC calendar day.
func (s *Service) SyncTradeDay(accountID int64, day time.Time, refresh bool) (*DaySyncOutcome, error) {
	return s.daySync.SyncTradeDay(accountID, day, refresh)
}

// EnsureTradeCache makes the mirror good enough to answer a read. A window
// confined to one UTC day routes through the day-level cache; otherwise a
// fetch happens only on explicit refresh or when the account has no local
// data at all.
func (s *Service) EnsureTradeCache(accountID int64, start, end *time.Time, refresh bool) error {
	if accountID <= 0 {
		return validationErrorf("account id must be a positive integer, got %d", accountID)
	}

	if start != nil && end != nil && timeutil.DayKey(*start) == timeutil.DayKey(*end) {
		_, err := s.daySync.SyncTradeDay(accountID, *start, refresh)
		return err
	}

	if refresh {
		_, err := s.sync.RefreshAccountTrades(accountID, start, end)
		return err
	}

	hasLocal, err := s.events.HasLocalTrades(accountID)
	if err != nil {
		return err
	}
	if !hasLocal {
		_, err := s.sync.RefreshAccountTrades(accountID, start, end)
		return err
	}
	return nil
}

// ListTradeEvents returns closed executions newest first, fetching from the
// gateway first when the cache needs it.
func (s *Service) ListTradeEvents(accountID int64, limit int, start, end *time.Time, symbolQuery string, refresh bool) ([]ListedTrade, error) {
	if err := s.EnsureTradeCache(accountID, start, end, refresh); err != nil {
		return nil, err
	}
	rows, err := s.events.ListTradeEvents(accountID, limit, start, end, symbolQuery)
	if err != nil {
		return nil, err
	}
	listed := make([]ListedTrade, 0, len(rows))
	for i := range rows {
		listed = append(listed, rows[i].Serialize())
	}
	return listed, nil
}

// SummarizeTradeEvents computes the performance summary over the window.
func (s *Service) SummarizeTradeEvents(accountID int64, start, end *time.Time, refresh bool) (analytics.TradeSummary, error) {
	samples, err := s.loadSamples(accountID, start, end, refresh)
	if err != nil {
		return analytics.TradeSummary{}, err
	}
	return analytics.ComputeTradeSummary(samples), nil
}

// TradeEventPnlCalendar returns the per-day net P&L calendar.
func (s *Service) TradeEventPnlCalendar(accountID int64, start, end *time.Time, refresh bool) ([]analytics.CalendarDay, error) {
	samples, err := s.loadSamples(accountID, start, end, refresh)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeDailyPnlCalendar(samples), nil
}

// StreakMetrics returns win and loss streak statistics.
func (s *Service) StreakMetrics(accountID int64, start, end *time.Time, refresh bool) (analytics.StreakMetrics, error) {
	samples, err := s.loadSamples(accountID, start, end, refresh)
	if err != nil {
		return analytics.StreakMetrics{}, err
	}
	return analytics.ComputeStreakMetrics(samples), nil
}

// BucketMetrics returns hour, weekday, symbol and sizing breakdowns.
func (s *Service) BucketMetrics(accountID int64, start, end *time.Time, refresh bool) (analytics.BucketMetrics, error) {
	samples, err := s.loadSamples(accountID, start, end, refresh)
	if err != nil {
		return analytics.BucketMetrics{}, err
	}
	return analytics.ComputeBucketMetrics(samples), nil
}

// EarliestTradeTimestamp exposes the oldest mirrored execution.
func (s *Service) EarliestTradeTimestamp(accountID int64) (*time.Time, error) {
	return s.events.GetEarliestTradeTimestamp(accountID)
}

// DaySyncCounts reports day-marker totals per status for diagnostics.
func (s *Service) DaySyncCounts() (map[string]int, error) {
	return s.daySyncs.CountByStatus()
}

// EventCount reports the total number of stored executions.
func (s *Service) EventCount() (int, error) {
	return s.events.CountEvents()
}

func (s *Service) loadSamples(accountID int64, start, end *time.Time, refresh bool) ([]analytics.Sample, error) {
	if err := s.EnsureTradeCache(accountID, start, end, refresh); err != nil {
		return nil, err
	}
	rows, err := s.events.ListForMetrics(accountID, start, end)
	if err != nil {
		return nil, err
	}
	samples := make([]analytics.Sample, 0, len(rows))
	for i := range rows {
		samples = append(samples, rows[i].MetricSample())
	}
	return samples, nil
}
