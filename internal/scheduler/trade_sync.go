package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/internal/modules/trades"
)

// TradeSyncJob mirrors fresh trade history for every tradable account.
// Runs on the configured cron schedule; per-account failures are logged and
// the remaining accounts still sync.
type TradeSyncJob struct {
	log     zerolog.Logger
	service *trades.Service
	mu      sync.Mutex
}

// TradeSyncConfig holds configuration for the trade sync job
type TradeSyncConfig struct {
	Log     zerolog.Logger
	Service *trades.Service
}

// NewTradeSyncJob creates a new trade sync job
func NewTradeSyncJob(cfg TradeSyncConfig) *TradeSyncJob {
	return &TradeSyncJob{
		log:     cfg.Log.With().Str("job", "trade_sync").Logger(),
		service: cfg.Service,
	}
}

// Name returns the job name
func (j *TradeSyncJob) Name() string {
	return "trade_sync"
}

// Run executes one sync cycle across all accounts
func (j *TradeSyncJob) Run() error {
	// A slow gateway must not stack cycles on top of each other
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Trade sync already running, skipping cycle")
		return nil
	}
	defer j.mu.Unlock()

	j.log.Info().Msg("Starting trade sync cycle")
	startTime := time.Now()

	accounts, err := j.service.ListAccounts()
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		j.log.Info().Msg("No tradable accounts, nothing to sync")
		return nil
	}

	failures := 0
	for _, account := range accounts {
		result, err := j.service.RefreshAccountTrades(account.ID, nil, nil)
		if err != nil {
			failures++
			j.log.Error().
				Err(err).
				Int64("account_id", account.ID).
				Msg("Account trade sync failed")
			continue
		}
		j.log.Debug().
			Int64("account_id", account.ID).
			Int("fetched", result.Fetched).
			Int("inserted", result.Inserted).
			Int("updated", result.Updated).
			Msg("Account trades synced")
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Int("accounts", len(accounts)).
		Int("failures", failures).
		Msg("Trade sync cycle completed")

	if failures == len(accounts) {
		return fmt.Errorf("trade sync failed for all %d accounts", failures)
	}
	return nil
}
