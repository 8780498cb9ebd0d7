package trades

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/topsignal/trader-go/pkg/timeutil"
)

// DaySyncRepository tracks per-account, per-UTC-date sync completeness.
type DaySyncRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDaySyncRepository(db *sql.DB) *DaySyncRepository {
	return &DaySyncRepository{
		db:  db,
		log: log.With().Str("repository", "trade_day_syncs").Logger(),
	}
}

// Get returns the marker for one account-day, or nil when never synced.
func (r *DaySyncRepository) Get(accountID int64, tradeDate string) (*DaySync, error) {
	var d DaySync
	var lastSynced, updated string
	err := r.db.QueryRow(`
		SELECT id, account_id, trade_date, sync_status, row_count, last_synced_at, updated_at
		FROM projectx_trade_day_syncs
		WHERE account_id = ? AND trade_date = ?`,
		accountID, tradeDate).Scan(&d.ID, &d.AccountID, &d.TradeDate, &d.SyncStatus,
		&d.RowCount, &lastSynced, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading day sync marker: %w", err)
	}
	if t, ok := timeutil.ParseISO(lastSynced); ok {
		d.LastSyncedAt = t
	}
	if t, ok := timeutil.ParseISO(updated); ok {
		d.UpdatedAt = t
	}
	return &d, nil
}

// Upsert writes the marker, replacing any previous state for the same
// account-day.
func (r *DaySyncRepository) Upsert(ex executor, d *DaySync) error {
	_, err := ex.Exec(`
		INSERT INTO projectx_trade_day_syncs
			(account_id, trade_date, sync_status, row_count, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, trade_date) DO UPDATE SET
			sync_status = excluded.sync_status,
			row_count = excluded.row_count,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at`,
		d.AccountID, d.TradeDate, d.SyncStatus, d.RowCount,
		timeutil.ISOUTC(d.LastSyncedAt), timeutil.ISOUTC(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting day sync marker: %w", err)
	}
	return nil
}

// CountByStatus returns marker counts keyed by sync status.
func (r *DaySyncRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT sync_status, COUNT(*) FROM projectx_trade_day_syncs GROUP BY sync_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
