package trades

import "database/sql"

// Timestamps are stored as fixed-width UTC strings so that lexicographic
// order matches chronological order and MIN/MAX work directly in SQL.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projectx_trade_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    contract_id TEXT NOT NULL,
    symbol TEXT,
    side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL', 'UNKNOWN')),
    size REAL NOT NULL DEFAULT 0,
    price REAL NOT NULL DEFAULT 0,
    trade_timestamp TEXT NOT NULL,
    fees REAL NOT NULL DEFAULT 0,
    pnl REAL,
    order_id TEXT NOT NULL,
    source_trade_id TEXT,
    status TEXT NOT NULL DEFAULT '',
    raw_payload TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    UNIQUE (account_id, order_id, trade_timestamp)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_events_source
    ON projectx_trade_events (account_id, source_trade_id)
    WHERE source_trade_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_trade_events_account_ts
    ON projectx_trade_events (account_id, trade_timestamp);

CREATE TABLE IF NOT EXISTS projectx_trade_day_syncs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    trade_date TEXT NOT NULL,
    sync_status TEXT NOT NULL CHECK (sync_status IN ('partial', 'complete')),
    row_count INTEGER NOT NULL DEFAULT 0,
    last_synced_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (account_id, trade_date)
);
`

// InitSchema creates the trade mirror tables.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
