package audit

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS position_events (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    event       TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    position_id TEXT NOT NULL,
    recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the audit schema; kept lightweight so a
// fresh journal is ready before the first event arrives.
func ApplyMigrations(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("audit: database is not initialized")
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("audit: apply schema: %w", err)
	}
	return nil
}
