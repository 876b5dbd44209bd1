package ledger

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version     int
	description string
	sql         string
}

// Migrations are additive only. Never edit a shipped migration; append a new
// one.
var migrations = []migration{
	{
		version:     1,
		description: "history entries",
		sql: `
CREATE TABLE entries (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	content     TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	thumbnail   BLOB,
	source_app  TEXT,
	created_at  INTEGER NOT NULL,
	is_favorite INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_entries_created_at ON entries(created_at DESC, id DESC);
CREATE INDEX idx_entries_fingerprint ON entries(fingerprint);
`,
	},
	{
		version:     2,
		description: "source app icons",
		sql:         `ALTER TABLE entries ADD COLUMN source_app_icon BLOB;`,
	},
	{
		version:     3,
		description: "pinboards and settings",
		sql: `
CREATE TABLE pinboards (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
ALTER TABLE entries ADD COLUMN pinboard_id TEXT REFERENCES pinboards(id);
CREATE INDEX idx_entries_pinboard ON entries(pinboard_id);
CREATE TABLE settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	},
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
		}
		// PRAGMA does not accept bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("bump schema version to %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
