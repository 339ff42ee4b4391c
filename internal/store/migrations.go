package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "contacts: user-edited contact records",
		SQL: `
CREATE TABLE contacts (
    user_id           TEXT NOT NULL,
    contact_id        TEXT NOT NULL,
    display_name      TEXT NOT NULL DEFAULT '',
    relationship_type TEXT NOT NULL DEFAULT 'other'
        CHECK (relationship_type IN ('colleague', 'manager', 'client', 'investor', 'friend', 'family', 'other')),
    importance        REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0 AND importance <= 1),
    is_vip            INTEGER NOT NULL DEFAULT 0,
    preferred_channel TEXT,
    deprecated        INTEGER NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,

    PRIMARY KEY (user_id, contact_id)
);
`,
	},
	{
		Version:     2,
		Description: "interactions: append-only interaction journal",
		SQL: `
CREATE TABLE interactions (
    id                 INTEGER PRIMARY KEY,
    user_id            TEXT NOT NULL,
    raw_ref            TEXT NOT NULL,
    from_contact       TEXT NOT NULL,
    to_contact         TEXT NOT NULL,
    channel            TEXT NOT NULL,
    ts                 INTEGER NOT NULL,
    sentiment          REAL NOT NULL CHECK (sentiment >= -1 AND sentiment <= 1),
    response_latency_s REAL,
    participants       TEXT,
    ingested_at        INTEGER NOT NULL,

    UNIQUE (user_id, raw_ref)
);

CREATE INDEX idx_interactions_user ON interactions(user_id, id);
`,
	},
	{
		Version:     3,
		Description: "commitments: collaborator-supplied commitment feed",
		SQL: `
CREATE TABLE commitments (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    contact_id  TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    deadline    INTEGER,
    status      TEXT NOT NULL DEFAULT 'active'
        CHECK (status IN ('active', 'overdue', 'fulfilled', 'cancelled')),
    severity    REAL NOT NULL DEFAULT 0.5 CHECK (severity >= 0 AND severity <= 1),
    channel     TEXT,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_commitments_user_deadline ON commitments(user_id, deadline);
CREATE INDEX idx_commitments_contact       ON commitments(user_id, contact_id);
`,
	},
	{
		Version:     4,
		Description: "timestamps: milliseconds to nanoseconds",
		SQL: `
UPDATE interactions SET ts = ts * 1000000, ingested_at = ingested_at * 1000000;
UPDATE contacts     SET created_at = created_at * 1000000, updated_at = updated_at * 1000000;
UPDATE commitments  SET deadline = deadline * 1000000, created_at = created_at * 1000000;
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
