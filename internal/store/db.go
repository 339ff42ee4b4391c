package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the rapport journal: contacts, interactions and commitments in one
// SQLite file.
type DB struct {
	*sql.DB
	Path string
}

// Pragmas are passed in the DSN so every pooled connection gets them, not
// only the first one.
var (
	filePragmas   = []string{"journal_mode(WAL)", "synchronous(NORMAL)", "foreign_keys(1)", "busy_timeout(5000)"}
	memoryPragmas = []string{"foreign_keys(1)"}
)

// DefaultDBPath returns ~/.rapport/rapport.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rapport", "rapport.db"), nil
}

// Open opens or creates the journal at path and migrates it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	sqlDB, err := sql.Open("sqlite", dsn(path, filePragmas))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens a private in-memory journal, mostly for tests.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(":memory:", memoryPragmas))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each :memory: connection is its own database.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, ":memory:")
}

func dsn(name string, pragmas []string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return name + "?" + q.Encode()
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path}
	if err := db.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Timestamps are stored as nanoseconds since the Unix epoch. The zero time
// is NULL, so the epoch itself survives a round trip.
func toNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}
