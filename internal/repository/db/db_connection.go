package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) the SQLite file holding the event log, the
// last-known snapshot and operator accounts, and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// one writer; WAL lets the HTTP readers run alongside the sink
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA foreign_keys = ON;",
	"PRAGMA busy_timeout = 5000;",
	"PRAGMA synchronous = NORMAL;",
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("set %s: %w", strings.TrimSuffix(p, ";"), err)
		}
	}
	return nil
}

const schemaDeviceSnapshot = `
CREATE TABLE IF NOT EXISTS device_snapshot (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    battery INTEGER,
    hot_c REAL,
    cold_c REAL,
    hot_fault BOOLEAN NOT NULL DEFAULT 0,
    cold_fault BOOLEAN NOT NULL DEFAULT 0,
    closed BOOLEAN,
    functions INTEGER,
    shake REAL,
    stale TEXT,
    last_frame_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaTelemetryEvents = `
CREATE TABLE IF NOT EXISTS telemetry_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    category TEXT NOT NULL,
    severity INTEGER NOT NULL,
    message TEXT NOT NULL,
    location TEXT,
    meta TEXT
);
`

const indexTelemetryEvents = `
CREATE INDEX IF NOT EXISTS idx_telemetry_events_occurred_at
    ON telemetry_events (occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'viewer'
);
`

// Databases created before roles existed lack the column.
const (
	usersHasRoleSQL = `SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'role'`
	usersAddRoleSQL = `ALTER TABLE users ADD COLUMN role TEXT NOT NULL DEFAULT 'viewer'`
)

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaDeviceSnapshot,
		schemaTelemetryEvents,
		indexTelemetryEvents,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	var hasRole int
	if err := tx.QueryRow(usersHasRoleSQL).Scan(&hasRole); err != nil {
		return fmt.Errorf("inspect users table: %w", err)
	}
	if hasRole == 0 {
		if _, err := tx.Exec(usersAddRoleSQL); err != nil {
			return fmt.Errorf("add users.role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
