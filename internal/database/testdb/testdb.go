// Package testdb opens an in-memory SQLite database with the service
// schema for repository and handler tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/iliyamo/playspot/internal/database"
)

// sqliteSchema mirrors the MySQL schema in SQLite syntax.
var sqliteSchema = []string{
	`CREATE TABLE users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE grounds (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id       INTEGER NOT NULL REFERENCES users (id),
		name           TEXT NOT NULL,
		location       TEXT NOT NULL DEFAULT '',
		sports         TEXT NOT NULL DEFAULT '',
		price_per_hour INTEGER NOT NULL,
		open_hour      INTEGER NOT NULL,
		close_hour     INTEGER NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT 1,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE slot_status (
		ground_id       INTEGER NOT NULL REFERENCES grounds (id),
		business_date   TEXT NOT NULL,
		hour_offset     INTEGER NOT NULL,
		status          TEXT NOT NULL,
		hold_token      TEXT NULL,
		hold_expires_at DATETIME NULL,
		updated_at      DATETIME NOT NULL,
		PRIMARY KEY (ground_id, business_date, hour_offset)
	)`,
	`CREATE TABLE bookings (
		id             TEXT PRIMARY KEY,
		code           TEXT NOT NULL UNIQUE,
		ground_id      INTEGER NOT NULL,
		business_date  TEXT NOT NULL,
		hour_offset    INTEGER NOT NULL,
		hold_token     TEXT NOT NULL,
		customer_name  TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		rental         INTEGER NOT NULL,
		service_fee    INTEGER NOT NULL,
		total          INTEGER NOT NULL,
		cancelled      BOOLEAN NOT NULL DEFAULT 0,
		cancelled_at   DATETIME NULL,
		created_at     DATETIME NOT NULL,
		FOREIGN KEY (ground_id, business_date, hour_offset)
			REFERENCES slot_status (ground_id, business_date, hour_offset)
	)`,
}

// Open returns a fresh database that is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	// foreign keys are off in SQLite unless asked for
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	if err := database.Exec(context.Background(), db, sqliteSchema); err != nil {
		db.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
