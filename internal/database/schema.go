package database

import (
	"context"
	"database/sql"
	"fmt"
)

// mysqlSchema creates the tables the service needs.  Statements are
// idempotent so Migrate can run on every start.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS grounds (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		owner_id       BIGINT UNSIGNED NOT NULL,
		name           VARCHAR(255) NOT NULL,
		location       VARCHAR(255) NOT NULL DEFAULT '',
		sports         VARCHAR(255) NOT NULL DEFAULT '',
		price_per_hour BIGINT       NOT NULL,
		open_hour      TINYINT      NOT NULL,
		close_hour     TINYINT      NOT NULL,
		is_active      TINYINT(1)   NOT NULL DEFAULT 1,
		created_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_grounds_owner (owner_id),
		CONSTRAINT fk_grounds_owner FOREIGN KEY (owner_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS slot_status (
		ground_id       BIGINT UNSIGNED NOT NULL,
		business_date   CHAR(10)    NOT NULL,
		hour_offset     TINYINT     NOT NULL,
		status          VARCHAR(8)  NOT NULL,
		hold_token      VARCHAR(64) NULL,
		hold_expires_at DATETIME(3) NULL,
		updated_at      DATETIME(3) NOT NULL,
		PRIMARY KEY (ground_id, business_date, hour_offset),
		KEY idx_slot_status_expiry (status, hold_expires_at),
		CONSTRAINT fk_slot_status_ground FOREIGN KEY (ground_id) REFERENCES grounds (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id             CHAR(36)     NOT NULL PRIMARY KEY,
		code           CHAR(9)      NOT NULL,
		ground_id      BIGINT UNSIGNED NOT NULL,
		business_date  CHAR(10)     NOT NULL,
		hour_offset    TINYINT      NOT NULL,
		hold_token     VARCHAR(64)  NOT NULL,
		customer_name  VARCHAR(100) NOT NULL,
		customer_phone VARCHAR(32)  NOT NULL,
		rental         BIGINT       NOT NULL,
		service_fee    BIGINT       NOT NULL,
		total          BIGINT       NOT NULL,
		cancelled      TINYINT(1)   NOT NULL DEFAULT 0,
		cancelled_at   DATETIME(3)  NULL,
		created_at     DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_bookings_code (code),
		KEY idx_bookings_slot (ground_id, business_date, hour_offset),
		CONSTRAINT fk_bookings_slot FOREIGN KEY (ground_id, business_date, hour_offset)
			REFERENCES slot_status (ground_id, business_date, hour_offset)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	return Exec(ctx, db, mysqlSchema)
}

// Exec runs DDL statements in order.
func Exec(ctx context.Context, db *sql.DB, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
