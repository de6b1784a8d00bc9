package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		email       TEXT NOT NULL UNIQUE,
		password    TEXT NOT NULL,
		first_name  TEXT NOT NULL,
		last_name   TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id          TEXT PRIMARY KEY,
		email       TEXT NOT NULL UNIQUE,
		password    TEXT NOT NULL,
		first_name  TEXT NOT NULL,
		last_name   TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		owner_id            TEXT PRIMARY KEY,
		balance             NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		is_admin_collection BOOLEAN NOT NULL DEFAULT FALSE,
		version             INTEGER NOT NULL DEFAULT 1,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS fee_transactions (
		id          TEXT PRIMARY KEY,
		sender_id   TEXT NOT NULL REFERENCES accounts(owner_id),
		receiver_id TEXT NOT NULL REFERENCES accounts(owner_id),
		amount      NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		fee_type    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL CHECK (status IN ('pending', 'approved')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		approved_at TIMESTAMPTZ,
		CHECK ((status = 'approved') = (approved_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fee_transactions_sender ON fee_transactions (sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_fee_transactions_receiver ON fee_transactions (receiver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id            BIGSERIAL PRIMARY KEY,
		reference     TEXT NOT NULL,
		owner_id      TEXT NOT NULL REFERENCES accounts(owner_id),
		entry_type    TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
		amount        NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		balance_after NUMERIC(18,2) NOT NULL CHECK (balance_after >= 0),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner ON ledger_entries (owner_id, id DESC)`,
}

// EnsureSchema creates the ledger tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
