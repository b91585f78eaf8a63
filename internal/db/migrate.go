package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is idempotent: every statement is IF NOT EXISTS, so Migrate can
// run on every startup.
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS stonks;

CREATE TABLE IF NOT EXISTS stonks.users (
    id           TEXT PRIMARY KEY,
    credit_score BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stonks.companies (
    id            BIGSERIAL PRIMARY KEY,
    owner         TEXT NOT NULL REFERENCES stonks.users(id),
    name          TEXT NOT NULL,
    balance_micros BIGINT NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS companies_owner_active_idx
    ON stonks.companies (owner) WHERE active;

CREATE TABLE IF NOT EXISTS stonks.held_stocks (
    id           BIGSERIAL PRIMARY KEY,
    company_id   BIGINT NOT NULL REFERENCES stonks.companies(id),
    symbol       TEXT NOT NULL,
    quantity     BIGINT NOT NULL,
    price_micros BIGINT NOT NULL,
    purchased_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS held_stocks_fifo_idx
    ON stonks.held_stocks (company_id, symbol, purchased_at, id);
CREATE INDEX IF NOT EXISTS held_stocks_symbol_idx
    ON stonks.held_stocks (symbol);

CREATE TABLE IF NOT EXISTS stonks.transactions (
    id         BIGSERIAL PRIMARY KEY,
    company_id BIGINT NOT NULL REFERENCES stonks.companies(id),
    symbol     TEXT NOT NULL,
    type       TEXT NOT NULL,
    volume     BIGINT NOT NULL,
    price_micros BIGINT NOT NULL,
    batch_id   TEXT NOT NULL,
    at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_company_idx
    ON stonks.transactions (company_id, at);

CREATE TABLE IF NOT EXISTS stonks.symbols (
    symbol TEXT PRIMARY KEY,
    name   TEXT NOT NULL,
    type   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS stonks.close_history (
    symbol TEXT NOT NULL,
    date   DATE NOT NULL,
    close_micros BIGINT NOT NULL,
    volume BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS stonks.company_history (
    company_id BIGINT NOT NULL REFERENCES stonks.companies(id),
    date       DATE NOT NULL,
    value_micros BIGINT NOT NULL,
    PRIMARY KEY (company_id, date)
);

CREATE TABLE IF NOT EXISTS stonks.corporate_actions (
    symbol     TEXT NOT NULL,
    kind       TEXT NOT NULL,
    event_date DATE NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (symbol, kind, event_date)
);
`

// Migrate creates the game schema if it is not there yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
