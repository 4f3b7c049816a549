package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    phone_number  TEXT         NOT NULL UNIQUE,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calls (
    id                UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id           UUID         NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    call_sid          TEXT,
    call_type         TEXT         NOT NULL DEFAULT 'unscripted',
    status            TEXT,
    started_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at          TIMESTAMPTZ,
    duration_seconds  INTEGER,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_user_id  ON calls (user_id);
CREATE INDEX IF NOT EXISTS idx_calls_call_sid ON calls (call_sid);

CREATE TABLE IF NOT EXISTS transcriptions (
    id          UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    call_id     UUID         NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_call_id ON transcriptions (call_id);
`

// Migrate creates the schema if it does not exist. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
