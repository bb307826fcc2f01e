package postgres

import (
	"context"
	"fmt"

	"goa.design/clue/log"
)

// schema creates the tables used by the backend. Threads are tombstoned with
// deleted_at; checkpoints go away with their thread.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              BIGSERIAL PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    hashed_password TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS threads (
    id         UUID PRIMARY KEY,
    account    BIGINT NOT NULL REFERENCES users(id),
    title      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS threads_account_created_at_idx ON threads (account, created_at);

CREATE TABLE IF NOT EXISTS message_pairs (
    id                UUID PRIMARY KEY,
    thread_id         UUID NOT NULL REFERENCES threads(id),
    user_message      TEXT NOT NULL,
    assistant_message TEXT,
    error_message     TEXT,
    generated_queries JSONB,
    chart_data        JSONB,
    chart_metadata    JSONB,
    model_uri         TEXT,
    events            JSONB NOT NULL DEFAULT '[]',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK ((assistant_message IS NULL) <> (error_message IS NULL))
);

CREATE INDEX IF NOT EXISTS message_pairs_thread_created_at_idx ON message_pairs (thread_id, created_at);

CREATE TABLE IF NOT EXISTS checkpoints (
    thread_id    UUID NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
    run_id       UUID NOT NULL,
    user_message TEXT NOT NULL,
    answer       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (thread_id, run_id)
);

CREATE TABLE IF NOT EXISTS feedbacks (
    message_pair_id UUID PRIMARY KEY REFERENCES message_pairs(id),
    account         BIGINT NOT NULL REFERENCES users(id),
    rating          SMALLINT NOT NULL CHECK (rating IN (0, 1)),
    comment         TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates missing tables and indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("database error ensuring schema: %w", err)
	}
	log.Printf(ctx, "[PostgresStore] schema ready")
	return nil
}
