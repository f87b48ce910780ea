package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the idempotent bootstrap DDL, run once at startup.
const schema = `
CREATE TABLE IF NOT EXISTS cost_presets (
    id               uuid PRIMARY KEY,
    owner_user_id    text NOT NULL,
    name             text NOT NULL CHECK (char_length(name) <= 40),
    char_ms          json NOT NULL DEFAULT '{}',
    we_phase         json NOT NULL DEFAULT '{}',
    created_at       timestamptz NOT NULL DEFAULT now(),
    updated_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS draft_sessions (
    session_key       text PRIMARY KEY,
    owner_user_id     text NOT NULL,
    mode              text NOT NULL,
    team1             text NOT NULL DEFAULT '',
    team2             text NOT NULL DEFAULT '',
    state             json NOT NULL,
    featured          json NOT NULL DEFAULT '[]',
    is_complete       boolean NOT NULL DEFAULT false,
    completed_at      timestamptz,
    last_activity_at  timestamptz NOT NULL DEFAULT now(),
    blue_token        text NOT NULL,
    red_token         text NOT NULL,
    cost_profile_id   uuid REFERENCES cost_presets(id) ON DELETE SET NULL,
    cost_limit        numeric NOT NULL,
    penalty_per_point int NOT NULL DEFAULT 2500
);

CREATE INDEX IF NOT EXISTS draft_sessions_last_activity_idx
    ON draft_sessions (last_activity_at DESC);
CREATE INDEX IF NOT EXISTS draft_sessions_completed_idx
    ON draft_sessions (completed_at DESC) WHERE is_complete;
CREATE INDEX IF NOT EXISTS draft_sessions_owner_idx
    ON draft_sessions (owner_user_id);
CREATE INDEX IF NOT EXISTS draft_sessions_blue_token_idx
    ON draft_sessions (blue_token);
CREATE INDEX IF NOT EXISTS draft_sessions_red_token_idx
    ON draft_sessions (red_token);
CREATE INDEX IF NOT EXISTS cost_presets_owner_idx
    ON cost_presets (owner_user_id);

CREATE TABLE IF NOT EXISTS owner_tokens (
    token          text PRIMARY KEY,
    owner_user_id  text NOT NULL,
    created_at     timestamptz NOT NULL DEFAULT now()
);
`

// Migrate applies the bootstrap schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
