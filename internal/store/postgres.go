package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/draftforge/backend/internal/draft"
)

// Postgres is the production Store backed by database/sql + lib/pq.
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres, verifies connectivity and applies the schema.
func Open(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing connection pool (used by tests and tooling).
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// Ping reports store reachability for health checks.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const sessionColumns = `session_key, owner_user_id, mode, team1, team2, state, featured,
	is_complete, completed_at, last_activity_at, blue_token, red_token,
	cost_profile_id, cost_limit, penalty_per_point`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var s Session
	var state, featured []byte
	err := row.Scan(
		&s.Key, &s.OwnerID, &s.Mode, &s.Team1, &s.Team2, &state, &featured,
		&s.IsComplete, &s.CompletedAt, &s.LastActivityAt, &s.BlueToken, &s.RedToken,
		&s.CostProfileID, &s.CostLimit, &s.PenaltyPerPoint,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.State = state
	s.Featured = featured
	return &s, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO draft_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.Key, s.OwnerID, s.Mode, s.Team1, s.Team2, []byte(s.State), []byte(s.Featured),
		s.IsComplete, s.CompletedAt, s.LastActivityAt, s.BlueToken, s.RedToken,
		s.CostProfileID, s.CostLimit, s.PenaltyPerPoint,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, key string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM draft_sessions WHERE session_key = $1`, key)
	return scanSession(row)
}

func (p *Postgres) GetOpenSessionByOwner(ctx context.Context, ownerID string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM draft_sessions
		WHERE owner_user_id = $1 AND NOT is_complete
		ORDER BY last_activity_at DESC LIMIT 1`, ownerID)
	return scanSession(row)
}

func (p *Postgres) UpdateSession(ctx context.Context, s *Session) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE draft_sessions SET
			team1 = $2, team2 = $3, state = $4, featured = $5,
			is_complete = $6, completed_at = $7, last_activity_at = $8,
			cost_profile_id = $9, cost_limit = $10, penalty_per_point = $11
		WHERE session_key = $1`,
		s.Key, s.Team1, s.Team2, []byte(s.State), []byte(s.Featured),
		s.IsComplete, s.CompletedAt, s.LastActivityAt,
		s.CostProfileID, s.CostLimit, s.PenaltyPerPoint,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteSession(ctx context.Context, key string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM draft_sessions WHERE session_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FindSessionByPlayerToken(ctx context.Context, token string) (*Session, draft.Side, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM draft_sessions
		WHERE blue_token = $1 OR red_token = $1 LIMIT 1`, token)
	s, err := scanSession(row)
	if err != nil {
		return nil, draft.SideNone, err
	}
	if s.BlueToken == token {
		return s, draft.SideBlue, nil
	}
	return s, draft.SideRed, nil
}

func (p *Postgres) ListRecent(ctx context.Context, limit, offset int) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM draft_sessions
		WHERE is_complete
		ORDER BY completed_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (p *Postgres) ListLive(ctx context.Context, window time.Duration, limit, offset int) ([]*Session, error) {
	cutoff := time.Now().Add(-window)
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM draft_sessions
		WHERE NOT is_complete AND last_activity_at >= $1
		ORDER BY last_activity_at DESC LIMIT $2 OFFSET $3`, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list live: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) CreatePreset(ctx context.Context, pr *Preset) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM cost_presets WHERE owner_user_id = $1`,
		pr.OwnerID).Scan(&count); err != nil {
		return fmt.Errorf("count presets: %w", err)
	}
	if count >= MaxPresetsPerOwner {
		return ErrPresetQuota
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cost_presets (id, owner_user_id, name, char_ms, we_phase, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		pr.ID, pr.OwnerID, pr.Name, []byte(pr.CharCost), []byte(pr.AccessoryCost),
		pr.CreatedAt, pr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert preset: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) GetPreset(ctx context.Context, id string) (*Preset, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, name, char_ms, we_phase, created_at, updated_at
		FROM cost_presets WHERE id = $1`, id)
	return scanPreset(row)
}

func (p *Postgres) ListPresetsByOwner(ctx context.Context, ownerID string) ([]*Preset, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_user_id, name, char_ms, we_phase, created_at, updated_at
		FROM cost_presets WHERE owner_user_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()
	var out []*Preset
	for rows.Next() {
		pr, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func scanPreset(row interface{ Scan(...interface{}) error }) (*Preset, error) {
	var pr Preset
	var charCost, accCost []byte
	err := row.Scan(&pr.ID, &pr.OwnerID, &pr.Name, &charCost, &accCost, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	pr.CharCost = charCost
	pr.AccessoryCost = accCost
	return &pr, nil
}

// DeletePreset removes an owner's preset. Referencing sessions stay valid:
// the FK clears cost_profile_id via ON DELETE SET NULL.
func (p *Postgres) DeletePreset(ctx context.Context, id, ownerID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM cost_presets WHERE id = $1 AND owner_user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ResolveOwnerToken(ctx context.Context, token string) (string, error) {
	var owner string
	err := p.db.QueryRowContext(ctx,
		`SELECT owner_user_id FROM owner_tokens WHERE token = $1`, token).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner token: %w", err)
	}
	return owner, nil
}
