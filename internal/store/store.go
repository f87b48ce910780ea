// Package store persists draft sessions and cost presets in Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/draftforge/backend/internal/draft"
)

// ErrNotFound is returned when a session, preset or token does not exist.
var ErrNotFound = errors.New("not found")

// ErrPresetQuota is returned when an owner exceeds the preset limit.
var ErrPresetQuota = errors.New("preset quota exceeded")

// MaxPresetsPerOwner bounds cost presets per owner.
const MaxPresetsPerOwner = 2

// Session is the aggregate root: one row per draft session. State and
// Featured are opaque JSON documents owned exclusively by this row.
type Session struct {
	Key             string
	OwnerID         string
	Mode            string
	Team1           string
	Team2           string
	State           json.RawMessage
	Featured        json.RawMessage
	IsComplete      bool
	CompletedAt     *time.Time
	LastActivityAt  time.Time
	BlueToken       string
	RedToken        string
	CostProfileID   *string
	CostLimit       float64
	PenaltyPerPoint int
}

// Preset is a per-owner named map from entity identifiers to cost vectors.
type Preset struct {
	ID            string
	OwnerID       string
	Name          string
	CharCost      json.RawMessage // code -> 7-number vector
	AccessoryCost json.RawMessage // id -> 5-number vector
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store is the persistence surface the API depends on. The Postgres
// implementation is the production one; tests substitute an in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, key string) (*Session, error)
	GetOpenSessionByOwner(ctx context.Context, ownerID string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, key string) error

	// FindSessionByPlayerToken resolves a side token to its session and side.
	FindSessionByPlayerToken(ctx context.Context, token string) (*Session, draft.Side, error)

	// ListRecent returns completed sessions ordered by completed_at descending.
	ListRecent(ctx context.Context, limit, offset int) ([]*Session, error)
	// ListLive returns unfinished sessions active within the window, ordered
	// by last_activity_at descending.
	ListLive(ctx context.Context, window time.Duration, limit, offset int) ([]*Session, error)

	CreatePreset(ctx context.Context, p *Preset) error
	GetPreset(ctx context.Context, id string) (*Preset, error)
	ListPresetsByOwner(ctx context.Context, ownerID string) ([]*Preset, error)
	DeletePreset(ctx context.Context, id, ownerID string) error

	// ResolveOwnerToken maps a bearer token to an owner id. Identity itself
	// (OAuth) lives outside this service; this is only the lookup.
	ResolveOwnerToken(ctx context.Context, token string) (string, error)
}
