package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/store"
)

// defaultPenaltyPerPoint applies when a row predates the penalty column.
const defaultPenaltyPerPoint = 2500

// shapedSession is the public transport form of a session row. Player
// tokens never appear here; only create hands them out.
type shapedSession struct {
	Key             string          `json:"key"`
	OwnerID         string          `json:"ownerId"`
	Mode            string          `json:"mode"`
	Team1           string          `json:"team1"`
	Team2           string          `json:"team2"`
	State           json.RawMessage `json:"state"`
	Featured        json.RawMessage `json:"featured"`
	IsComplete      bool            `json:"isComplete"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	LastActivityAt  time.Time       `json:"lastActivityAt"`
	CostProfileID   *string         `json:"costProfileId,omitempty"`
	CostProfile     *shapedPreset   `json:"costProfile,omitempty"`
	CostLimit       float64         `json:"costLimit"`
	PenaltyPerPoint int             `json:"penaltyPerPoint"`
}

type shapedPreset struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Name          string          `json:"name"`
	CharCost      json.RawMessage `json:"charCost"`
	AccessoryCost json.RawMessage `json:"accessoryCost"`
}

func shapePreset(p *store.Preset) *shapedPreset {
	if p == nil {
		return nil
	}
	return &shapedPreset{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Name:          p.Name,
		CharCost:      p.CharCost,
		AccessoryCost: p.AccessoryCost,
	}
}

// shapeSession normalizes a row for transport and returns the parsed state
// alongside, for callers that feed the hub snapshot. Normalization is
// idempotent: a shaped state re-shaped is byte-for-byte equivalent.
func shapeSession(s *store.Session, preset *store.Preset) (*shapedSession, *draft.State, error) {
	st := &draft.State{}
	if err := json.Unmarshal(s.State, st); err != nil {
		return nil, nil, fmt.Errorf("parse state for session %s: %w", s.Key, err)
	}
	normalized, err := json.Marshal(st)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize state for session %s: %w", s.Key, err)
	}

	featured := s.Featured
	if len(featured) == 0 {
		featured = json.RawMessage(`[]`)
	}
	penalty := s.PenaltyPerPoint
	if penalty == 0 {
		penalty = defaultPenaltyPerPoint
	}

	return &shapedSession{
		Key:             s.Key,
		OwnerID:         s.OwnerID,
		Mode:            s.Mode,
		Team1:           s.Team1,
		Team2:           s.Team2,
		State:           normalized,
		Featured:        featured,
		IsComplete:      s.IsComplete,
		CompletedAt:     s.CompletedAt,
		LastActivityAt:  s.LastActivityAt,
		CostProfileID:   s.CostProfileID,
		CostProfile:     shapePreset(preset),
		CostLimit:       s.CostLimit,
		PenaltyPerPoint: penalty,
	}, st, nil
}

// shapeForHub marshals the shaped row once for snapshot/update fan-out.
func shapeForHub(s *store.Session, preset *store.Preset) (json.RawMessage, *draft.State, error) {
	shaped, st, err := shapeSession(s, preset)
	if err != nil {
		return nil, nil, err
	}
	payload, err := json.Marshal(shaped)
	if err != nil {
		return nil, nil, err
	}
	return payload, st, nil
}
