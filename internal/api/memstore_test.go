package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/store"
)

// memStore is the in-memory store.Store used by handler tests.
type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*store.Session
	presets     map[string]*store.Preset
	ownerTokens map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    make(map[string]*store.Session),
		presets:     make(map[string]*store.Preset),
		ownerTokens: make(map[string]string),
	}
}

func copySession(s *store.Session) *store.Session {
	cp := *s
	return &cp
}

func (m *memStore) CreateSession(_ context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Key] = copySession(s)
	return nil
}

func (m *memStore) GetSession(_ context.Context, key string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySession(s), nil
}

func (m *memStore) GetOpenSessionByOwner(_ context.Context, ownerID string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && !s.IsComplete {
			return copySession(s), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateSession(_ context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Key]; !ok {
		return store.ErrNotFound
	}
	m.sessions[s.Key] = copySession(s)
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return store.ErrNotFound
	}
	delete(m.sessions, key)
	return nil
}

func (m *memStore) FindSessionByPlayerToken(_ context.Context, token string) (*store.Session, draft.Side, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		switch token {
		case s.BlueToken:
			return copySession(s), draft.SideBlue, nil
		case s.RedToken:
			return copySession(s), draft.SideRed, nil
		}
	}
	return nil, draft.SideNone, store.ErrNotFound
}

func (m *memStore) ListRecent(_ context.Context, limit, offset int) ([]*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Session
	for _, s := range m.sessions {
		if s.IsComplete {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	return page(out, limit, offset), nil
}

func (m *memStore) ListLive(_ context.Context, window time.Duration, limit, offset int) ([]*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-window)
	var out []*store.Session
	for _, s := range m.sessions {
		if !s.IsComplete && s.LastActivityAt.After(cutoff) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return page(out, limit, offset), nil
}

func page(sessions []*store.Session, limit, offset int) []*store.Session {
	if offset >= len(sessions) {
		return nil
	}
	sessions = sessions[offset:]
	if limit < len(sessions) {
		sessions = sessions[:limit]
	}
	return sessions
}

func (m *memStore) CreatePreset(_ context.Context, p *store.Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, existing := range m.presets {
		if existing.OwnerID == p.OwnerID {
			count++
		}
	}
	if count >= store.MaxPresetsPerOwner {
		return store.ErrPresetQuota
	}
	cp := *p
	m.presets[p.ID] = &cp
	return nil
}

func (m *memStore) GetPreset(_ context.Context, id string) (*store.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPresetsByOwner(_ context.Context, ownerID string) ([]*store.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Preset
	for _, p := range m.presets {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) DeletePreset(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok || p.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(m.presets, id)
	return nil
}

func (m *memStore) ResolveOwnerToken(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.ownerTokens[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return owner, nil
}
