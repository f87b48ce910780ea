package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/middleware"
	"github.com/draftforge/backend/internal/store"
	"github.com/draftforge/backend/internal/token"
)

// validModes enumerates both variants' draft modes.
var validModes = map[string]bool{
	"2v2": true, "3v3": true,
	"2ban": true, "3ban": true, "6ban": true,
}

// defaultCostLimit picks the mode's default point budget.
func defaultCostLimit(mode string) float64 {
	switch mode {
	case "2v2", "2ban":
		return 6
	default:
		return 9
	}
}

type createSessionRequest struct {
	Mode            string          `json:"mode"`
	Team1           string          `json:"team1"`
	Team2           string          `json:"team2"`
	State           json.RawMessage `json:"state"`
	Featured        json.RawMessage `json:"featured"`
	TimerEnabled    bool            `json:"timerEnabled"`
	ReserveSeconds  float64         `json:"reserveSeconds"`
	CostProfileID   *string         `json:"costProfileId"`
	CostLimit       *float64        `json:"costLimit"`
	PenaltyPerPoint *int            `json:"penaltyPerPoint"`
}

type sessionCredentials struct {
	Key       string `json:"key"`
	BlueToken string `json:"blueToken"`
	RedToken  string `json:"redToken"`
	URL       string `json:"url,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if !s.limiter.Check(w, bucketOwner, owner) {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if !validModes[req.Mode] {
		respondError(w, http.StatusBadRequest, "unknown mode")
		return
	}

	// An owner with an open session gets it back instead of a second one.
	if existing, err := s.store.GetOpenSessionByOwner(r.Context(), owner); err == nil {
		respondJSON(w, http.StatusOK, s.credentials(existing))
		return
	} else if !isNotFound(err) {
		respondInternal(w, "create: lookup open session", err)
		return
	}

	st := &draft.State{}
	if len(req.State) > 0 {
		if err := json.Unmarshal(req.State, st); err != nil {
			respondError(w, http.StatusBadRequest, "malformed state")
			return
		}
	}
	if err := st.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := s.now()
	st.SeedTimer(req.TimerEnabled, req.ReserveSeconds, now.UnixMilli())

	featured, err := draft.SanitizeFeatured(req.Featured)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	featuredJSON, err := json.Marshal(featured)
	if err != nil {
		respondInternal(w, "create: marshal featured", err)
		return
	}

	if req.CostProfileID != nil {
		preset, err := s.store.GetPreset(r.Context(), *req.CostProfileID)
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "cost preset not found")
				return
			}
			respondInternal(w, "create: fetch preset", err)
			return
		}
		if preset.OwnerID != owner {
			respondError(w, http.StatusForbidden, "cost preset not owned by requester")
			return
		}
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		respondInternal(w, "create: marshal state", err)
		return
	}

	key, err := token.NewSessionKey()
	if err != nil {
		respondInternal(w, "create: session key", err)
		return
	}
	blueTok, err := token.NewPlayerToken()
	if err != nil {
		respondInternal(w, "create: blue token", err)
		return
	}
	redTok, err := token.NewPlayerToken()
	if err != nil {
		respondInternal(w, "create: red token", err)
		return
	}

	costLimit := defaultCostLimit(req.Mode)
	if req.CostLimit != nil {
		costLimit = *req.CostLimit
	}
	penalty := defaultPenaltyPerPoint
	if req.PenaltyPerPoint != nil {
		penalty = *req.PenaltyPerPoint
	}

	sess := &store.Session{
		Key:             key,
		OwnerID:         owner,
		Mode:            req.Mode,
		Team1:           req.Team1,
		Team2:           req.Team2,
		State:           stateJSON,
		Featured:        featuredJSON,
		LastActivityAt:  now,
		BlueToken:       blueTok,
		RedToken:        redTok,
		CostProfileID:   req.CostProfileID,
		CostLimit:       costLimit,
		PenaltyPerPoint: penalty,
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		respondInternal(w, "create: insert", err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	respondJSON(w, http.StatusCreated, s.credentials(sess))
}

func (s *Server) credentials(sess *store.Session) sessionCredentials {
	creds := sessionCredentials{
		Key:       sess.Key,
		BlueToken: sess.BlueToken,
		RedToken:  sess.RedToken,
	}
	if s.cfg != nil && s.cfg.PublicBaseURL != "" {
		creds.URL = s.cfg.PublicBaseURL + "/sessions/" + sess.Key
	}
	return creds
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	sess, err := s.store.GetSession(r.Context(), key)
	if err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondInternal(w, "get session", err)
		return
	}
	shaped, _, err := shapeSession(sess, s.joinPreset(r, sess))
	if err != nil {
		respondInternal(w, "get session: shape", err)
		return
	}
	respondJSON(w, http.StatusOK, shaped)
}

// joinPreset loads the referenced cost preset for shaping; a missing preset
// simply shapes without one.
func (s *Server) joinPreset(r *http.Request, sess *store.Session) *store.Preset {
	if sess.CostProfileID == nil {
		return nil
	}
	preset, err := s.store.GetPreset(r.Context(), *sess.CostProfileID)
	if err != nil {
		return nil
	}
	return preset
}

type updateSessionRequest struct {
	Team1      *string          `json:"team1"`
	Team2      *string          `json:"team2"`
	State      *json.RawMessage `json:"state"`
	IsComplete *bool            `json:"isComplete"`
	Featured   *json.RawMessage `json:"featured"`
	// CostProfileID is tri-state: absent, null (clear), or a preset id.
	CostProfileID   json.RawMessage `json:"costProfileId"`
	CostLimit       *float64        `json:"costLimit"`
	PenaltyPerPoint *int            `json:"penaltyPerPoint"`
}

// handleUpdateSession applies an owner's administrative snapshot. The state
// is persisted verbatim after shape validation; no burn is applied here —
// only player actions and live snapshot ticks burn the clock.
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if !s.limiter.Check(w, bucketOwner, owner) {
		return
	}
	key := mux.Vars(r)["key"]

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}

	ctx, cancel := s.sessionDeadline(r)
	defer cancel()
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "session busy, retry")
		return
	}
	defer release()

	sess, err := s.store.GetSession(ctx, key)
	if err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondInternal(w, "update: load", err)
		return
	}
	if sess.OwnerID != owner {
		respondError(w, http.StatusForbidden, "not the session owner")
		return
	}
	if sess.IsComplete {
		s.respondRejection(w, "", &draft.Rejection{Reason: draft.RejectDraftAlreadyCompleted})
		return
	}

	now := s.now()
	if req.Team1 != nil {
		sess.Team1 = *req.Team1
	}
	if req.Team2 != nil {
		sess.Team2 = *req.Team2
	}
	if req.State != nil {
		st := &draft.State{}
		if err := json.Unmarshal(*req.State, st); err != nil {
			respondError(w, http.StatusBadRequest, "malformed state")
			return
		}
		if err := st.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Re-seed missing timer fields; never burn on the owner path.
		st.EnsureTimer(now.UnixMilli())
		stateJSON, err := json.Marshal(st)
		if err != nil {
			respondInternal(w, "update: marshal state", err)
			return
		}
		sess.State = stateJSON
	}
	if req.Featured != nil {
		featured, err := draft.SanitizeFeatured(*req.Featured)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		featuredJSON, err := json.Marshal(featured)
		if err != nil {
			respondInternal(w, "update: marshal featured", err)
			return
		}
		sess.Featured = featuredJSON
	}
	if len(req.CostProfileID) > 0 {
		if string(req.CostProfileID) == "null" {
			sess.CostProfileID = nil
		} else {
			var id string
			if err := json.Unmarshal(req.CostProfileID, &id); err != nil {
				respondError(w, http.StatusBadRequest, "malformed costProfileId")
				return
			}
			preset, err := s.store.GetPreset(ctx, id)
			if err != nil {
				if isNotFound(err) {
					respondError(w, http.StatusNotFound, "cost preset not found")
					return
				}
				respondInternal(w, "update: fetch preset", err)
				return
			}
			if preset.OwnerID != owner {
				respondError(w, http.StatusForbidden, "cost preset not owned by requester")
				return
			}
			sess.CostProfileID = &id
		}
	}
	if req.CostLimit != nil {
		sess.CostLimit = *req.CostLimit
	}
	if req.PenaltyPerPoint != nil {
		sess.PenaltyPerPoint = *req.PenaltyPerPoint
	}
	if req.IsComplete != nil && *req.IsComplete && !sess.IsComplete {
		sess.IsComplete = true
		completedAt := now
		sess.CompletedAt = &completedAt
	}
	sess.LastActivityAt = now

	if err := s.store.UpdateSession(ctx, sess); err != nil {
		respondInternal(w, "update: persist", err)
		return
	}

	payload, st, err := shapeForHub(sess, s.joinPreset(r, sess))
	if err == nil {
		s.hub.BroadcastUpdate(ctx, key, payload, st)
	}

	shaped, _, err := shapeSession(sess, s.joinPreset(r, sess))
	if err != nil {
		respondInternal(w, "update: shape", err)
		return
	}
	respondJSON(w, http.StatusOK, shaped)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if !s.limiter.Check(w, bucketOwner, owner) {
		return
	}
	key := mux.Vars(r)["key"]

	ctx, cancel := s.sessionDeadline(r)
	defer cancel()
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "session busy, retry")
		return
	}
	defer release()

	sess, err := s.store.GetSession(ctx, key)
	if err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondInternal(w, "delete: load", err)
		return
	}
	if sess.OwnerID != owner {
		respondError(w, http.StatusForbidden, "not the session owner")
		return
	}
	if sess.IsComplete {
		respondError(w, http.StatusConflict, "complete sessions are immutable")
		return
	}

	if err := s.store.DeleteSession(ctx, key); err != nil {
		respondInternal(w, "delete: remove", err)
		return
	}
	s.hub.BroadcastDeleted(ctx, key)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	sessions, err := s.store.ListRecent(r.Context(), limit, offset)
	if err != nil {
		respondInternal(w, "list recent", err)
		return
	}
	s.respondList(w, sessions)
}

// defaultLiveWindowMinutes bounds the live listing when the caller does not
// pass one.
const defaultLiveWindowMinutes = 120

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	minutes := defaultLiveWindowMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minutes = n
		}
	}
	sessions, err := s.store.ListLive(r.Context(), time.Duration(minutes)*time.Minute, limit, offset)
	if err != nil {
		respondInternal(w, "list live", err)
		return
	}
	s.respondList(w, sessions)
}

func (s *Server) respondList(w http.ResponseWriter, sessions []*store.Session) {
	shapedAll := make([]*shapedSession, 0, len(sessions))
	for _, sess := range sessions {
		shaped, _, err := shapeSession(sess, nil)
		if err != nil {
			continue // skip rows with unreadable state rather than failing the page
		}
		shapedAll = append(shapedAll, shaped)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": shapedAll,
		"count":    len(shapedAll),
	})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

type resolveTokenRequest struct {
	PlayerToken string `json:"pt"`
}

func (s *Server) handleResolveToken(w http.ResponseWriter, r *http.Request) {
	var req resolveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerToken == "" {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	sess, side, err := s.store.FindSessionByPlayerToken(r.Context(), req.PlayerToken)
	if err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusForbidden, "unknown token")
			return
		}
		respondInternal(w, "resolve token", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"side": string(side),
		"key":  sess.Key,
	})
}

// sessionDeadline bounds a critical section per the configured deadline.
func (s *Server) sessionDeadline(r *http.Request) (ctx context.Context, cancel func()) {
	deadline := 10 * time.Second
	if s.cfg != nil {
		deadline = s.cfg.ActionDeadline()
	}
	return context.WithTimeout(r.Context(), deadline)
}
