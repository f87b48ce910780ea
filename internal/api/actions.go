package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/middleware"
)

// maxActionBody bounds an action request body.
const maxActionBody = 16 << 10

// handleAction applies one player action: rate-limit, lock, load, burn,
// reduce, persist, broadcast — in that order. A rejection anywhere leaves
// the persisted row and every stream exactly as before.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	env, rej := draft.ParseEnvelope(body)
	if rej != nil {
		s.respondRejection(w, "", rej)
		return
	}
	// The action bucket keys on session plus token; unauthenticated junk
	// falls back to the caller address so it cannot exhaust a real token's
	// budget.
	limitKey := key + ":" + env.PlayerToken
	if env.PlayerToken == "" {
		limitKey = key + ":" + middleware.ClientAddr(r)
	}
	if !s.limiter.Check(w, bucketAction, limitKey) {
		return
	}
	if env.PlayerToken == "" {
		respondError(w, http.StatusForbidden, "missing player token")
		return
	}

	act, rej := draft.ParseAction(env)
	if rej != nil {
		s.respondRejection(w, env.Op, rej)
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
		respondInternal(w, "action: load", err)
		return
	}

	var side draft.Side
	switch env.PlayerToken {
	case sess.BlueToken:
		side = draft.SideBlue
	case sess.RedToken:
		side = draft.SideRed
	default:
		respondError(w, http.StatusForbidden, "invalid player token")
		return
	}

	if sess.IsComplete {
		s.respondRejection(w, env.Op, &draft.Rejection{Reason: draft.RejectDraftAlreadyCompleted})
		return
	}

	st := &draft.State{}
	if err := json.Unmarshal(sess.State, st); err != nil {
		respondInternal(w, "action: parse state", err)
		return
	}
	featured, err := draft.SanitizeFeatured(sess.Featured)
	if err != nil {
		respondInternal(w, "action: parse featured", err)
		return
	}
	rules := draft.BuildRuleSet(featured)

	now := s.now()
	nowMs := now.UnixMilli()
	st.BurnFor(act, nowMs)

	if rej := draft.Apply(st, side, act, rules, nowMs); rej != nil {
		// Discard the working copy, burn included; nothing persists.
		s.respondRejection(w, env.Op, rej)
		return
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		respondInternal(w, "action: marshal state", err)
		return
	}
	sess.State = stateJSON
	sess.LastActivityAt = now
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		respondInternal(w, "action: persist", err)
		return
	}

	if s.metrics != nil {
		s.metrics.ActionsTotal.WithLabelValues(env.Op, "applied").Inc()
	}

	// Broadcast after persist; stream write failures never reach this caller.
	payload, hubState, err := shapeForHub(sess, s.joinPreset(r, sess))
	if err == nil {
		s.hub.BroadcastUpdate(ctx, key, payload, hubState)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "applied",
		"currentTurn": st.CurrentTurn,
	})
}
