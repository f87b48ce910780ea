package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/draftforge/backend/internal/hub"
)

// handleStream opens a unidirectional spectator stream over Server-Sent
// Events. The subscriber receives a full snapshot first, then update events
// on every persisted change, periodic timer events from the room ticker,
// and a terminal deleted event if the owner removes the session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	key := mux.Vars(r)["key"]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	snap, ok := s.loadSnapshot(r, key)
	if !ok {
		w.WriteHeader(http.StatusOK)
		w.Write(hub.Event{Name: hub.EventNotFound, Data: []byte(`{}`)}.SSEFrame())
		flusher.Flush()
		return
	}

	client := s.hub.Subscribe(key, snap)
	defer s.hub.Unsubscribe(key, client)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case e := <-client.Events():
			if _, err := w.Write(e.SSEFrame()); err != nil {
				return
			}
			flusher.Flush()
			if e.Name == hub.EventDeleted {
				return
			}
		case <-client.Done():
			// Drain anything already queued (the deleted event in
			// particular) before closing.
			for {
				select {
				case e := <-client.Events():
					w.Write(e.SSEFrame())
					flusher.Flush()
					if e.Name == hub.EventDeleted {
						return
					}
				default:
					return
				}
			}
		case <-r.Context().Done():
			return
		}
	}
}

// loadSnapshot fetches and shapes the session for a new subscriber. The hub
// keeps its own newer snapshot when one exists.
func (s *Server) loadSnapshot(r *http.Request, key string) (*hub.Snapshot, bool) {
	sess, err := s.store.GetSession(r.Context(), key)
	if err != nil {
		return nil, false
	}
	payload, st, err := shapeForHub(sess, s.joinPreset(r, sess))
	if err != nil {
		return nil, false
	}
	return &hub.Snapshot{Payload: payload, State: st}, true
}
