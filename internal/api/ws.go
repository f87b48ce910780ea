package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/draftforge/backend/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Spectator streams are public; origin filtering happens upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsFrame mirrors the SSE wire shape for websocket clients.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleWS serves the same spectator stream over a websocket, for clients
// behind proxies that buffer SSE. The server never reads application
// messages; the socket is push-only like the SSE stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the error
	}
	defer conn.Close()

	writeFrame := func(name string, data json.RawMessage) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(wsFrame{Event: name, Data: data})
	}

	snap, ok := s.loadSnapshot(r, key)
	if !ok {
		writeFrame(hub.EventNotFound, []byte(`{}`))
		return
	}

	client := s.hub.Subscribe(key, snap)
	defer s.hub.Unsubscribe(key, client)

	// Discard reads; exit when the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case e := <-client.Events():
			if e.KeepAlive {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			}
			if err := writeFrame(e.Name, e.Data); err != nil {
				return
			}
			if e.Name == hub.EventDeleted {
				return
			}
		case <-client.Done():
			for {
				select {
				case e := <-client.Events():
					if !e.KeepAlive {
						writeFrame(e.Name, e.Data)
						if e.Name == hub.EventDeleted {
							return
						}
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
