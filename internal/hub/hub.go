// Package hub fans out draft session events to spectator streams. It keeps
// one room per session with the set of open streams, the last shaped
// snapshot, and a periodic ticker that emits low-cardinality timer deltas.
//
// The hub is process-wide. With a Bridge attached, broadcasts also cross
// process boundaries over Redis Pub/Sub so several pods can serve streams
// for the same session.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/backend/internal/draft"
	"github.com/draftforge/backend/internal/monitoring"
)

const (
	tickInterval = 250 * time.Millisecond
	// keepAliveTicks * tickInterval = 25s heartbeat cadence.
	keepAliveTicks = 100

	bridgeChannelPrefix = "draft:events:"
)

// Bridge is the minimal pub/sub surface for cross-process fan-out.
// *infra.GoRedisAdapter implements it.
type Bridge interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// Snapshot is the hub's view of a session: the shaped transport payload plus
// a live state copy the ticker burns forward between persisted updates.
type Snapshot struct {
	Payload json.RawMessage
	State   *draft.State
}

type room struct {
	key      string
	clients  []*Client // insertion order; broadcasts iterate fairly
	snapshot *Snapshot
	stop     chan struct{}
	unsub    func()
}

// Hub multiplexes session events to spectator streams.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	bridge Bridge
	origin string // filters our own bridge echoes

	metrics *monitoring.Metrics
	logger  *log.Logger
}

// New creates a hub. bridge may be nil for single-process fan-out.
func New(bridge Bridge, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]*room),
		bridge:  bridge,
		origin:  uuid.New().String(),
		metrics: metrics,
		logger:  log.New(log.Writer(), "[DraftHub] ", log.LstdFlags),
	}
}

// Subscribe opens a stream on a session. snap seeds the room snapshot when
// the room has none yet (first subscriber); the returned client's first
// event is always a full snapshot.
func (h *Hub) Subscribe(key string, snap *Snapshot) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[key]
	if !ok {
		r = &room{key: key, stop: make(chan struct{})}
		h.rooms[key] = r
		go h.runTicker(r)
		h.bridgeSubscribe(r)
		if h.metrics != nil {
			h.metrics.TickerRooms.Inc()
		}
	}
	if r.snapshot == nil {
		r.snapshot = snap
	}

	c := newClient()
	r.clients = append(r.clients, c)
	if h.metrics != nil {
		h.metrics.StreamsOpen.Inc()
	}

	if r.snapshot != nil {
		c.send(Event{Name: EventSnapshot, Data: r.snapshot.Payload})
	}
	return c
}

// Unsubscribe removes a stream. The last subscriber leaving stops the
// ticker and releases the room.
func (h *Hub) Unsubscribe(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[key]
	if !ok {
		c.close()
		return
	}
	for i, cl := range r.clients {
		if cl == c {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			break
		}
	}
	c.close()
	if h.metrics != nil {
		h.metrics.StreamsOpen.Dec()
	}
	if len(r.clients) == 0 {
		h.releaseRoomLocked(r)
	}
}

// BroadcastUpdate publishes a persisted state change: the room snapshot is
// replaced and every subscriber receives an identical update payload.
func (h *Hub) BroadcastUpdate(ctx context.Context, key string, payload json.RawMessage, st *draft.State) {
	h.mu.Lock()
	if r, ok := h.rooms[key]; ok {
		r.snapshot = &Snapshot{Payload: payload, State: st}
		h.fanoutLocked(r, Event{Name: EventUpdate, Data: payload})
	}
	h.mu.Unlock()

	h.bridgePublish(ctx, key, EventUpdate, payload, st)
}

// BroadcastDeleted emits the terminal deleted event and closes every stream
// on the session.
func (h *Hub) BroadcastDeleted(ctx context.Context, key string) {
	h.mu.Lock()
	h.deleteRoomLocked(key)
	h.mu.Unlock()

	h.bridgePublish(ctx, key, EventDeleted, nil, nil)
}

func (h *Hub) deleteRoomLocked(key string) {
	r, ok := h.rooms[key]
	if !ok {
		return
	}
	h.fanoutLocked(r, Event{Name: EventDeleted, Data: json.RawMessage(`{}`)})
	for _, c := range r.clients {
		c.close()
		if h.metrics != nil {
			h.metrics.StreamsOpen.Dec()
		}
	}
	r.clients = nil
	h.releaseRoomLocked(r)
}

func (h *Hub) releaseRoomLocked(r *room) {
	close(r.stop)
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
	delete(h.rooms, r.key)
	if h.metrics != nil {
		h.metrics.TickerRooms.Dec()
	}
}

// fanoutLocked delivers an event to all subscribers in insertion order.
// A client whose buffer is full is evicted; no missed events are replayed.
func (h *Hub) fanoutLocked(r *room, e Event) {
	alive := r.clients[:0]
	for _, c := range r.clients {
		if c.send(e) {
			alive = append(alive, c)
		} else {
			c.close()
			if h.metrics != nil {
				h.metrics.StreamsOpen.Dec()
			}
			h.logger.Printf("evicted slow stream on session %s", r.key)
		}
	}
	r.clients = alive
	if h.metrics != nil {
		h.metrics.BroadcastsTotal.Inc()
	}
}

// timerEvent is the minimal per-tick payload.
type timerEvent struct {
	TimerEnabled   bool             `json:"timerEnabled"`
	Paused         draft.SideFlags  `json:"paused"`
	ReserveLeft    draft.SideValues `json:"reserveLeft"`
	GraceLeft      float64          `json:"graceLeft"`
	TimerUpdatedAt int64            `json:"timerUpdatedAt"`
	CurrentTurn    int              `json:"currentTurn"`
}

func (h *Hub) runTicker(r *room) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ticks++
			h.tick(r, time.Now().UnixMilli())
			if ticks%keepAliveTicks == 0 {
				h.mu.Lock()
				if _, ok := h.rooms[r.key]; ok {
					h.fanoutLocked(r, Event{KeepAlive: true})
				}
				h.mu.Unlock()
			}
		}
	}
}

// tick burns the in-memory snapshot forward and emits a timer event. The
// next tick burns from this moment; persisted rows are untouched.
func (h *Hub) tick(r *room, nowMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[r.key]; !ok || r.snapshot == nil || r.snapshot.State == nil {
		return
	}
	st := r.snapshot.State
	st.BurnTo(nowMs)

	data, err := json.Marshal(timerEvent{
		TimerEnabled:   st.TimerEnabled,
		Paused:         st.Paused,
		ReserveLeft:    st.ReserveLeft,
		GraceLeft:      st.GraceLeft,
		TimerUpdatedAt: st.TimerUpdatedAt,
		CurrentTurn:    st.CurrentTurn,
	})
	if err != nil {
		return
	}
	h.fanoutLocked(r, Event{Name: EventTimer, Data: data})
}

// =========================================================================
// Cross-process bridge
// =========================================================================

type bridgeMessage struct {
	Origin  string          `json:"origin"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
}

func (h *Hub) bridgePublish(ctx context.Context, key, event string, payload json.RawMessage, st *draft.State) {
	if h.bridge == nil {
		return
	}
	msg := bridgeMessage{Origin: h.origin, Event: event, Payload: payload}
	if st != nil {
		if data, err := json.Marshal(st); err == nil {
			msg.State = data
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.bridge.Publish(ctx, bridgeChannelPrefix+key, data); err != nil {
		h.logger.Printf("bridge publish failed for session %s: %v", key, err)
	}
}

func (h *Hub) bridgeSubscribe(r *room) {
	if h.bridge == nil {
		return
	}
	key := r.key
	unsub, err := h.bridge.Subscribe(context.Background(), bridgeChannelPrefix+key, func(data []byte) {
		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Origin == h.origin {
			return
		}
		h.handleRemote(key, msg)
	})
	if err != nil {
		h.logger.Printf("bridge subscribe failed for session %s, local-only fan-out: %v", key, err)
		return
	}
	r.unsub = unsub
}

func (h *Hub) handleRemote(key string, msg bridgeMessage) {
	switch msg.Event {
	case EventUpdate:
		var st *draft.State
		if len(msg.State) > 0 {
			st = &draft.State{}
			if err := json.Unmarshal(msg.State, st); err != nil {
				st = nil
			}
		}
		h.mu.Lock()
		if r, ok := h.rooms[key]; ok {
			r.snapshot = &Snapshot{Payload: msg.Payload, State: st}
			h.fanoutLocked(r, Event{Name: EventUpdate, Data: msg.Payload})
		}
		h.mu.Unlock()
	case EventDeleted:
		h.mu.Lock()
		h.deleteRoomLocked(key)
		h.mu.Unlock()
	}
}

// SnapshotFor returns a copy-out of the room's current payload, if any.
// Used by transports that need a consistent view outside the lock.
func (h *Hub) SnapshotFor(key string) (json.RawMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	if !ok || r.snapshot == nil {
		return nil, false
	}
	out := make(json.RawMessage, len(r.snapshot.Payload))
	copy(out, r.snapshot.Payload)
	return out, true
}

// String implements fmt.Stringer for debug logging.
func (h *Hub) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("hub{rooms=%d}", len(h.rooms))
}
