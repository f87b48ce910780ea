package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/backend/internal/draft"
)

func testSnapshot(t *testing.T, timerEnabled bool) *Snapshot {
	t.Helper()
	st := &draft.State{
		DraftSequence: []string{"BB", "RR", "B", "R"},
		CurrentTurn:   2,
		Picks:         make([]*draft.Slot, 4),
	}
	require.NoError(t, st.Validate())
	st.SeedTimer(timerEnabled, 180, time.Now().UnixMilli())
	return &Snapshot{Payload: json.RawMessage(`{"key":"s1"}`), State: st}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event within deadline")
		return Event{}
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	h := New(nil, nil)
	c := h.Subscribe("s1", testSnapshot(t, false))
	defer h.Unsubscribe("s1", c)

	e := recvEvent(t, c)
	assert.Equal(t, EventSnapshot, e.Name)
	assert.JSONEq(t, `{"key":"s1"}`, string(e.Data))
}

func TestBroadcastUpdateReachesAllSubscribers(t *testing.T) {
	h := New(nil, nil)
	snap := testSnapshot(t, false)
	c1 := h.Subscribe("s1", snap)
	c2 := h.Subscribe("s1", nil) // room already seeded
	defer h.Unsubscribe("s1", c1)
	defer h.Unsubscribe("s1", c2)

	require.Equal(t, EventSnapshot, recvEvent(t, c1).Name)
	require.Equal(t, EventSnapshot, recvEvent(t, c2).Name)

	payload := json.RawMessage(`{"key":"s1","currentTurn":3}`)
	h.BroadcastUpdate(context.Background(), "s1", payload, snap.State)

	e1 := recvEvent(t, c1)
	e2 := recvEvent(t, c2)
	assert.Equal(t, EventUpdate, e1.Name)
	assert.Equal(t, EventUpdate, e2.Name)
	assert.Equal(t, string(e1.Data), string(e2.Data), "identical payload for every subscriber")
}

func TestBroadcastUpdateWithoutRoomIsNoop(t *testing.T) {
	h := New(nil, nil)
	h.BroadcastUpdate(context.Background(), "ghost", json.RawMessage(`{}`), nil)
	assert.Equal(t, "hub{rooms=0}", h.String())
}

func TestBroadcastDeletedClosesStreams(t *testing.T) {
	h := New(nil, nil)
	c := h.Subscribe("s1", testSnapshot(t, false))
	require.Equal(t, EventSnapshot, recvEvent(t, c).Name)

	h.BroadcastDeleted(context.Background(), "s1")

	e := recvEvent(t, c)
	assert.Equal(t, EventDeleted, e.Name)
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed after delete")
	}
	assert.Equal(t, "hub{rooms=0}", h.String())
}

func TestLastUnsubscribeReleasesRoom(t *testing.T) {
	h := New(nil, nil)
	c1 := h.Subscribe("s1", testSnapshot(t, false))
	c2 := h.Subscribe("s1", nil)

	h.Unsubscribe("s1", c1)
	assert.Equal(t, "hub{rooms=1}", h.String())
	h.Unsubscribe("s1", c2)
	assert.Equal(t, "hub{rooms=0}", h.String())
}

func TestTickerEmitsTimerEvents(t *testing.T) {
	h := New(nil, nil)
	c := h.Subscribe("s1", testSnapshot(t, true))
	defer h.Unsubscribe("s1", c)

	require.Equal(t, EventSnapshot, recvEvent(t, c).Name)

	e := recvEvent(t, c)
	require.Equal(t, EventTimer, e.Name)

	var te timerEvent
	require.NoError(t, json.Unmarshal(e.Data, &te))
	assert.True(t, te.TimerEnabled)
	assert.Equal(t, 2, te.CurrentTurn)
	assert.LessOrEqual(t, te.ReserveLeft.B, 180.0)
}

func TestTickerBurnsSnapshotForward(t *testing.T) {
	h := New(nil, nil)
	snap := testSnapshot(t, true)
	// Backdate the checkpoint far past the grace window.
	snap.State.TimerUpdatedAt = time.Now().Add(-40 * time.Second).UnixMilli()

	c := h.Subscribe("s1", snap)
	defer h.Unsubscribe("s1", c)
	require.Equal(t, EventSnapshot, recvEvent(t, c).Name)

	e := recvEvent(t, c)
	require.Equal(t, EventTimer, e.Name)
	var te timerEvent
	require.NoError(t, json.Unmarshal(e.Data, &te))
	assert.InDelta(t, 0.0, te.GraceLeft, 0.5)
	assert.Less(t, te.ReserveLeft.B, 180.0)
	assert.InDelta(t, 180.0, te.ReserveLeft.R, 1e-9)
}

func TestSlowClientEvicted(t *testing.T) {
	h := New(nil, nil)
	snap := testSnapshot(t, false)
	c := h.Subscribe("s1", snap)
	// Never read: snapshot plus clientBuffer updates fill the queue.
	for i := 0; i <= clientBuffer+1; i++ {
		h.BroadcastUpdate(context.Background(), "s1", snap.Payload, nil)
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("slow client not evicted")
	}
}

func TestSnapshotFor(t *testing.T) {
	h := New(nil, nil)
	_, ok := h.SnapshotFor("s1")
	assert.False(t, ok)

	c := h.Subscribe("s1", testSnapshot(t, false))
	defer h.Unsubscribe("s1", c)

	payload, ok := h.SnapshotFor("s1")
	require.True(t, ok)
	assert.JSONEq(t, `{"key":"s1"}`, string(payload))
}

// fakeBridge is an in-memory Bridge connecting hubs in one process.
type fakeBridge struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: make(map[string][]func([]byte))}
}

func (b *fakeBridge) Publish(_ context.Context, channel string, message []byte) error {
	b.mu.Lock()
	hs := append([]func([]byte){}, b.handlers[channel]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(message)
	}
	return nil
}

func (b *fakeBridge) Subscribe(_ context.Context, channel string, handler func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
	return func() {}, nil
}

func TestBridgeCrossesHubs(t *testing.T) {
	bridge := newFakeBridge()
	h1 := New(bridge, nil)
	h2 := New(bridge, nil)

	snap := testSnapshot(t, false)
	c2 := h2.Subscribe("s1", snap)
	defer h2.Unsubscribe("s1", c2)
	require.Equal(t, EventSnapshot, recvEvent(t, c2).Name)

	payload := json.RawMessage(`{"key":"s1","currentTurn":3}`)
	h1.BroadcastUpdate(context.Background(), "s1", payload, snap.State)

	e := recvEvent(t, c2)
	assert.Equal(t, EventUpdate, e.Name)
	assert.JSONEq(t, string(payload), string(e.Data))
}

func TestBridgeFiltersOwnEcho(t *testing.T) {
	bridge := newFakeBridge()
	h := New(bridge, nil)

	snap := testSnapshot(t, false)
	c := h.Subscribe("s1", snap)
	defer h.Unsubscribe("s1", c)
	require.Equal(t, EventSnapshot, recvEvent(t, c).Name)

	payload := json.RawMessage(`{"key":"s1","currentTurn":3}`)
	h.BroadcastUpdate(context.Background(), "s1", payload, nil)

	// Exactly one update arrives: the local fan-out, not a second bridged copy.
	assert.Equal(t, EventUpdate, recvEvent(t, c).Name)
	select {
	case e := <-c.Events():
		t.Fatalf("unexpected extra event %q", e.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgedDeleteClosesRemoteStreams(t *testing.T) {
	bridge := newFakeBridge()
	h1 := New(bridge, nil)
	h2 := New(bridge, nil)

	c2 := h2.Subscribe("s1", testSnapshot(t, false))
	require.Equal(t, EventSnapshot, recvEvent(t, c2).Name)

	h1.BroadcastDeleted(context.Background(), "s1")

	assert.Equal(t, EventDeleted, recvEvent(t, c2).Name)
	select {
	case <-c2.Done():
	case <-time.After(time.Second):
		t.Fatal("remote client not closed")
	}
}

func TestSSEFrame(t *testing.T) {
	e := Event{Name: EventUpdate, Data: json.RawMessage(`{"a":1}`)}
	assert.Equal(t, "event: update\ndata: {\"a\":1}\n\n", string(e.SSEFrame()))

	assert.Equal(t, ": keep-alive\n\n", string(Event{KeepAlive: true}.SSEFrame()))
}
