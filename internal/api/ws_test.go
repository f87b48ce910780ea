package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsDial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebsocketStream(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	creds := createSession(t, s, ownerToken1)
	conn := wsDial(t, ts, "/api/sessions/"+creds.Key+"/ws")
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, "snapshot", frame.Event)

	var shaped shapedSession
	require.NoError(t, json.Unmarshal(frame.Data, &shaped))
	assert.Equal(t, creds.Key, shaped.Key)

	rec := postAction(t, s, creds.Key, map[string]interface{}{
		"op": "ban", "pt": creds.BlueToken, "index": 0, "characterCode": "c1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Ticker timer events may interleave; scan for the update.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no update frame")
		frame = readFrame(t, conn)
		if frame.Event == "update" {
			break
		}
		require.Equal(t, "timer", frame.Event)
	}
	require.NoError(t, json.Unmarshal(frame.Data, &shaped))
	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(shaped.State, &st))
	assert.EqualValues(t, 1, st["currentTurn"])
}

func TestWebsocketNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := wsDial(t, ts, "/api/sessions/missing/ws")
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, "not_found", frame.Event)

	// The server closes after the terminal frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var next wsFrame
	assert.Error(t, conn.ReadJSON(&next))
}

func TestWebsocketDeleted(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	creds := createSession(t, s, ownerToken1)
	conn := wsDial(t, ts, "/api/sessions/"+creds.Key+"/ws")
	defer conn.Close()
	require.Equal(t, "snapshot", readFrame(t, conn).Event)

	rec := doJSON(t, s, http.MethodDelete, "/api/sessions/"+creds.Key, ownerToken1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no deleted frame")
		frame := readFrame(t, conn)
		if frame.Event == "deleted" {
			break
		}
	}
}
