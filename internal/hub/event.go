package hub

import (
	"encoding/json"
	"fmt"
)

// Terminal event names on a spectator stream.
const (
	EventSnapshot = "snapshot"
	EventUpdate   = "update"
	EventTimer    = "timer"
	EventDeleted  = "deleted"
	EventNotFound = "not_found"
)

// Event is one unit delivered to a spectator stream. KeepAlive events carry
// no name or data; transports render them as SSE comments or WS pings.
type Event struct {
	Name      string
	Data      json.RawMessage
	KeepAlive bool
}

// keepAliveFrame is the SSE comment that prevents idle-connection reaping.
const keepAliveFrame = ": keep-alive\n\n"

// SSEFrame renders the event in Server-Sent Events wire format.
func (e Event) SSEFrame() []byte {
	if e.KeepAlive {
		return []byte(keepAliveFrame)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, e.Data))
}
