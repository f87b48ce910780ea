package hub

import "sync"

// clientBuffer bounds the per-stream event queue. Writes are best-effort:
// a full buffer evicts the client, and the next reconnect gets a fresh
// snapshot.
const clientBuffer = 32

// Client is one spectator stream handle. The transport goroutine consumes
// Events() until Done() closes.
type Client struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func newClient() *Client {
	return &Client{
		events: make(chan Event, clientBuffer),
		done:   make(chan struct{}),
	}
}

// Events yields the client's event queue.
func (c *Client) Events() <-chan Event { return c.events }

// Done closes when the hub has evicted the client or its session ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// send enqueues without blocking; reports false when the buffer is full.
func (c *Client) send(e Event) bool {
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}
