package realtime

import "sync"

// Client is the hub's view of one live connection. The socket itself belongs to the
// transport; the hub only writes into the bounded send buffer.
type Client struct {
	id       string
	identity Identity
	send     chan Envelope
	once     sync.Once
}

func newClient(id string, identity Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		id:       id,
		identity: identity,
		send:     make(chan Envelope, buffer),
	}
}

// ID returns the connection id assigned by the hub.
func (c *Client) ID() string { return c.id }

// UserID returns the owning user id.
func (c *Client) UserID() string { return c.identity.UserID }

// Identity returns the authenticated identity bound to the connection.
func (c *Client) Identity() Identity { return c.identity }

// Outbound yields envelopes queued for delivery. It is closed once the hub drops the connection.
func (c *Client) Outbound() <-chan Envelope { return c.send }

// offer enqueues without blocking; false means the buffer is full.
// Callers hold the hub lock, which also guards close.
func (c *Client) offer(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}
