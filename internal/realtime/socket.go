package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 1 << 20 // 1 MiB
)

// TransportOption customises a Transport.
type TransportOption func(*Transport)

// WithMaxMessageBytes caps the size of one inbound frame.
func WithMaxMessageBytes(n int64) TransportOption {
	return func(t *Transport) {
		if n > 0 {
			t.maxMessageSize = n
		}
	}
}

// WithPongWait sets how long a silent peer is tolerated. Pings go out at 90% of it.
func WithPongWait(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.pongWait = d
		}
	}
}

// WithWriteWait bounds each socket write.
func WithWriteWait(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.writeWait = d
		}
	}
}

// Transport upgrades HTTP requests to WebSockets and pumps frames between the socket and
// the hub. Authentication happens before ServeSocket is called.
type Transport struct {
	hub      *Hub
	upgrader websocket.Upgrader
	origins  map[string]struct{}
	log      *zap.Logger

	maxMessageSize int64
	pongWait       time.Duration
	writeWait      time.Duration
}

// NewTransport builds a transport for hub. Same-origin and loopback origins are always
// accepted; allowedOrigins adds further hosts ("*" accepts any).
func NewTransport(hub *Hub, allowedOrigins []string, opts ...TransportOption) *Transport {
	t := &Transport{
		hub:            hub,
		origins:        make(map[string]struct{}, len(allowedOrigins)),
		log:            hub.log,
		maxMessageSize: defaultMaxMessageSize,
		pongWait:       defaultPongWait,
		writeWait:      defaultWriteWait,
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, origin := range allowedOrigins {
		if host := hostWithoutPort(origin); host != "" {
			t.origins[strings.ToLower(host)] = struct{}{}
		}
	}
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     t.checkOrigin,
	}
	return t
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := strings.ToLower(hostWithoutPort(origin))
	if originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost) {
		return true
	}
	if _, ok := t.origins["*"]; ok {
		return true
	}
	_, ok := t.origins[originHost]
	return ok
}

// ServeSocket upgrades the request, admits identity to the hub and blocks until the
// connection ends. The hub is told about the disconnect exactly once.
func (t *Transport) ServeSocket(identity Identity, w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	client, err := t.hub.Connect(identity)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(t.writeWait))
		_ = conn.Close()
		return
	}

	sc := &socketConn{transport: t, socket: conn, client: client}
	go sc.writeLoop()
	sc.readLoop()
}

type socketConn struct {
	transport *Transport
	socket    *websocket.Conn
	client    *Client
	once      sync.Once
}

func (c *socketConn) readLoop() {
	defer c.close()

	t := c.transport
	c.socket.SetReadLimit(t.maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(t.pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(t.pongWait))
		t.hub.Touch(c.client.ID())
		return nil
	})

	router := t.hub.Router()
	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				t.log.Debug("unexpected websocket close",
					zap.String("user_id", c.client.UserID()),
					zap.String("conn_id", c.client.ID()),
					zap.Error(err),
				)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		_ = c.socket.SetReadDeadline(time.Now().Add(t.pongWait))
		router.Dispatch(c.client.ID(), payload)
	}
}

func (c *socketConn) writeLoop() {
	defer c.close()

	writeWait := c.transport.writeWait
	ticker := time.NewTicker(c.transport.pongWait * 9 / 10)
	defer ticker.Stop()

	outbound := c.client.Outbound()
	for {
		select {
		case env, ok := <-outbound:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *socketConn) close() {
	c.once.Do(func() {
		c.transport.hub.Disconnect(c.client.ID())
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.Contains(host, "://") {
		if parsed, err := url.Parse(host); err == nil {
			return hostWithoutPort(parsed.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
