package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newSocketServer(t *testing.T, hub *Hub, opts ...TransportOption) *httptest.Server {
	t.Helper()
	transport := NewTransport(hub, []string{"https://app.example.com"}, opts...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.ServeSocket(identity(r.URL.Query().Get("user")), w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func dialUser(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env map[string]any
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestSocketRoundTrip(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Stop)
	server := newSocketServer(t, hub)

	alice := dialUser(t, server, "alice")
	require.Equal(t, EventPresenceSnapshot, readEnvelope(t, alice)["type"])

	bob := dialUser(t, server, "bob")
	require.Equal(t, EventPresenceSnapshot, readEnvelope(t, bob)["type"])
	require.Equal(t, EventUserOnline, readEnvelope(t, alice)["type"])

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "join-room", "roomId": "task-7"}))
	require.Equal(t, EventRoomJoined, readEnvelope(t, alice)["type"])
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "join-room", "roomId": "task-7"}))
	require.Equal(t, EventRoomJoined, readEnvelope(t, bob)["type"])
	require.Equal(t, EventUserJoinedRoom, readEnvelope(t, alice)["type"])

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    "task-update",
		"roomId":  "task-7",
		"payload": map[string]any{"changeType": "status", "changes": map[string]any{"status": "done"}},
	}))
	update := readEnvelope(t, bob)
	require.Equal(t, EventTaskUpdated, update["type"])
	require.Equal(t, "alice", update["actor"].(map[string]any)["id"])

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "task-update", "roomId": ""}))
	failure := readEnvelope(t, alice)
	require.Equal(t, EventError, failure["type"])

	require.NoError(t, alice.Close())
	require.Equal(t, EventUserLeftRoom, readEnvelope(t, bob)["type"])
	offline := readEnvelope(t, bob)
	require.Equal(t, EventUserOffline, offline["type"])
	require.Equal(t, ReasonDisconnect, offline["payload"].(map[string]any)["reason"])

	require.Eventually(t, func() bool { return hub.Stats().Connections == 1 }, time.Second, 10*time.Millisecond)
}

func TestSocketPongsKeepPresenceFresh(t *testing.T) {
	clock := newFakeClock()
	hub := NewHub(WithClock(clock.Now), WithIdleTimeout(30*time.Minute))
	t.Cleanup(hub.Stop)
	server := newSocketServer(t, hub, WithPongWait(time.Second))

	conn := dialUser(t, server, "alice")
	readEnvelope(t, conn)

	// gorilla answers pings from inside ReadMessage, so keep reading and send nothing else.
	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	clock.Advance(35 * time.Minute)
	require.Eventually(t, func() bool {
		record, ok := hub.Presence("alice")
		return ok && record.LastActivity.Equal(clock.Now())
	}, 3*time.Second, 10*time.Millisecond)

	require.Empty(t, hub.EvictIdle())
	require.Len(t, hub.ConnectionsOf("alice"), 1)
}

func TestSocketClosedOnHubShutdown(t *testing.T) {
	hub := NewHub()
	server := newSocketServer(t, hub)

	conn := dialUser(t, server, "alice")
	readEnvelope(t, conn)

	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	transport := NewTransport(NewHub(), []string{"https://app.example.com"})

	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "api.example.com", true},
		{"https://api.example.com", "api.example.com:8080", true},
		{"http://localhost:5173", "api.example.com", true},
		{"https://app.example.com", "api.example.com", true},
		{"https://evil.example.net", "api.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = tc.host
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		require.Equal(t, tc.want, transport.checkOrigin(req), tc.origin)
	}
}
