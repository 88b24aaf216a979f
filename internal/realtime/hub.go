package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/logger"
	"github.com/charlesng35/taskpulse/pkg/metrics"
)

const (
	defaultSendBuffer       = 64
	defaultIdleTimeout      = 30 * time.Minute
	defaultReapSchedule     = "@every 5m"
	defaultMaxCommentLength = 4000
)

// ErrHubClosed is returned by Connect once Stop has run.
var ErrHubClosed = errors.New("realtime: hub is stopped")

// Stats summarises hub state for health and monitoring endpoints.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"online_users"`
	Rooms       int `json:"rooms"`
}

// Option customises the Hub.
type Option func(*Hub)

// WithClock overrides the server clock used for timestamps and idle decisions.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithSendBuffer sets the per-connection outbound buffer size.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithIdleTimeout sets how long a user may stay silent before the reaper evicts them.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout > 0 {
			h.idleTimeout = timeout
		}
	}
}

// WithReapSchedule overrides the cron specification driving the idle sweep.
func WithReapSchedule(spec string) Option {
	return func(h *Hub) {
		if spec != "" {
			h.reapSchedule = spec
		}
	}
}

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(h *Hub) {
		if c != nil {
			h.cron = c
		}
	}
}

// WithMaxCommentLength caps comment text length in runes.
func WithMaxCommentLength(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxCommentLength = n
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// Hub is the single owner of the session registry, presence directory and room
// tracker. Every mutation and every broadcast runs under one mutex, so events for the
// same user or room are applied in arrival order and a connection is never delivered to
// while it is being removed.
type Hub struct {
	mu       sync.Mutex
	sessions *SessionRegistry
	presence *Directory
	rooms    *RoomTracker
	clients  map[string]*Client
	stalled  []string
	stopped  bool

	router *Router
	reaper *Reaper
	cron   *cron.Cron

	now              func() time.Time
	log              *zap.Logger
	sendBuffer       int
	idleTimeout      time.Duration
	reapSchedule     string
	maxCommentLength int
}

// NewHub constructs a hub with its event router and idle reaper.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:          make(map[string]*Client),
		now:              time.Now,
		log:              logger.WithModule("realtime"),
		sendBuffer:       defaultSendBuffer,
		idleTimeout:      defaultIdleTimeout,
		reapSchedule:     defaultReapSchedule,
		maxCommentLength: defaultMaxCommentLength,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.sessions = NewSessionRegistry()
	h.presence = NewDirectory(h.now)
	h.rooms = NewRoomTracker()
	h.router = newRouter(h)
	h.reaper = newReaper(h, h.cron, h.reapSchedule)
	return h
}

// Router returns the event router bound to this hub.
func (h *Hub) Router() *Router { return h.router }

// Reaper returns the idle reaper bound to this hub.
func (h *Hub) Reaper() *Reaper { return h.reaper }

// Start schedules the idle reaper.
func (h *Hub) Start() error {
	return h.reaper.Start()
}

// Stop cancels the reaper, waits for an in-flight sweep, then closes every connection
// through the ordinary disconnect path. Connect fails afterwards.
func (h *Hub) Stop() {
	<-h.reaper.Stop().Done()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	for _, id := range sortedClientIDs(h.clients) {
		h.disconnectLocked(id, ReasonShutdown)
	}
	h.flushStalledLocked()
	h.log.Info("realtime hub stopped")
}

// Connect admits an authenticated identity: the connection is registered, the
// presence record created or refreshed, the full presence snapshot is queued for the new
// connection only and, for a user's first connection, arrival is broadcast to everyone else.
func (h *Hub) Connect(identity Identity) (*Client, error) {
	if identity.UserID == "" || !identity.Active {
		return nil, apperrors.ErrUnauthorized
	}

	client := newClient(uuid.NewString(), identity, h.sendBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, ErrHubClosed
	}

	h.clients[client.id] = client
	first := h.sessions.Register(identity.UserID, client.id)
	record := h.presence.Upsert(identity.UserID, Profile{DisplayName: identity.DisplayName, Avatar: identity.Avatar})
	h.recordGaugesLocked()

	h.deliverLocked(client, h.envelope(EventPresenceSnapshot, "", h.presence.Snapshot(), nil))
	if first {
		actor := record.Actor()
		h.broadcastLocked(h.allExcept(client.id), h.envelope(EventUserOnline, "", record, &actor))
	}

	h.log.Debug("connection registered",
		zap.String("user_id", identity.UserID),
		zap.String("conn_id", client.id),
		zap.Bool("first", first),
	)

	h.flushStalledLocked()
	return client, nil
}

// Disconnect runs cleanup for a connection reported closed by the transport. Unknown or
// already removed connections are no-ops, so duplicate notifications are harmless.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.disconnectLocked(connID, ReasonDisconnect)
	h.flushStalledLocked()
}

// EvictIdle removes every user whose last activity is older than the idle timeout and
// returns their ids. Each evicted user produces exactly one departure with reason timeout.
func (h *Hub) EvictIdle() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.idleTimeout)
	idle := h.presence.IdleSince(cutoff)
	for _, userID := range idle {
		h.evictUserLocked(userID, ReasonTimeout)
	}
	h.flushStalledLocked()
	return idle
}

// PublishToRoom delivers an event to every member of roomID. It is the dispatch
// primitive REST handlers call after committing a task change; it returns the number
// of connections reached.
func (h *Hub) PublishToRoom(roomID, eventType string, payload any, actor Actor) int {
	if roomID == "" || eventType == "" {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := h.broadcastLocked(h.rooms.MembersOf(roomID), h.envelope(eventType, roomID, payload, &actor))
	h.flushStalledLocked()
	return sent
}

// PublishToUser delivers an event to every open connection of userID.
func (h *Hub) PublishToUser(userID, eventType string, payload any, actor Actor) int {
	if userID == "" || eventType == "" {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := h.broadcastLocked(h.sessions.ConnectionsOf(userID), h.envelope(eventType, "", payload, &actor))
	h.flushStalledLocked()
	return sent
}

// Snapshot returns the current presence directory.
func (h *Hub) Snapshot() []PresenceRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.Snapshot()
}

// Presence returns one user's record.
func (h *Hub) Presence(userID string) (PresenceRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.Get(userID)
}

// RoomMembers returns the connection ids subscribed to roomID.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.MembersOf(roomID)
}

// ConnectionsOf returns the open connection ids of userID.
func (h *Hub) ConnectionsOf(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions.ConnectionsOf(userID)
}

// Touch refreshes the last activity of the user owning connID. Transports call it for
// keep-alive traffic that never reaches the router, such as pong frames.
func (h *Hub) Touch(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	return h.presence.Touch(client.identity.UserID)
}

// Stats reports current counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Connections: h.sessions.Connections(),
		OnlineUsers: h.presence.Len(),
		Rooms:       h.rooms.Rooms(),
	}
}

// disconnectLocked removes one connection from every structure. No step can fail, so
// cleanup is all-or-nothing under the hub lock.
func (h *Hub) disconnectLocked(connID, reason string) {
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	userID := client.identity.UserID

	h.detachLocked(client)
	last := h.sessions.Unregister(userID, connID)
	if last {
		h.departLocked(userID, reason)
	}

	h.log.Debug("connection removed",
		zap.String("user_id", userID),
		zap.String("conn_id", connID),
		zap.String("reason", reason),
		zap.Bool("last", last),
	)
}

// evictUserLocked removes all of a user's connections at once and emits a single departure.
func (h *Hub) evictUserLocked(userID, reason string) {
	for _, connID := range h.sessions.ConnectionsOf(userID) {
		if client, ok := h.clients[connID]; ok {
			h.detachLocked(client)
		}
		h.sessions.Unregister(userID, connID)
	}
	h.departLocked(userID, reason)

	h.log.Info("presence evicted", zap.String("user_id", userID), zap.String("reason", reason))
}

// detachLocked drops the client from the client table and every room, notifies the
// remaining room members and closes the client's send buffer.
func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client.id)

	actor := client.identity.Actor()
	if record, ok := h.presence.Get(client.identity.UserID); ok {
		actor = record.Actor()
	}
	for _, roomID := range h.rooms.LeaveAll(client.id) {
		payload := RoomMembershipPayload{RoomID: roomID, UserID: client.identity.UserID}
		h.broadcastLocked(h.rooms.MembersOf(roomID), h.envelope(EventUserLeftRoom, roomID, payload, &actor))
	}

	client.close()
	h.recordGaugesLocked()
}

func (h *Hub) departLocked(userID, reason string) {
	record, ok := h.presence.Get(userID)
	if !ok {
		return
	}
	h.presence.Remove(userID)

	metrics.PresenceDepartures.WithLabelValues(reason).Inc()
	h.recordGaugesLocked()

	actor := record.Actor()
	payload := DeparturePayload{UserID: userID, Reason: reason}
	h.broadcastLocked(h.allExcept(""), h.envelope(EventUserOffline, "", payload, &actor))
}

// broadcastLocked offers env to each connection id. A full buffer never blocks the
// other recipients; the stalled connection is queued for removal instead.
func (h *Hub) broadcastLocked(connIDs []string, env Envelope) int {
	sent := 0
	for _, id := range connIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		if h.deliverLocked(client, env) {
			sent++
		}
	}
	return sent
}

func (h *Hub) deliverLocked(client *Client, env Envelope) bool {
	if client.offer(env) {
		return true
	}
	h.stalled = append(h.stalled, client.id)
	return false
}

// flushStalledLocked disconnects connections whose buffer overflowed. Their own cleanup
// broadcasts can stall further connections, so the queue is drained until empty.
func (h *Hub) flushStalledLocked() {
	for len(h.stalled) > 0 {
		connID := h.stalled[0]
		h.stalled = h.stalled[1:]
		if _, ok := h.clients[connID]; !ok {
			continue
		}
		metrics.RealtimeDropped.Inc()
		h.log.Warn("dropping backpressured connection", zap.String("conn_id", connID))
		h.disconnectLocked(connID, ReasonDisconnect)
	}
	h.stalled = nil
}

func (h *Hub) allExcept(connID string) []string {
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		if id != connID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *Hub) envelope(eventType, roomID string, payload any, actor *Actor) Envelope {
	return Envelope{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   payload,
		Actor:     actor,
		Timestamp: h.now().UTC(),
	}
}

func (h *Hub) recordGaugesLocked() {
	metrics.RealtimeConnections.Set(float64(len(h.clients)))
	metrics.OnlineUsers.Set(float64(h.presence.Len()))
}

func sortedClientIDs(clients map[string]*Client) []string {
	set := make(map[string]struct{}, len(clients))
	for id := range clients {
		set[id] = struct{}{}
	}
	return sortedKeys(set)
}
