package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/metrics"
	appValidator "github.com/charlesng35/taskpulse/pkg/validator"
)

// Router validates inbound client frames and dispatches them against the hub's state.
// Failures are reported to the sending connection only and never close it.
type Router struct {
	hub *Hub
}

func newRouter(h *Hub) *Router {
	return &Router{hub: h}
}

// Dispatch handles one raw frame received on connID. Decoding and validation run
// before the hub lock is taken; the mutation and fan-out run under it.
func (r *Router) Dispatch(connID string, raw []byte) {
	eventType := ""
	defer func() {
		if rec := recover(); rec != nil {
			r.hub.log.Error("event handler panic",
				zap.String("conn_id", connID),
				zap.String("event", eventType),
				zap.Any("panic", rec),
			)
			metrics.RealtimeEvents.WithLabelValues(metricLabel(eventType), "error").Inc()
			r.reject(connID, eventType, apperrors.ErrInternalServer)
		}
	}()

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.reject(connID, "", apperrors.NewValidation("message must be a JSON object with a type"))
		metrics.RealtimeEvents.WithLabelValues("malformed", "invalid").Inc()
		return
	}
	eventType = strings.ToLower(strings.TrimSpace(msg.Type))

	apply, err := r.prepare(eventType, msg)
	if err != nil {
		r.reject(connID, eventType, err)
		metrics.RealtimeEvents.WithLabelValues(metricLabel(eventType), "invalid").Inc()
		return
	}

	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	h.presence.Touch(client.identity.UserID)

	if err := apply(client); err != nil {
		h.deliverLocked(client, r.errorEnvelope(eventType, err))
		metrics.RealtimeEvents.WithLabelValues(metricLabel(eventType), "invalid").Inc()
	} else {
		metrics.RealtimeEvents.WithLabelValues(metricLabel(eventType), "ok").Inc()
	}
	h.flushStalledLocked()
}

type applyFunc func(client *Client) error

// prepare decodes and validates the payload for eventType and returns the locked
// mutation to run.
func (r *Router) prepare(eventType string, msg inboundMessage) (applyFunc, error) {
	switch eventType {
	case EventJoinRoom:
		var ev roomEvent
		if err := decodePayload(msg, &ev.RoomID, &ev); err != nil {
			return nil, err
		}
		return func(c *Client) error { return r.joinRoom(c, strings.TrimSpace(ev.RoomID)) }, nil

	case EventLeaveRoom:
		var ev roomEvent
		if err := decodePayload(msg, &ev.RoomID, &ev); err != nil {
			return nil, err
		}
		return func(c *Client) error { return r.leaveRoom(c, strings.TrimSpace(ev.RoomID)) }, nil

	case EventTaskUpdate:
		var ev taskUpdateEvent
		if err := decodePayload(msg, &ev.RoomID, &ev); err != nil {
			return nil, err
		}
		if isEmptyJSON(ev.Changes) {
			return nil, apperrors.NewValidation("changes is required")
		}
		change := TaskChange{ChangeType: strings.TrimSpace(ev.ChangeType), Changes: ev.Changes}
		return func(c *Client) error { return r.taskUpdate(c, strings.TrimSpace(ev.RoomID), change) }, nil

	case EventAddComment:
		var ev commentEvent
		if err := decodePayload(msg, &ev.RoomID, &ev); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(ev.Text)
		if limit := r.hub.maxCommentLength; utf8.RuneCountInString(text) > limit {
			return nil, apperrors.NewValidation(fmt.Sprintf("text must be at most %d characters", limit))
		}
		return func(c *Client) error { return r.addComment(c, strings.TrimSpace(ev.RoomID), text) }, nil

	case EventTyping:
		var ev typingEvent
		if err := decodePayload(msg, &ev.RoomID, &ev); err != nil {
			return nil, err
		}
		return func(c *Client) error { return r.typing(c, strings.TrimSpace(ev.RoomID), bool(ev.IsTyping)) }, nil

	case EventStatusChange:
		var ev statusEvent
		if err := decodePayload(msg, nil, &ev); err != nil {
			if errors.Is(err, apperrors.ErrValidation) {
				return nil, apperrors.ErrInvalidStatus
			}
			return nil, err
		}
		status, err := ParseStatus(ev.Status)
		if err != nil {
			return nil, err
		}
		return func(c *Client) error { return r.statusChange(c, status) }, nil

	case EventPing:
		return r.ping, nil

	default:
		return nil, apperrors.ErrUnknownEvent
	}
}

// decodePayload unmarshals msg.Payload into dest, lets the top-level roomId win over
// one nested in the payload, then runs struct validation.
func decodePayload(msg inboundMessage, roomID *string, dest any) error {
	if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
		if err := json.Unmarshal(msg.Payload, dest); err != nil {
			return apperrors.NewValidation("payload is malformed").WithInternal(err)
		}
	}
	if roomID != nil && strings.TrimSpace(msg.RoomID) != "" {
		*roomID = msg.RoomID
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		var ve appValidator.ValidationErrors
		if errors.As(err, &ve) {
			return apperrors.NewValidation(strings.Join(ve.Messages(), "; "))
		}
		return apperrors.NewValidation(err.Error())
	}
	return nil
}

func (r *Router) joinRoom(c *Client, roomID string) error {
	h := r.hub
	actor := r.actorLocked(c)

	added := h.rooms.Join(roomID, c.id)
	if added {
		payload := RoomMembershipPayload{RoomID: roomID, UserID: actor.ID}
		h.broadcastLocked(r.othersInRoom(roomID, c.id), h.envelope(EventUserJoinedRoom, roomID, payload, &actor))
	}

	ack := RoomMembershipPayload{RoomID: roomID, Members: r.roomActorsLocked(roomID)}
	h.deliverLocked(c, h.envelope(EventRoomJoined, roomID, ack, &actor))
	return nil
}

func (r *Router) leaveRoom(c *Client, roomID string) error {
	h := r.hub
	actor := r.actorLocked(c)

	if h.rooms.Leave(roomID, c.id) {
		payload := RoomMembershipPayload{RoomID: roomID, UserID: actor.ID}
		h.broadcastLocked(h.rooms.MembersOf(roomID), h.envelope(EventUserLeftRoom, roomID, payload, &actor))
	}
	h.deliverLocked(c, h.envelope(EventRoomLeft, roomID, RoomMembershipPayload{RoomID: roomID}, &actor))
	return nil
}

func (r *Router) taskUpdate(c *Client, roomID string, change TaskChange) error {
	h := r.hub
	actor := r.actorLocked(c)
	h.broadcastLocked(r.othersInRoom(roomID, c.id), h.envelope(EventTaskUpdated, roomID, change, &actor))
	return nil
}

// addComment echoes to the full room. The sender always receives its own echo, even
// when it never joined the room.
func (r *Router) addComment(c *Client, roomID, text string) error {
	h := r.hub
	actor := r.actorLocked(c)

	echo := CommentEcho{
		ID:        uuid.NewString(),
		Text:      html.EscapeString(text),
		Author:    actor,
		CreatedAt: h.now().UTC(),
	}

	audience := h.rooms.MembersOf(roomID)
	if !h.rooms.IsMember(roomID, c.id) {
		audience = append(audience, c.id)
	}
	h.broadcastLocked(audience, h.envelope(EventCommentAdded, roomID, echo, &actor))
	return nil
}

func (r *Router) typing(c *Client, roomID string, isTyping bool) error {
	h := r.hub
	actor := r.actorLocked(c)
	payload := TypingPayload{UserID: actor.ID, IsTyping: isTyping}
	h.broadcastLocked(r.othersInRoom(roomID, c.id), h.envelope(EventUserTyping, roomID, payload, &actor))
	return nil
}

// statusChange is a global broadcast. Only the sending connection is excluded, so the
// user's other tabs converge on the new status too.
func (r *Router) statusChange(c *Client, status Status) error {
	h := r.hub
	record, ok, err := h.presence.SetStatus(c.identity.UserID, status)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	actor := record.Actor()
	h.broadcastLocked(h.allExcept(c.id), h.envelope(EventStatusChanged, "", record, &actor))
	return nil
}

func (r *Router) ping(c *Client) error {
	h := r.hub
	h.deliverLocked(c, h.envelope(EventPong, "", nil, nil))
	return nil
}

// reject sends a scoped error to connID, taking the hub lock itself.
func (r *Router) reject(connID, eventType string, err error) {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	h.presence.Touch(client.identity.UserID)
	h.deliverLocked(client, r.errorEnvelope(eventType, err))
	h.flushStalledLocked()

	h.log.Debug("event rejected",
		zap.String("conn_id", connID),
		zap.String("user_id", client.identity.UserID),
		zap.String("event", eventType),
		zap.Error(err),
	)
}

func (r *Router) errorEnvelope(eventType string, err error) Envelope {
	appErr := apperrors.FromError(err)
	payload := ErrorPayload{Code: appErr.Code, Message: appErr.Message, Event: eventType}
	return r.hub.envelope(EventError, "", payload, nil)
}

func (r *Router) othersInRoom(roomID, connID string) []string {
	members := r.hub.rooms.MembersOf(roomID)
	out := members[:0]
	for _, id := range members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// actorLocked prefers the live presence record so profile refreshes show up in broadcasts.
func (r *Router) actorLocked(c *Client) Actor {
	if record, ok := r.hub.presence.Get(c.identity.UserID); ok {
		return record.Actor()
	}
	return c.identity.Actor()
}

// roomActorsLocked lists each user subscribed to roomID once, whatever their tab count.
func (r *Router) roomActorsLocked(roomID string) []Actor {
	h := r.hub
	seen := make(map[string]struct{})
	var actors []Actor
	for _, connID := range h.rooms.MembersOf(roomID) {
		userID, ok := h.sessions.OwnerOf(connID)
		if !ok {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if record, ok := h.presence.Get(userID); ok {
			actors = append(actors, record.Actor())
		} else {
			actors = append(actors, Actor{ID: userID})
		}
	}
	return actors
}

func metricLabel(eventType string) string {
	switch eventType {
	case EventJoinRoom, EventLeaveRoom, EventTaskUpdate, EventAddComment, EventTyping, EventStatusChange, EventPing:
		return eventType
	case "":
		return "malformed"
	default:
		return "unknown"
	}
}
