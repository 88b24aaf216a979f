package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound event types sent by clients.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventTaskUpdate   = "task-update"
	EventAddComment   = "add-comment"
	EventTyping       = "typing"
	EventStatusChange = "status-change"
	EventPing         = "ping"
)

// Outbound event types emitted by the server.
const (
	EventPresenceSnapshot = "presence-snapshot"
	EventUserOnline       = "user-online"
	EventUserOffline      = "user-offline"
	EventUserJoinedRoom   = "user-joined-room"
	EventUserLeftRoom     = "user-left-room"
	EventRoomJoined       = "room-joined"
	EventRoomLeft         = "room-left"
	EventTaskUpdated      = "task-updated"
	EventCommentAdded     = "comment-added"
	EventUserTyping       = "user-typing"
	EventStatusChanged    = "status-changed"
	EventTaskAssigned     = "task-assigned"
	EventPong             = "pong"
	EventError            = "error"
)

// Departure reasons carried by user-offline.
const (
	ReasonDisconnect = "disconnect"
	ReasonTimeout    = "timeout"
	ReasonShutdown   = "shutdown"
)

// Identity is the authenticated user handed over by the authentication collaborator.
type Identity struct {
	UserID      string
	DisplayName string
	Avatar      string
	Active      bool
}

// Actor returns the credential-free summary attached to broadcasts.
func (i Identity) Actor() Actor {
	return Actor{ID: i.UserID, Name: i.DisplayName, Avatar: i.Avatar}
}

// Actor is the sender summary carried by every dispatched message.
type Actor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Envelope is the single outbound frame shape.
type Envelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Actor     *Actor    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is sent to the offending connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// DeparturePayload accompanies user-offline.
type DeparturePayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// RoomMembershipPayload accompanies room join/leave notifications.
type RoomMembershipPayload struct {
	RoomID  string  `json:"roomId"`
	UserID  string  `json:"userId,omitempty"`
	Members []Actor `json:"members,omitempty"`
}

// TaskChange is relayed to the other members of a task room.
type TaskChange struct {
	ChangeType string          `json:"changeType"`
	Changes    json.RawMessage `json:"changes"`
}

// CommentEcho is the ephemeral comment broadcast to a whole room. Ids are only unique
// within the running process.
type CommentEcho struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Actor     `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// TypingPayload accompanies user-typing.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// inboundMessage is the client frame: a discriminator, an optional room and a payload.
type inboundMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

type roomEvent struct {
	RoomID string `json:"roomId" validate:"notblank,max=128"`
}

type taskUpdateEvent struct {
	RoomID     string          `json:"roomId" validate:"notblank,max=128"`
	ChangeType string          `json:"changeType" validate:"notblank,max=64"`
	Changes    json.RawMessage `json:"changes" validate:"notblank"`
}

type commentEvent struct {
	RoomID string `json:"roomId" validate:"notblank,max=128"`
	Text   string `json:"text" validate:"notblank"`
}

type typingEvent struct {
	RoomID   string   `json:"roomId" validate:"notblank,max=128"`
	IsTyping flexBool `json:"isTyping"`
}

type statusEvent struct {
	Status string `json:"status" validate:"notblank"`
}

// flexBool accepts JSON booleans, "true"/"false" style strings and 0/1 numbers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*b = false
		return nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		*b = flexBool(asBool)
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		parsed, perr := strconv.ParseBool(strings.TrimSpace(asString))
		if perr != nil {
			return fmt.Errorf("isTyping: %q is not a boolean", asString)
		}
		*b = flexBool(parsed)
		return nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil && (asNumber == 0 || asNumber == 1) {
		*b = asNumber == 1
		return nil
	}

	return fmt.Errorf("isTyping: %s is not a boolean", string(raw))
}

// isEmptyJSON reports whether raw carries no usable change: absent, null, "", {} or [].
func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", `""`, "{}", "[]":
		return true
	}

	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return true
	}
	switch v := probe.(type) {
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}
