package realtime

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type roomFixture struct {
	hub      *Hub
	sender   *Client
	peer     *Client
	outsider *Client
}

// newRoomFixture connects three users; sender and peer join task-7.
func newRoomFixture(t *testing.T, opts ...Option) roomFixture {
	t.Helper()
	hub, _ := newTestHub(t, opts...)
	f := roomFixture{
		hub:      hub,
		sender:   mustConnect(t, hub, "user-a"),
		peer:     mustConnect(t, hub, "user-b"),
		outsider: mustConnect(t, hub, "user-c"),
	}
	dispatch(hub, f.sender, `{"type":"join-room","roomId":"task-7"}`)
	dispatch(hub, f.peer, `{"type":"join-room","roomId":"task-7"}`)
	drain(f.sender)
	drain(f.peer)
	drain(f.outsider)
	return f
}

func dispatch(hub *Hub, c *Client, frame string) {
	hub.Router().Dispatch(c.ID(), []byte(frame))
}

func requireError(t *testing.T, envs []Envelope, code string) ErrorPayload {
	t.Helper()
	require.Len(t, envs, 1)
	require.Equal(t, EventError, envs[0].Type)
	payload, ok := envs[0].Payload.(ErrorPayload)
	require.True(t, ok)
	require.Equal(t, code, payload.Code)
	return payload
}

func TestJoinRoomAcknowledgesAndNotifies(t *testing.T) {
	hub, _ := newTestHub(t)
	a := mustConnect(t, hub, "user-a")
	b := mustConnect(t, hub, "user-b")
	dispatch(hub, a, `{"type":"join-room","roomId":"task-7"}`)
	drain(a)
	drain(b)

	dispatch(hub, b, `{"type":"join-room","payload":{"roomId":"task-7"}}`)

	ack := drain(b)
	require.Equal(t, []string{EventRoomJoined}, types(ack))
	members := ack[0].Payload.(RoomMembershipPayload).Members
	require.Len(t, members, 2)

	notice := drain(a)
	require.Equal(t, []string{EventUserJoinedRoom}, types(notice))
	require.Equal(t, "task-7", notice[0].RoomID)
	require.Equal(t, "user-b", notice[0].Actor.ID)

	// Rejoining is acknowledged but nobody is told twice.
	dispatch(hub, b, `{"type":"join-room","roomId":"task-7"}`)
	require.Equal(t, []string{EventRoomJoined}, types(drain(b)))
	require.Empty(t, drain(a))
	require.Len(t, hub.RoomMembers("task-7"), 2)
}

func TestLeaveRoom(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `{"type":"leave-room","roomId":"task-7"}`)
	require.Equal(t, []string{EventRoomLeft}, types(drain(f.sender)))
	require.Equal(t, []string{EventUserLeftRoom}, types(drain(f.peer)))
	require.Equal(t, []string{f.peer.ID()}, f.hub.RoomMembers("task-7"))

	dispatch(f.hub, f.sender, `{"type":"leave-room","roomId":"task-7"}`)
	require.Equal(t, []string{EventRoomLeft}, types(drain(f.sender)))
	require.Empty(t, drain(f.peer))
}

func TestTaskUpdateExcludesSender(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `{"type":"task-update","roomId":"task-7","payload":{"changeType":"status","changes":{"status":"done"}}}`)

	require.Empty(t, drain(f.sender))
	require.Empty(t, drain(f.outsider))

	envs := drain(f.peer)
	require.Equal(t, []string{EventTaskUpdated}, types(envs))
	change := envs[0].Payload.(TaskChange)
	require.Equal(t, "status", change.ChangeType)
	require.JSONEq(t, `{"status":"done"}`, string(change.Changes))
	require.Equal(t, &Actor{ID: "user-a", Name: "User user-a", Avatar: "user-a.png"}, envs[0].Actor)
}

func TestTaskUpdateValidation(t *testing.T) {
	f := newRoomFixture(t)

	frames := []string{
		`{"type":"task-update","roomId":"","payload":{"changeType":"status","changes":{"status":"done"}}}`,
		`{"type":"task-update","roomId":"task-7","payload":{"changes":{"status":"done"}}}`,
		`{"type":"task-update","roomId":"task-7","payload":{"changeType":"status","changes":{}}}`,
		`{"type":"task-update","roomId":"task-7","payload":{"changeType":"status"}}`,
	}
	for _, frame := range frames {
		dispatch(f.hub, f.sender, frame)
		requireError(t, drain(f.sender), "VALIDATION_ERROR")
		require.Empty(t, drain(f.peer), frame)
		require.Empty(t, drain(f.outsider), frame)
	}
}

func TestAddCommentReachesWholeRoom(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `{"type":"add-comment","roomId":"task-7","payload":{"text":"  <b>ship it</b>  "}}`)

	mine := drain(f.sender)
	theirs := drain(f.peer)
	require.Equal(t, []string{EventCommentAdded}, types(mine))
	require.Equal(t, []string{EventCommentAdded}, types(theirs))
	require.Empty(t, drain(f.outsider))

	echo := mine[0].Payload.(CommentEcho)
	require.Equal(t, "&lt;b&gt;ship it&lt;/b&gt;", echo.Text)
	require.Equal(t, "user-a", echo.Author.ID)
	require.NotEmpty(t, echo.ID)
	require.Equal(t, echo.ID, theirs[0].Payload.(CommentEcho).ID)
}

func TestAddCommentFromNonMemberEchoesToSender(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.outsider, `{"type":"add-comment","roomId":"task-7","payload":{"text":"drive-by"}}`)
	require.Equal(t, []string{EventCommentAdded}, types(drain(f.outsider)))
	require.Equal(t, []string{EventCommentAdded}, types(drain(f.peer)))
}

func TestAddCommentValidation(t *testing.T) {
	f := newRoomFixture(t, WithMaxCommentLength(5))

	dispatch(f.hub, f.sender, `{"type":"add-comment","roomId":"task-7","payload":{"text":"   "}}`)
	requireError(t, drain(f.sender), "VALIDATION_ERROR")

	dispatch(f.hub, f.sender, `{"type":"add-comment","roomId":"task-7","payload":{"text":"toolong"}}`)
	payload := requireError(t, drain(f.sender), "VALIDATION_ERROR")
	require.Equal(t, EventAddComment, payload.Event)
	require.Empty(t, drain(f.peer))
}

func TestTypingCoercesFlag(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `{"type":"typing","roomId":"task-7","payload":{"isTyping":"true"}}`)
	require.Empty(t, drain(f.sender))
	envs := drain(f.peer)
	require.Equal(t, []string{EventUserTyping}, types(envs))
	require.True(t, envs[0].Payload.(TypingPayload).IsTyping)

	dispatch(f.hub, f.sender, `{"type":"typing","roomId":"task-7","payload":{}}`)
	require.False(t, drain(f.peer)[0].Payload.(TypingPayload).IsTyping)

	dispatch(f.hub, f.sender, `{"type":"typing","roomId":"task-7","payload":{"isTyping":"sometimes"}}`)
	requireError(t, drain(f.sender), "VALIDATION_ERROR")
	require.Empty(t, drain(f.peer))
}

func TestStatusChangeBroadcastsGlobally(t *testing.T) {
	f := newRoomFixture(t)
	secondTab := mustConnect(t, f.hub, "user-a")
	drain(f.peer)
	drain(f.outsider)

	dispatch(f.hub, f.sender, `{"type":"status-change","payload":{"status":"busy"}}`)

	require.Empty(t, drain(f.sender))
	for _, c := range []*Client{f.peer, f.outsider, secondTab} {
		envs := drain(c)
		require.Equal(t, []string{EventStatusChanged}, types(envs))
		require.Equal(t, StatusBusy, envs[0].Payload.(PresenceRecord).Status)
	}

	record, _ := f.hub.Presence("user-a")
	require.Equal(t, StatusBusy, record.Status)
}

func TestStatusChangeRejectsUnknownStatus(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `{"type":"status-change","payload":{"status":"away"}}`)
	drain(f.peer)

	for _, frame := range []string{
		`{"type":"status-change","payload":{"status":"paused"}}`,
		`{"type":"status-change","payload":{}}`,
	} {
		dispatch(f.hub, f.sender, frame)
		requireError(t, drain(f.sender), "INVALID_STATUS")
		require.Empty(t, drain(f.peer))
	}

	record, _ := f.hub.Presence("user-a")
	require.Equal(t, StatusAway, record.Status)
}

func TestMalformedAndUnknownFramesKeepConnectionOpen(t *testing.T) {
	f := newRoomFixture(t)

	dispatch(f.hub, f.sender, `not json`)
	requireError(t, drain(f.sender), "VALIDATION_ERROR")

	dispatch(f.hub, f.sender, `{"type":"dance"}`)
	payload := requireError(t, drain(f.sender), "UNKNOWN_EVENT")
	require.Equal(t, "dance", payload.Event)

	dispatch(f.hub, f.sender, `{"type":"ping"}`)
	require.Equal(t, []string{EventPong}, types(drain(f.sender)))
	require.Len(t, f.hub.ConnectionsOf("user-a"), 1)
}

func TestEnvelopeWireShape(t *testing.T) {
	f := newRoomFixture(t)
	dispatch(f.hub, f.sender, `{"type":"typing","roomId":"task-7","payload":{"isTyping":true}}`)
	envs := drain(f.peer)
	require.Len(t, envs, 1)

	raw, err := json.Marshal(envs[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "user-typing", decoded["type"])
	require.Equal(t, "task-7", decoded["roomId"])
	require.Contains(t, decoded, "payload")
	require.Contains(t, decoded, "timestamp")
	actor := decoded["actor"].(map[string]any)
	require.Equal(t, "user-a", actor["id"])
	require.False(t, strings.Contains(string(raw), "active"), "identity flags never reach the wire")
}
