package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/handlers"
	"github.com/charlesng35/taskpulse/internal/handlers/testutil"
	"github.com/charlesng35/taskpulse/internal/models"
	"github.com/charlesng35/taskpulse/internal/realtime"
)

const password = "Sup3rSecret!"

// connect attaches an in-process realtime client for user and discards its snapshot.
func connect(t *testing.T, env *testutil.Env, user *models.User) *realtime.Client {
	t.Helper()
	client, err := env.Hub.Connect(auth.IdentityFor(user))
	require.NoError(t, err)
	drain(client)
	return client
}

func joinRoom(t *testing.T, env *testutil.Env, client *realtime.Client, roomID string) {
	t.Helper()
	env.Hub.Router().Dispatch(client.ID(), []byte(`{"type":"join-room","roomId":"`+roomID+`"}`))
	drain(client)
}

func drain(client *realtime.Client) []realtime.Envelope {
	var out []realtime.Envelope
	for {
		select {
		case env, ok := <-client.Outbound():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func findEvent(t *testing.T, envs []realtime.Envelope, eventType string) realtime.Envelope {
	t.Helper()
	for _, env := range envs {
		if env.Type == eventType {
			return env
		}
	}
	t.Fatalf("no %s event among %d envelopes", eventType, len(envs))
	return realtime.Envelope{}
}

func createTask(t *testing.T, env *testutil.Env, token string, body map[string]any) models.Task {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/tasks", body, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task models.Task
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &task)
	require.NotEmpty(t, task.ID)
	return task
}

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	env := testutil.NewEnv(t)

	register := map[string]any{
		"username":     "grace",
		"email":        "grace@example.com",
		"password":     password,
		"display_name": "Grace Hopper",
	}
	w := env.Request(http.MethodPost, "/api/auth/register", register, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	again := env.Request(http.MethodPost, "/api/auth/register", register, "")
	require.Equal(t, http.StatusConflict, again.Code)

	login := env.Login("grace", password)
	require.Equal(t, "Bearer", login.TokenType)
	require.Equal(t, "Grace Hopper", login.User.DisplayName)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, me.Code)
	var user testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &user)
	require.Equal(t, "grace@example.com", user.Email)

	bad := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "grace", "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, bad.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, bad).Error.Code)

	anonymous := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)
	require.Equal(t, "UNAUTHENTICATED", testutil.DecodeResponse(t, anonymous).Error.Code)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]any{
		"username": "gr",
		"email":    "not-an-email",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	require.Contains(t, resp.Error.Message, "email must be a valid email address")

	mistyped := env.Request(http.MethodPost, "/api/auth/register", map[string]any{"username": 42}, "")
	require.Equal(t, http.StatusBadRequest, mistyped.Code)
	require.Contains(t, testutil.DecodeResponse(t, mistyped).Error.Message, "username must be a string")
}

func TestTaskHandler_UpdatePublishesToRoom(t *testing.T) {
	env := testutil.NewEnv(t)
	editor := env.CreateUser(password)
	watcher := env.CreateUser(password)
	token := env.TokenFor(editor)

	task := createTask(t, env, token, map[string]any{"title": "Ship presence"})
	require.Equal(t, models.TaskStatusTodo, task.Status)

	watcherConn := connect(t, env, watcher)
	joinRoom(t, env, watcherConn, task.ID)

	w := env.Request(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"status": "in_progress"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	update := findEvent(t, drain(watcherConn), realtime.EventTaskUpdated)
	require.Equal(t, task.ID, update.RoomID)
	require.Equal(t, editor.ID, update.Actor.ID)

	change, ok := update.Payload.(realtime.TaskChange)
	require.True(t, ok)
	require.Equal(t, "updated", change.ChangeType)

	var changes map[string]any
	require.NoError(t, json.Unmarshal(change.Changes, &changes))
	require.Equal(t, "in_progress", changes["status"])

	noop := env.Request(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"status": "in_progress"}, token)
	require.Equal(t, http.StatusOK, noop.Code)
	require.Empty(t, drain(watcherConn))
}

func TestTaskHandler_AssignmentNotifiesAssignee(t *testing.T) {
	env := testutil.NewEnv(t)
	lead := env.CreateUser(password)
	assignee := env.CreateUser(password)
	token := env.TokenFor(lead)

	first := connect(t, env, assignee)
	second := connect(t, env, assignee)

	task := createTask(t, env, token, map[string]any{"title": "Review PR"})
	w := env.Request(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"assignee_id": assignee.ID}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, conn := range []*realtime.Client{first, second} {
		assigned := findEvent(t, drain(conn), realtime.EventTaskAssigned)
		payload, ok := assigned.Payload.(handlers.TaskAssignment)
		require.True(t, ok)
		require.Equal(t, lead.ID, assigned.Actor.ID)
		require.Equal(t, task.ID, payload.TaskID)
		require.Equal(t, "Review PR", payload.Title)
	}
}

func TestTaskHandler_DeletePublishesDeletion(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(password)
	token := env.TokenFor(owner)

	task := createTask(t, env, token, map[string]any{"title": "Temporary"})
	conn := connect(t, env, owner)
	joinRoom(t, env, conn, task.ID)

	w := env.Request(http.MethodDelete, "/api/tasks/"+task.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	deleted := findEvent(t, drain(conn), realtime.EventTaskUpdated)
	change := deleted.Payload.(realtime.TaskChange)
	require.Equal(t, "deleted", change.ChangeType)

	missing := env.Request(http.MethodGet, "/api/tasks/"+task.ID, nil, token)
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, "TASK_NOT_FOUND", testutil.DecodeResponse(t, missing).Error.Code)
}

func TestTaskHandler_ListFilters(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(password)
	token := env.TokenFor(owner)

	createTask(t, env, token, map[string]any{"title": "Alpha", "status": "done"})
	createTask(t, env, token, map[string]any{"title": "Beta"})

	w := env.Request(http.MethodGet, "/api/tasks?status=done", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, 1, resp.Meta.Total)

	var tasks []models.Task
	testutil.DecodeInto(t, resp.Data, &tasks)
	require.Len(t, tasks, 1)
	require.Equal(t, "Alpha", tasks[0].Title)

	invalid := env.Request(http.MethodGet, "/api/tasks?status=paused", nil, token)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestCommentHandler_CreateEchoesToRoom(t *testing.T) {
	env := testutil.NewEnv(t)
	author := env.CreateUser(password)
	reader := env.CreateUser(password)
	token := env.TokenFor(author)

	task := createTask(t, env, token, map[string]any{"title": "Discuss"})
	readerConn := connect(t, env, reader)
	joinRoom(t, env, readerConn, task.ID)

	w := env.Request(http.MethodPost, "/api/tasks/"+task.ID+"/comments", map[string]any{"text": "  <b>looks good</b> "}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var stored models.Comment
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &stored)
	require.Equal(t, "&lt;b&gt;looks good&lt;/b&gt;", stored.Text)

	added := findEvent(t, drain(readerConn), realtime.EventCommentAdded)
	echo := added.Payload.(realtime.CommentEcho)
	require.Equal(t, stored.ID, echo.ID)
	require.Equal(t, stored.Text, echo.Text)
	require.Equal(t, author.ID, echo.Author.ID)

	list := env.Request(http.MethodGet, "/api/tasks/"+task.ID+"/comments", nil, token)
	require.Equal(t, http.StatusOK, list.Code)
	var comments []models.Comment
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &comments)
	require.Len(t, comments, 1)
	require.Equal(t, echo.Text, comments[0].Text)

	blank := env.Request(http.MethodPost, "/api/tasks/"+task.ID+"/comments", map[string]any{"text": "   "}, token)
	require.Equal(t, http.StatusUnprocessableEntity, blank.Code)
}

func TestCommentHandler_ListReportsTotal(t *testing.T) {
	env := testutil.NewEnv(t)
	author := env.CreateUser(password)
	token := env.TokenFor(author)

	task := createTask(t, env, token, map[string]any{"title": "Chatty"})
	for _, text := range []string{"one", "two", "three"} {
		w := env.Request(http.MethodPost, "/api/tasks/"+task.ID+"/comments", map[string]any{"text": text}, token)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.Request(http.MethodGet, "/api/tasks/"+task.ID+"/comments?limit=2", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, 3, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.Limit)

	var comments []models.Comment
	testutil.DecodeInto(t, resp.Data, &comments)
	require.Len(t, comments, 2)
}

func TestPresenceHandler_ListsConnectedUsers(t *testing.T) {
	env := testutil.NewEnv(t)
	viewer := env.CreateUser(password)
	online := env.CreateUser(password)
	token := env.TokenFor(viewer)

	connect(t, env, online)

	w := env.Request(http.MethodGet, "/api/presence", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var records []realtime.PresenceRecord
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &records)
	require.Len(t, records, 1)
	require.Equal(t, online.ID, records[0].UserID)
	require.Equal(t, realtime.StatusOnline, records[0].Status)

	one := env.Request(http.MethodGet, "/api/presence/"+online.ID, nil, token)
	require.Equal(t, http.StatusOK, one.Code)

	offline := env.Request(http.MethodGet, "/api/presence/"+viewer.ID, nil, token)
	require.Equal(t, http.StatusNotFound, offline.Code)
}

func TestRealtimeHandler_RejectsUnauthenticatedUpgrades(t *testing.T) {
	env := testutil.NewEnv(t)

	missing := env.Request(http.MethodGet, "/ws", nil, "")
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	require.Equal(t, "UNAUTHENTICATED", testutil.DecodeResponse(t, missing).Error.Code)

	invalid := env.Request(http.MethodGet, "/ws?token=garbage", nil, "")
	require.Equal(t, http.StatusUnauthorized, invalid.Code)
	require.Equal(t, "TOKEN_INVALID", testutil.DecodeResponse(t, invalid).Error.Code)
	require.Zero(t, env.Hub.Stats().Connections)
}

func TestHealth(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(password)
	connect(t, env, user)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Status   string         `json:"status"`
		Database string         `json:"database"`
		Realtime realtime.Stats `json:"realtime"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, 1, payload.Realtime.Connections)
	require.Equal(t, 1, payload.Realtime.OnlineUsers)
}
