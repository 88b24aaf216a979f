package realtime

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReaperRunOnceEvictsIdleUsers(t *testing.T) {
	hub, clock := newTestHub(t, WithIdleTimeout(30*time.Minute))
	stale := mustConnect(t, hub, "user-stale")
	fresh := mustConnect(t, hub, "user-fresh")
	drain(fresh)

	clock.Advance(29 * time.Minute)
	require.Empty(t, hub.Reaper().RunOnce())

	dispatch(hub, fresh, `{"type":"ping"}`)
	clock.Advance(2 * time.Minute)

	require.Equal(t, []string{"user-stale"}, hub.Reaper().RunOnce())
	require.True(t, isClosed(stale))

	envs := drain(fresh)
	require.Equal(t, []string{EventPong, EventUserOffline}, types(envs))
	require.Equal(t, ReasonTimeout, envs[1].Payload.(DeparturePayload).Reason)
}

func TestReaperStartRegistersSchedule(t *testing.T) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	hub := NewHub(WithCron(c), WithReapSchedule("@every 1h"))

	require.NoError(t, hub.Start())
	require.NoError(t, hub.Start())
	require.Len(t, c.Entries(), 1)

	hub.Stop()
}

func TestReaperRejectsInvalidSchedule(t *testing.T) {
	hub := NewHub(WithReapSchedule("every so often"))
	require.Error(t, hub.Start())
	hub.Stop()
}

func TestReaperLogsEvictedUsers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	hub, clock := newTestHub(t, WithIdleTimeout(time.Minute), WithLogger(zap.New(core)))
	mustConnect(t, hub, "user-idle")

	clock.Advance(2 * time.Minute)
	require.Equal(t, []string{"user-idle"}, hub.Reaper().RunOnce())

	entries := logs.FilterMessage("idle sweep evicted users").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].ContextMap()["count"])

	require.Empty(t, hub.Reaper().RunOnce())
	require.Equal(t, 1, logs.FilterMessage("idle sweep evicted users").Len())
}
