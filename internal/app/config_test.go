package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, []string{"https://board.example.com"}, cfg.Server.AllowedOrigins)

	require.Equal(t, "postgres", cfg.Database.Driver)
	dbOpts := cfg.Database.DatabaseOptions()
	require.Equal(t, "db.example.com", dbOpts.Host)
	require.Equal(t, 5432, dbOpts.Port)
	require.Equal(t, "taskpulse", dbOpts.Name)
	require.Equal(t, "pulse", dbOpts.User)
	require.Equal(t, "require", dbOpts.Options["sslmode"])

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 2*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, "taskpulse", cfg.Auth.JWT.Issuer)

	require.Equal(t, 10*time.Minute, cfg.Realtime.IdleTimeout)
	require.Equal(t, "@every 1m0s", cfg.Realtime.ReapSchedule())
	require.Equal(t, 4000, cfg.Realtime.MaxCommentLength)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 30*time.Minute, cfg.Realtime.IdleTimeout)
	require.Equal(t, "@every 5m0s", cfg.Realtime.ReapSchedule())
	require.Equal(t, 64, cfg.Realtime.SendBuffer)
	require.Equal(t, int64(1<<20), cfg.Realtime.MaxMessageBytes)
	require.Equal(t, time.Minute, cfg.Realtime.PongWait)
	require.Equal(t, 10*time.Second, cfg.Realtime.WriteWait)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)

	sqlite := cfg.Database.DatabaseOptions()
	require.Equal(t, "./data/taskpulse.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
	require.Equal(t, 25, sqlite.Pool.MaxOpenConns)
	require.Equal(t, 5, sqlite.Pool.MaxIdleConns)
	require.Equal(t, 30*time.Minute, sqlite.Pool.ConnMaxLifetime)
	require.Equal(t, 200*time.Millisecond, sqlite.Pool.SlowThreshold)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKPULSE_SERVER_PORT", "7070")
	t.Setenv("TASKPULSE_REALTIME_IDLE_TIMEOUT", "45m")
	t.Setenv("TASKPULSE_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 45*time.Minute, cfg.Realtime.IdleTimeout)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}
