package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/api"
	"github.com/charlesng35/taskpulse/internal/app"
	iauth "github.com/charlesng35/taskpulse/internal/auth"
	"github.com/charlesng35/taskpulse/internal/database"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB     *gorm.DB
	JWT    *iauth.JWTService
	Hub    *realtime.Hub
	Router *gin.Engine
}

// bootstrapRuntime opens the database, starts the realtime hub and builds the router.
// Anything already started is torn down again when a later step fails.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn("partial bootstrap cleanup", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.JWT, err = iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(hubOptions(cfg.Realtime)...)
	if err := stack.Hub.Start(); err != nil {
		return nil, fmt.Errorf("start idle reaper: %w", err)
	}
	log.Info("realtime hub started",
		zap.Duration("idle_timeout", cfg.Realtime.IdleTimeout),
		zap.String("reap_schedule", cfg.Realtime.ReapSchedule()),
	)

	stack.Router, err = api.NewRouter(stack.DB, stack.JWT, cfg, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func hubOptions(cfg app.RealtimeConfig) []realtime.Option {
	opts := []realtime.Option{
		realtime.WithSendBuffer(cfg.SendBuffer),
		realtime.WithIdleTimeout(cfg.IdleTimeout),
		realtime.WithMaxCommentLength(cfg.MaxCommentLength),
	}
	if schedule := cfg.ReapSchedule(); schedule != "" {
		opts = append(opts, realtime.WithReapSchedule(schedule))
	}
	return opts
}

// Shutdown stops the hub, which closes every socket through the ordinary disconnect
// path, then releases the database. Errors from each step are collected.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var err error
	if s.Hub != nil {
		done := make(chan struct{})
		go func() {
			s.Hub.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("stop realtime hub: %w", ctx.Err()))
		}
	}

	if s.DB != nil {
		if closeErr := database.Close(s.DB); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close database: %w", closeErr))
		}
	}
	return err
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, multierr.Append(fmt.Errorf("auto-migrate database: %w", err), database.Close(db))
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}
	if len(cfg.Auth.JWT.Secret) < 32 {
		return fmt.Errorf("auth.jwt.secret must be at least 32 characters (current: %d)", len(cfg.Auth.JWT.Secret))
	}
	return nil
}
