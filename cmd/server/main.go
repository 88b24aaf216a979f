package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/taskpulse/internal/app"
	"github.com/charlesng35/taskpulse/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

type cliOptions struct {
	configPath  string
	port        int
	checkConfig bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err == nil {
		err = run(ctx, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskpulse: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("taskpulse-server", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "configuration directory or config.yaml path")
	fs.IntVar(&opts.port, "port", 0, "override server.port")
	fs.BoolVar(&opts.checkConfig, "check-config", false, "validate configuration and exit")
	err := fs.Parse(args)
	return opts, err
}

func run(ctx context.Context, opts cliOptions) error {
	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}
	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}
	if opts.checkConfig {
		fmt.Fprintf(os.Stdout, "configuration ok (driver=%s, port=%d)\n", cfg.Database.Driver, cfg.Server.Port)
		return nil
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("generated runtime secret; tokens will not survive a restart", zap.String("key", key))
	}

	stack, err := bootstrapRuntime(cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return serve(ctx, server, stack, timeout, log)
}

// serve runs server until ctx ends or it fails, then drains HTTP and the runtime stack.
// Upgraded sockets are hijacked and invisible to Shutdown; stack.Shutdown closes them via the hub.
func serve(ctx context.Context, server *http.Server, stack *runtimeStack, timeout time.Duration, log *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", zap.Duration("timeout", timeout))
	case serveErr := <-failed:
		if serveErr != nil {
			err = fmt.Errorf("listen: %w", serveErr)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if shutdownErr := server.Shutdown(drainCtx); shutdownErr != nil {
		err = multierr.Append(err, fmt.Errorf("http shutdown: %w", shutdownErr))
	}
	err = multierr.Append(err, stack.Shutdown(drainCtx))

	if err == nil {
		log.Info("server stopped")
	}
	return err
}

func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("stat config path: %w", err)
	case info.IsDir():
		return app.LoadConfig(path)
	default:
		return app.LoadConfig(filepath.Dir(path))
	}
}
