package realtime

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reaper periodically evicts users whose last activity is older than the hub's idle
// timeout. Sweeps run on a cron schedule and share the hub lock with everything else.
type Reaper struct {
	hub      *Hub
	cron     *cron.Cron
	schedule string

	mu      sync.Mutex
	started bool
}

func newReaper(h *Hub, c *cron.Cron, schedule string) *Reaper {
	if c == nil {
		c = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	if schedule == "" {
		schedule = defaultReapSchedule
	}
	return &Reaper{hub: h, cron: c, schedule: schedule}
}

// Start registers the sweep and launches the scheduler. Calling it twice is a no-op.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce() }); err != nil {
		return err
	}
	r.cron.Start()
	r.started = true
	return nil
}

// Stop halts the scheduler. The returned context is done once any running sweep returns.
func (r *Reaper) Stop() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	r.started = false
	return r.cron.Stop()
}

// RunOnce performs a single sweep and returns the evicted user ids.
func (r *Reaper) RunOnce() []string {
	evicted := r.hub.EvictIdle()
	if len(evicted) > 0 {
		r.hub.log.Info("idle sweep evicted users", zap.Int("count", len(evicted)), zap.Strings("user_ids", evicted))
	}
	return evicted
}
