package login

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var errNotRunning = errors.New("service not running")

// GC sweeps expired logins in the background. Public manager calls sweep
// inline as well, so the service only matters for logins nobody polls.
type GC struct {
	mgr      *Manager
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	healthy  atomic.Bool
}

func NewGC(mgr *Manager, interval time.Duration) *GC {
	return &GC{
		mgr:      mgr,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (g *GC) Name() string {
	return "login-gc"
}

func (g *GC) Start(ctx context.Context) error {
	slog.Info("Starting service", "service", g.Name(), "interval", g.interval)
	g.healthy.Store(true)
	defer g.healthy.Store(false)

	ticker := g.mgr.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.stopCh:
			return nil
		case <-ticker.Chan():
			if n := g.mgr.Sweep(ctx); n > 0 {
				slog.Debug("Swept expired logins", "count", n)
			}
		}
	}
}

func (g *GC) Stop(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stopCh) })
	return nil
}

func (g *GC) Health() error {
	if !g.healthy.Load() {
		return errNotRunning
	}
	return nil
}
