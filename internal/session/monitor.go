package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// probeTimeout bounds one session's health probe, reconnect included.
const probeTimeout = 15 * time.Second

// deadReason marks entries in the dead-session map.
const deadReason = "DIE"

// Monitor probes every session's authorization on an interval and publishes
// the dead map wholesale. Terminal authorization failures also drop the
// connection so the session stops being used until its file is replaced.
type Monitor struct {
	registry *Registry
	store    *state.Store
	clock    clockwork.Clock
	interval time.Duration

	checkMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	healthy  atomic.Bool
}

func NewMonitor(registry *Registry, store *state.Store, clock clockwork.Clock, interval time.Duration) *Monitor {
	return &Monitor{
		registry: registry,
		store:    store,
		clock:    clock,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) Name() string {
	return "health-monitor"
}

func (m *Monitor) Start(ctx context.Context) error {
	m.healthy.Store(true)
	defer m.healthy.Store(false)

	m.RunOnce(ctx)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		case <-ticker.Chan():
			m.RunOnce(ctx)
		}
	}
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *Monitor) Health() error {
	if !m.healthy.Load() {
		return errNotRunning
	}
	return nil
}

// RunOnce performs one health pass. Safe to call concurrently with the
// service loop; overlapping passes are skipped.
func (m *Monitor) RunOnce(ctx context.Context) {
	if !m.checkMu.TryLock() {
		slog.Debug("Health pass already in progress, skipping")
		return
	}
	defer m.checkMu.Unlock()

	prev := m.store.DeadSessions()
	dead := make(map[string]state.DeadSession)
	online := 0

	for _, sess := range m.registry.Sessions() {
		ok, terminal, errMsg := m.probe(ctx, sess)
		if ok {
			metrics.SessionHealthChecks.WithLabelValues("ok").Inc()
			online++
			continue
		}

		if terminal {
			metrics.SessionHealthChecks.WithLabelValues("terminal").Inc()
		} else {
			metrics.SessionHealthChecks.WithLabelValues("dead").Inc()
		}

		dead[sess.File] = state.DeadSession{
			TS:        m.clock.Now(),
			Reason:    deadReason,
			LastError: errMsg,
		}
		if _, was := prev[sess.File]; !was {
			slog.Warn("Session died", "session", sess.Name, "error", errMsg)
		}
	}

	m.store.SetDeadSessions(dead)
	if err := m.store.Persist(); err != nil {
		slog.Error("Failed to persist state after health pass", "error", err)
	}
	metrics.SessionsOnline.Set(float64(online))
}

func (m *Monitor) probe(ctx context.Context, sess *Session) (ok, terminal bool, errMsg string) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client, err := sess.Client(pctx)
	if err != nil {
		return false, telegram.IsTerminalAuth(err), err.Error()
	}

	authed, err := client.IsAuthorized(pctx)
	if err != nil {
		if telegram.IsTerminalAuth(err) {
			if derr := sess.Disconnect(ctx); derr != nil {
				slog.Warn("Failed to disconnect dead session", "session", sess.Name, "error", derr)
			}
			return false, true, err.Error()
		}
		return false, false, err.Error()
	}
	if !authed {
		return false, false, "not authorized"
	}
	return true, false, ""
}
