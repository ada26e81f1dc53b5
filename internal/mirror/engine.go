// Package mirror is the delivery core: the poll engine fetches new messages
// from each source through its bound poll session, partitions them into send
// units, and republishes every unit to each job whose cursor is behind it.
// Cursors advance only on confirmed sends, so delivery is at-least-once and
// nothing is silently dropped. The failover controller rebinds pollers whose
// session died; the admin operations behind the HTTP API mutate the job and
// poller tables under the same role rules the engine relies on.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

var errNotRunning = errors.New("service not running")

// EngineConfig holds the poll loop timing knobs.
type EngineConfig struct {
	// Tick is the poll loop period.
	Tick time.Duration

	// BatchMax caps messages fetched per source per tick.
	BatchMax int

	// IdleJitter is the random delay added to each tick.
	IdleJitter time.Duration
}

// Engine runs the poll loop. Each tick fans out one worker per poller,
// joined before the next tick's state is persisted.
type Engine struct {
	cfg      EngineConfig
	store    *state.Store
	governor *session.JoinGovernor
	failover *Failover
	repub    *Republisher
	clock    clockwork.Clock

	stopOnce sync.Once
	stopCh   chan struct{}
	healthy  atomic.Bool
}

func NewEngine(cfg EngineConfig, store *state.Store, governor *session.JoinGovernor, failover *Failover, repub *Republisher, clock clockwork.Clock) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		governor: governor,
		failover: failover,
		repub:    repub,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
}

func (e *Engine) Name() string {
	return "poll-engine"
}

func (e *Engine) Start(ctx context.Context) error {
	slog.Info("Starting service", "service", e.Name(), "tick", e.cfg.Tick, "batch_max", e.cfg.BatchMax)
	e.healthy.Store(true)
	defer e.healthy.Store(false)

	ticker := e.clock.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopCh:
			return nil
		case <-ticker.Chan():
			e.tick(ctx)
		}
	}
}

func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	return nil
}

func (e *Engine) Health() error {
	if !e.healthy.Load() {
		return errNotRunning
	}
	return nil
}

// tick polls every source concurrently and persists the snapshot when any
// poller processed messages.
func (e *Engine) tick(ctx context.Context) {
	if e.cfg.IdleJitter > 0 {
		delay := time.Duration(rand.Int63n(int64(e.cfg.IdleJitter)))
		select {
		case <-e.clock.After(delay):
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		}
	}

	metrics.PollTicks.Inc()

	pollers := e.store.Pollers()
	if len(pollers) == 0 {
		return
	}

	var processed atomic.Bool
	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func(p state.Poller) {
			defer wg.Done()
			if e.pollSource(ctx, p) {
				processed.Store(true)
			}
		}(p)
	}
	wg.Wait()

	if processed.Load() {
		if err := e.store.Persist(); err != nil {
			slog.Error("State persist failed after tick", "error", err)
		}
	}
}

// pollSource runs one poller's tick: failover check, source join, fetch
// above the minimum cursor, then dispatch. Returns whether any messages were
// processed.
func (e *Engine) pollSource(ctx context.Context, p state.Poller) bool {
	source := p.Source

	sess, ok := e.failover.EnsureLive(source)
	if !ok {
		metrics.PollSkips.WithLabelValues(source, "no_session").Inc()
		return false
	}

	jobs := e.store.JobsFor(source)
	if len(jobs) == 0 {
		metrics.PollSkips.WithLabelValues(source, "no_jobs").Inc()
		return false
	}

	// Only the poll session joins the source; a throttled slot skips.
	if _, err := e.governor.EnsureJoin(ctx, sess, source); err != nil {
		slog.Debug("Source join attempt failed", "source", source, "error", err)
	}

	minCursor, _ := e.store.MinCursor(source)

	client, err := sess.Client(ctx)
	if err != nil {
		e.recordFetchError(ctx, source, sess, err)
		return false
	}

	ch, err := client.ResolveChannel(ctx, source)
	if err != nil {
		e.recordFetchError(ctx, source, sess, err)
		return false
	}

	start := time.Now()
	msgs, err := client.MessagesAfter(ctx, ch, minCursor, e.cfg.BatchMax)
	if err != nil {
		e.recordFetchError(ctx, source, sess, err)
		return false
	}

	metrics.PollMessagesFetched.WithLabelValues(source).Add(float64(len(msgs)))
	if len(msgs) == 0 {
		return false
	}

	for _, unit := range Partition(msgs) {
		e.dispatch(ctx, sess, source, unit)
	}

	metrics.PollBatchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	return true
}

// dispatch runs one unit against every job whose cursor is behind it.
// Republishes are sequential; a success advances only that job's cursor, so
// a stuck job never blocks its siblings.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session, source string, unit Unit) {
	for _, job := range e.store.JobsFor(source) {
		if job.LastOkID >= unit.ID() {
			continue
		}
		if e.repub.Publish(ctx, sess, source, job, unit) {
			e.store.MarkJobDelivered(job.ID, unit.ID())
		}
	}
}

// recordFetchError classifies a fetch-phase failure. Flood waits sleep in
// place; access errors pend until an operator intervenes; authorization loss
// drops the connection so the next tick fails the poller over.
func (e *Engine) recordFetchError(ctx context.Context, source string, sess *session.Session, err error) {
	if wait, ok := telegram.FloodWait(err); ok {
		metrics.PollSkips.WithLabelValues(source, "flood_wait").Inc()
		slog.Warn("Fetch flood wait", "source", source, "wait", wait)
		select {
		case <-e.clock.After(wait):
		case <-ctx.Done():
		case <-e.stopCh:
		}
		return
	}

	if telegram.IsChannelPrivate(err) || telegram.IsAdminRequired(err) {
		metrics.PollSkips.WithLabelValues(source, "access").Inc()
		e.store.SetPollerError(source, err.Error())
		slog.Warn("Source inaccessible", "source", source, "error", err)
		return
	}

	if telegram.IsTerminalAuth(err) {
		metrics.PollSkips.WithLabelValues(source, "auth").Inc()
		e.store.SetPollerError(source, err.Error())
		if dErr := sess.Disconnect(ctx); dErr != nil {
			slog.Warn("Failed to disconnect dead poll session", "session", sess.Name, "error", dErr)
		}
		slog.Warn("Poll session lost authorization", "source", source, "session", sess.Name, "error", err)
		return
	}

	metrics.PollSkips.WithLabelValues(source, "fetch_error").Inc()
	e.store.SetPollerError(source, err.Error())
	slog.Warn("Fetch failed", "source", source, "error", err)
}
