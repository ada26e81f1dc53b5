package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rescanDebounce batches a burst of file events into one rescan.
const rescanDebounce = 500 * time.Millisecond

// Rescanner keeps the registry aligned with the sessions directory. It
// rescans on a fixed interval and reacts early to file events, so an
// uploaded or deleted session is picked up without waiting a full period.
type Rescanner struct {
	registry *Registry
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	healthy  atomic.Bool
}

func NewRescanner(registry *Registry, interval time.Duration) *Rescanner {
	return &Rescanner{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Rescanner) Name() string {
	return "session-rescanner"
}

func (r *Rescanner) Start(ctx context.Context) error {
	if _, _, err := r.registry.Rescan(ctx); err != nil {
		return err
	}

	var events chan fsnotify.Event
	var watchErrs chan error

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(r.registry.Dir())
	}
	if err != nil {
		slog.Warn("Directory watch unavailable, relying on periodic rescan", "error", err)
		if watcher != nil {
			watcher.Close()
		}
		watcher = nil
	} else {
		defer watcher.Close()
		events = watcher.Events
		watchErrs = watcher.Errors
		slog.Info("Watching sessions directory", "dir", r.registry.Dir())
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.healthy.Store(true)
	defer r.healthy.Store(false)

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil

		case <-ticker.C:
			r.rescan(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !isSessionEvent(ev) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(rescanDebounce)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(rescanDebounce)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			r.rescan(ctx)

		case werr, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			slog.Warn("Session directory watch error", "error", werr)
		}
	}
}

func (r *Rescanner) rescan(ctx context.Context) {
	added, removed, err := r.registry.Rescan(ctx)
	if err != nil {
		slog.Error("Session rescan failed", "error", err)
		return
	}
	if added > 0 || removed > 0 {
		slog.Info("Session rescan applied changes", "added", added, "removed", removed)
	}
}

// isSessionEvent filters for structural changes to .session files. Journal
// churn from connected clients is ignored.
func isSessionEvent(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, FileSuffix) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func (r *Rescanner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	return nil
}

func (r *Rescanner) Health() error {
	if !r.healthy.Load() {
		return errNotRunning
	}
	return nil
}

var errNotRunning = errors.New("service not running")
