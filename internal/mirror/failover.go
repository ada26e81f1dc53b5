package mirror

import (
	"fmt"
	"log/slog"
	"strings"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
)

// Failover keeps every poller bound to a live poll session. Only poll
// sessions fail over; a dead post session pauses its jobs instead and waits
// for an operator.
type Failover struct {
	registry *session.Registry
	store    *state.Store
	alerts   notify.Service
}

func NewFailover(registry *session.Registry, store *state.Store, alerts notify.Service) *Failover {
	return &Failover{
		registry: registry,
		store:    store,
		alerts:   alerts,
	}
}

// EnsureLive returns a live session for the source's poller, rebinding it to
// a fresh candidate when the bound session is dead or missing. Returns false
// when the source has no poller or no candidate is available.
func (f *Failover) EnsureLive(source string) (*session.Session, bool) {
	p, ok := f.store.GetPoller(source)
	if !ok {
		return nil, false
	}

	if sess, ok := f.registry.Get(p.PollSessionName); ok && f.Alive(sess) {
		return sess, true
	}
	return f.Failover(source, "")
}

// Alive reports whether the session holds a live connection and is not in
// the dead map the health monitor maintains.
func (f *Failover) Alive(sess *session.Session) bool {
	if !sess.Connected() {
		return false
	}
	_, dead := f.store.DeadSessions()[sess.File]
	return !dead
}

// Failover rebinds the source's poller to the best eligible candidate,
// skipping the named session. The poller is left untouched, with last_error
// set, when no candidate exists.
func (f *Failover) Failover(source, exclude string) (*session.Session, bool) {
	p, ok := f.store.GetPoller(source)
	if !ok {
		return nil, false
	}

	cand, ok := f.pick(exclude)
	if !ok {
		f.store.SetPollerError(source, fmt.Sprintf("no poll session available (old=%s)", orNone(p.PollSessionName)))
		return nil, false
	}

	f.store.RebindPoller(source, cand.Name, cand.Index())
	if err := f.store.Persist(); err != nil {
		slog.Error("State persist failed after failover", "source", source, "error", err)
	}

	metrics.PollFailovers.Inc()
	slog.Info("Poller failed over", "source", source, "from", p.PollSessionName, "to", cand.Name)
	f.alerts.NotifySystemEvent(notify.EventFailover, fmt.Sprintf(
		"Poller for @%s rebound\nOld session: %s\nNew session: %s",
		source, orNone(p.PollSessionName), cand.Name))
	return cand, true
}

// pick selects the least-loaded live session not holding the post role and
// not named exclude. Ties break toward the lowest index; Sessions returns
// file-name order, which is index order.
func (f *Failover) pick(exclude string) (*session.Session, bool) {
	roles := f.store.Roles()
	counts := f.store.PollerCounts()

	var best *session.Session
	bestCount := 0
	for _, s := range f.registry.Sessions() {
		if exclude != "" && strings.EqualFold(s.Name, exclude) {
			continue
		}
		if roles.IsPost(s.Name) {
			continue
		}
		if !f.Alive(s) {
			continue
		}
		c := counts[strings.ToLower(s.Name)]
		if best == nil || c < bestCount {
			best = s
			bestCount = c
		}
	}
	return best, best != nil
}

func orNone(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}
