package session

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/telegram"
)

// JoinGovernor paces channel joins so no session joins more often than the
// configured interval. Join storms are what get accounts flagged; every
// attempt, successful or not, consumes the session's join slot.
type JoinGovernor struct {
	clock    clockwork.Clock
	interval time.Duration
	jitter   time.Duration

	mu   sync.Mutex
	next map[string]time.Time
}

func NewJoinGovernor(clock clockwork.Clock, interval, jitter time.Duration) *JoinGovernor {
	return &JoinGovernor{
		clock:    clock,
		interval: interval,
		jitter:   jitter,
		next:     make(map[string]time.Time),
	}
}

// EnsureJoin joins the referenced channel from the session. Returns false
// with a nil error when the session's join slot is not yet available; the
// caller retries on a later tick.
func (g *JoinGovernor) EnsureJoin(ctx context.Context, sess *Session, ref string) (bool, error) {
	key := strings.ToLower(sess.Name)

	g.mu.Lock()
	now := g.clock.Now()
	if now.Before(g.next[key]) {
		g.mu.Unlock()
		return false, nil
	}
	g.next[key] = now.Add(g.interval)
	g.mu.Unlock()

	if g.jitter > 0 {
		delay := time.Duration(rand.Int63n(int64(g.jitter)))
		select {
		case <-g.clock.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	client, err := sess.Client(ctx)
	if err != nil {
		metrics.JoinAttempts.WithLabelValues("error").Inc()
		return false, err
	}

	ch, err := client.ResolveChannel(ctx, ref)
	if err != nil {
		g.recordFailure(key, ref, sess.Name, err)
		return false, err
	}

	if err := client.JoinChannel(ctx, ch); err != nil {
		g.recordFailure(key, ref, sess.Name, err)
		return false, err
	}

	metrics.JoinAttempts.WithLabelValues("ok").Inc()
	slog.Info("Joined channel", "session", sess.Name, "channel", ref)
	return true, nil
}

func (g *JoinGovernor) recordFailure(key, ref, sessionName string, err error) {
	switch {
	case telegram.IsChannelPrivate(err):
		metrics.JoinAttempts.WithLabelValues("private").Inc()
	case telegram.IsAdminRequired(err):
		metrics.JoinAttempts.WithLabelValues("admin_required").Inc()
	default:
		if wait, ok := telegram.FloodWait(err); ok {
			// The server told us when the session may join again;
			// overwrite the regular spacing with it if longer.
			g.mu.Lock()
			until := g.clock.Now().Add(wait)
			if until.After(g.next[key]) {
				g.next[key] = until
			}
			g.mu.Unlock()
			metrics.JoinAttempts.WithLabelValues("flood_wait").Inc()
			slog.Warn("Join flood wait", "session", sessionName, "channel", ref, "wait", wait)
			return
		}
		metrics.JoinAttempts.WithLabelValues("error").Inc()
	}
	slog.Warn("Join failed", "session", sessionName, "channel", ref, "error", err)
}

// NextJoin returns when the session may join again, for status output.
func (g *JoinGovernor) NextJoin(sessionName string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next[strings.ToLower(sessionName)]
}
