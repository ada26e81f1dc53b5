package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// Domain errors the API layer maps to HTTP status codes.
var (
	// ErrInvalid marks a request rejected before touching any state.
	ErrInvalid = errors.New("invalid request")

	// ErrRoleConflict marks an upsert that would put one session in both
	// the poll and post roles.
	ErrRoleConflict = errors.New("session role conflict")

	// ErrSessionNotFound marks a reference to a session the registry does
	// not hold.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoPollSession is returned when no live session is eligible to
	// poll.
	ErrNoPollSession = errors.New("no online poll session available")

	// ErrPollSessionDead marks an explicitly requested poll session that
	// failed its liveness probe.
	ErrPollSessionDead = errors.New("poll session is dead")
)

// JobParams carries one job upsert request.
type JobParams struct {
	Source        string
	Dest          string
	PostMode      state.PostMode
	PostSession   string
	BotToken      string
	PollSession   string
	TextStrip     string
	CaptionAppend string
}

// UpsertResult reports what an upsert bound.
type UpsertResult struct {
	Job          state.Job
	PollSession  string
	SessionIndex int
	BaselineID   int
}

// Admin executes the control-plane mutations behind the HTTP API. Role
// conflicts, unknown sessions and missing identities are rejected here,
// before any state changes.
type Admin struct {
	registry *session.Registry
	store    *state.Store
	governor *session.JoinGovernor
	failover *Failover
}

func NewAdmin(registry *session.Registry, store *state.Store, governor *session.JoinGovernor, failover *Failover) *Admin {
	return &Admin{
		registry: registry,
		store:    store,
		governor: governor,
		failover: failover,
	}
}

// UpsertJob creates or updates the mirror relation described by params,
// binding the source's poller on the way. An existing job keeps its cursor;
// a new job baselines it at the source's newest message id so only messages
// from now on are mirrored.
func (a *Admin) UpsertJob(ctx context.Context, p JobParams) (*UpsertResult, error) {
	source := telegram.NormalizeChannel(p.Source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalid)
	}
	dest := telegram.NormalizeChannel(p.Dest)
	if dest == "" {
		return nil, fmt.Errorf("%w: dest is required", ErrInvalid)
	}

	mode := p.PostMode
	if mode != state.PostModeBot {
		mode = state.PostModeUser
	}

	roles := a.store.Roles()

	var postSession, botToken string
	switch mode {
	case state.PostModeUser:
		postSession = state.NormalizeSessionName(p.PostSession)
		if postSession == "" {
			return nil, fmt.Errorf("%w: post_mode=user requires post_session", ErrInvalid)
		}
		if roles.IsPoll(postSession) {
			return nil, fmt.Errorf("%w: session %q already polls", ErrRoleConflict, postSession)
		}
		sess, ok := a.registry.FindByName(ctx, postSession)
		if !ok {
			return nil, fmt.Errorf("%w: post session %q", ErrSessionNotFound, postSession)
		}
		// Canonical casing; a dead post session is allowed here, the job
		// just starts out pending.
		postSession = sess.Name
	case state.PostModeBot:
		botToken = strings.TrimSpace(p.BotToken)
		if botToken == "" {
			return nil, fmt.Errorf("%w: post_mode=bot requires bot_token", ErrInvalid)
		}
	}

	pollSess, err := a.bindPollSession(ctx, source, state.NormalizeSessionName(p.PollSession), postSession)
	if err != nil {
		return nil, err
	}

	// The poll session joins the source; destinations are joined by the
	// posting identity at publish time.
	if _, err := a.governor.EnsureJoin(ctx, pollSess, source); err != nil {
		slog.Warn("Source join failed during upsert", "source", source, "error", err)
	}

	baseline := a.baseline(ctx, pollSess, source)

	id := state.JobID(source, dest, mode, postSession, botToken)
	job := state.Job{
		ID:              id,
		Source:          source,
		Dest:            dest,
		PostMode:        mode,
		PostSessionName: postSession,
		BotToken:        botToken,
		TextStrip:       strings.TrimSpace(p.TextStrip),
		CaptionAppend:   strings.TrimSpace(p.CaptionAppend),
		LastOkID:        baseline,
	}
	if old, ok := a.store.GetJob(id); ok {
		job.LastOkID = old.LastOkID
		job.LastError = old.LastError
		job.PausedReason = old.PausedReason
	}
	a.store.PutJob(job)

	if err := a.store.Persist(); err != nil {
		slog.Error("State persist failed after upsert", "job_id", id, "error", err)
	}

	stored, _ := a.store.GetJob(id)
	slog.Info("Job upserted", "job_id", id, "source", source, "dest", dest, "mode", string(mode), "cursor", stored.LastOkID)

	return &UpsertResult{
		Job:          stored,
		PollSession:  pollSess.Name,
		SessionIndex: pollSess.Index(),
		BaselineID:   baseline,
	}, nil
}

// DeleteAll removes every job for the source and its poller. Returns how
// many jobs were removed and whether a poller existed.
func (a *Admin) DeleteAll(source string) (int, bool, error) {
	source = telegram.NormalizeChannel(source)
	if source == "" {
		return 0, false, fmt.Errorf("%w: source is required", ErrInvalid)
	}

	removedJobs, removedPoller := a.store.DeleteSource(source)
	if err := a.store.Persist(); err != nil {
		slog.Error("State persist failed after delete", "source", source, "error", err)
	}

	slog.Info("Source deleted", "source", source, "jobs_removed", removedJobs, "poller_removed", removedPoller)
	return removedJobs, removedPoller, nil
}

// bindPollSession resolves which session polls the source. An explicitly
// requested session must be free of the post role and alive; otherwise an
// existing binding is kept while its session stays live, and the least-loaded
// eligible session is picked for new sources. postSession is excluded from
// picks so one upsert cannot hand a session both roles.
func (a *Admin) bindPollSession(ctx context.Context, source, preferred, postSession string) (*session.Session, error) {
	if preferred != "" {
		roles := a.store.Roles()
		if roles.IsPost(preferred) || (postSession != "" && strings.EqualFold(preferred, postSession)) {
			return nil, fmt.Errorf("%w: session %q already posts", ErrRoleConflict, preferred)
		}
		sess, ok := a.registry.FindByName(ctx, preferred)
		if !ok {
			return nil, fmt.Errorf("%w: poll session %q", ErrSessionNotFound, preferred)
		}
		if err := a.probe(ctx, sess); err != nil {
			_ = sess.Disconnect(ctx)
			return nil, fmt.Errorf("%w: %s: %v", ErrPollSessionDead, sess.Name, err)
		}
		a.store.PutPoller(source, sess.Name, sess.Index())
		return sess, nil
	}

	if p, ok := a.store.GetPoller(source); ok && p.PollSessionName != "" {
		if sess, ok := a.registry.Get(p.PollSessionName); ok {
			if a.probe(ctx, sess) == nil {
				return sess, nil
			}
			// Probing connects the session; drop the connection so the
			// failover pick below cannot choose it again.
			_ = sess.Disconnect(ctx)
		}
		sess, ok := a.failover.Failover(source, postSession)
		if !ok {
			return nil, ErrNoPollSession
		}
		return sess, nil
	}

	sess, ok := a.failover.pick(postSession)
	if !ok {
		return nil, ErrNoPollSession
	}
	a.store.PutPoller(source, sess.Name, sess.Index())
	return sess, nil
}

// probe connects the session if needed and re-checks its authorization.
// Upserts verify the poll session synchronously instead of waiting for the
// next health pass.
func (a *Admin) probe(ctx context.Context, sess *session.Session) error {
	client, err := sess.Client(ctx)
	if err != nil {
		return err
	}
	authed, err := client.IsAuthorized(ctx)
	if err != nil {
		return err
	}
	if !authed {
		return telegram.ErrNotAuthorized
	}
	return nil
}

// baseline returns the source's newest message id so a new job starts from
// now instead of reposting history. Probe failures baseline at zero.
func (a *Admin) baseline(ctx context.Context, sess *session.Session, source string) int {
	client, err := sess.Client(ctx)
	if err != nil {
		return 0
	}
	ch, err := client.ResolveChannel(ctx, source)
	if err != nil {
		slog.Debug("Baseline probe failed", "source", source, "error", err)
		return 0
	}
	latest, err := client.LatestMessageID(ctx, ch)
	if err != nil {
		slog.Debug("Baseline probe failed", "source", source, "error", err)
		return 0
	}
	return latest
}
