package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
	"go.mirrord.dev/internal/telegram/botapi"
)

// Pause reasons surfaced on jobs whose post identity cannot accept sends.
const (
	PausedPostSessionMissing = "post_session_missing"
	PausedPostSessionDie     = "post_session_die"
)

// postDieAlertInterval throttles dead-post-session alerts per job.
const postDieAlertInterval = 30 * time.Second

// MediaPolicy controls whether and how large media is mirrored.
type MediaPolicy struct {
	Include  bool
	MaxBytes int64
}

// Republisher delivers units to destinations over the job's transport: the
// bound post session for user jobs, the Bot API for bot jobs. A dead post
// session pauses its jobs instead of failing over; posting identities are
// never substituted.
type Republisher struct {
	registry *session.Registry
	store    *state.Store
	governor *session.JoinGovernor
	alerts   notify.Service
	media    MediaPolicy

	botMu  sync.Mutex
	bots   map[string]*botapi.Client
	botCfg *botapi.Config

	alertMu  sync.Mutex
	alertLim map[string]*rate.Limiter
}

func NewRepublisher(registry *session.Registry, store *state.Store, governor *session.JoinGovernor, alerts notify.Service, media MediaPolicy) *Republisher {
	return &Republisher{
		registry: registry,
		store:    store,
		governor: governor,
		alerts:   alerts,
		media:    media,
		bots:     make(map[string]*botapi.Client),
		botCfg:   botapi.DefaultConfig(),
		alertLim: make(map[string]*rate.Limiter),
	}
}

// Publish republishes one unit for one job. The boolean is the cursor gate:
// true only after the platform confirmed the send. Failures record
// last_error (and paused_reason for missing or dead post identities) and
// leave the cursor untouched, so the unit is retried next tick.
func (r *Republisher) Publish(ctx context.Context, pollSess *session.Session, source string, job state.Job, unit Unit) bool {
	msg := unit.Primary

	finalText := FinalText(msg.Text, job.TextStrip, job.CaptionAppend)
	edited := job.TextStrip != "" || job.CaptionAppend != ""
	keepEntities := !edited && len(msg.Entities) > 0

	upload := r.download(ctx, pollSess, source, msg)

	transport := string(job.PostMode)
	start := time.Now()
	var ok bool
	if job.PostMode == state.PostModeBot {
		ok = r.publishBot(ctx, source, job, msg, finalText, keepEntities, upload)
	} else {
		ok = r.publishUser(ctx, source, job, msg, finalText, keepEntities, upload)
	}
	metrics.PublishDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())

	result := "failed"
	if ok {
		result = "success"
	}
	metrics.PublishResults.WithLabelValues(transport, result).Inc()
	return ok
}

func (r *Republisher) publishBot(ctx context.Context, source string, job state.Job, msg telegram.Message, finalText string, keepEntities bool, upload *telegram.Upload) bool {
	if job.BotToken == "" {
		r.store.SetJobError(job.ID, "bot job has no token")
		return false
	}

	// Edited text goes out plain; untouched text keeps its formatting as
	// Bot API HTML.
	body := finalText
	html := false
	if keepEntities {
		body = telegram.RenderHTML(msg.Text, msg.Entities)
		html = true
	}

	client := r.bot(job.BotToken)
	chat := "@" + job.Dest

	var sent *botapi.SentMessage
	var err error
	switch {
	case upload != nil && upload.Photo:
		sent, err = client.SendPhoto(ctx, chat, upload, body, html)
	case upload != nil:
		sent, err = client.SendDocument(ctx, chat, upload, body, html)
	default:
		sent, err = client.SendText(ctx, chat, body, html)
	}
	if err != nil {
		r.store.SetJobError(job.ID, fmt.Sprintf("bot send failed: %v", err))
		slog.Warn("Bot republish failed", "job_id", job.ID, "dest", job.Dest, "error", err)
		return false
	}

	link := sent.Link()
	r.store.PushBotRecent(job.BotKey(), state.RecentPost{
		Source: source,
		Dest:   job.Dest,
		Link:   link,
		TS:     time.Now(),
	})
	r.alerts.NotifyNewPost("BOT", "@"+job.Dest+" (BOT)", link)
	slog.Info("Republished message", "job_id", job.ID, "source", source, "dest", job.Dest, "msg_id", msg.ID, "transport", "bot")
	return true
}

func (r *Republisher) publishUser(ctx context.Context, source string, job state.Job, msg telegram.Message, finalText string, keepEntities bool, upload *telegram.Upload) bool {
	if job.PostSessionName == "" {
		r.store.SetJobError(job.ID, "user job has no post session")
		return false
	}

	sess, ok := r.registry.Get(job.PostSessionName)
	if !ok {
		r.store.SetJobPaused(job.ID, PausedPostSessionMissing,
			fmt.Sprintf("post session not found: %s", job.PostSessionName))
		return false
	}

	if dead, isDead := r.store.DeadSessions()[sess.File]; isDead {
		r.pauseDead(job, sess.Name, dead.LastError, source)
		return false
	}

	// Only the post session joins the destination. A throttled join slot
	// skips silently; if membership was actually needed the send below
	// fails and retries after the slot opens.
	if _, err := r.governor.EnsureJoin(ctx, sess, job.Dest); err != nil {
		slog.Debug("Destination join attempt failed", "job_id", job.ID, "dest", job.Dest, "error", err)
	}

	client, err := sess.Client(ctx)
	if err != nil {
		return r.userSendFailed(job, sess, source, "connect post session", err)
	}

	ch, err := client.ResolveChannel(ctx, job.Dest)
	if err != nil {
		return r.userSendFailed(job, sess, source, "resolve dest", err)
	}

	var sentID int
	switch {
	case upload != nil:
		sentID, err = client.SendFile(ctx, ch, upload, finalText, nil)
	case keepEntities:
		sentID, err = client.SendText(ctx, ch, msg.Text, msg.Entities)
	default:
		sentID, err = client.SendText(ctx, ch, finalText, nil)
	}
	if err != nil {
		return r.userSendFailed(job, sess, source, "send", err)
	}

	link := telegram.PostLink(ch, sentID)
	r.store.PushSessionRecent(sess.File, state.RecentPost{
		Source: source,
		Dest:   job.Dest,
		Link:   link,
		TS:     time.Now(),
	})

	destDisplay := ch.Title
	if destDisplay == "" {
		destDisplay = "@" + job.Dest
	}
	r.alerts.NotifyNewPost(sess.Name, destDisplay, link)
	slog.Info("Republished message", "job_id", job.ID, "source", source, "dest", job.Dest, "msg_id", msg.ID, "transport", "user")
	return true
}

// userSendFailed classifies a failed user-transport step. Terminal
// authorization loss pauses the job as a dead post session; everything else
// records the error for retry on a later tick.
func (r *Republisher) userSendFailed(job state.Job, sess *session.Session, source, step string, err error) bool {
	if telegram.IsTerminalAuth(err) {
		r.pauseDead(job, sess.Name, err.Error(), source)
		return false
	}
	r.store.SetJobError(job.ID, fmt.Sprintf("%s failed: %v", step, err))
	slog.Warn("User republish failed", "job_id", job.ID, "dest", job.Dest, "step", step, "error", err)
	return false
}

// pauseDead marks the job paused on its dead post session and alerts at most
// once per job per interval. The job stays pending until the session
// recovers or an operator replaces it.
func (r *Republisher) pauseDead(job state.Job, sessionName, cause, source string) {
	r.store.SetJobPaused(job.ID, PausedPostSessionDie,
		fmt.Sprintf("post session dead: %s (%s)", sessionName, cause))

	if r.allowAlert(job.ID) {
		r.alerts.NotifySystemEvent(notify.EventPostSessionDie, fmt.Sprintf(
			"Job %s paused: post session %s is dead\nSource: @%s\nDest: @%s\nError: %s",
			job.ID, sessionName, source, job.Dest, cause))
	}
	slog.Warn("Post session dead, job pending", "job_id", job.ID, "post_session", sessionName, "error", cause)
}

// allowAlert rate-limits dead-post-session alerts per job.
func (r *Republisher) allowAlert(jobID string) bool {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()

	lim, ok := r.alertLim[jobID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(postDieAlertInterval), 1)
		r.alertLim[jobID] = lim
	}
	return lim.Allow()
}

// download fetches the unit's media through the poll session. Any failure
// degrades to text-only; the send is still attempted.
func (r *Republisher) download(ctx context.Context, pollSess *session.Session, source string, msg telegram.Message) *telegram.Upload {
	if !r.media.Include || msg.Media == nil || pollSess == nil {
		return nil
	}

	client, err := pollSess.Client(ctx)
	if err != nil {
		metrics.MediaDownloads.WithLabelValues("error").Inc()
		slog.Warn("Media download failed, sending text only", "source", source, "msg_id", msg.ID, "error", err)
		return nil
	}

	upload, err := client.DownloadMedia(ctx, msg.Media, r.media.MaxBytes)
	if err != nil {
		if errors.Is(err, telegram.ErrMediaTooLarge) {
			metrics.MediaDownloads.WithLabelValues("too_large").Inc()
			slog.Debug("Media over size cap, sending text only", "source", source, "msg_id", msg.ID, "size", msg.Media.Size)
		} else {
			metrics.MediaDownloads.WithLabelValues("error").Inc()
			slog.Warn("Media download failed, sending text only", "source", source, "msg_id", msg.ID, "error", err)
		}
		return nil
	}

	metrics.MediaDownloads.WithLabelValues("ok").Inc()
	metrics.MediaBytes.Observe(float64(len(upload.Data)))
	return upload
}

// bot returns the cached Bot API client for the token, creating one on first
// use. Per-token clients keep one bot's circuit breaker from tripping
// another's.
func (r *Republisher) bot(token string) *botapi.Client {
	key := state.BotFingerprint(token)

	r.botMu.Lock()
	defer r.botMu.Unlock()

	if c, ok := r.bots[key]; ok {
		return c
	}
	c := botapi.New(token, r.botCfg)
	r.bots[key] = c
	return c
}
