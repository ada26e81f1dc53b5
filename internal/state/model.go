// Package state holds the persistent working set of the mirror engine:
// pollers, jobs with their delivery cursors, recent-publish rings and the
// dead-session map. The Store guards the model with one mutex and snapshots
// it to a JSON file; persistence is write-behind, so a crash between a
// successful republish and the next snapshot may replay one message. That is
// the at-least-once contract.
package state

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.mirrord.dev/internal/telegram"
)

// PostMode selects the transport a job publishes with.
type PostMode string

const (
	PostModeUser PostMode = "user"
	PostModeBot  PostMode = "bot"
)

// Poller binds one source channel to the session that observes it. Exactly
// one poller exists per normalized source.
type Poller struct {
	Source          string    `json:"source"`
	PollSessionName string    `json:"poll_session_name"`
	SessionIndex    int       `json:"session_index"`
	CreatedTS       time.Time `json:"created_ts"`
	LastError       string    `json:"last_error,omitempty"`
	LastFailoverTS  time.Time `json:"last_failover_ts"`
}

// Job is one mirror relation with a private delivery cursor. LastOkID is
// monotonically non-decreasing and advances only on a successful republish
// of a message with a higher id.
type Job struct {
	ID              string    `json:"job_id"`
	Source          string    `json:"source"`
	Dest            string    `json:"dest"`
	PostMode        PostMode  `json:"post_mode"`
	PostSessionName string    `json:"post_session,omitempty"`
	BotToken        string    `json:"bot_token,omitempty"`
	TextStrip       string    `json:"text_strip,omitempty"`
	CaptionAppend   string    `json:"caption_append,omitempty"`
	LastOkID        int       `json:"last_ok_id"`
	LastError       string    `json:"last_error,omitempty"`
	PausedReason    string    `json:"paused_reason,omitempty"`
	CreatedTS       time.Time `json:"created_ts"`
	UpdatedTS       time.Time `json:"updated_ts"`
}

// BotKey returns the fingerprint identifying the job's bot, or "" for user
// jobs.
func (j *Job) BotKey() string {
	if j.PostMode != PostModeBot {
		return ""
	}
	return BotFingerprint(j.BotToken)
}

// RecentPost is one entry of a recent-publish ring.
type RecentPost struct {
	Source string    `json:"source"`
	Dest   string    `json:"dest"`
	Link   string    `json:"link"`
	TS     time.Time `json:"ts"`
}

// DeadSession describes a session the health monitor found offline.
type DeadSession struct {
	TS        time.Time `json:"ts"`
	Reason    string    `json:"reason"`
	LastError string    `json:"last_error,omitempty"`
}

// Snapshot is the JSON shape of the persisted state file. Unknown fields in
// an existing file are ignored on load.
type Snapshot struct {
	Pollers         map[string]*Poller      `json:"pollers"`
	Jobs            map[string]*Job         `json:"jobs"`
	RecentBySession map[string][]RecentPost `json:"recent_by_session"`
	RecentByBot     map[string][]RecentPost `json:"recent_by_bot"`
	DeadSessions    map[string]DeadSession  `json:"dead_sessions"`
}

// recentRingCap bounds every recent-publish ring, newest first.
const recentRingCap = 10

// NormalizeSessionName trims a session reference and drops the .session
// suffix, so "alpha", "alpha.session" and " alpha " name the same session.
func NormalizeSessionName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".session")
	return s
}

// BotFingerprint returns the first 16 hex characters of the SHA-1 of the raw
// bot token. The fingerprint keys the bot's recent ring and stands in for
// the token everywhere the token must not appear.
func BotFingerprint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := sha1.Sum([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// JobID derives the stable identity of a mirror relation: the first 16 hex
// characters of the SHA-1 over source|dest|post_mode|identity, where the
// identity is the lowercased post session name for user jobs and the token
// fingerprint for bot jobs. Channel case is preserved.
func JobID(source, dest string, mode PostMode, postSession, botToken string) string {
	identity := strings.ToLower(NormalizeSessionName(postSession))
	if mode == PostModeBot {
		identity = BotFingerprint(botToken)
	}
	raw := fmt.Sprintf("%s|%s|%s|%s",
		telegram.NormalizeChannel(source),
		telegram.NormalizeChannel(dest),
		strings.ToLower(string(mode)),
		identity,
	)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}
