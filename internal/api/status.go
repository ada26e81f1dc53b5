package api

import (
	"net/http"
	"sort"

	"go.mirrord.dev/internal/state"
)

type sessionView struct {
	File      string             `json:"session"`
	Display   string             `json:"display"`
	Role      string             `json:"role"`
	Status    string             `json:"status"`
	LastError string             `json:"last_error,omitempty"`
	Recent    []state.RecentPost `json:"recent"`
}

type jobView struct {
	ID            string `json:"job_id"`
	Source        string `json:"source"`
	Dest          string `json:"dest"`
	PostMode      string `json:"post_mode"`
	PostSession   string `json:"post_session,omitempty"`
	BotKey        string `json:"bot_key,omitempty"`
	LastOkID      int    `json:"last_ok_id"`
	PausedReason  string `json:"paused_reason,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	TextStrip     string `json:"text_strip,omitempty"`
	CaptionAppend string `json:"caption_append,omitempty"`
}

type botView struct {
	BotKey string             `json:"bot_key"`
	Recent []state.RecentPost `json:"recent"`
}

type statusResponse struct {
	OK            bool                         `json:"ok"`
	Sessions      []sessionView                `json:"sessions"`
	Pollers       []state.Poller               `json:"pollers"`
	Jobs          []jobView                    `json:"jobs"`
	DeadSessions  map[string]state.DeadSession `json:"dead_sessions"`
	Bots          []botView                    `json:"bots"`
	PendingLogins int                          `json:"pending_logins"`
}

// handleStatus snapshots sessions with their roles and recent publishes,
// the poller and job tables, the dead map and the per-bot rings. Bot tokens
// never appear; jobs carry the token fingerprint instead.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dead := s.store.DeadSessions()
	roles := s.store.Roles()

	sessions := make([]sessionView, 0)
	for _, sess := range s.registry.Sessions() {
		view := sessionView{
			File:    sess.File,
			Display: sess.Name,
			Role:    roles.RoleOf(sess.Name),
			Status:  "Live",
			Recent:  s.store.SessionRecent(sess.File),
		}
		if d, isDead := dead[sess.File]; isDead {
			view.Status = "Die"
			view.LastError = d.LastError
		} else if !sess.Connected() {
			view.Status = "Idle"
		}
		sessions = append(sessions, view)
	}

	jobs := make([]jobView, 0)
	for _, j := range s.store.Jobs() {
		jobs = append(jobs, jobView{
			ID:            j.ID,
			Source:        j.Source,
			Dest:          j.Dest,
			PostMode:      string(j.PostMode),
			PostSession:   j.PostSessionName,
			BotKey:        j.BotKey(),
			LastOkID:      j.LastOkID,
			PausedReason:  j.PausedReason,
			LastError:     j.LastError,
			TextStrip:     j.TextStrip,
			CaptionAppend: j.CaptionAppend,
		})
	}

	byBot := s.store.BotRecent()
	botKeys := make([]string, 0, len(byBot))
	for k := range byBot {
		botKeys = append(botKeys, k)
	}
	sort.Strings(botKeys)
	bots := make([]botView, 0, len(botKeys))
	for _, k := range botKeys {
		bots = append(bots, botView{BotKey: k, Recent: byBot[k]})
	}

	WriteJSON(w, http.StatusOK, statusResponse{
		OK:            true,
		Sessions:      sessions,
		Pollers:       s.store.Pollers(),
		Jobs:          jobs,
		DeadSessions:  dead,
		Bots:          bots,
		PendingLogins: s.login.Count(),
	})
}
