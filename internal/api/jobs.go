package api

import (
	"net/http"
	"strings"

	"go.mirrord.dev/internal/mirror"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

type addRequest struct {
	Source        string `json:"source"`
	Dest          string `json:"dest"`
	Delete        string `json:"delete"`
	PostMode      string `json:"post_mode"`
	PostSession   string `json:"post_session"`
	BotToken      string `json:"bot_token"`
	PollSession   string `json:"poll_session"`
	TextStrip     string `json:"text_strip"`
	CaptionAppend string `json:"caption_append"`
}

type addResponse struct {
	OK               bool   `json:"ok"`
	JobID            string `json:"job_id"`
	Source           string `json:"source"`
	Dest             string `json:"dest"`
	PollSession      string `json:"poll_session"`
	PollSessionIndex int    `json:"poll_session_index"`
	PostMode         string `json:"post_mode"`
	PostSession      string `json:"post_session,omitempty"`
	BotToken         string `json:"bot_token,omitempty"`
	BaselineID       int    `json:"baseline_last_id"`
	LastOkID         int    `json:"last_ok_id"`
	Note             string `json:"note"`
}

type deleteResponse struct {
	OK            bool   `json:"ok"`
	Source        string `json:"source"`
	DeletedJobs   int    `json:"deleted_jobs"`
	DeletedPoller bool   `json:"deleted_poller"`
}

// handleAdd upserts one mirror job, or removes a source wholesale when the
// request carries delete:"all".
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	if strings.EqualFold(strings.TrimSpace(req.Delete), "all") {
		removed, hadPoller, err := s.admin.DeleteAll(req.Source)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, deleteResponse{
			OK:            true,
			Source:        telegram.NormalizeChannel(req.Source),
			DeletedJobs:   removed,
			DeletedPoller: hadPoller,
		})
		return
	}

	res, err := s.admin.UpsertJob(r.Context(), mirror.JobParams{
		Source:        req.Source,
		Dest:          req.Dest,
		PostMode:      state.PostMode(strings.ToLower(strings.TrimSpace(req.PostMode))),
		PostSession:   req.PostSession,
		BotToken:      req.BotToken,
		PollSession:   req.PollSession,
		TextStrip:     req.TextStrip,
		CaptionAppend: req.CaptionAppend,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, addResponse{
		OK:               true,
		JobID:            res.Job.ID,
		Source:           res.Job.Source,
		Dest:             res.Job.Dest,
		PollSession:      res.PollSession,
		PollSessionIndex: res.SessionIndex + 1,
		PostMode:         string(res.Job.PostMode),
		PostSession:      res.Job.PostSessionName,
		BotToken:         maskToken(res.Job.BotToken),
		BaselineID:       res.BaselineID,
		LastOkID:         res.Job.LastOkID,
		Note:             "Cursor advances only on confirmed publishes; a dead post session pauses the job without losing messages.",
	})
}

// maskToken keeps the token tail for recognition without exposing the
// secret.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	tail := token
	if len(token) > 6 {
		tail = token[len(token)-6:]
	}
	return "****" + tail
}
