package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
)

// maxUploadBytes caps uploaded session files.
const maxUploadBytes = 10 << 20

// handleSessionUpload installs one uploaded session file and rescans the
// registry so it becomes usable immediately.
func (s *Server) handleSessionUpload(w http.ResponseWriter, r *http.Request) {
	// Some slack over the cap for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WritePayloadTooLarge(w, fmt.Sprintf("file exceeds %d bytes", maxUploadBytes))
			return
		}
		WriteBadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !session.ValidFileName(name) {
		WriteBadRequest(w, fmt.Sprintf("invalid session file name %q", name))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WritePayloadTooLarge(w, fmt.Sprintf("file exceeds %d bytes", maxUploadBytes))
			return
		}
		WriteInternalError(w, "failed to read upload")
		return
	}
	if len(data) == 0 {
		WriteBadRequest(w, "empty file")
		return
	}
	if len(data) > maxUploadBytes {
		WritePayloadTooLarge(w, fmt.Sprintf("file exceeds %d bytes", maxUploadBytes))
		return
	}

	if err := s.registry.InstallFile(name, data); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if _, _, err := s.registry.Rescan(r.Context()); err != nil {
		slog.Warn("Session rescan after upload failed", "error", err)
	}

	total, _ := s.registry.Counts()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"saved":          "sessions/" + name,
		"total_sessions": total,
	})
}

type sessionDeleteRequest struct {
	Session string `json:"session"`
}

// handleSessionDelete stops a session, removes its files and its recent
// ring, and reports the deletion through the alert sink.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	var req sessionDeleteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	name := state.NormalizeSessionName(req.Session)
	if name == "" {
		WriteBadRequest(w, "session is required")
		return
	}

	if err := s.registry.Delete(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.Persist(); err != nil {
		slog.Error("State persist failed after session delete", "session", name, "error", err)
	}

	s.alerts.NotifySystemEvent(notify.EventSessionDeleted, fmt.Sprintf("Session %s deleted", name))

	total, _ := s.registry.Counts()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"deleted":        true,
		"session":        name,
		"total_sessions": total,
	})
}

// handleSessionDownload streams a zip of the session's files.
func (s *Server) handleSessionDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = r.URL.Query().Get("session")
	}
	base := state.NormalizeSessionName(name)
	if base == "" {
		WriteBadRequest(w, "name is required")
		return
	}

	var buf bytes.Buffer
	if err := s.registry.Archive(&buf, base); err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".zip"))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
