package api

import (
	"net/http"
)

type loginStartRequest struct {
	SessionName string `json:"session_name"`
	Session     string `json:"session"`
	Phone       string `json:"phone"`
	Force       bool   `json:"force"`
}

type loginCodeRequest struct {
	LoginID string `json:"login_id"`
	Code    string `json:"code"`
}

type loginPasswordRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

type loginIDRequest struct {
	LoginID string `json:"login_id"`
}

// handleLoginStart begins an interactive login and returns the login_id the
// client drives the rest of the flow with.
func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	name := req.SessionName
	if name == "" {
		name = req.Session
	}

	st, err := s.login.Start(r.Context(), name, req.Phone, req.Force)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleLoginCode(w http.ResponseWriter, r *http.Request) {
	var req loginCodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.login.Code(r.Context(), req.LoginID, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleLoginPassword(w http.ResponseWriter, r *http.Request) {
	var req loginPasswordRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.login.Password(r.Context(), req.LoginID, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleLoginResend(w http.ResponseWriter, r *http.Request) {
	var req loginIDRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.login.Resend(r.Context(), req.LoginID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleLoginCancel(w http.ResponseWriter, r *http.Request) {
	var req loginIDRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	cancelled, err := s.login.Cancel(r.Context(), req.LoginID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"cancelled": cancelled,
	})
}

func (s *Server) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.login.Status(r.Context(), r.URL.Query().Get("login_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}
