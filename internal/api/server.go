// Package api serves the admin HTTP surface: job and poller mutations, the
// status snapshot, session file management and the interactive login flow.
// Handlers translate domain errors into status codes; every mutation goes
// through the admin or login layer, never straight into state.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.mirrord.dev/internal/common/health"
	"go.mirrord.dev/internal/login"
	"go.mirrord.dev/internal/mirror"
	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// Config holds the server's own knobs; everything else arrives as wired
// collaborators.
type Config struct {
	Version     string
	BearerToken string
	CORSOrigins []string
}

// Server owns the HTTP routes of the admin API.
type Server struct {
	cfg      Config
	store    *state.Store
	registry *session.Registry
	admin    *mirror.Admin
	login    *login.Manager
	alerts   notify.Service
	checker  *health.Checker
}

func NewServer(cfg Config, store *state.Store, registry *session.Registry, admin *mirror.Admin, loginMgr *login.Manager, alerts notify.Service, checker *health.Checker) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		admin:    admin,
		login:    loginMgr,
		alerts:   alerts,
		checker:  checker,
	}
}

// Router builds the chi router. Health and metrics stay open; everything
// else sits behind the bearer check when a token is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/q/health", s.checker.HandleHealth)
	r.Get("/q/health/live", s.checker.HandleLive)
	r.Get("/q/health/ready", s.checker.HandleReady)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireBearer(s.cfg.BearerToken))

		r.Get("/", s.handleRoot)
		r.Get("/status", s.handleStatus)
		r.Post("/add", s.handleAdd)

		r.Post("/sessions/upload", s.handleSessionUpload)
		r.Post("/sessions/delete", s.handleSessionDelete)
		r.Get("/session/download", s.handleSessionDownload)

		r.Post("/session/start", s.handleLoginStart)
		r.Post("/session/code", s.handleLoginCode)
		r.Post("/session/password", s.handleLoginPassword)
		r.Post("/session/resend", s.handleLoginResend)
		r.Post("/session/cancel", s.handleLoginCancel)
		r.Get("/session/status", s.handleLoginStatus)
	})

	return r
}

// handleRoot serves the service banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"service": "mirrord",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /status",
			"POST /add",
			"POST /sessions/upload",
			"POST /sessions/delete",
			"GET /session/download",
			"POST /session/start",
			"POST /session/code",
			"POST /session/password",
			"POST /session/resend",
			"POST /session/cancel",
			"GET /session/status",
			"GET /q/health",
			"GET /metrics",
		},
	})
}

// writeDomainError maps domain errors onto status codes. Unrecognized
// errors become 500s.
func writeDomainError(w http.ResponseWriter, err error) {
	var flood *telegram.FloodWaitError

	switch {
	case errors.Is(err, mirror.ErrInvalid), errors.Is(err, login.ErrInvalid):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, telegram.ErrCodeInvalid),
		errors.Is(err, telegram.ErrCodeExpired),
		errors.Is(err, login.ErrPasswordRejected):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, mirror.ErrRoleConflict),
		errors.Is(err, login.ErrInProgress),
		errors.Is(err, login.ErrExists):
		WriteConflict(w, err.Error())
	case errors.Is(err, mirror.ErrSessionNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, login.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, mirror.ErrNoPollSession), errors.Is(err, mirror.ErrPollSessionDead):
		WriteServiceUnavailable(w, err.Error())
	case errors.As(err, &flood):
		WriteError(w, http.StatusTooManyRequests, "flood_wait", err.Error())
	default:
		WriteInternalError(w, err.Error())
	}
}
