// mirrord - Telegram channel mirror engine
//
// Single binary running the session registry, the poll/republish pipeline
// and the admin HTTP API.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/api"
	"go.mirrord.dev/internal/common/health"
	"go.mirrord.dev/internal/common/lifecycle"
	"go.mirrord.dev/internal/config"
	"go.mirrord.dev/internal/login"
	"go.mirrord.dev/internal/mirror"
	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// loginGCInterval is the sweep period for abandoned logins. Logins are also
// swept inline on every manager call, so this only bounds the idle case.
const loginGCInterval = time.Minute

func main() {
	setupLogging()

	slog.Info("Starting mirrord",
		"version", version,
		"build_time", buildTime)

	ctx := context.Background()

	// ========================================
	// 1. INFRASTRUCTURE INITIALIZATION
	// ========================================
	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{
		NeedsSessions: true,
	})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	store := app.Store
	registry := app.Registry

	// ========================================
	// 2. SESSION SERVICES
	// ========================================
	clock := clockwork.NewRealClock()
	governor := session.NewJoinGovernor(clock, cfg.Join.Interval, cfg.Join.Jitter)
	monitor := session.NewMonitor(registry, store, clock, cfg.Sessions.HealthInterval)
	rescanner := session.NewRescanner(registry, cfg.Sessions.RescanInterval)

	// ========================================
	// 3. ALERTS
	// ========================================
	alerts := setupAlerts(cfg)

	// ========================================
	// 4. MIRROR PIPELINE
	// ========================================
	failover := mirror.NewFailover(registry, store, alerts)
	republisher := mirror.NewRepublisher(registry, store, governor, alerts, mirror.MediaPolicy{
		Include:  cfg.Media.Include,
		MaxBytes: cfg.Media.MaxBytes,
	})
	engine := mirror.NewEngine(mirror.EngineConfig{
		Tick:       cfg.Poll.Tick,
		BatchMax:   cfg.Poll.BatchMax,
		IdleJitter: cfg.Poll.IdleJitter,
	}, store, governor, failover, republisher, clock)
	admin := mirror.NewAdmin(registry, store, governor, failover)

	// ========================================
	// 5. LOGIN FLOW
	// ========================================
	loginMgr := login.NewManager(app.Dialer, registry, alerts, cfg.PendingDir(), clock)
	loginGC := login.NewGC(loginMgr, loginGCInterval)

	// ========================================
	// 6. HEALTH CHECKS
	// ========================================
	healthChecker := health.NewChecker()
	healthChecker.AddReadinessCheck(health.StateStoreCheck(store.Persist))
	healthChecker.AddReadinessCheck(health.SessionsCheck(func() (online, total int) {
		t, o := registry.Counts()
		return o, t
	}))
	healthChecker.AddReadinessCheck(health.PollersCheck(func() (assigned, total int) {
		dead := store.DeadSessions()
		for _, p := range store.Pollers() {
			total++
			sess, ok := registry.Get(p.PollSessionName)
			if !ok {
				continue
			}
			if _, isDead := dead[sess.File]; isDead {
				continue
			}
			if sess.Connected() {
				assigned++
			}
		}
		return assigned, total
	}))
	healthChecker.AddLivenessCheck(health.ServiceCheck(engine.Name(), engine.Health))
	healthChecker.AddLivenessCheck(health.ServiceCheck(monitor.Name(), monitor.Health))

	// ========================================
	// 7. HTTP API
	// ========================================
	apiServer := api.NewServer(api.Config{
		Version:     version,
		BearerToken: cfg.HTTP.BearerToken,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}, store, registry, admin, loginMgr, alerts, healthChecker)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ========================================
	// 8. STARTUP PRIMING
	// ========================================
	// Load the registry and publish the first dead map before traffic lands.
	if _, _, err := registry.Rescan(ctx); err != nil {
		slog.Error("Initial session scan failed", "error", err)
		os.Exit(1)
	}
	monitor.RunOnce(ctx)

	total, online := registry.Counts()
	alerts.NotifySystemEvent(notify.EventStartup,
		fmt.Sprintf("mirrord %s started: %d sessions (%d online), %d jobs",
			version, total, online, store.CountJobs()))

	// ========================================
	// 9. RUN UNTIL SHUTDOWN
	// ========================================
	services := []lifecycle.Service{
		lifecycle.NewHTTPService("http-server", httpServer),
		rescanner,
		monitor,
		engine,
		loginGC,
	}

	slog.Info("mirrord ready",
		"addr", httpServer.Addr,
		"sessions", total,
		"online", online,
		"jobs", store.CountJobs())

	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("mirrord stopped")
}

// setupLogging configures the slog default logger.
func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("MIRRORD_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// setupAlerts picks the Bot API sink when an alert bot is configured and the
// logging sink otherwise.
func setupAlerts(cfg *config.Config) notify.Service {
	if cfg.Alert.BotToken == "" || cfg.Alert.ChatID == "" {
		slog.Info("Alert bot not configured, alerts go to the log")
		return notify.NewNoOpService()
	}
	slog.Info("Alert bot configured", "chat_id", cfg.Alert.ChatID, "topic_id", cfg.Alert.TopicID)
	return notify.NewTelegramService(&notify.TelegramConfig{
		BotToken: cfg.Alert.BotToken,
		ChatID:   cfg.Alert.ChatID,
		TopicID:  cfg.Alert.TopicID,
	})
}
