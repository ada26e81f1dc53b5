package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"go.mirrord.dev/internal/config"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram/mtproto"
)

// App holds initialized infrastructure that is guaranteed to be ready. If you
// have an *App, the configuration is valid, the data directories exist and
// the state snapshot is loaded.
//
// This is NOT a god object - it just holds the infrastructure that requires
// validation and load logic. Application logic should NOT go here.
type App struct {
	Config *config.Config

	// Persistent working set
	Store *state.Store

	// MTProto dialer and session registry, set when AppOptions request
	// sessions
	Dialer   *mtproto.Dialer
	Registry *session.Registry

	// Internal cleanup - call AddCleanup to register cleanup functions
	cleanupFuncs []func() error
}

// AppOptions configures which infrastructure to initialize.
type AppOptions struct {
	// NeedsSessions wires the MTProto dialer and the session registry.
	// Tools that only inspect state can leave it unset.
	NeedsSessions bool
}

// Initialize creates an App with loaded infrastructure.
// Returns an error if the configuration is invalid or state cannot be read.
//
// Usage:
//
//	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{
//	    NeedsSessions: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func Initialize(ctx context.Context, opts AppOptions) (*App, func(), error) {
	app := &App{}

	// Load configuration first
	cfg, err := config.LoadWithFile()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	app.Config = cfg

	// Load the persistent snapshot
	store := state.NewStore(cfg.StatePath())
	if err := store.Load(); err != nil {
		return nil, nil, fmt.Errorf("failed to load state snapshot: %w", err)
	}
	app.Store = store
	slog.Info("State snapshot loaded",
		"path", cfg.StatePath(),
		"jobs", store.CountJobs(),
		"pollers", store.CountPollers())

	// Registered before the session cleanup so the final snapshot runs after
	// every session disconnected.
	app.AddCleanup(func() error {
		return store.Persist()
	})

	if opts.NeedsSessions {
		app.Dialer = mtproto.NewDialer(cfg.Telegram.APIID, cfg.Telegram.APIHash)
		app.Registry = session.NewRegistry(cfg.SessionsDir(), app.Dialer, store)
		app.AddCleanup(func() error {
			slog.Info("Disconnecting sessions")
			app.Registry.CloseAll(context.Background())
			return nil
		})
	}

	cleanup := func() {
		app.Cleanup()
	}

	return app, cleanup, nil
}

// AddCleanup registers a cleanup function to be called on shutdown.
// Functions are called in reverse order of registration.
func (app *App) AddCleanup(fn func() error) {
	app.cleanupFuncs = append(app.cleanupFuncs, fn)
}

// Cleanup runs all cleanup functions in reverse order.
func (app *App) Cleanup() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		if err := app.cleanupFuncs[i](); err != nil {
			slog.Error("Cleanup error", "error", err)
		}
	}
}
