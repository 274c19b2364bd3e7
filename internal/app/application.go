package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"carebridge/internal/api"
	"carebridge/internal/auth"
	"carebridge/internal/config"
	"carebridge/internal/database"
	"carebridge/internal/history"
	"carebridge/internal/liveness"
	"carebridge/internal/notify"
	"carebridge/internal/ratelimit"
	"carebridge/internal/reminder"
	"carebridge/internal/reporting"
	"carebridge/internal/router"
	"carebridge/internal/session"
	"carebridge/internal/sms"
	"carebridge/internal/websocket"
	pkglogger "carebridge/pkg/logger"
)

// ErrNotStarted is returned by Wait before Start succeeded
var ErrNotStarted = errors.New("application not started")

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	store      *database.Manager
	tracker    *session.Tracker
	registry   *websocket.Registry
	limiter    *ratelimit.Limiter
	monitor    *liveness.Monitor
	reporter   *reporting.Reporter
	reminders  *reminder.Scheduler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Session/Limiter → Registry → Router → Services → API → HTTP
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// STEP 1: Database manager applies migrations on open
	store, err := database.NewManager(cfg.Database, pkglogger.Component(logger, "database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Process-local state
	tracker := session.NewTracker(session.WithLogger(logger))
	limiter := ratelimit.New(ratelimit.WithLimits(cfg.RateLimit.Limits), ratelimit.WithLogger(logger))
	registry := websocket.NewRegistry(websocket.WithRegistryLogger(logger))
	monitor := liveness.NewMonitor(registry, cfg.WebSocket.PingInterval, logger)

	// STEP 3: Domain services
	notes := notify.NewService(store, registry, logger)
	reporter := reporting.NewReporter(store, logger)

	var sender sms.Sender
	if cfg.SMS.APIKey != "" {
		sender = sms.NewClient(cfg.SMS.APIKey, cfg.SMS.BaseURL, cfg.SMS.SenderID, cfg.SMS.PerSecond)
	} else {
		sender = sms.NewLogSender(logger)
	}
	reminders := reminder.NewScheduler(store, sender, notes, location, logger)

	authService := auth.NewService(store,
		auth.NewHasher(cfg.Auth.BcryptCost),
		auth.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		tracker, notes, logger)
	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("using the development JWT secret; set CAREBRIDGE_AUTH_JWT_SECRET in production")
	}

	// STEP 4: WebSocket endpoint routes inbound control messages to the registry
	wsHandler := websocket.NewHandler(registry, router.NewRouter(registry, logger), authService, websocket.HandlerConfig{
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		RequireAuth:    cfg.WebSocket.RequireAuth,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger)

	// STEP 5: HTTP surface
	apiServer := api.NewServer(api.Dependencies{
		Store:     store,
		Auth:      authService,
		Sessions:  tracker,
		Registry:  registry,
		Limiter:   limiter,
		Notify:    notes,
		Reporter:  reporter,
		Reminders: reminders,
		History:   history.NewService(store, logger),
		WebSocket: wsHandler,
	}, api.Config{AllowedOrigins: cfg.HTTP.AllowedOrigins}, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     pkglogger.Component(logger, "app"),
		store:      store,
		tracker:    tracker,
		registry:   registry,
		limiter:    limiter,
		monitor:    monitor,
		reporter:   reporter,
		reminders:  reminders,
		httpServer: httpServer,
	}, nil
}

// Start runs startup maintenance, binds the listener and launches the
// background loops. It returns once the server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Retention cleanup failing must not block startup
	if _, err := app.reporter.Cleanup(ctx); err != nil {
		app.logger.Error().Err(err).Msg("startup retention cleanup failed")
	}
	if _, err := app.reminders.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore reminders: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	if err := app.monitor.Start(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		return fmt.Errorf("failed to start liveness monitor: %w", err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.tracker.RunSweeper(gctx, app.config.Session.SweepInterval, app.config.Session.InactiveThreshold)
	})
	g.Go(func() error {
		return app.limiter.RunCleanup(gctx, app.config.RateLimit.CleanupInterval)
	})
	app.group = g

	app.logger.Info().Str("addr", listener.Addr().String()).Msg("CareBridge started")
	return nil
}

// Wait blocks until a background loop fails or Stop completes
func (app *Application) Wait() error {
	app.mu.Lock()
	g := app.group
	app.mu.Unlock()
	if g == nil {
		return ErrNotStarted
	}
	return g.Wait()
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → loops → timers → database
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.logger.Info().Msg("shutting down")

	// STEP 1: Stop accepting new requests
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// STEP 2: Hijacked WebSocket connections are not closed by Shutdown
	app.registry.CloseAll()

	// STEP 3: Background loops
	if err := app.monitor.Stop(); err != nil && !errors.Is(err, liveness.ErrMonitorNotRunning) {
		app.logger.Error().Err(err).Msg("liveness monitor shutdown error")
	}
	if app.cancel != nil {
		app.cancel()
	}
	var loopErr error
	if app.group != nil {
		loopErr = app.group.Wait()
	}

	// STEP 4: Pending reminders and in-flight deliveries
	app.reminders.Stop()

	// STEP 5: Close database connections
	if err := app.store.Close(); err != nil {
		app.logger.Error().Err(err).Msg("database shutdown error")
		return err
	}

	app.logger.Info().Msg("shutdown complete")
	return loopErr
}

// Addr returns the bound listener address, or the configured one before Start
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
