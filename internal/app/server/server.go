package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"labourpanel/internal/domain/audit"
	"labourpanel/internal/domain/labour"
	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/apiclient"
	"labourpanel/internal/platform/cache"
	"labourpanel/internal/platform/config"
	"labourpanel/internal/platform/crypto"
	"labourpanel/internal/platform/db"
	"labourpanel/internal/platform/events"
	"labourpanel/internal/platform/imaging"
	"labourpanel/internal/platform/jobs"
	"labourpanel/internal/platform/metrics"
	audithandler "labourpanel/internal/transport/http/handlers/audit"
	dashboardhandler "labourpanel/internal/transport/http/handlers/dashboard"
	engineerhandler "labourpanel/internal/transport/http/handlers/engineer"
	labourhandler "labourpanel/internal/transport/http/handlers/labour"
	livehandler "labourpanel/internal/transport/http/handlers/live"
	sessionhandler "labourpanel/internal/transport/http/handlers/session"
	"labourpanel/internal/transport/http/middleware"
	"labourpanel/internal/transport/http/shared"
)

// Options is everything the router needs. Audit may be nil when no
// database is configured.
type Options struct {
	Config   config.Config
	Registry *workspace.Registry
	Sessions middleware.Sessions
	Hub      *events.Hub
	Metrics  *metrics.Collector
	Audit    audithandler.Lister
	Ready    []func(context.Context) error
	Logger   *slog.Logger
}

func NewRouter(opts Options) (http.Handler, error) {
	cfg := opts.Config
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	workspaces := shared.Workspaces{Registry: opts.Registry, Fallback: cfg.APIToken}

	dashboard, err := dashboardhandler.NewHandler(workspaces, cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(opts.Sessions.Middleware)
	router.Use(middleware.Logger(opts.Logger, opts.Metrics))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range opts.Ready {
			if err := check(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed", "err", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	router.Method(http.MethodGet, "/", dashboard)
	router.Method(http.MethodGet, "/panel/ws", livehandler.NewHandler(opts.Hub))

	router.Route("/panel/api", func(r chi.Router) {
		r.Use(middleware.MutationRateLimit(cfg.MutationRateLimit, time.Minute))

		sessionHandler := sessionhandler.NewHandler(opts.Sessions, workspaces, opts.Hub)
		sessionHandler.RegisterRoutes(r)

		labourHandler := labourhandler.NewHandler(workspaces, cfg.Currency, opts.Metrics)
		labourHandler.RegisterRoutes(r)

		engineerHandler := engineerhandler.NewHandler(workspaces)
		engineerHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(opts.Audit)
		auditHandler.RegisterRoutes(r)
	})

	return router, nil
}

// Run builds the panel from the environment and serves until SIGINT or
// SIGTERM.
func Run() error {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := crypto.New(cfg.SessionKey)
	if err != nil {
		return fmt.Errorf("session key: %w", err)
	}
	if sealer.Ephemeral() {
		logger.Warn("SESSION_KEY not set, sessions will not survive a restart")
	}

	collector := metrics.New()
	var ready []func(context.Context) error

	var (
		recorder audit.Recorder = audit.LogRecorder{Logger: logger}
		lister   audithandler.Lister
		pool     *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, os.DirFS(cfg.MigrationsDir)); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		service := audit.New(pool)
		recorder, lister = service, service
		ready = append(ready, pool.Ping)

		runner := jobs.New(jobs.PgRunLog{DB: pool}, logger)
		runner.Start(ctx)
		if cfg.AuditRetention > 0 {
			runner.Every(ctx, jobs.JobAuditRetention, cfg.AuditPruneInterval, auditRetention(service, cfg.AuditRetention))
		}
		defer func() {
			stop()
			runner.Wait()
		}()
	}

	var store labour.SnapshotStore = cache.NewMemoryCache(cfg.SnapshotTTL)
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer closeRedis(client)
		snapshots := cache.NewSnapshotCache(client, cfg.SnapshotTTL)
		store = snapshots
		ready = append(ready, snapshots.Ping)
	}

	hub := events.NewHub(originChecker(cfg.CORSAllowedOrigins), collector, logger)
	defer hub.Close()

	apiConfig := apiclient.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout}
	registry := workspace.NewRegistry(workspace.RegistryOptions{
		Factory: func(credential string) (workspace.Backend, error) {
			client, err := apiclient.NewClient(apiConfig, apiclient.StaticToken(credential), nil)
			if err != nil {
				return nil, err
			}
			return client.WithLogger(logger), nil
		},
		Deps: workspace.Deps{
			Capturer:  imaging.NewCapturer(),
			Audit:     recorder,
			Observer:  collector,
			Store:     store,
			Publisher: hub,
			Logger:    logger,
		},
		Scope:       cache.ScopeKey,
		IdleTimeout: cfg.SessionIdleTimeout,
		OnChange:    collector.SetWorkspaces,
		Logger:      logger,
	})
	defer registry.Close()
	go registry.Run(ctx, cfg.SweepInterval)

	router, err := NewRouter(Options{
		Config:   cfg,
		Registry: registry,
		Sessions: middleware.Sessions{
			Sealer:  sealer,
			Secure:  cfg.IsProduction(),
			MaxAge:  cfg.SessionIdleTimeout,
			Subject: apiclient.Subject,
		},
		Hub:     hub,
		Metrics: collector,
		Audit:   lister,
		Ready:   ready,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("labour panel listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func auditRetention(service *audit.Service, keep time.Duration) jobs.RunFunc {
	return func(ctx context.Context) (any, error) {
		cutoff := time.Now().Add(-keep)
		deleted, err := service.Prune(ctx, cutoff)
		return map[string]any{"cutoff": cutoff, "deleted": deleted}, err
	}
}

// originChecker accepts same-host websocket upgrades plus the configured
// CORS origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Warn("close redis failed", "err", err)
	}
}
