// Package app wires the Spark Wave server runtime: config, logging, storage,
// the session lifecycle, and the realtime delivery stack.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"sparkwave/cmd/internal/auth/api"
	"sparkwave/cmd/internal/auth/session"
	"sparkwave/cmd/internal/delivery"
	"sparkwave/cmd/internal/directory"
	"sparkwave/cmd/internal/ids"
	"sparkwave/cmd/internal/metrics"
	"sparkwave/cmd/internal/realtime"
	"sparkwave/cmd/internal/safety"
	"sparkwave/cmd/security/password"
)

// App owns the wired runtime and the HTTP server lifecycle.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	sessions *session.Service
	gateway  *realtime.Gateway
	auth     *api.Handler
	delivery *delivery.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			log.Info("db.migrations.applied")
		}
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dbPool = pool
		dbEnabled = true
		log.Info("db.enabled.postgres_store")
	} else {
		log.Info("db.disabled.inmemory_store")
	}

	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	sessCfg, err := loadSessionConfig(cfg, log, dbEnabled)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}
	tm, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	var sessStore session.Store
	var dir directory.Store
	if dbEnabled {
		sessStore = session.NewPostgresStore(dbPool)
		pgDir, err := directory.NewPostgresStore(dbPool)
		if err != nil {
			cleanupPool(dbPool)
			return nil, err
		}
		dir = pgDir
	} else {
		sessStore = session.NewInMemoryStore()
		memDir := directory.NewInMemoryStore()
		if cfg.DevSeed {
			if err := seedDevUser(memDir, cfg); err != nil {
				return nil, err
			}
			log.Info("dev.seed.user", "email", cfg.DevSeedEmail)
		}
		dir = memDir
	}

	sessions, err := session.NewService(sessCfg, log, tm, sessStore, dir, mc)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	var checker safety.Checker
	var gen safety.Generator
	if client, err := safety.NewInferenceClient(safety.LoadConfigFromEnv()); err == nil {
		checker = client
		gen = client
		log.Info("safety.inference.enabled")
	} else if errors.Is(err, safety.ErrNotConfigured) {
		log.Info("safety.inference.disabled", "reason", "no api key")
	} else {
		cleanupPool(dbPool)
		return nil, err
	}

	var msgs delivery.MessageStore
	var notes delivery.NotificationStore
	if dbEnabled {
		msgs = delivery.NewPostgresMessageStore(dbPool)
		notes = delivery.NewPostgresNotificationStore(dbPool)
	} else {
		msgs = delivery.NewInMemoryMessageStore()
		notes = delivery.NewInMemoryNotificationStore()
	}

	router, err := delivery.NewRouter(log, msgs, notes, dir, checker, gen, mc)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	presence := realtime.NewRegistry(mc)
	router.AttachPusher(presence)

	gateway, err := realtime.NewGateway(log, presence, router, sessions, mc)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	authHandler, err := api.NewHandler(log, api.LoadConfigFromEnv(), sessions, dir, dbPool)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	deliveryHandler, err := delivery.NewHandler(log, router, sessions)
	if err != nil {
		cleanupPool(dbPool)
		return nil, err
	}

	// Provision the assistant identity up front so the first conversation with
	// it does not race its creation.
	if aid, err := router.AssistantID(ctx); err != nil {
		log.Warn("assistant.provision.fail", "err", err)
	} else {
		log.Info("assistant.ready", "user_id", aid)
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  reg,
		sessions:  sessions,
		gateway:   gateway,
		auth:      authHandler,
		delivery:  deliveryHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.gateway, a.auth, a.delivery)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	cleanupPool(a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

// loadSessionConfig loads the session config from env. In DB-less dev mode a
// missing signing key is replaced with an ephemeral one: tokens then die with
// the process, which is exactly what a throwaway dev run wants.
func loadSessionConfig(cfg Config, log Logger, dbEnabled bool) (session.Config, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err == nil {
		return sessCfg, nil
	}
	if dbEnabled || cfg.RequireTokenHMAC {
		return session.Config{}, err
	}

	sessCfg = session.DefaultConfig()
	sessCfg.PasetoSecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	log.Warn("session.key.ephemeral", "reason", "SW_PASETO_SECRET_KEY_HEX not set; tokens will not survive restarts")
	return sessCfg, nil
}

func seedDevUser(dir *directory.InMemoryStore, cfg Config) error {
	hash, err := password.Hash(cfg.DevSeedPassword, password.DefaultParams())
	if err != nil {
		return err
	}
	id, err := ids.NewULID(time.Now())
	if err != nil {
		return err
	}
	dir.AddUser(directory.Profile{
		ID:          id,
		Username:    "demo",
		DisplayName: "Demo User",
		CreatedAt:   time.Now().UTC(),
	}, cfg.DevSeedEmail, hash)
	return nil
}

func cleanupPool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
