// Package runtime wires configuration, storage, services, and the HTTP
// server into a runnable application.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/rpch-net/discovery-platform/internal/cache"
	"github.com/rpch-net/discovery-platform/internal/config"
	"github.com/rpch-net/discovery-platform/internal/graph"
	"github.com/rpch-net/discovery-platform/internal/httpapi"
	"github.com/rpch-net/discovery-platform/internal/platform/migrations"
	"github.com/rpch-net/discovery-platform/internal/services/quota"
	"github.com/rpch-net/discovery-platform/internal/services/registry"
	"github.com/rpch-net/discovery-platform/internal/storage"
	"github.com/rpch-net/discovery-platform/internal/storage/postgres"
	"github.com/rpch-net/discovery-platform/internal/system"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// Application wires core dependencies and manages the server lifecycle.
type Application struct {
	cfg        config.Config
	log        *logger.Logger
	httpServer *http.Server
	registry   *registry.Service
	quota      *quota.Service
	services   []system.Service
	db         *sql.DB
	cache      cache.Cache
}

// NewApplication constructs a fully wired application from the environment.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "discovery",
	})

	stores, db, err := buildStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	responseCache, err := buildCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure cache: %w", err)
	}

	registrySvc := registry.New(stores.registry, log)
	quotaSvc := quota.New(stores.clients, stores.ledger, cfg.BaseQuota(), log)

	var services []system.Service
	if cfg.Sweeper.Enabled {
		checker, err := buildChecker(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("configure commitment checker: %w", err)
		}
		services = append(services, registry.NewSweeper(registrySvc, checker, cfg.Sweeper.Schedule, log))
	} else {
		log.Warn("sweeper disabled; UNUSABLE transitions will not happen automatically")
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Registry:  registrySvc,
		Quota:     quotaSvc,
		Cache:     responseCache,
		CacheTTL:  cfg.Cache.TTL,
		SecretKey: cfg.SecretKey,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
		Log:       log,
	})

	return &Application{
		cfg: cfg,
		log: log,
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr(),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		registry: registrySvc,
		quota:    quotaSvc,
		services: services,
		db:       db,
		cache:    responseCache,
	}, nil
}

// Registry exposes the node registry service.
func (a *Application) Registry() *registry.Service { return a.registry }

// Quota exposes the quota ledger service.
func (a *Application) Quota() *quota.Service { return a.quota }

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	for _, svc := range a.services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		a.log.WithField("service", svc.Name()).Info("service started")
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.cfg.ListenAddr())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server and background services and releases resources.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	for _, svc := range a.services {
		if err := svc.Stop(shutdownCtx); err != nil {
			a.log.WithError(err).Warnf("error stopping %s", svc.Name())
		}
	}

	if closer, ok := a.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.WithError(err).Warn("error closing cache")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

type stores struct {
	registry storage.RegistryStore
	clients  storage.ClientStore
	ledger   storage.LedgerStore
}

func buildStores(ctx context.Context, cfg config.Config) (stores, *sql.DB, error) {
	if cfg.Database.URL == "" {
		mem := storage.NewMemory()
		return stores{registry: mem, clients: mem, ledger: mem}, nil, nil
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return stores{}, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	pg := postgres.New(db)
	return stores{registry: pg, clients: pg, ledger: pg}, db, nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildCache(cfg config.Config) (cache.Cache, error) {
	if cfg.Cache.RedisURL == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(cfg.Cache.RedisURL, "discovery:cache:")
}

func buildChecker(cfg config.Config, log *logger.Logger) (registry.CommitmentChecker, error) {
	var fetcher graph.ChannelFetcher
	if !cfg.Commitment.SkipCheck {
		httpClient := &http.Client{Timeout: cfg.Commitment.Timeout}
		client, err := graph.NewClient(httpClient, cfg.Commitment.SubgraphURL, log)
		if err != nil {
			return nil, err
		}
		fetcher = client
	}
	return graph.NewVerifier(fetcher, graph.VerifierConfig{
		MinBalance:  cfg.MinBalance(),
		MinChannels: cfg.Commitment.MinChannels,
		Timeout:     cfg.Commitment.Timeout,
		SkipCheck:   cfg.Commitment.SkipCheck,
	}, log), nil
}
