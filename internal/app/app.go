package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/audit"
	"github.com/arenahq/orgcore/internal/config"
	"github.com/arenahq/orgcore/internal/db"
	"github.com/arenahq/orgcore/internal/directory"
	"github.com/arenahq/orgcore/internal/orglock"
	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/arenahq/orgcore/internal/retention"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Services is everything the router needs. Tests build it around the
// memory store.
type Services struct {
	Manager   *orgs.Manager
	Users     orgs.UserDirectory
	Directory *directory.Service
	Audit     audit.Lister
	Ready     func(ctx context.Context) error
}

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Services Services
	Router   http.Handler

	scheduler *cron.Cron
	server    *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	SetupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing orgcore")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	a := &App{Config: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Router = NewRouter(a.Services, cfg)

	log.Info().Str("store", cfg.Store).Bool("redis_locks", cfg.UsesRedisLocks()).Msg("Application initialized successfully")
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	locker, err := a.newLocker(ctx)
	if err != nil {
		return err
	}

	engine, err := access.NewEngine(access.DefaultPolicy())
	if err != nil {
		return fmt.Errorf("failed to build access engine: %w", err)
	}

	var (
		store   orgs.Store
		users   orgs.UserDirectory
		backend directory.Backend
		notify  orgs.Notifier
		lister  audit.Lister
		pruner  retention.Pruner
	)

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store: state is lost on restart")
		mem := orgs.NewMemoryStore()
		auditLog := audit.NewMemoryLog()
		store, users, backend = mem, mem, mem
		notify, lister, pruner = auditLog, auditLog, auditLog
	default:
		log.Info().Msg("Connecting to database...")
		pool, err := db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = pool
		log.Info().Msg("Database connection established")

		if cfg.IsDev() {
			log.Info().Msg("Development mode: running migrations automatically")
			if err := db.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		} else {
			log.Info().Msg("Production mode: migrations must be run manually")
		}

		pg := orgs.NewPgStore(pool)
		reader := audit.NewReader(pool)
		store, users, backend = pg, pg, directory.NewPgBackend(pool)
		notify, lister, pruner = audit.NewWriter(pool), reader, reader
	}

	a.Services = Services{
		Manager: orgs.NewManager(store, engine,
			orgs.WithLocker(locker),
			orgs.WithNotifier(notify),
		),
		Users:     users,
		Directory: directory.NewService(backend),
		Audit:     lister,
		Ready:     a.ready,
	}

	scheduler, err := retention.NewScheduler(cfg.RetentionSchedule, pruner, cfg.AuditRetentionDays)
	if err != nil {
		return err
	}
	a.scheduler = scheduler
	return nil
}

func (a *App) newLocker(ctx context.Context) (orglock.Locker, error) {
	cfg := a.Config
	if !cfg.UsesRedisLocks() {
		if !cfg.IsDev() {
			log.Warn().Msg("OC_REDIS_ADDR not set: organization locks are local to this replica")
		}
		return orglock.NewLocal(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.Redis = client

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Redis connection established")

	return orglock.NewRedis(client, cfg.LockTTL, cfg.LockWait)
}

func (a *App) ready(ctx context.Context) error {
	if a.DB != nil {
		if err := db.Ping(ctx, a.DB); err != nil {
			return err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
	}
	return nil
}

// Start runs the retention scheduler and serves HTTP until Shutdown.
func (a *App) Start() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown drains in-flight requests, stops the scheduler and releases
// connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.scheduler != nil {
		select {
		case <-a.scheduler.Stop().Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("retention job still running: %w", ctx.Err()))
		}
	}
	a.Close()
	return errors.Join(errs...)
}

// Close releases connections without waiting for requests.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
		a.Redis = nil
	}
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		db.Close(a.DB)
		a.DB = nil
	}
}

// SetupLogger configures the global logger. Development gets the console
// writer; production keeps JSON lines.
func SetupLogger(level string, pretty bool) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
