package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clinicbook_backend/internal/appointments"
	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/appointments/repository"
	"clinicbook_backend/internal/appointments/service"
	"clinicbook_backend/internal/directory"
	apphttp "clinicbook_backend/internal/http"
	"clinicbook_backend/internal/http/router"
	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/internal/notification/outbox"
	"clinicbook_backend/internal/scheduler"
	"clinicbook_backend/migrations"
	"clinicbook_backend/platform/backoff"
	"clinicbook_backend/platform/cache"
	"clinicbook_backend/platform/config"
	"clinicbook_backend/platform/db"
	"clinicbook_backend/platform/logger"
	"clinicbook_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	cacheKeyPrefix  = "clinicbook:"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", func(ctx context.Context) error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", func(ctx context.Context) error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	hub := live.NewHub(log)
	defer hub.Close()

	// Without Redis the hub is the only live sink, so a single API replica
	// sees every event. With Redis every replica relays through one channel.
	var livePublisher outbox.LiveSink = hub
	var relay *live.RedisRelay
	if redisClient != nil {
		relay = live.NewRedisRelay(redisClient, hub, live.DefaultRelayChannel, log)
		livePublisher = relay
	}

	var broker outbox.BrokerSink
	if brokerClient := initBroker(cfg, log); brokerClient != nil {
		defer func() { _ = brokerClient.Close() }()
		broker = brokerClient
	}

	dispatcher := outbox.NewDispatcher(outbox.New(pool), livePublisher, broker, log, outbox.DispatcherOptions{
		BatchSize:    cfg.GetOutboxBatchSize(),
		MaxAttempts:  cfg.GetOutboxMaxAttempts(),
		PollInterval: cfg.GetOutboxPollInterval(),
		Retry:        outbox.DefaultRetryPolicy,
	})

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	val := validator.New()

	dirValidator := directory.NewValidator(directorySource(cfg, pool, log), directory.Options{
		Policy: backoff.Policy{
			MaxAttempts: cfg.GetLookupMaxAttempts(),
			BaseDelay:   cfg.GetLookupBaseDelay(),
			Multiplier:  cfg.GetLookupMultiplier(),
			MaxDelay:    cfg.GetLookupMaxDelay(),
		},
		Sleeper:  backoff.TimerSleeper{},
		Cache:    associationCache(redisClient),
		CacheTTL: cfg.GetAssociationCacheTTL(),
		Logger:   log,
	})

	appointmentSvc := service.New(repository.New(pool), dirValidator, dispatcher, service.Settings{
		Location: cfg.GetBookingLocation(),
		Grid: domain.Grid{
			Start: cfg.GetSlotDayStart(),
			End:   cfg.GetSlotDayEnd(),
			Step:  cfg.GetSlotStep(),
		},
		DefaultDuration: cfg.GetDefaultDuration(),
	}, log)

	appointmentsModule := appointments.NewModule(appointmentSvc, val)
	liveModule := live.NewModule(live.NewHandler(hub, log, originChecker(cfg)))

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			appointmentsModule,
			liveModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("server stopped")
}

func initRedis(cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; live relay is process-local and directory cache is in memory")
		return nil
	}

	client, err := cache.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	return client
}

func initBroker(cfg config.SchedulerConfig, log *logger.Logger) *scheduler.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; appointment events are not forwarded to the broker")
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize broker client", "error", err)
		return nil
	}
	return client
}

func directorySource(cfg config.DirectoryConfig, pool *pgxpool.Pool, log *logger.Logger) directory.Source {
	if cfg.GetDirectoryMode() == "http" {
		log.Info("directory lookups over http", "baseUrl", cfg.GetDirectoryBaseURL())
		return directory.NewHTTPClient(cfg.GetDirectoryBaseURL(), cfg.GetDirectoryAPIKey(), cfg.GetDirectoryTimeout(), log)
	}
	return directory.NewPostgres(pool)
}

func associationCache(client *redis.Client) cache.Cache {
	if client == nil {
		return cache.NewMemoryCache(time.Now)
	}
	return cache.NewRedisCache(client, cacheKeyPrefix)
}

// originChecker mirrors the CORS policy for websocket upgrades.
func originChecker(cfg config.HTTPConfig) func(*http.Request) bool {
	if cfg.GetCORSAllowAll() {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(cfg.GetCORSOrigins()))
	for _, origin := range cfg.GetCORSOrigins() {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, fn func(ctx context.Context) error) error {
	err := backoff.Do(ctx, backoff.StartupPolicy, backoff.TimerSleeper{}, func(ctx context.Context, attempt int) error {
		err := fn(ctx)
		if err != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
