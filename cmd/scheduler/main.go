package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clinicbook_backend/internal/appointments/repository"
	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/internal/notification/outbox"
	"clinicbook_backend/internal/scheduler"
	"clinicbook_backend/platform/backoff"
	"clinicbook_backend/platform/cache"
	"clinicbook_backend/platform/config"
	"clinicbook_backend/platform/db"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := cache.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	// Publish-only: reminders reach API replicas through the relay channel.
	relay := live.NewRedisRelay(redisClient, nil, live.DefaultRelayChannel, log)

	eventBus := events.NewInMemoryBus(log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	planner := scheduler.NewReminderPlanner(client, cfg.GetBookingLocation(), scheduler.DefaultReminderLead, log)
	planner.Subscribe(eventBus)

	tasks := scheduler.NewTaskHandlers(repository.New(pool), eventBus, relay, log)
	worker, err := scheduler.NewWorker(cfg, tasks, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	cleanup := scheduler.NewOutboxCleanup(outbox.New(pool), log, cfg.GetOutboxCleanupInterval(), cfg.GetOutboxRetention())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	_ = g.Wait()
	log.Info("scheduler stopped")
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
