package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/locate-tracker/internal/api/http"
	"github.com/spec-kit/locate-tracker/internal/api/http/handlers"
	"github.com/spec-kit/locate-tracker/internal/auth"
	"github.com/spec-kit/locate-tracker/internal/clock"
	"github.com/spec-kit/locate-tracker/internal/config"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/expiration"
	"github.com/spec-kit/locate-tracker/internal/notify"
	"github.com/spec-kit/locate-tracker/internal/observability"
	"github.com/spec-kit/locate-tracker/internal/persistence"
	"github.com/spec-kit/locate-tracker/internal/repository"
	"github.com/spec-kit/locate-tracker/internal/service"
	"github.com/spec-kit/locate-tracker/internal/worker"
)

const shutdownGrace = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		store       repository.Store
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		store = repository.NewPostgresStore(pool)
		ticketRepo = repository.NewTicketRepository(pool)
		historyRepo = repository.NewTicketHistoryRepository(pool)
	} else {
		logger.Warn("POSTGRES_DSN not set; tickets are kept in memory")
		mem := repository.NewMemoryTicketRepository()
		store = mem
		ticketRepo = mem
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(func(event events.Event, err error) {
		logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	})
	service.NewHistoryRecorder(historyRepo, dispatcher, logger).RegisterHandlers()

	clk := clock.Real()
	location := cfg.Notification.Location()
	calculator := expiration.NewCalculator(cfg.Expiration.RulesTable())

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Calculator:  calculator,
		Clock:       clk,
		Location:    location,
		WarningDays: cfg.Expiration.WarningWindowDays,
		Dispatcher:  dispatcher,
	})

	jobDeps := service.JobDependencies{
		Store:       store,
		Clock:       clk,
		Location:    location,
		WarningDays: cfg.Expiration.WarningWindowDays,
		Events:      dispatcher,
		Logger:      logger,
	}
	reconciler := service.NewReconciliationService(jobDeps)
	notifier := service.NewNotificationService(service.NotificationDependencies{
		JobDependencies: jobDeps,
		Sender:          newSender(cfg, redis, logger),
		AdminRecipient:  cfg.Notification.AdminRecipient,
		Concurrency:     cfg.Notification.DispatchConcurrent,
	})

	var locker worker.Locker = worker.NoopLocker{}
	if redis.Enabled() && cfg.Scheduler.DistributedLocking {
		locker = worker.NewRedisLocker(redis.Client)
	}
	scheduler := worker.NewScheduler(worker.SchedulerOptions{
		Location: location,
		Locker:   locker,
		LockTTL:  cfg.Scheduler.LockTTL(),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err := scheduler.Register(worker.JobReconcile, cfg.Scheduler.ReconcileSchedule, func(ctx context.Context) (any, error) {
		return reconciler.Run(ctx)
	}); err != nil {
		logger.Fatal("failed to schedule reconciliation", zap.Error(err))
	}
	if err := scheduler.Register(worker.JobNotify, cfg.Notification.DailySchedule(), func(ctx context.Context) (any, error) {
		return notifier.Run(ctx)
	}); err != nil {
		logger.Fatal("failed to schedule notifications", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		scheduler.Start()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.AllowedOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, handlers.NewValidator()),
		Jobs:           handlers.NewJobsHandler(scheduler),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	_ = app.ShutdownWithContext(stopCtx)
}

func newSender(cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) notify.Dispatcher {
	admin := cfg.Notification.AdminRecipient
	switch cfg.Notification.Driver {
	case config.DriverWebhook:
		return notify.NewWebhookDispatcher(cfg.Notification.WebhookURL, cfg.Notification.WebhookTimeout(), admin)
	case config.DriverRedis:
		return notify.NewRedisStreamDispatcher(redis.Client, cfg.Notification.RedisStream, admin)
	default:
		return notify.NewLogDispatcher(logger, admin)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
