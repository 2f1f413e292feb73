package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PratikDhanave/offhours-digest/internal/config"
	"github.com/PratikDhanave/offhours-digest/internal/debuglog"
	"github.com/PratikDhanave/offhours-digest/internal/digest"
	"github.com/PratikDhanave/offhours-digest/internal/handlers"
	"github.com/PratikDhanave/offhours-digest/internal/httpserver"
	"github.com/PratikDhanave/offhours-digest/internal/id"
	"github.com/PratikDhanave/offhours-digest/internal/lock"
	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/monitor"
	"github.com/PratikDhanave/offhours-digest/internal/notion"
	"github.com/PratikDhanave/offhours-digest/internal/offhours"
	"github.com/PratikDhanave/offhours-digest/internal/queue"
	"github.com/PratikDhanave/offhours-digest/internal/retention"
	"github.com/PratikDhanave/offhours-digest/internal/scheduler"
	"github.com/PratikDhanave/offhours-digest/internal/slack"
	"github.com/PratikDhanave/offhours-digest/internal/store"
	"github.com/PratikDhanave/offhours-digest/internal/users"
)

const (
	queueKeyPrefix = "Q_"
	writeLockKey   = "offhours:events:write"
	writeLockLease = 30 * time.Second
	taskTimeout    = 2 * time.Minute
	probeTimeout   = 30 * time.Second
)

// main boots the service: config → logging → DB → schema → components →
// scheduler → HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{Component: "digest.main"})

	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Ensure required tables exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	var (
		buf       queue.Buffer = queue.NewMemoryBuffer(cfg.Queue.Capacity, cfg.Queue.TTL)
		userCache users.Cache  = users.NewMemoryCache()
		writeLock lock.Locker  = lock.NewLocal()
	)
	if cfg.RedisEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		buf = queue.NewRedisBuffer(redisClient, queueKeyPrefix, cfg.Queue.Capacity, cfg.Queue.TTL)
		userCache = users.NewRedisCache(redisClient)
		writeLock = lock.NewRedis(redisClient, writeLockKey, writeLockLease)
		slog.InfoContext(ctx, "redis connected")
	}

	ids, err := id.NewGenerator(cfg.SnowflakeID, queueKeyPrefix)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create id generator", "error", err)
		os.Exit(1)
	}

	pruner := retention.NewPruner(db, cfg.Retention.MaxRows, cfg.Retention.Block)
	debugLog := debuglog.NewRecorder(db, pruner, cfg.Debug)
	notifier := slack.NewNotifier(cfg.Slack.BaseURL, cfg.Slack.BotToken, cfg.Slack.Channel, nil, debuglog.NewSlackLog(db, pruner))
	notionClient := notion.NewClient(cfg.Notion.BaseURL, cfg.Notion.Token, nil)

	classifier := offhours.NewClassifier(
		cfg.Hours.Location, cfg.Hours.StartHour, cfg.Hours.EndHour,
		offhours.NewCalendarOracle(cfg.Calendar.BaseURL, cfg.Calendar.APIKey, cfg.Calendar.CalendarID, nil),
		offhours.WithHolidayStore(db),
	)

	resolver := users.NewResolver(notionClient, userCache, cfg.UserCacheTTL, users.WithDebugLog(debugLog))
	eventQueue := queue.New(buf, ids, db, resolver, writeLock, queue.Config{
		LockTimeout: cfg.LockTimeout,
		Location:    cfg.Hours.Location,
		Debug:       debugLog,
	})
	drains := queue.NewDrainScheduler(cfg.Queue.DrainDelay, func(ctx context.Context) {
		_ = scheduler.RunTask(ctx, "drain", taskTimeout, func(ctx context.Context) error {
			eventQueue.Drain(ctx)
			return nil
		})
	})
	eventQueue.SetScheduler(drains)
	go drains.Run(ctx)

	aggregator := digest.NewAggregator(db, digest.NewCSVExporter(db, cfg.PublicBaseURL, cfg.Hours.Location), notifier, pruner, cfg.Hours.Location)
	mon := monitor.New(notionClient, notifier, cfg.Notion.WebhookID)

	var sched *scheduler.Scheduler
	if cfg.Tasks.SchedulerEnabled {
		sched = scheduler.New(cfg.Hours.Location)
		sched.DailyAt("digest", cfg.Hours.ReportHour, taskTimeout, func(ctx context.Context) error {
			_, err := aggregator.RunDaily(ctx)
			return err
		})
		sched.Every("health", 30*time.Minute, probeTimeout, func(ctx context.Context) error {
			mon.CheckHealth(ctx)
			return nil
		})
		sched.Every("resume", 6*time.Hour, probeTimeout, func(ctx context.Context) error {
			mon.ResumeIfPaused(ctx)
			return nil
		})
		sched.Start(ctx)
	}

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		DB:     db,
		Intake: handlers.NewIntake(classifier, eventQueue, debugLog),
		Tasks: handlers.Tasks{
			Queue:   eventQueue,
			Digest:  aggregator,
			Monitor: mon,
			Timeout: taskTimeout,
		},
		Events:  db,
		Exports: db,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      taskTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	drains.Stop()

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
