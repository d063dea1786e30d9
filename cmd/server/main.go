// Command server runs the LibrarySync core: the HTTP/websocket listener,
// the sync job dispatcher, and the background scheduler in one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/config"
	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/platform"
	"github.com/jimsantora/librarysync/internal/platform/steam"
	"github.com/jimsantora/librarysync/internal/progress"
	"github.com/jimsantora/librarysync/internal/queue"
	"github.com/jimsantora/librarysync/internal/ratelimit"
	"github.com/jimsantora/librarysync/internal/realtime"
	"github.com/jimsantora/librarysync/internal/storage"
	"github.com/jimsantora/librarysync/internal/sync"
	"github.com/jimsantora/librarysync/internal/syncstate"
	"github.com/jimsantora/librarysync/internal/web"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.WithField("environment", cfg.Server.Environment).Info("starting librarysync")

	db, err := storage.NewDatabase(cfg.GetDatabaseConfig())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("failed to migrate database")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}

	catalog := storage.NewCatalog(db)
	if err := seedSteamPlatform(catalog, cfg); err != nil {
		logger.WithError(err).Fatal("failed to seed steam platform")
	}

	limiter := ratelimit.New(rdb)
	state := syncstate.New(rdb)
	hub := realtime.NewHub()
	go hub.Run()
	tracker := progress.New(rdb, hub)
	jobQueue := queue.New(rdb)

	registry := platform.NewRegistry()
	registry.Register(steam.New(steam.Config{APIKey: cfg.Platform.Steam.APIKey, Logger: logger}))

	worker := sync.New(sync.Config{
		Catalog:  catalog,
		State:    state,
		Tracker:  tracker,
		Limiter:  limiter,
		Registry: registry,
		Queue:    jobQueue,
		Logger:   logger,
		Policies: map[string]ratelimit.Policy{"steam": ratelimit.SteamPolicy},
	})
	dispatcher := sync.NewDispatcher(jobQueue, catalog, worker, logger)

	scheduler := sync.NewScheduler(sync.SchedulerConfig{
		Enabled:         cfg.Sync.AutoSyncEnabled,
		CheckInterval:   cfg.Sync.AutoSyncCheckInterval,
		SyncInterval:    cfg.Sync.AutoSyncInterval,
		QuietHoursStart: cfg.Sync.QuietHoursStart,
		QuietHoursEnd:   cfg.Sync.QuietHoursEnd,
	}, catalog, jobQueue, logger)

	handlers := web.NewHandlers(catalog, state, tracker, jobQueue, logger)
	router := web.NewRouter(handlers, hub, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go jobQueue.RunScheduler(ctx, 10*time.Second)
	go dispatcher.Run(ctx)
	scheduler.Start(ctx)

	go func() {
		logger.WithField("address", cfg.Server.Address).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown did not complete cleanly")
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// seedSteamPlatform ensures the Steam platform catalog row exists so
// libraries can be created against it (§3: Platform is an immutable
// catalog row this system knows how to sync from).
func seedSteamPlatform(catalog *storage.Catalog, cfg *config.Config) error {
	return catalog.UpsertPlatform(&models.Platform{
		Code:         "steam",
		Name:         "Steam",
		APIAvailable: cfg.Platform.Steam.APIKey != "",
		BaseURL:      "https://store.steampowered.com",
	})
}
