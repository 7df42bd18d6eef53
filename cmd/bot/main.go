package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/lawclinic/helpdesk-bot/internal/bot"
	"github.com/lawclinic/helpdesk-bot/internal/config"
	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/db/mongostore"
	"github.com/lawclinic/helpdesk-bot/internal/id"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to an env file loaded before reading the environment")
	storeDriver := pflag.String("store", "", "storage driver, overrides STORE_DRIVER (sqlite or mongo)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fatal("failed to load configuration", err)
	}
	if *storeDriver != "" {
		cfg.StoreDriver = *storeDriver
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	logger.Setup(os.Stdout, cfg.IsProduction(), cfg.LogLevel)
	slog.Info("starting helpdesk bot", "env", cfg.Env, "store", cfg.StoreDriver)

	if err := id.Init(cfg.NodeID); err != nil {
		fatal("failed to initialize id generator", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fatal("failed to initialize storage", err)
	}
	defer store.Close()

	trackers, closeTrackers, err := openTrackers(ctx, cfg)
	if err != nil {
		fatal("failed to initialize conversation state", err)
	}
	defer closeTrackers()

	trans, err := translator.New(translator.Config{DefaultLocale: cfg.DefaultLocale})
	if err != nil {
		fatal("failed to initialize translator", err)
	}

	telegramBot, err := bot.New(bot.Config{
		Token:       cfg.TelegramToken,
		AdminChat:   cfg.AdminChat,
		StudentChat: cfg.StudentChat,
	}, store, trackers, trans)
	if err != nil {
		fatal("failed to initialize bot", err)
	}

	if cfg.Retention > 0 {
		go purge(ctx, store, cfg.Retention)
	}

	slog.Info("bot is running, press Ctrl+C to stop")

	if err := telegramBot.Run(ctx); err != nil {
		fatal("bot stopped", err)
	}
	slog.Info("bot stopped")
}

func openStore(ctx context.Context, cfg config.Config) (db.Store, error) {
	if cfg.StoreDriver == config.StoreMongo {
		store, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := db.New(cfg.DBPath, cfg.DBKey)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openTrackers keeps conversation state in Redis when REDIS_URL is set and
// in process memory otherwise.
func openTrackers(ctx context.Context, cfg config.Config) (convo.Trackers, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, conversation state is kept in memory")
		return convo.NewMemoryTrackers(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return convo.Trackers{}, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return convo.Trackers{}, nil, fmt.Errorf("ping redis: %w", err)
	}
	return convo.NewRedisTrackers(client, cfg.StateTTL), func() { client.Close() }, nil
}

// purge deletes finished requests older than retention once an hour.
func purge(ctx context.Context, store db.Store, retention time.Duration) {
	ctx = logger.WithFields(ctx, logger.Fields{Component: "purge"})
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeRequests(ctx, retention)
			if err != nil {
				slog.ErrorContext(ctx, "error purging old requests", "error", err)
			} else if purged > 0 {
				slog.InfoContext(ctx, "purged old requests", "count", purged)
			}
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
