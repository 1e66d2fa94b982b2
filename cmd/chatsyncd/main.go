// Command chatsyncd runs the conversation sync engine for one user:
// it preloads the conversation list and read markers, then applies the
// live event stream until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iolipix/jurinapse-sync/engine"
	"github.com/iolipix/jurinapse-sync/httpapi"
	"github.com/iolipix/jurinapse-sync/postgres"
	"github.com/iolipix/jurinapse-sync/redis"
	"github.com/iolipix/jurinapse-sync/socket"
)

type config struct {
	APIURL      string
	SocketURL   string
	UserID      string
	Token       string
	RedisAddr   string
	PostgresDSN string
}

func loadConfig() config {
	return config{
		APIURL:      env("CHATSYNC_API_URL", "http://localhost:5000/api"),
		SocketURL:   env("CHATSYNC_SOCKET_URL", "ws://localhost:5000/ws"),
		UserID:      os.Getenv("CHATSYNC_USER_ID"),
		Token:       os.Getenv("CHATSYNC_TOKEN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment", "error", err.Error())
	}
	cfg := loadConfig()
	if cfg.UserID == "" {
		logger.Error("CHATSYNC_USER_ID is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		markers engine.MarkerStore
		err     error
	)
	switch {
	case cfg.PostgresDSN != "":
		markers, err = postgres.Connect(ctx, cfg.PostgresDSN)
	case cfg.RedisAddr != "":
		markers, err = redis.Connect(ctx, cfg.RedisAddr)
	default:
		logger.Error("Set REDIS_ADDR or POSTGRES_DSN for read marker storage")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Could not connect marker store", "error", err.Error())
		os.Exit(1)
	}

	channel, err := socket.Dial(ctx, logger, cfg.SocketURL, cfg.Token)
	if err != nil {
		logger.Error("Could not connect event channel", "error", err.Error())
		os.Exit(1)
	}
	defer channel.Close()

	client := httpapi.New(logger, cfg.APIURL, cfg.Token)
	eng := engine.New(logger, client, channel, markers, cfg.UserID)

	eng.Preload(ctx)
	logger.Info("Sync engine running", "user_id", cfg.UserID)

	if err := channel.Listen(ctx, eng.Apply); err != nil && ctx.Err() == nil {
		logger.Error("Event channel closed", "error", err.Error())
		os.Exit(1)
	}
}
