// cmd/historian/main.go drains the redis action log into postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/piloto-life/Gomoku/internal/cache"
	"github.com/piloto-life/Gomoku/internal/config"
	"github.com/piloto-life/Gomoku/internal/database"
	"github.com/piloto-life/Gomoku/internal/historian"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.NewLogger()

	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Fatal("historian needs both DATABASE_URL and REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatalf("migrations failed: %v", err)
		}
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	store := database.NewStore(pool, logger)
	defer store.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.New(rdb, store, historian.Options{
		Queue:         cfg.ActionQueue,
		BatchSize:     cfg.Historian.BatchSize,
		FlushInterval: cfg.Historian.FlushInterval,
		Inactivity:    cfg.Historian.Inactivity,
	}, logger)

	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian exited: %v", err)
	}
}
