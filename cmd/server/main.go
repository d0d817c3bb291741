// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/cache"
	"github.com/piloto-life/Gomoku/internal/config"
	"github.com/piloto-life/Gomoku/internal/database"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/handlers"
	"github.com/piloto-life/Gomoku/internal/hub"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo     game.Repository = game.NewMemoryRepository()
		results  hub.ResultRecorder
		users    handlers.UserStore
		profiles auth.ProfileStore
		actions  hub.ActionSink
	)

	if cfg.DatabaseURL != "" {
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

		repo = database.NewGameRepository(store)
		results = store
		users = store
		profiles = store
		logger.Info("connected to postgres")
	} else {
		logger.Warn("DATABASE_URL not set, games are kept in memory and accounts are guest only")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Warnf("action log disabled: %v", err)
		} else {
			defer rdb.Close()
			actions = cache.NewPublisher(rdb, cfg.ActionQueue)
			logger.WithField("queue", cfg.ActionQueue).Info("publishing game actions to redis")
		}
	}

	authenticator, err := newAuthenticator(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to set up token signing: %v", err)
	}
	resolver := auth.NewResolver(authenticator, profiles)

	games := game.NewGameStore(repo, cfg.BoardSize, logger)
	h := hub.New(games, actions, results, hub.Options{
		ForfeitOnDisconnect: cfg.ForfeitOnDisconnect,
		AbandonAfter:        cfg.AbandonAfter,
	}, logger)

	srv := handlers.NewServer(h, resolver, users, handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Conn: ws.Options{
			SendBuffer:   cfg.SendBuffer,
			PingInterval: cfg.PingInterval,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exited: %v", err)
		}
	}

	h.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}

// newAuthenticator loads the signing keys when both paths are configured and
// otherwise generates a key pair for this process.
func newAuthenticator(cfg *config.Config, logger *logrus.Logger) (*auth.Authenticator, error) {
	ttl, err := cfg.TokenTTL()
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.LoadAuthenticator(cfg.PrivateKeyPath, cfg.PublicKeyPath, ttl)
	}
	if cfg.IsProduction() {
		logger.Warn("no JWT key paths configured, tokens will not survive a restart")
	}
	return auth.NewAuthenticator(ttl)
}
