package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rtchat/internal/chat"
	"rtchat/internal/config"
	"rtchat/internal/domain"
	"rtchat/internal/httpserver"
	"rtchat/internal/presence"
	"rtchat/internal/security"
	mongostore "rtchat/internal/store/mongo"
	"rtchat/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	users, messages, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	registry := presence.NewRegistry()
	router := chat.NewRouter(users, registry)
	engine := chat.NewEngine(messages, users, registry, router, logger,
		cfg.HistoryPageSize, cfg.HistoryPageMaxSize)

	handler := httpserver.NewRouter(cfg, logger, users, registry, engine, tokenSvc, passwordHasher)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore builds the repositories for the configured backend. The returned
// close func releases the underlying connection.
func openStore(cfg *config.Config) (domain.UserRepository, domain.MessageRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, err := mongostore.Open(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, nil, nil, err
		}
		closer := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		}
		return mongostore.NewUserRepo(db), mongostore.NewMessageRepo(db), closer, nil

	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewUserRepo(db), sqlite.NewMessageRepo(db), func() { db.Close() }, nil
	}
}
