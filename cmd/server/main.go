package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/cohortchat/internal/api"
	"github.com/lalith-99/cohortchat/internal/auth"
	"github.com/lalith-99/cohortchat/internal/config"
	"github.com/lalith-99/cohortchat/internal/db"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/observ"
	"github.com/lalith-99/cohortchat/internal/realtime"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/repository/memory"
	"github.com/lalith-99/cohortchat/internal/repository/postgres"
	"github.com/lalith-99/cohortchat/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	g, gctx := errgroup.WithContext(ctx)

	registry := realtime.NewRegistry()
	var publisher realtime.Publisher = realtime.LocalPublisher{Registry: registry}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		broker := realtime.NewRedisBroker(client, registry, logger)
		publisher = broker
		g.Go(func() error { return broker.Run(gctx) })
	}

	dispatcher := realtime.NewDispatcher(publisher)
	messages := service.NewMessageService(store, dispatcher, logger)
	users := service.NewUserService(store, cfg.TeacherEmailDomain, logger)

	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || middleware.OriginAllowed(cfg.AllowedOrigins, origin)
	}
	gateway := realtime.NewGateway(registry, store, messages, cfg.JWTSecret, checkOrigin, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, 2*time.Minute)
		defer limiter.Stop()
		go limiter.Run(30 * time.Second)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterDeps{
		Chats:    service.NewChatService(store, dispatcher, logger),
		Messages: messages,
		Users:    users,
		Groups:   service.NewGroupService(store, dispatcher, logger),
		Google:   auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		Gateway:  gateway,
		Auth: api.AuthConfig{
			JWTSecret:    cfg.JWTSecret,
			TokenTTL:     cfg.TokenTTL,
			FrontendURL:  cfg.FrontendURL,
			SecureCookie: cfg.IsProduction(),
		},
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
		Health:         health,
		AccessLog:      !cfg.IsProduction(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting cohortchat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("redis", cfg.RedisURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the configured repositories, a storage health check
// (nil for the memory store) and a cleanup func.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using the in-memory store; data is lost on restart")
		return memory.New(), nil, func() {}, nil
	}

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return repository.Store{}, nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	database, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return repository.Store{}, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.NewStore(database.Pool()), database.Health, database.Close, nil
}
