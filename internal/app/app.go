package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/retail-banking/internal/api"
	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/config"
	"github.com/ayo6706/retail-banking/internal/db"
	"github.com/ayo6706/retail-banking/internal/idempotency"
	"github.com/ayo6706/retail-banking/internal/observability"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/ayo6706/retail-banking/internal/service"
	"github.com/ayo6706/retail-banking/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type accountStore interface {
	service.QueryStore
	Ping(ctx context.Context) error
}

// Run bootstraps the HTTP server and reconciliation worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	var (
		sessions    auth.SessionStore
		limiter     auth.PinLimiter
		idemBackend idempotency.Backend
	)
	if redisClient != nil {
		sessions = auth.NewRedisSessionStore(redisClient, cfg.SessionTTL)
		limiter = auth.NewRedisPinLimiter(redisClient, cfg.PinMaxAttempts, cfg.PinLockoutWindow)
		idemBackend = idempotency.NewRedisBackend(redisClient)
	} else {
		logger.Warn("REDIS_URL not set; sessions, PIN attempts and idempotency keys are kept in process memory")
		sessions = auth.NewMemorySessionStore(cfg.SessionTTL)
		limiter = auth.NewMemoryPinLimiter(cfg.PinMaxAttempts, cfg.PinLockoutWindow)
		idemBackend = idempotency.NewMemoryBackend()
	}

	hasher := auth.NewHasher(auth.DefaultParams)
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}

	auditSvc := service.NewAuditService(store)
	accountSvc := service.NewAccountService(store, hasher, auditSvc)
	reconSvc := service.NewReconciliationService(store)

	if cfg.BootstrapAdmin.Enabled() {
		admin, err := accountSvc.EnsureAdmin(ctx, service.BootstrapAdminInput{
			Username: cfg.BootstrapAdmin.Username,
			Email:    cfg.BootstrapAdmin.Email,
			Password: cfg.BootstrapAdmin.Password,
			PIN:      cfg.BootstrapAdmin.PIN,
		})
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		logger.Info("bootstrap admin ready", zap.String("account_id", admin.ID.String()), zap.String("username", admin.Username))
	}

	reconWorker := worker.NewReconciliationWorker(reconSvc).WithInterval(cfg.ReconciliationInterval)
	stopWorker := reconWorker.Run(ctx)

	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}
	router := api.NewRouter(api.Dependencies{
		Logger:              logger,
		Store:               store,
		Redis:               redisCmd,
		Authenticator:       auth.Chain(auth.NewTokenAuth(tokens, store.Queries()), auth.NewSessionAuth(sessions, store.Queries())),
		Idempotency:         idempotency.NewStore(idemBackend, cfg.IdempotencyTTL),
		Auth:                service.NewAuthService(store, hasher, tokens, sessions),
		Accounts:            accountSvc,
		Transfers:           service.NewTransferService(store, hasher, limiter, auditSvc),
		Ledger:              service.NewLedgerService(store, auditSvc),
		Reconciliation:      reconSvc,
		Audit:               auditSvc,
		PublicRateLimitRPS:  cfg.PublicRateLimitRPS,
		AuthRateLimitRPS:    cfg.AuthRateLimitRPS,
		SessionCookieSecure: cfg.SessionCookieSecure,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopWorker()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping reconciliation worker")
	stopWorker()

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the configured account store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config) (accountStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		zap.L().Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return repository.NewStore(pool), pool.Close, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
