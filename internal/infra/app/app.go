package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/assets"
	"github.com/zvaradi/flipgate/internal/infra/config"
	"github.com/zvaradi/flipgate/internal/infra/database"
	"github.com/zvaradi/flipgate/internal/infra/identity"
	kafkainfra "github.com/zvaradi/flipgate/internal/infra/kafka"
	"github.com/zvaradi/flipgate/internal/infra/logger"
	"github.com/zvaradi/flipgate/internal/infra/origin"
	redisinfra "github.com/zvaradi/flipgate/internal/infra/redis"
	"github.com/zvaradi/flipgate/internal/infra/retry"
	"github.com/zvaradi/flipgate/internal/infra/security"
	"github.com/zvaradi/flipgate/internal/infra/telemetry"
	postgresrepo "github.com/zvaradi/flipgate/internal/repository/postgres"
	redisrepo "github.com/zvaradi/flipgate/internal/repository/redis"
	"github.com/zvaradi/flipgate/internal/transport/http/middleware"
	"github.com/zvaradi/flipgate/internal/transport/http/routes"
	"github.com/zvaradi/flipgate/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	cache  *usecase.CacheManager
	gate   *usecase.ContentGate
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	codes := postgresrepo.NewCodeRepository(pool)
	assetCache := redisrepo.NewAssetCacheRepository(redisClient.Client(), cfg.Redis.CachePrefix)
	sessionStore := redisrepo.NewSessionRepository(redisClient.Client(), cfg.Redis.SessionPrefix, 0)
	tokenStore := redisrepo.NewTokenRepository(redisClient.Client(), cfg.Redis.TokenPrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), "flipgate:rate-limit", rateLimitWindow*2)
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	identityProvider, err := identity.NewAnonymousProvider(cfg.Identity, cfg.App.Name, log)
	if err != nil {
		closeInfra(pool, redisClient)
		return nil, fmt.Errorf("init identity provider: %w", err)
	}

	deriver, err := buildDeriver(cfg.Token)
	if err != nil {
		closeInfra(pool, redisClient)
		return nil, fmt.Errorf("init token deriver: %w", err)
	}

	originClient, err := origin.NewClient(cfg.Cache, log)
	if err != nil {
		closeInfra(pool, redisClient)
		return nil, fmt.Errorf("init origin client: %w", err)
	}

	manifest, err := assets.LoadManifest(cfg.Cache)
	if err != nil {
		closeInfra(pool, redisClient)
		return nil, fmt.Errorf("load asset manifest: %w", err)
	}

	activation := usecase.NewActivationService(codes, identityProvider, sessionStore, eventPublisher, usecase.ActivationConfig{
		ValidateTimeout: cfg.Activation.ValidateTimeout,
		CommitTimeout:   cfg.Activation.CommitTimeout,
		IdentityTimeout: cfg.Identity.Timeout,
		IdentityRetry:   retry.NewPolicy(cfg.Identity.RetryAttempts, cfg.Identity.RetryInterval),
	}, log).WithMetrics(metrics.Activation())

	issuer := usecase.NewTokenIssuer(deriver, tokenStore, cfg.Token.Host, cfg.Token.ValidityWindow, log)

	gate := usecase.NewContentGate(activation, issuer, originClient, usecase.GateConfig{
		EntryPage:          cfg.Gate.EntryPage,
		Freshness:          cfg.Gate.Freshness,
		RevalidateInterval: cfg.Gate.RevalidateInterval,
	}, log)

	cacheManager := usecase.NewCacheManager(assetCache, originClient, eventPublisher, manifest, usecase.CacheManagerConfig{
		SecondaryDelay:   cfg.Cache.SecondaryDelay,
		ShellURL:         cfg.Cache.ShellURL,
		OfflineURL:       cfg.Cache.OfflineURL,
		PassthroughHosts: cfg.Cache.PassthroughHosts,
		FontHosts:        cfg.Cache.FontHosts,
	}, log).WithMetrics(metrics.Cache())

	admin := usecase.NewAdminService(codes, cfg.Activation.MaxDevices, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Activation: activation,
			Issuer:     issuer,
			Gate:       gate,
			Cache:      cacheManager,
			Admin:      admin,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		cache:  cacheManager,
		gate:   gate,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	a.warmCache(ctx)
	a.gate.StartRevalidation(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting flipgate API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// warmCache installs the configured manifest into a fresh generation and
// promotes it. A broken origin must not keep the API from serving, so
// failures are logged and the previous generation, if any, stays active.
func (a *Application) warmCache(ctx context.Context) {
	if a.cache == nil {
		return
	}

	report, err := a.cache.Install(ctx)
	if err != nil {
		a.logger.Warn("cache install failed, serving without a fresh generation", zap.Error(err))
		return
	}
	a.logger.Info("cache generation installed",
		zap.String("generation", report.Generation),
		zap.Int("cached", len(report.Cached)),
		zap.Int("failed", len(report.Failed)),
		zap.Bool("shell_broken", report.ShellBroken()),
	)

	if err := a.cache.Activate(ctx); err != nil {
		a.logger.Warn("cache activation failed", zap.Error(err))
	}
}

func buildDeriver(cfg config.TokenSettings) (port.TokenDeriver, error) {
	switch cfg.Deriver {
	case "", "mix":
		return security.NewMixDeriver(), nil
	case "hmac":
		return security.NewHMACDeriver(cfg.Secret)
	default:
		return nil, fmt.Errorf("unknown token deriver %q", cfg.Deriver)
	}
}

func closeInfra(pool *pgxpool.Pool, redisClient *redisinfra.Client) {
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
