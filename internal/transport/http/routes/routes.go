package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zvaradi/flipgate/internal/infra/config"
	"github.com/zvaradi/flipgate/internal/transport/http/handlers"
	"github.com/zvaradi/flipgate/internal/transport/http/middleware"
	"github.com/zvaradi/flipgate/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Activation *usecase.ActivationService
	Issuer     *usecase.TokenIssuer
	Gate       *usecase.ContentGate
	Cache      *usecase.CacheManager
	Admin      *usecase.AdminService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(middleware.Identity(deps.Config.Session.UIDCookieName()))

	if httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err != nil {
		deps.Logger.Warn("failed to register HTTP metrics", zap.Error(err))
	} else {
		r.Use(httpMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		if deps.Services.Activation != nil {
			activationHandler := handlers.NewActivationHandler(
				deps.Services.Activation,
				deps.Config.Session.UIDCookieName(),
				deps.Config.Session.CookieTTL,
			)
			activationHandler.RegisterRoutes(api,
				buildRateLimit(deps, "activation_validate_ip", deps.Config.RateLimit.ValidateMaxAttempts),
				buildRateLimit(deps, "activation_activate_ip", deps.Config.RateLimit.ActivateMaxAttempts),
			)
		}

		if deps.Services.Activation != nil && deps.Services.Issuer != nil {
			sessionHandler := handlers.NewSessionHandler(
				deps.Services.Activation,
				deps.Services.Issuer,
				deps.Config.Session.UIDCookieName(),
			)
			sessionGroup := api.Group("")
			sessionGroup.Use(middleware.RequireIdentity())
			sessionHandler.RegisterRoutes(sessionGroup)
		}

		if deps.Services.Gate != nil {
			handlers.NewPagesHandler(deps.Services.Gate).RegisterRoutes(api)
		}

		if deps.Services.Cache != nil {
			handlers.NewAssetsHandler(deps.Services.Cache).RegisterRoutes(api)
		}

		if deps.Services.Admin != nil {
			adminHandler := handlers.NewAdminHandler(deps.Services.Admin)
			adminHandler.RegisterSupportRoutes(api)

			adminGroup := api.Group("/admin")
			if rl := buildRateLimit(deps, "admin_ip", deps.Config.RateLimit.AdminMaxAttempts); len(rl) > 0 {
				adminGroup.Use(rl...)
			}
			adminHandler.RegisterRoutes(adminGroup)
		}
	}

	return r
}

func buildRateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
