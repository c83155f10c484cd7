package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scuolanet/auth-api/internal/handler"
	"github.com/scuolanet/auth-api/internal/middleware"
	"github.com/scuolanet/auth-api/internal/repository"
	"github.com/scuolanet/auth-api/internal/service"
	"github.com/scuolanet/auth-api/pkg/cache"
	"github.com/scuolanet/auth-api/pkg/config"
	"github.com/scuolanet/auth-api/pkg/database"
	"github.com/scuolanet/auth-api/pkg/logger"
	corsmiddleware "github.com/scuolanet/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scuolanet/auth-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			// The denylist and rate limits degrade gracefully without Redis.
			logr.Sugar().Warnw("redis unavailable, denylist and rate limits disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Revoked rows are kept for audit; only rows expired past the retention
	// window get pruned.
	go pruneExpiredTokens(tokenRepo, logr)

	metricsSvc := service.NewMetricsService()
	codec := service.NewTokenCodec(cfg.JWT)
	authSvc := service.NewAuthService(userRepo, tokenRepo, cacheRepo, codec, validator.New(), logr, metricsSvc, cfg.JWT, cfg.Lockout)

	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	auth := r.Group(cfg.APIPrefix + "/auth")
	{
		loginMax, refreshMax := cfg.RateLimit.LoginMax, cfg.RateLimit.RefreshMax
		if !cfg.RateLimit.Enabled {
			loginMax, refreshMax = 0, 0
		}
		loginLimiter := middleware.RateLimit(cacheRepo, logr, "login", loginMax, cfg.RateLimit.Window)
		refreshLimiter := middleware.RateLimit(cacheRepo, logr, "refresh", refreshMax, cfg.RateLimit.Window)
		bearer := middleware.JWT(authSvc, cacheRepo)

		auth.POST("/login", loginLimiter, authHandler.Login)
		auth.POST("/refresh", refreshLimiter, authHandler.Refresh)
		auth.GET("/me", bearer, authHandler.Me)
		auth.POST("/logout", bearer, authHandler.Logout)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

const (
	tokenRetention = 30 * 24 * time.Hour
	pruneInterval  = 6 * time.Hour
)

func pruneExpiredTokens(tokens *repository.TokenRepository, logr *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		deleted, err := tokens.DeleteExpired(ctx, time.Now().UTC().Add(-tokenRetention))
		cancel()
		if err != nil {
			logr.Warn("refresh token pruning failed", zap.Error(err))
			continue
		}
		if deleted > 0 {
			logr.Info("pruned expired refresh tokens", zap.Int64("deleted", deleted))
		}
	}
}
