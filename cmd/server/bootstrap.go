package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/tippster/internal/api"
	"github.com/charlesng35/tippster/internal/app"
	"github.com/charlesng35/tippster/internal/app/maintenance"
	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/auth/providers"
	"github.com/charlesng35/tippster/internal/cache"
	"github.com/charlesng35/tippster/internal/database"
	"github.com/charlesng35/tippster/internal/events"
	"github.com/charlesng35/tippster/internal/middleware"
	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/internal/monitoring/checks"
	"github.com/charlesng35/tippster/internal/services"
	"github.com/charlesng35/tippster/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Store      cache.Store
	Publisher  events.Publisher
	Tokens     *iauth.TokenService
	Monitoring *monitoring.Module
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(redisErr))
		} else {
			stack.Redis = client
			stack.Store = cache.NewRedisStore(client)
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Publisher = events.NopPublisher{}
	if cfg.Events.Kafka.Enabled {
		publisher, kafkaErr := events.NewKafkaPublisher(cfg.Events.KafkaPublisherConfig(), logger.WithModule("events"))
		if kafkaErr != nil {
			return nil, fmt.Errorf("initialise kafka publisher: %w", kafkaErr)
		}
		stack.Publisher = publisher
		log.Info("kafka publisher ready", zap.String("topic", cfg.Events.Kafka.Topic))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	tracker, err := iauth.NewSessionTracker(stack.DB, nil, logger.WithModule("sessions"))
	if err != nil {
		return nil, fmt.Errorf("initialise session tracker: %w", err)
	}

	tokenCfg := cfg.Auth.TokenServiceConfig()
	if stack.Redis != nil {
		tokenCfg.Cache = iauth.NewRefreshCache(stack.Store)
	}
	tokenCfg.Publisher = stack.Publisher
	tokenCfg.Logger = logger.WithModule("tokens")
	stack.Tokens, err = iauth.NewTokenService(stack.DB, jwtSvc, tracker, tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Publisher = stack.Publisher
	localCfg.Logger = logger.WithModule("local_auth")
	local, err := providers.NewLocalProvider(stack.DB, localCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	resetCfg := cfg.Auth.PasswordResetServiceConfig()
	resetCfg.Publisher = stack.Publisher
	resetCfg.Logger = logger.WithModule("password_reset")
	resets, err := iauth.NewPasswordResetService(stack.DB, stack.Tokens, resetCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise password reset service: %w", err)
	}

	users, err := services.NewUserService(stack.DB, stack.Tokens, stack.Publisher, logger.WithModule("users"))
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	stack.Monitoring = monitoring.NewModule()
	registerHealthChecks(stack, cfg)

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Tokens,
			maintenance.WithResetPurger(resets),
			maintenance.WithCachePurger(dbStore),
			maintenance.WithJobTracker(stack.Monitoring.Jobs()),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithResetSchedule(cfg.Maintenance.ResetSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(cfg, api.Services{
		DB:         stack.DB,
		Tokens:     stack.Tokens,
		Tracker:    tracker,
		Local:      local,
		Resets:     resets,
		Users:      users,
		RateStore:  middleware.NewCacheRateStore(stack.Store),
		Monitoring: stack.Monitoring,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func registerHealthChecks(stack *runtimeStack, cfg *app.Config) {
	health := stack.Monitoring.Health()
	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Component: "process", Status: monitoring.StatusUp}
	}))

	health.RegisterReadiness(checks.Database(stack.DB, 0))
	if stack.Redis != nil {
		health.RegisterReadiness(checks.Redis(stack.Redis, cfg.Cache.Redis.Timeout))
	}
	if cfg.Events.Kafka.Enabled {
		health.RegisterReadiness(checks.Kafka(cfg.Events.KafkaPublisherConfig().Brokers, 0))
	}
	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(stack.Monitoring.Jobs(), 0))
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		// Wait for running jobs before the final sweep.
		if done := s.Cleaner.Stop().Done(); done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("event publisher shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Bootstrap.SeedOptions()); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
