package container

import (
	"context"
	"fmt"

	"invoice-api/internal/config"
	"invoice-api/internal/repository"
	"invoice-api/internal/service"
	"invoice-api/internal/service/auth"
	"invoice-api/internal/service/cache"
	"invoice-api/internal/service/identity"
	"invoice-api/internal/service/metrics"
	"invoice-api/internal/service/ratelimit"
	"invoice-api/internal/service/threat"
	"invoice-api/pkg/clock"
	"invoice-api/pkg/database"
	"invoice-api/pkg/logger"
	"invoice-api/pkg/redis"
)

// Services groups the request governance components
type Services struct {
	Auth       service.AuthService
	Identity   *identity.Extractor
	Limiter    *ratelimit.Limiter
	Metrics    *metrics.Aggregator
	Collectors *metrics.Collectors
	Threats    *threat.Scanner
	// Users is nil when no database is configured
	Users *cache.UserDirectory
}

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	Clock       clock.Clock
	DB          *database.PostgresDB
	RedisClient *redis.Client
	Services    *Services
}

// New creates a new dependency injection container. The database is
// optional but, once configured, must be reachable. Redis is best effort.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	clk := clock.NewSystem()

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, logger.Named("redis").Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without it")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without Redis")
	}

	collectors := metrics.NewCollectors()
	aggregator := metrics.NewAggregator(cfg.Metrics, clk, logger.Named("metrics").Logger,
		metrics.WithCollectors(collectors))

	scanner, err := threat.NewScanner(cfg.Threat, clk, logger.Named("threat").Logger)
	if err != nil {
		closeRedis(redisClient)
		return nil, fmt.Errorf("failed to create threat scanner: %w", err)
	}

	services := &Services{
		Auth:       auth.NewService(cfg.JWTSecret, logger.Named("auth")),
		Identity:   identity.NewExtractor(cfg.TrustProxyHeaders),
		Limiter:    ratelimit.New(cfg.RateLimit, clk, logger.Named("ratelimit").Logger),
		Metrics:    aggregator,
		Collectors: collectors,
		Threats:    scanner,
	}

	var db *database.PostgresDB
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL, database.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
		})
		if err != nil {
			closeRedis(redisClient)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		userRepo := repository.NewUserRepository(db.Pool, aggregator)
		services.Users = cache.NewUserDirectory(userRepo, cfg.Cache, clk, logger.Named("cache").Logger)
		logger.Info("Database connection established")
	} else {
		logger.Info("Database URL not configured, /api/me falls back to token claims")
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Clock:       clk,
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	}, nil
}

// Start launches the background sweeps of every stateful component
func (c *Container) Start(ctx context.Context) {
	c.Services.Limiter.Start(ctx)
	c.Services.Threats.Start(ctx)
	if c.Services.Users != nil {
		c.Services.Users.Start(ctx)
	}
}

// Stop halts the background sweeps. It does not close connections.
func (c *Container) Stop() {
	c.Services.Limiter.Stop()
	c.Services.Threats.Stop()
	if c.Services.Users != nil {
		c.Services.Users.Stop()
	}
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetUserDirectory returns the cached user directory, or a nil interface
// when no database is configured
func (c *Container) GetUserDirectory() service.UserDirectory {
	if c.Services.Users == nil {
		return nil
	}
	return c.Services.Users
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HasDatabase returns true if the database pool is available
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

func closeRedis(client *redis.Client) {
	if client != nil {
		_ = client.Close()
	}
}
