package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tokenauth/config"
	"github.com/upb/tokenauth/handlers"
	"github.com/upb/tokenauth/middleware"
	"github.com/upb/tokenauth/password"
	"github.com/upb/tokenauth/repositories"
	"github.com/upb/tokenauth/repositories/memory"
	"github.com/upb/tokenauth/repositories/postgres"
	"github.com/upb/tokenauth/repositories/redisstore"
	"github.com/upb/tokenauth/services"
	"github.com/upb/tokenauth/token"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Identity store. DB and RepoFactory are set only for the postgres
	// driver, Redis only for the redis driver.
	Users        repositories.UserRepository
	DB           *postgres.DB
	RepoFactory  *postgres.RepositoryFactory
	Redis        *redis.Client
	HealthChecks map[string]repositories.HealthChecker

	// Credentials and tokens
	Hasher password.Hasher
	Codec  *token.Codec

	// Services
	Identities *services.IdentityService
	Auth       *services.AuthService

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	HealthHandler  *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:       cfg,
		Logger:       logger,
		HealthChecks: make(map[string]repositories.HealthChecker),
	}

	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", zap.String("warning", warning))
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize identity store: %w", err)
	}

	if err := deps.initTokens(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP()

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Driver),
		zap.String("key_strategy", cfg.Token.KeyStrategy),
		zap.Duration("token_ttl", cfg.Token.TTL))
	return deps, nil
}

// initStore opens the identity store selected by STORE_DRIVER
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg.Store.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		d.RepoFactory = factory
		d.DB = factory.GetDB()
		d.Users = factory.NewRepositories().Users
		d.HealthChecks["database"] = d.DB

		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Store.Database.LogString()))

	case config.StoreDriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.Store.Redis, d.Logger)
		if err != nil {
			return err
		}
		users := redisstore.NewUserRepository(client, cfg.Store.Redis.KeyPrefix, d.Logger)

		d.Redis = client
		d.Users = users
		d.HealthChecks["redis"] = users

	case config.StoreDriverMemory, "":
		d.Users = memory.NewUserRepository(d.Logger)
		d.Logger.Info("using in-memory identity store")

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

// initTokens builds the password hasher and the token codec. The signing
// key is obtained here, once, and held by the codec for the process lifetime.
func (d *Dependencies) initTokens(cfg *config.Config) error {
	hasher, err := password.NewBcrypt(cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	source, err := token.NewKeySource(cfg.Token.KeyStrategy, cfg.Token.SigningSecret)
	if err != nil {
		return err
	}

	codec, err := token.NewCodec(token.Config{
		TTL:    cfg.Token.TTL,
		Issuer: cfg.Token.Issuer,
	}, source)
	if err != nil {
		return err
	}

	d.Hasher = hasher
	d.Codec = codec

	d.Logger.Info("token codec initialized",
		zap.String("key_strategy", cfg.Token.KeyStrategy),
		zap.Int("bcrypt_cost", hasher.Cost()))
	return nil
}

// initServices builds the identity and auth services and seeds demo users when enabled
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Identities = services.NewIdentityService(d.Users, d.Hasher, d.Logger)

	auth, err := services.NewAuthService(d.Identities, d.Codec, d.Hasher, d.Logger)
	if err != nil {
		return err
	}
	d.Auth = auth

	if cfg.SeedDemoUsers {
		created, err := d.Identities.Seed(ctx, services.DemoUsers())
		if err != nil {
			return fmt.Errorf("failed to seed demo users: %w", err)
		}
		fields := []zap.Field{zap.Int("created", created)}
		if users, ok := d.Users.(*memory.UserRepository); ok {
			fields = append(fields, zap.Int("stored", users.Count()))
		}
		d.Logger.Info("demo users seeded", fields...)
	}
	return nil
}

func (d *Dependencies) initHTTP() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Codec, d.Identities, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.Auth, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.HealthChecks, d.Logger)
}

// Close releases store connections
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	d.Logger.Info("dependencies closed")
	return nil
}
