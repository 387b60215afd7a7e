package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tokenauth/config"
	"github.com/upb/tokenauth/repositories/memory"
	"github.com/upb/tokenauth/repositories/redisstore"
	"github.com/upb/tokenauth/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Store: config.StoreConfig{
			Driver: config.StoreDriverMemory,
		},
		Token: config.TokenConfig{
			TTL:         time.Hour,
			KeyStrategy: token.KeyStrategyRandom,
		},
		Password:      config.PasswordConfig{BcryptCost: bcrypt.MinCost},
		SeedDemoUsers: true,
	}
	cfg.Observability.LogLevel = "info"
	return cfg
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory store with seeded users", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.IsType(t, &memory.UserRepository{}, deps.Users)
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Redis)
		assert.Empty(t, deps.HealthChecks)

		assert.NotNil(t, deps.Codec)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.HealthHandler)

		result, err := deps.Auth.Login(ctx, "admin", "admin123")
		require.NoError(t, err)
		subject, err := deps.Codec.ExtractSubject(result.Token)
		require.NoError(t, err)
		assert.Equal(t, "admin", subject)
	})

	t.Run("startup logs seeding and hashing settings", func(t *testing.T) {
		ctx := context.Background()
		core, logs := observer.New(zap.InfoLevel)

		_, err := NewDependencies(ctx, testConfig(t), zap.New(core))
		require.NoError(t, err)

		seeded := logs.FilterMessage("demo users seeded").All()
		require.Len(t, seeded, 1)
		assert.Equal(t, int64(2), seeded[0].ContextMap()["created"])
		assert.Equal(t, int64(2), seeded[0].ContextMap()["stored"])

		codec := logs.FilterMessage("token codec initialized").All()
		require.Len(t, codec, 1)
		assert.Equal(t, int64(bcrypt.MinCost), codec[0].ContextMap()["bcrypt_cost"])
	})

	t.Run("seeding disabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.SeedDemoUsers = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		exists, err := deps.Identities.ExistsByUsername(ctx, "admin")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("static key survives rebuild", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Token.KeyStrategy = token.KeyStrategyStatic
		cfg.Token.SigningSecret = "0123456789abcdef0123456789abcdef"

		first, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		issued, err := first.Codec.Issue("admin", time.Now())
		require.NoError(t, err)

		second, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = second.Codec.Decode(issued.Value)
		assert.NoError(t, err)
	})

	t.Run("random key does not survive rebuild", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		first, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		issued, err := first.Codec.Issue("admin", time.Now())
		require.NoError(t, err)

		second, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = second.Codec.Decode(issued.Value)
		assert.ErrorIs(t, err, token.ErrSignature)
	})

	t.Run("redis store", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Driver = config.StoreDriverRedis
		cfg.Store.Redis = config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "apptest"}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.IsType(t, &redisstore.UserRepository{}, deps.Users)
		assert.NotNil(t, deps.Redis)
		assert.Contains(t, deps.HealthChecks, "redis")
		assert.True(t, mr.Exists("apptest:user:admin"))

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis unavailable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.Store.Driver = config.StoreDriverRedis
		cfg.Store.Redis = config.RedisConfig{Addr: addr}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
	})

	t.Run("invalid bcrypt cost", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Password.BcryptCost = 99

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Driver = "cassandra"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
	})
}
