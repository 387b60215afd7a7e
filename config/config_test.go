package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
				assert.Equal(t, time.Hour, cfg.Token.TTL)
				assert.Equal(t, "random", cfg.Token.KeyStrategy)
				assert.Equal(t, 10, cfg.Password.BcryptCost)
				assert.False(t, cfg.SeedDemoUsers)
				assert.Equal(t, "info", cfg.Observability.LogLevel)
				assert.Equal(t, "json", cfg.Observability.LogFormat)
			},
		},
		{
			name: "postgres store from DB_* vars",
			envVars: map[string]string{
				"STORE_DRIVER": "postgres",
				"DB_HOST":      "db.example.com",
				"DB_PORT":      "5433",
				"DB_USER":      "auth",
				"DB_NAME":      "identities",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
				assert.Equal(t, "db.example.com", cfg.Store.Database.Host)
				assert.Equal(t, 5433, cfg.Store.Database.Port)
				assert.Equal(t, "identities", cfg.Store.Database.Database)
			},
		},
		{
			name: "postgres store from DATABASE_URL",
			envVars: map[string]string{
				"STORE_DRIVER": "POSTGRES",
				"DATABASE_URL": "postgres://auth:secret@db:5432/identities?sslmode=disable",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
				assert.Equal(t, "postgres://auth:secret@db:5432/identities?sslmode=disable", cfg.Store.Database.DSN())
				assert.Equal(t, "host=db port=5432 database=identities", cfg.Store.Database.LogString())
			},
		},
		{
			name: "redis store",
			envVars: map[string]string{
				"STORE_DRIVER":   "redis",
				"REDIS_ADDR":     "cache:6380",
				"REDIS_PASSWORD": "pw",
				"REDIS_DB":       "3",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
				assert.Equal(t, "cache:6380", cfg.Store.Redis.Addr)
				assert.Equal(t, "pw", cfg.Store.Redis.Password)
				assert.Equal(t, 3, cfg.Store.Redis.DB)
				assert.Equal(t, "tokenauth", cfg.Store.Redis.KeyPrefix)
			},
		},
		{
			name: "token settings",
			envVars: map[string]string{
				"TOKEN_TTL":            "15m",
				"TOKEN_ISSUER":         "tokenauth",
				"TOKEN_KEY_STRATEGY":   "static",
				"TOKEN_SIGNING_SECRET": strings.Repeat("s", 32),
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Minute, cfg.Token.TTL)
				assert.Equal(t, "tokenauth", cfg.Token.Issuer)
				assert.Equal(t, "static", cfg.Token.KeyStrategy)
			},
		},
		{
			name: "token TTL in milliseconds",
			envVars: map[string]string{
				"TOKEN_TTL": "86400000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 24*time.Hour, cfg.Token.TTL)
			},
		},
		{
			name: "custom timeouts and pool settings",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"DB_MAX_OPEN_CONNS":    "50",
				"DB_MAX_IDLE_CONNS":    "10",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 50, cfg.Store.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Store.Database.MaxIdleConns)
			},
		},
		{
			name: "CORS origins and seeding",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "https://app.example.com, https://admin.example.com",
				"SEED_DEMO_USERS":      "true",
				"LOG_LEVEL":            "debug",
				"LOG_FORMAT":           "text",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
				assert.True(t, cfg.SeedDemoUsers)
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "text", cfg.Observability.LogFormat)
			},
		},
		{
			name: "TLS configuration overrides",
			envVars: map[string]string{
				"TLS_ENABLED":   "true",
				"TLS_CERT_FILE": "/etc/ssl/certs/server.crt",
				"TLS_KEY_FILE":  "/etc/ssl/private/server.key",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, "/etc/ssl/certs/server.crt", cfg.Server.TLS.CertFile)
				assert.Equal(t, "/etc/ssl/private/server.key", cfg.Server.TLS.KeyFile)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "SERVER_PORT env var when PORT not set",
			envVars: map[string]string{
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "unknown store driver",
			envVars: map[string]string{
				"STORE_DRIVER": "mongo",
			},
			wantErr: true,
		},
		{
			name: "static key strategy without secret",
			envVars: map[string]string{
				"TOKEN_KEY_STRATEGY": "static",
			},
			wantErr: true,
		},
		{
			name: "static key strategy with short secret",
			envVars: map[string]string{
				"TOKEN_KEY_STRATEGY":   "static",
				"TOKEN_SIGNING_SECRET": "too-short",
			},
			wantErr: true,
		},
		{
			name: "TTL below one second",
			envVars: map[string]string{
				"TOKEN_TTL": "500ms",
			},
			wantErr: true,
		},
		{
			name: "bcrypt cost out of range",
			envVars: map[string]string{
				"PASSWORD_BCRYPT_COST": "99",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			// Create config
			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Store:       StoreConfig{Driver: StoreDriverMemory},
		Token:       TokenConfig{TTL: time.Hour, KeyStrategy: "random"},
		Password:    PasswordConfig{BcryptCost: 10},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid development config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "postgres without database host",
			mutate: func(c *Config) {
				c.Store.Driver = StoreDriverPostgres
				c.Store.Database = DatabaseConfig{User: "user", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name: "postgres without database user",
			mutate: func(c *Config) {
				c.Store.Driver = StoreDriverPostgres
				c.Store.Database = DatabaseConfig{Host: "localhost", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Store.Driver = StoreDriverRedis
			},
			wantErr: true,
			errMsg:  "redis configuration required",
		},
		{
			name: "redis with URL only",
			mutate: func(c *Config) {
				c.Store.Driver = StoreDriverRedis
				c.Store.Redis.URL = "redis://localhost:6379/0"
			},
			wantErr: false,
		},
		{
			name: "unknown key strategy",
			mutate: func(c *Config) {
				c.Token.KeyStrategy = "vault"
			},
			wantErr: true,
			errMsg:  "unknown token key strategy",
		},
		{
			name: "TLS without cert",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
			},
			wantErr: true,
			errMsg:  "TLS cert and key files are required",
		},
		{
			name: "missing log level",
			mutate: func(c *Config) {
				c.Observability.LogLevel = ""
			},
			wantErr: true,
			errMsg:  "log level is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Warnings(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, cfg.Warnings())

	cfg.Environment = "production"
	cfg.SeedDemoUsers = true
	warnings := cfg.Warnings()
	assert.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "random signing key")

	cfg.Token.KeyStrategy = "static"
	cfg.Store.Driver = StoreDriverPostgres
	cfg.SeedDemoUsers = false
	assert.Empty(t, cfg.Warnings())
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"dev", "dev", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "testpass")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"go duration", "30s", 10 * time.Second, 30 * time.Second},
		{"milliseconds", "1500", 10 * time.Second, 1500 * time.Millisecond},
		{"empty value", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, []string{"a"}, getEnvAsSlice("TEST_SLICE", []string{"a"}))

	os.Setenv("TEST_SLICE", " x , ,y ")
	assert.Equal(t, []string{"x", "y"}, getEnvAsSlice("TEST_SLICE", []string{"a"}))

	os.Setenv("TEST_SLICE", " , ")
	assert.Equal(t, []string{"a"}, getEnvAsSlice("TEST_SLICE", []string{"a"}))
}
