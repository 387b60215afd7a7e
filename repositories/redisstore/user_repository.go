// Package redisstore keeps identities in Redis. Each user is a hash under
// <prefix>:user:<username> holding its id and a JSON document; a second key
// reserves the email.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tokenauth/config"
	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/repositories"
	"go.uber.org/zap"
)

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 2 * time.Second
)

const (
	createStatusCreated       int64 = 0
	createStatusUsernameTaken int64 = 1
	createStatusEmailTaken    int64 = 2
)

// createUserScript reserves the username and email keys and assigns the id
// in one server-side step. ARGV[1] is the JSON document, ARGV[2] the
// username and ARGV[3] the email (may be empty).
//
// KEYS[1] user key, KEYS[2] email key, KEYS[3] id sequence.
const createUserScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {1, 0}
end
if ARGV[3] ~= "" and redis.call("EXISTS", KEYS[2]) == 1 then
  return {2, 0}
end
local id = redis.call("INCR", KEYS[3])
redis.call("HSET", KEYS[1], "id", id, "doc", ARGV[1])
if ARGV[3] ~= "" then
  redis.call("SET", KEYS[2], ARGV[2])
end
return {0, id}
`

var createUserLua = redis.NewScript(createUserScript)

// document is the stored form of a user; unlike models.User it keeps the
// password hash. The id lives in its own hash field.
type document struct {
	ID                    int64     `json:"-"`
	Username              string    `json:"username"`
	PasswordHash          string    `json:"password_hash"`
	Email                 string    `json:"email"`
	Roles                 []string  `json:"roles"`
	Enabled               bool      `json:"enabled"`
	AccountNonExpired     bool      `json:"account_non_expired"`
	AccountNonLocked      bool      `json:"account_non_locked"`
	CredentialsNonExpired bool      `json:"credentials_non_expired"`
	CreatedAt             time.Time `json:"created_at"`
}

func toDocument(u *models.User) document {
	return document{
		ID:                    u.ID,
		Username:              u.Username,
		PasswordHash:          u.PasswordHash,
		Email:                 u.Email,
		Roles:                 u.RoleNames(),
		Enabled:               u.Enabled,
		AccountNonExpired:     u.AccountNonExpired,
		AccountNonLocked:      u.AccountNonLocked,
		CredentialsNonExpired: u.CredentialsNonExpired,
		CreatedAt:             u.CreatedAt,
	}
}

func (d document) toUser() *models.User {
	return &models.User{
		ID:                    d.ID,
		Username:              d.Username,
		PasswordHash:          d.PasswordHash,
		Email:                 d.Email,
		Roles:                 d.Roles,
		Enabled:               d.Enabled,
		AccountNonExpired:     d.AccountNonExpired,
		AccountNonLocked:      d.AccountNonLocked,
		CredentialsNonExpired: d.CredentialsNonExpired,
		CreatedAt:             d.CreatedAt,
	}
}

// UserRepository implements repositories.UserRepository on Redis
type UserRepository struct {
	redis  redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewClient builds a Redis client from config and verifies connectivity
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	options := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		options = parsed
	}
	options.DialTimeout = dialTimeout

	client := redis.NewClient(options)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis client connected", zap.String("addr", options.Addr), zap.Int("db", options.DB))
	return client, nil
}

// Ping verifies that the Redis client is healthy
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// NewUserRepository creates a repository storing keys under prefix
func NewUserRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *UserRepository {
	if prefix == "" {
		prefix = "tokenauth"
	}
	return &UserRepository{
		redis:  client,
		prefix: prefix,
		logger: logger,
	}
}

func (r *UserRepository) userKey(username string) string {
	return r.prefix + ":user:" + username
}

func (r *UserRepository) emailKey(email string) string {
	return r.prefix + ":email:" + email
}

func (r *UserRepository) sequenceKey() string {
	return r.prefix + ":seq:user"
}

// Create runs the compare-and-insert script
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(toDocument(user))
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	keys := []string{r.userKey(user.Username), r.emailKey(user.Email), r.sequenceKey()}
	res, err := createUserLua.Run(ctx, r.redis, keys, data, user.Username, user.Email).Int64Slice()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("failed to create user: unexpected script reply %v", res)
	}

	switch res[0] {
	case createStatusUsernameTaken:
		return fmt.Errorf("%w: %s", repositories.ErrDuplicate, user.Username)
	case createStatusEmailTaken:
		return repositories.ErrDuplicateEmail
	case createStatusCreated:
		user.ID = res[1]
		r.logger.Debug("user created", zap.Int64("id", user.ID), zap.String("username", user.Username))
		return nil
	default:
		return fmt.Errorf("failed to create user: unknown status %d", res[0])
	}
}

// FindByUsername loads and decodes the user hash
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	fields, err := r.redis.HGetAll(ctx, r.userKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", repositories.ErrNotFound, username)
	}

	var doc document
	if err := json.Unmarshal([]byte(fields["doc"]), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", username, err)
	}
	doc.ID, err = strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode id of user %s: %w", username, err)
	}
	return doc.toUser(), nil
}

// ExistsByUsername reports whether the user key exists
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.userKey(username)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n == 1, nil
}

// HealthCheck pings the Redis server
func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return Ping(ctx, r.redis)
}
