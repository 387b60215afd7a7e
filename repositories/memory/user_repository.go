// Package memory provides the in-process identity store used by default and
// in tests. Contents are lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/repositories"
	"go.uber.org/zap"
)

// UserRepository implements repositories.UserRepository over maps guarded by
// a single RWMutex. Stored users are private copies.
type UserRepository struct {
	mu         sync.RWMutex
	byUsername map[string]*models.User
	byEmail    map[string]string // email -> username
	lastID     int64
	logger     *zap.Logger
}

// NewUserRepository creates an empty in-memory user repository
func NewUserRepository(logger *zap.Logger) *UserRepository {
	return &UserRepository{
		byUsername: make(map[string]*models.User),
		byEmail:    make(map[string]string),
		logger:     logger,
	}
}

// Create inserts a copy of user. The uniqueness check, id assignment and
// insert all happen under the write lock.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicate, user.Username)
	}
	if user.Email != "" {
		if _, exists := r.byEmail[user.Email]; exists {
			return repositories.ErrDuplicateEmail
		}
	}

	r.lastID++
	stored := user.Clone()
	stored.ID = r.lastID

	r.byUsername[stored.Username] = stored
	if stored.Email != "" {
		r.byEmail[stored.Email] = stored.Username
	}
	user.ID = stored.ID

	r.logger.Debug("user created", zap.Int64("id", stored.ID), zap.String("username", stored.Username))
	return nil
}

// FindByUsername retrieves a copy of the user with this exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrNotFound, username)
	}
	return user.Clone(), nil
}

// ExistsByUsername reports whether the username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUsername[username]
	return ok, nil
}

// Count returns the number of stored users
func (r *UserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUsername)
}
