package services

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/password"
	"github.com/upb/tokenauth/repositories"
	"go.uber.org/zap"
)

// RegistrationInput carries the fields needed to create an identity
type RegistrationInput struct {
	Username string
	Password string
	Email    string
	Roles    []string
}

// IdentityService owns identity registration and lookup on top of a UserRepository
type IdentityService struct {
	users  repositories.UserRepository
	hasher password.Hasher
	logger *zap.Logger
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(users repositories.UserRepository, hasher password.Hasher, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Register hashes the password and stores a new identity with all gates open.
// Users registered without roles receive models.DefaultRole.
//
// The uniqueness check and the insert happen in one repository call, so two
// concurrent registrations of the same username cannot both succeed.
func (s *IdentityService) Register(ctx context.Context, in RegistrationInput) (*models.User, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, ErrInvalidInput.WithDetail("field", "username")
	}
	if in.Password == "" {
		return nil, ErrInvalidInput.WithDetail("field", "password")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, ErrInvalidInput.WithDetail("field", "password")
		}
		return nil, WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(in.Username, in.Email, in.Roles)
	user.PasswordHash = hash
	user.EnsureDefaultRole()

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateEmail):
			return nil, NewDomainError(ErrorTypeConflict, ErrEmailTaken.Message, err)
		case errors.Is(err, repositories.ErrDuplicate):
			return nil, NewDomainError(ErrorTypeConflict, ErrUsernameTaken.Message, err)
		default:
			return nil, WrapInternal("failed to create user", err)
		}
	}

	s.logger.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Strings("roles", user.Roles),
	)
	return user, nil
}

// FindByUsername returns the identity with the exact (case-sensitive) username
func (s *IdentityService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NewDomainError(ErrorTypeNotFound, ErrUserNotFound.Message, err)
		}
		return nil, WrapInternal("failed to load user", err)
	}
	return user, nil
}

// ExistsByUsername reports whether an identity with that username is stored
func (s *IdentityService) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return false, WrapInternal("failed to check user existence", err)
	}
	return exists, nil
}

// Seed registers every input whose username is not yet taken and returns
// the number of identities created. Existing users are left untouched.
func (s *IdentityService) Seed(ctx context.Context, inputs []RegistrationInput) (int, error) {
	created := 0
	for _, in := range inputs {
		exists, err := s.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return created, err
		}
		if exists {
			s.logger.Debug("seed user already present", zap.String("username", in.Username))
			continue
		}

		if _, err := s.Register(ctx, in); err != nil {
			// Another instance may have seeded the same user in between
			if errors.Is(err, ErrUsernameTaken) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// DemoUsers returns the two development accounts created when seeding is enabled
func DemoUsers() []RegistrationInput {
	return []RegistrationInput{
		{Username: "admin", Password: "admin123", Email: "admin@example.com", Roles: []string{"ADMIN"}},
		{Username: "user", Password: "user123", Email: "user@example.com", Roles: []string{"USER"}},
	}
}
