package services

import (
	"context"
	"errors"
	"time"

	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/password"
	"github.com/upb/tokenauth/token"
	"go.uber.org/zap"
)

// timingDummyPassword is hashed once at startup so that logins for unknown
// users spend the same bcrypt work as logins for known ones.
const timingDummyPassword = "timing-equalization-placeholder"

// LoginResult is returned by a successful login. It never carries the password hash.
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService orchestrates login and registration over the identity store,
// the password hasher and the token codec
type AuthService struct {
	identities *IdentityService
	codec      *token.Codec
	hasher     password.Hasher
	logger     *zap.Logger
	now        func() time.Time
	dummyHash  string
}

// NewAuthService creates a new AuthService
func NewAuthService(identities *IdentityService, codec *token.Codec, hasher password.Hasher, logger *zap.Logger) (*AuthService, error) {
	dummyHash, err := hasher.Hash(timingDummyPassword)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		identities: identities,
		codec:      codec,
		hasher:     hasher,
		logger:     logger,
		now:        time.Now,
		dummyHash:  dummyHash,
	}, nil
}

// Login verifies the credentials and issues a token whose subject is the username.
// Unknown user, wrong password and a closed account gate all return
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, plaintext string) (*LoginResult, error) {
	user, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		if !IsNotFoundError(err) {
			return nil, err
		}
		// Burn a comparable amount of time before rejecting
		_, _ = s.hasher.Verify(plaintext, s.dummyHash)
		s.logger.Debug("login rejected", zap.String("username", username), zap.String("reason", "unknown_user"))
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return nil, WrapInternal("failed to verify password", err)
	}
	if !ok {
		s.logger.Debug("login rejected", zap.String("username", username), zap.String("reason", "bad_password"))
		return nil, ErrInvalidCredentials
	}

	if !user.IsAuthenticatable() {
		s.logger.Warn("login rejected", zap.String("username", username), zap.String("reason", "account_disabled"))
		return nil, ErrInvalidCredentials
	}

	issued, err := s.codec.Issue(user.SubjectID(), s.now())
	if err != nil {
		return nil, WrapInternal("failed to issue token", err)
	}

	s.logger.Info("login succeeded",
		zap.String("username", user.Username),
		zap.String("token_id", issued.ID),
		zap.Time("expires_at", issued.ExpiresAt),
	)

	return &LoginResult{
		Token:     issued.Value,
		Username:  user.Username,
		Email:     user.Email,
		Roles:     user.RoleNames(),
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// Register creates a new identity. A taken username yields ErrUsernameTaken.
func (s *AuthService) Register(ctx context.Context, in RegistrationInput) (*models.User, error) {
	user, err := s.identities.Register(ctx, in)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			s.logger.Info("registration rejected", zap.String("username", in.Username), zap.Error(err))
		}
		return nil, err
	}
	return user, nil
}
