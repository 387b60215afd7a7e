package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/repositories"
	"github.com/upb/tokenauth/services"
	"github.com/upb/tokenauth/token"
	"github.com/upb/tokenauth/utils"
	"go.uber.org/zap"
)

// TokenDecoder verifies a bearer token and returns its claims
type TokenDecoder interface {
	Decode(tokenString string) (*token.Claims, error)
}

// IdentityLoader resolves a token subject to a stored identity
type IdentityLoader interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	decoder    TokenDecoder
	identities IdentityLoader
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(decoder TokenDecoder, identities IdentityLoader, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		decoder:    decoder,
		identities: identities,
		logger:     logger,
	}
}

// Authenticate resolves the bearer token, if any, and records the outcome
// in the request context. It never rejects a request; RequireAuth and
// RequireRole decide what an unauthenticated request may reach.
// A request that already carries an outcome is passed through unchanged.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetAuthStateFromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		state := m.resolve(ctx, extractBearerToken(r))
		next.ServeHTTP(w, r.WithContext(WithAuthState(ctx, state)))
	})
}

// resolve runs the token through decode, lookup and the account gates
func (m *AuthMiddleware) resolve(ctx context.Context, tokenString string) *AuthState {
	requestID := GetRequestIDFromContext(ctx)

	if tokenString == "" {
		return &AuthState{Reason: ReasonNoToken}
	}

	claims, err := m.decoder.Decode(tokenString)
	if err != nil {
		reason := decodeFailureReason(err)
		m.logger.Debug("token rejected",
			zap.String("request_id", requestID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return &AuthState{Reason: reason}
	}

	user, err := m.identities.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if services.IsNotFoundError(err) || errors.Is(err, repositories.ErrNotFound) {
			m.logger.Info("token subject not found",
				zap.String("request_id", requestID),
				zap.String("subject", claims.Subject))
			return &AuthState{Reason: ReasonUnknownSubject}
		}
		m.logger.Error("identity lookup failed",
			zap.String("request_id", requestID),
			zap.String("subject", claims.Subject),
			zap.Error(err))
		return &AuthState{Reason: ReasonLookupFailed}
	}

	if !user.IsAuthenticatable() {
		m.logger.Info("token for closed account",
			zap.String("request_id", requestID),
			zap.String("subject", claims.Subject))
		return &AuthState{Reason: ReasonAccountDisabled}
	}

	m.logger.Debug("authentication successful",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Subject),
		zap.String("jti", claims.ID))

	return &AuthState{Identity: user}
}

func decodeFailureReason(err error) FailureReason {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ReasonExpiredToken
	case errors.Is(err, token.ErrSignature):
		return ReasonInvalidSignature
	default:
		return ReasonMalformedToken
	}
}

// RequireAuth rejects requests for which Authenticate established no identity
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state := GetAuthStateFromContext(ctx)
		if state.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}

		reason := ReasonNoToken
		if state != nil {
			reason = state.Reason
		}
		m.logger.Warn("unauthenticated request",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("path", r.URL.Path),
			zap.String("reason", string(reason)))

		if reason == ReasonLookupFailed {
			_ = utils.WriteInternalServerError(w, "")
			return
		}
		_ = utils.WriteUnauthorized(w, reason.Message())
	})
}

// RequireRole is a middleware that requires a specific role.
// It should be mounted after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			user := GetIdentityFromContext(ctx)
			if user == nil {
				m.logger.Error("identity not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "")
				return
			}

			if !user.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_role", role),
					zap.Strings("user_roles", user.Roles))
				_ = utils.WriteForbidden(w, services.ErrInsufficientPermissions.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
