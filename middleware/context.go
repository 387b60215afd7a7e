package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/tokenauth/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// AuthStateKey is the context key for the authentication outcome
	AuthStateKey contextKey = "auth_state"
)

// FailureReason says why a request ended up without an identity
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonNoToken          FailureReason = "no_token"
	ReasonMalformedToken   FailureReason = "malformed_token"
	ReasonInvalidSignature FailureReason = "invalid_signature"
	ReasonExpiredToken     FailureReason = "expired_token"
	ReasonUnknownSubject   FailureReason = "unknown_subject"
	ReasonAccountDisabled  FailureReason = "account_disabled"
	ReasonLookupFailed     FailureReason = "lookup_failed"
)

// Message returns the client-facing text for the reason. Every reason has
// its own text so callers can branch on it.
func (r FailureReason) Message() string {
	switch r {
	case ReasonNoToken:
		return "Authentication required"
	case ReasonMalformedToken:
		return "invalid token"
	case ReasonInvalidSignature:
		return "signature does not match"
	case ReasonExpiredToken:
		return "token has expired"
	case ReasonUnknownSubject:
		return "Token subject no longer exists"
	case ReasonAccountDisabled:
		return "Account is disabled, locked or expired"
	case ReasonLookupFailed:
		return "Unable to verify identity"
	default:
		return "Authentication required"
	}
}

// AuthState is the per-request authentication slot. It is written once by
// Authenticate and only read afterwards.
type AuthState struct {
	Identity *models.User
	Reason   FailureReason
}

// Authenticated reports whether an identity was established
func (s *AuthState) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the one assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetAuthStateFromContext retrieves the authentication state, or nil when
// Authenticate has not run for this request
func GetAuthStateFromContext(ctx context.Context) *AuthState {
	if val := ctx.Value(AuthStateKey); val != nil {
		if state, ok := val.(*AuthState); ok {
			return state
		}
	}
	return nil
}

// WithAuthState adds the authentication state to the context
func WithAuthState(ctx context.Context, state *AuthState) context.Context {
	return context.WithValue(ctx, AuthStateKey, state)
}

// GetIdentityFromContext returns the authenticated identity, or nil
func GetIdentityFromContext(ctx context.Context) *models.User {
	if state := GetAuthStateFromContext(ctx); state.Authenticated() {
		return state.Identity
	}
	return nil
}
