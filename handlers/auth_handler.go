package handlers

import (
	"context"
	"net/http"

	"github.com/upb/tokenauth/middleware"
	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/services"
	"github.com/upb/tokenauth/utils"
	"go.uber.org/zap"
)

// Authenticator is the login and registration capability used by AuthHandler
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Register(ctx context.Context, in services.RegistrationInput) (*models.User, error)
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=50,username"`
	Password string   `json:"password" validate:"required,min=6,maxbytes=72"`
	Email    string   `json:"email" validate:"required,email,max=255"`
	Roles    []string `json:"roles,omitempty" validate:"omitempty,max=10,unique,dive,role"`
}

// RegisterResponse is the body returned after a successful registration
type RegisterResponse struct {
	Message string            `json:"message"`
	User    models.PublicUser `json:"user"`
}

// AuthHandler serves the login, registration and identity endpoints
type AuthHandler struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("failed to write login response", zap.Error(err))
	}
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.auth.Register(r.Context(), services.RegistrationInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Roles:    req.Roles,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, RegisterResponse{
		Message: "User registered successfully!",
		User:    user.Public(),
	}); err != nil {
		h.logger.Error("failed to write register response", zap.Error(err))
	}
}

// HandleMe handles GET /api/auth/me and returns the authenticated identity
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetIdentityFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	_ = utils.WriteOK(w, user.Public())
}

// HandleAdminPing handles GET /api/admin/ping, reachable only with the ADMIN role
func (h *AuthHandler) HandleAdminPing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetIdentityFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{
		"message":     "pong",
		"username":    user.Username,
		"authorities": user.Authorities(),
	})
}
