package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tokenauth/middleware"
	"github.com/upb/tokenauth/models"
	"github.com/upb/tokenauth/password"
	"github.com/upb/tokenauth/repositories/memory"
	"github.com/upb/tokenauth/services"
	"github.com/upb/tokenauth/token"
	"github.com/upb/tokenauth/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MockAuthenticator mocks the login and registration service
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, username, plaintext string) (*services.LoginResult, error) {
	args := m.Called(ctx, username, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LoginResult), args.Error(1)
}

func (m *MockAuthenticator) Register(ctx context.Context, in services.RegistrationInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type handlerFixture struct {
	handler *AuthHandler
	codec   *token.Codec
	users   *memory.UserRepository
	mw      *middleware.AuthMiddleware
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := zap.NewNop()

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := token.NewCodec(token.Config{TTL: time.Hour}, token.RandomKeySource{})
	require.NoError(t, err)

	users := memory.NewUserRepository(logger)
	identities := services.NewIdentityService(users, hasher, logger)
	_, err = identities.Seed(context.Background(), services.DemoUsers())
	require.NoError(t, err)

	authService, err := services.NewAuthService(identities, codec, hasher, logger)
	require.NoError(t, err)

	return &handlerFixture{
		handler: NewAuthHandler(authService, logger),
		codec:   codec,
		users:   users,
		mw:      middleware.NewAuthMiddleware(codec, identities, logger),
	}
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleLogin(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("valid credentials return token and identity", func(t *testing.T) {
		w := postJSON(f.handler.HandleLogin, `{"username":"admin","password":"admin123"}`)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "admin", response["username"])
		assert.Equal(t, "admin@example.com", response["email"])
		assert.Equal(t, []interface{}{"ADMIN"}, response["roles"])
		assert.NotContains(t, response, "password")
		assert.NotContains(t, response, "password_hash")

		subject, err := f.codec.ExtractSubject(response["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, "admin", subject)
	})

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, "invalid credentials"},
		{"unknown user", `{"username":"ghost","password":"admin123"}`, http.StatusUnauthorized, "invalid credentials"},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest, "Validation failed"},
		{"empty body", ``, http.StatusBadRequest, "request body is empty"},
		{"unknown field", `{"username":"admin","password":"admin123","role":"ADMIN"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(f.handler.HandleLogin, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, response.Message)
			}
			assert.NotContains(t, w.Body.String(), "token\"")
		})
	}
}

func TestHandleRegister(t *testing.T) {
	t.Run("registers with default role", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := postJSON(f.handler.HandleRegister, `{"username":"dave","password":"secret1","email":"dave@example.com"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var response RegisterResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "User registered successfully!", response.Message)
		assert.Equal(t, "dave", response.User.Username)
		assert.Equal(t, []string{"USER"}, response.User.Roles)
		assert.Equal(t, 3, f.users.Count())
	})

	t.Run("duplicate username is a bad request", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := postJSON(f.handler.HandleRegister, `{"username":"admin","password":"secret1","email":"other@example.com"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "username already taken", response.Message)
		assert.Equal(t, 2, f.users.Count())
	})

	t.Run("duplicate email is a bad request", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := postJSON(f.handler.HandleRegister, `{"username":"dave","password":"secret1","email":"admin@example.com"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "email already registered", response.Message)
	})

	t.Run("validation failures list fields", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := postJSON(f.handler.HandleRegister, `{"username":"d","password":"1","email":"nope","roles":["admin"]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Message)
		for _, field := range []string{"username", "password", "email", "roles[0]"} {
			assert.Contains(t, response.Details, field)
		}
		assert.Equal(t, 2, f.users.Count())
	})

	t.Run("multibyte password over 72 bytes is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)

		body := `{"username":"dave","password":"` + strings.Repeat("é", 72) + `"}`
		w := postJSON(f.handler.HandleRegister, body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Message)
		assert.Equal(t, "password must be at most 72 bytes", response.Details["password"])
		assert.Equal(t, 2, f.users.Count())
	})

	t.Run("repeated roles are rejected", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := postJSON(f.handler.HandleRegister, `{"username":"dave","password":"secret1","roles":["USER","USER"]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Contains(t, response.Details, "roles")
		assert.Equal(t, 2, f.users.Count())
	})

	t.Run("service failure hides internals", func(t *testing.T) {
		authenticator := new(MockAuthenticator)
		authenticator.On("Register", mock.Anything, mock.AnythingOfType("services.RegistrationInput")).
			Return(nil, services.WrapInternal("failed to create user", errors.New("pq: connection refused")))
		handler := NewAuthHandler(authenticator, zap.NewNop())

		w := postJSON(handler.HandleRegister, `{"username":"dave","password":"secret1","email":"dave@example.com"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
		assert.Contains(t, w.Body.String(), "An unexpected error occurred")
		authenticator.AssertExpectations(t)
	})
}

func TestHandleMe(t *testing.T) {
	f := newHandlerFixture(t)
	handler := f.mw.Authenticate(f.mw.RequireAuth(http.HandlerFunc(f.handler.HandleMe)))

	issued, err := f.codec.Issue("user", time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Value)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Data models.PublicUser `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "user", response.Data.Username)
	assert.Equal(t, "user@example.com", response.Data.Email)
	assert.Equal(t, []string{"USER"}, response.Data.Roles)

	t.Run("without identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandleAdminPing(t *testing.T) {
	f := newHandlerFixture(t)

	user := models.NewUser("admin", "", []string{"ADMIN"})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	req = req.WithContext(middleware.WithAuthState(req.Context(), &middleware.AuthState{Identity: user}))
	w := httptest.NewRecorder()
	f.handler.HandleAdminPing(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"pong"`)
	assert.Contains(t, w.Body.String(), "ROLE_ADMIN")
}
