package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testToken = "bst_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (*domain.Principal, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Principal), args.Error(1)
}

func TestAPIKeyAuth_Success(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, testToken).
		Return(&domain.Principal{WorkspaceID: "ws-789", UserID: "user-1", Role: domain.RoleAdmin}, nil)

	var captured domain.Principal
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	APIKeyAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ws-789", captured.WorkspaceID)
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, domain.RoleAdmin, captured.Role)
	mockValidator.AssertExpectations(t)
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	APIKeyAuth(new(MockAuthValidator))(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAPIKeyAuth_InvalidFormat(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()

	APIKeyAuth(new(MockAuthValidator))(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestAPIKeyAuth_RevokedKey(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, testToken).Return(nil, domain.ErrAPIKeyRevoked)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	APIKeyAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid api key")
	mockValidator.AssertExpectations(t)
}

func TestAPIKeyAuth_StoreFailure(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, testToken).Return(nil, errors.New("db down"))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	APIKeyAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetPrincipal_MissingContext(t *testing.T) {
	_, ok := GetPrincipal(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", GetWorkspaceID(context.Background()))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestAPIKeyAuth_WebSocketQueryToken(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateAPIKey", mock.Anything, testToken).
		Return(&domain.Principal{WorkspaceID: "ws-1", UserID: "user-1", Role: domain.RoleMember}, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/notifications/stream?access_token="+testToken, nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	APIKeyAuth(mockValidator)(handler).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Plain requests must use the header.
	req = httptest.NewRequest(http.MethodGet, "/notifications?access_token="+testToken, nil)
	w = httptest.NewRecorder()
	APIKeyAuth(mockValidator)(handler).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
