package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volunteermatching/volops/pkg/types"
)

func TestJWTManager_CreateAndValidate(t *testing.T) {
	m := NewJWTManager("secret", "volops", time.Hour)

	token, err := m.Create("alice")
	require.NoError(t, err)

	info, err := m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, types.TokenTypeUser, info.TokenType)
	assert.Equal(t, "alice", info.Subject)
	assert.False(t, info.IsAdmin())
}

func TestJWTManager_Rejections(t *testing.T) {
	m := NewJWTManager("secret", "volops", time.Hour)
	ctx := context.Background()

	// Expired
	expired := NewJWTManager("secret", "volops", time.Hour)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "volops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(expired.secret)
	require.NoError(t, err)
	_, err = m.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Wrong key
	other, err := NewJWTManager("other", "volops", time.Hour).Create("alice")
	require.NoError(t, err)
	_, err = m.ValidateToken(ctx, other)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Wrong issuer
	foreign, err := NewJWTManager("secret", "someone-else", time.Hour).Create("alice")
	require.NoError(t, err)
	_, err = m.ValidateToken(ctx, foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Garbage
	_, err = m.ValidateToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCompositeValidator(t *testing.T) {
	m := NewJWTManager("secret", "", time.Hour)
	v := NewCompositeValidator("admin-token", m)
	ctx := context.Background()

	info, err := v.ValidateToken(ctx, "admin-token")
	require.NoError(t, err)
	assert.True(t, info.IsAdmin())

	token, err := m.Create("bob")
	require.NoError(t, err)
	info, err = v.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Subject)

	assert.False(t, NewCompositeValidator("", nil).ValidateAdminToken(""))
	_, err = NewCompositeValidator("", nil).ValidateToken(ctx, "anything")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestHTTPMiddleware_WithAuth(t *testing.T) {
	m := NewJWTManager("secret", "volops", time.Hour)
	validator := NewCompositeValidator("admin-token", m)

	e := echo.New()
	e.Use(HTTPMiddleware(validator))
	e.GET("/open", func(c echo.Context) error {
		return c.String(http.StatusOK, "open")
	})
	e.POST("/closed", WithAuth(func(c echo.Context) error {
		return c.String(http.StatusOK, Subject(c.Request().Context()))
	}))

	valid, err := m.Create("alice")
	require.NoError(t, err)

	expiredClaims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "volops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
		body   string
	}{
		{"open route without token", http.MethodGet, "/open", "", http.StatusOK, "open"},
		{"open route ignores bad token", http.MethodGet, "/open", "Bearer nope", http.StatusOK, "open"},
		{"missing header", http.MethodPost, "/closed", "", http.StatusUnauthorized, ""},
		{"wrong scheme", http.MethodPost, "/closed", "Basic abc", http.StatusUnprocessableEntity, ""},
		{"bad token", http.MethodPost, "/closed", "Bearer nope", http.StatusUnprocessableEntity, ""},
		{"expired token", http.MethodPost, "/closed", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"valid jwt", http.MethodPost, "/closed", "Bearer " + valid, http.StatusOK, "alice"},
		{"admin token", http.MethodPost, "/closed", "Bearer admin-token", http.StatusOK, "admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.want >= 400 {
				assert.Contains(t, rec.Body.String(), `"message"`)
			}
		})
	}
}
