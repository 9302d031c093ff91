package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loanbridge/portal-api/internal/authz"
)

const testSecret = "test-secret"

func signSession(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, testSecret, zerolog.Nop())
	probe := h.JWTMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	rec := httptest.NewRecorder()
	probe.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/referrals", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, testSecret, zerolog.Nop())
	probe := h.JWTMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with an expired session")
	}))

	signed := signSession(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "alice@x.com",
		"exp":   time.Now().Add(-time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/referrals", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	probe.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddlewarePopulatesIdentity(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, testSecret, zerolog.Nop())

	var gotUserID, gotEmail string
	probe := h.JWTMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUserID, _ = authz.AuthUserIDFromRequest(r)
		gotEmail, _ = authz.UserEmailFromRequest(r)
	}))

	signed := signSession(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "alice@x.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/referrals", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	probe.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", gotUserID)
	require.Equal(t, "alice@x.com", gotEmail)
}
