package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("sesame")

func TestVerifyToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "ted", []string{"dungeon"}, time.Minute)
		require.NoError(t, err)

		claims, err := VerifyToken(testSecret, token)
		require.NoError(t, err)
		require.Equal(t, "ted", claims.Subject)
		require.True(t, claims.CanAccess("dungeon"))
		require.False(t, claims.CanAccess("default"))
	})

	t.Run("unrestricted token", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "ted", nil, time.Minute)
		require.NoError(t, err)

		claims, err := VerifyToken(testSecret, token)
		require.NoError(t, err)
		require.True(t, claims.CanAccess("anything"))
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := VerifyToken(testSecret, "")
		require.True(t, errors.IsType(err, ErrTypeUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateToken([]byte("other"), "ted", nil, time.Minute)
		require.NoError(t, err)

		_, err = VerifyToken(testSecret, token)
		require.True(t, errors.IsType(err, ErrTypeUnauthorized))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "ted", nil, -time.Minute)
		require.NoError(t, err)

		_, err = VerifyToken(testSecret, token)
		require.True(t, errors.IsType(err, ErrTypeUnauthorized))
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, ConsoleClaims{}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = VerifyToken(testSecret, token)
		require.True(t, errors.IsType(err, ErrTypeUnauthorized))
	})
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	require.Equal(t, "query", TokenFromRequest(r))

	r.Header.Set(HeaderAuthorization, "Bearer header")
	require.Equal(t, "header", TokenFromRequest(r))
}

func TestVerifyAuthToken(t *testing.T) {
	handshake := VerifyAuthToken(testSecret)

	token, err := GenerateToken(testSecret, "ted", []string{"dungeon"}, time.Minute)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/?map=dungeon", nil)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)
	require.NoError(t, handshake(nil, r))

	r = httptest.NewRequest(http.MethodGet, "/?map=cave", nil)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)
	require.Error(t, handshake(nil, r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)
	require.Error(t, handshake(nil, r))

	r = httptest.NewRequest(http.MethodGet, "/?map=dungeon", nil)
	require.Error(t, handshake(nil, r))
}

func TestVerifyAuthTokenHandler(t *testing.T) {
	h := VerifyAuthTokenHandler(testSecret, http.HandlerFunc(HandleHealthCheck))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", strings.NewReader("{}")))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := GenerateToken(testSecret, "ted", nil, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/smoke-test", strings.NewReader("{}"))
	req.Header.Set(HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
