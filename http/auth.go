package http

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnauthorized = "unauthorized"

	HeaderAuthorization = "Authorization"
	HeaderClientID      = "X-Client-Id"

	tokenQueryParam = "token"
	mapQueryParam   = "map"
	bearerPrefix    = "Bearer "
)

// ConsoleClaims are the claims of a console access token. An empty Maps list
// grants access to every map.
type ConsoleClaims struct {
	Maps []string `json:"maps,omitempty"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the token grants access to the map.
func (c ConsoleClaims) CanAccess(mapName string) bool {
	return len(c.Maps) == 0 || slices.Contains(c.Maps, mapName)
}

// GenerateToken creates a HS256 signed console access token.
func GenerateToken(secret []byte, subject string, maps []string, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ConsoleClaims{
		Maps: maps,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	s, err := token.SignedString(secret)
	if err != nil {
		return "", errors.New("signing token failed").Wrap(err)
	}
	return s, nil
}

// VerifyToken parses and validates a console access token.
func VerifyToken(secret []byte, token string) (ConsoleClaims, error) {
	var claims ConsoleClaims

	if token == "" {
		return claims, errors.New("missing token").WithType(ErrTypeUnauthorized)
	}

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method").
				WithTag("alg", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return claims, errors.New("invalid token").
			WithType(ErrTypeUnauthorized).
			Wrap(err)
	}
	return claims, nil
}

// TokenFromRequest returns the bearer token of the request, falling back to
// the token query parameter for clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get(HeaderAuthorization); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// VerifyAuthToken returns a websocket handshake that rejects connections
// without a valid token for the requested map.
func VerifyAuthToken(secret []byte) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		mapName := r.URL.Query().Get(mapQueryParam)
		if mapName == "" {
			mapName = world.DefaultMapName
		}

		claims, err := VerifyToken(secret, TokenFromRequest(r))
		if err == nil && !claims.CanAccess(mapName) {
			err = errors.New("map access denied").
				WithTag("map", mapName).
				WithType(ErrTypeUnauthorized)
		}

		if err != nil {
			logs.WithTag("client_id", r.Header.Get(HeaderClientID)).Error(err)
			return err
		}
		return nil
	}
}

// VerifyAuthTokenHandler rejects requests without a valid token.
func VerifyAuthTokenHandler(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := VerifyToken(secret, TokenFromRequest(r)); err != nil {
			logs.WithTag("client_id", r.Header.Get(HeaderClientID)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
