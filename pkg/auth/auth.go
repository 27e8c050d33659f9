// Package auth verifies bearer tokens and exposes the caller identity to
// request handlers. Token issuance and rotation live outside the gateway;
// this package only checks the HS256 signature and the identity claims.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echo "github.com/labstack/echo/v5"
)

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	TenantID string
	UserID   string
	Roles    []string
}

// HasRole reports whether the identity carries the named role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

const identityContextKey = "auth.identity"

// Middleware returns echo middleware that rejects requests without a valid
// HS256 bearer token and stores the caller Identity on the context.
func Middleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header is not a bearer token")
			}

			identity, err := parseToken(raw, key)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			c.Set(identityContextKey, identity)
			return next(c)
		}
	}
}

// FromContext returns the Identity stored by the middleware.
func FromContext(c *echo.Context) (Identity, bool) {
	identity, ok := c.Get(identityContextKey).(Identity)
	return identity, ok
}

func parseToken(raw string, key []byte) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}

	tenantID, _ := claims["tenant_id"].(string)
	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if tenantID == "" || userID == "" {
		return Identity{}, fmt.Errorf("token is missing tenant_id or subject")
	}

	var roles []string
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	return Identity{TenantID: tenantID, UserID: userID, Roles: roles}, nil
}

// NewToken mints a signed HS256 token for the identity. Used by tests and
// local tooling; production tokens come from the platform's issuer.
func NewToken(secret string, identity Identity, ttl time.Duration) (string, error) {
	roles := make([]any, len(identity.Roles))
	for i, r := range identity.Roles {
		roles[i] = r
	}
	claims := jwt.MapClaims{
		"tenant_id": identity.TenantID,
		"sub":       identity.UserID,
		"roles":     roles,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
