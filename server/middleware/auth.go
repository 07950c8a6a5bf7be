// Package middleware provides the HTTP middleware for the engine API:
// JWT session auth for dashboard callers, API-key auth for webhook intake,
// and per-user rate limiting.
package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/subpilot/subpilot/store"
)

const (
	// ContextKeyUserID is the echo context key holding the authenticated user ID.
	ContextKeyUserID = "user_id"

	headerUserEmail = "X-User-Email"
	headerAPIKey    = "X-Api-Key"

	tokenIssuer = "subpilot"
	tokenTTL    = 24 * time.Hour
)

// Authenticator verifies callers and issues session tokens.
type Authenticator struct {
	store  *store.Store
	secret []byte
}

// NewAuthenticator creates an authenticator signing with the given secret.
func NewAuthenticator(s *store.Store, secret string) *Authenticator {
	return &Authenticator{store: s, secret: []byte(secret)}
}

// SignIn verifies an email + access token pair and returns a signed session
// token. The stored token hash is bcrypt; comparison is constant time.
func (a *Authenticator) SignIn(ctx context.Context, email, accessToken string) (string, error) {
	user, err := a.store.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return "", echo.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.AccessTokenHash), []byte(accessToken)) != nil {
		return "", echo.ErrUnauthorized
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   strconv.FormatInt(int64(user.ID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// JWTAuth authenticates dashboard requests with a Bearer session token.
func (a *Authenticator) JWTAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return echo.ErrUnauthorized
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return echo.ErrUnauthorized
		}

		claims, ok := token.Claims.(*jwt.RegisteredClaims)
		if !ok {
			return echo.ErrUnauthorized
		}
		userID, err := strconv.ParseInt(claims.Subject, 10, 32)
		if err != nil {
			return echo.ErrUnauthorized
		}

		c.Set(ContextKeyUserID, int32(userID))
		return next(c)
	}
}

// APIKeyAuth authenticates webhook intake with an email + API key header
// pair. The key is the same access token used for sign-in.
func (a *Authenticator) APIKeyAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := c.Request().Header.Get(headerUserEmail)
		key := c.Request().Header.Get(headerAPIKey)
		if email == "" || key == "" {
			return echo.ErrUnauthorized
		}

		user, err := a.store.GetUser(c.Request().Context(), &store.FindUser{Email: &email})
		if err != nil {
			return echo.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(user.AccessTokenHash), []byte(key)) != nil {
			return echo.ErrUnauthorized
		}

		c.Set(ContextKeyUserID, user.ID)
		return next(c)
	}
}

// UserIDFrom returns the authenticated user ID from the echo context.
func UserIDFrom(c echo.Context) (int32, bool) {
	userID, ok := c.Get(ContextKeyUserID).(int32)
	return userID, ok
}
