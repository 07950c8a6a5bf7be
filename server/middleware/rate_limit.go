package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Per-user budget for the event intake. A webhook storm from one tenant must
// not crowd out the rest.
const (
	intakeRatePerSecond = 10
	intakeBurst         = 20
)

// RateLimiter throttles API traffic per authenticated user.
type RateLimiter struct {
	mu      sync.Mutex
	perUser map[int32]*rate.Limiter
}

// NewRateLimiter creates a rate limiter with the intake defaults.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		perUser: make(map[int32]*rate.Limiter),
	}
}

// Allow reports whether the user has budget for one more request.
func (rl *RateLimiter) Allow(userID int32) bool {
	rl.mu.Lock()
	limiter, ok := rl.perUser[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(intakeRatePerSecond), intakeBurst)
		rl.perUser[userID] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// PerUser returns an echo middleware that rate-limits by authenticated user.
// It must run after an auth middleware has set the user ID.
func (rl *RateLimiter) PerUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := UserIDFrom(c)
		if !ok {
			return echo.ErrUnauthorized
		}
		if !rl.Allow(userID) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
