package generation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	engineerrors "github.com/subpilot/subpilot/internal/errors"
)

// RateLimitedGenerator wraps a Generator with a per-user token bucket so one
// tenant cannot starve the provider quota.
type RateLimitedGenerator struct {
	inner Generator
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int32]*rate.Limiter
}

// NewRateLimitedGenerator allows ratePerMinute generations per user with the
// given burst.
func NewRateLimitedGenerator(inner Generator, ratePerMinute, burst int) *RateLimitedGenerator {
	return &RateLimitedGenerator{
		inner:    inner,
		limit:    rate.Limit(float64(ratePerMinute) / 60.0),
		burst:    burst,
		limiters: make(map[int32]*rate.Limiter),
	}
}

// Generate enforces the requesting user's limiter before delegating.
func (g *RateLimitedGenerator) Generate(ctx context.Context, req *Request) (*Content, error) {
	g.mu.Lock()
	limiter, ok := g.limiters[req.UserID]
	if !ok {
		limiter = rate.NewLimiter(g.limit, g.burst)
		g.limiters[req.UserID] = limiter
	}
	g.mu.Unlock()

	if !limiter.Allow() {
		return nil, engineerrors.RateLimitExceeded(fmt.Sprintf("generation rate limit reached for user %d", req.UserID))
	}
	return g.inner.Generate(ctx, req)
}

// Ensure RateLimitedGenerator implements Generator.
var _ Generator = (*RateLimitedGenerator)(nil)
