package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Run("burst then limited", func(t *testing.T) {
		rl := NewRateLimiter()
		for i := 0; i < intakeBurst; i++ {
			require.True(t, rl.Allow(1), "request %d should fit the burst", i)
		}
		assert.False(t, rl.Allow(1))
	})

	t.Run("users limited independently", func(t *testing.T) {
		rl := NewRateLimiter()
		for i := 0; i < intakeBurst; i++ {
			rl.Allow(1)
		}
		assert.False(t, rl.Allow(1))
		assert.True(t, rl.Allow(2))
	})
}

func TestPerUserMiddleware(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}

	newContext := func() echo.Context {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		return e.NewContext(req, httptest.NewRecorder())
	}

	t.Run("requires an authenticated user", func(t *testing.T) {
		rl := NewRateLimiter()
		err := rl.PerUser(handler)(newContext())
		assert.ErrorIs(t, err, echo.ErrUnauthorized)
	})

	t.Run("passes within budget, rejects over it", func(t *testing.T) {
		rl := NewRateLimiter()
		for i := 0; i < intakeBurst; i++ {
			c := newContext()
			c.Set(ContextKeyUserID, int32(1))
			require.NoError(t, rl.PerUser(handler)(c))
		}

		c := newContext()
		c.Set(ContextKeyUserID, int32(1))
		err := rl.PerUser(handler)(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	})
}
