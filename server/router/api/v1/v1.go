// Package v1 is the HTTP surface of the engine: webhook event intake, the
// action approval API, and learning insights. Agent configs and brand
// settings are mutated by the surrounding dashboard application, not here.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/lifecycle"
	"github.com/subpilot/subpilot/plugin/engine/orchestrator"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/server/middleware"
	"github.com/subpilot/subpilot/store"
)

// APIV1Service registers and serves the v1 API.
type APIV1Service struct {
	store        *store.Store
	auth         *middleware.Authenticator
	rateLimiter  *middleware.RateLimiter
	orchestrator *orchestrator.Service
	lifecycle    *lifecycle.Service
	learning     *learning.Service
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(
	s *store.Store,
	auth *middleware.Authenticator,
	orch *orchestrator.Service,
	lc *lifecycle.Service,
	learn *learning.Service,
) *APIV1Service {
	return &APIV1Service{
		store:        s,
		auth:         auth,
		rateLimiter:  middleware.NewRateLimiter(),
		orchestrator: orch,
		lifecycle:    lc,
		learning:     learn,
	}
}

// Register mounts all v1 routes.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/auth/signin", s.SignIn)

	// Webhook intake authenticates with the API key headers.
	g.POST("/events", s.HandleEvent, s.auth.APIKeyAuth, s.rateLimiter.PerUser)

	// Dashboard surface authenticates with the session token.
	session := g.Group("", s.auth.JWTAuth)
	session.GET("/actions", s.ListActions)
	session.GET("/actions/:uid", s.GetAction)
	session.POST("/actions/:uid/approve", s.ApproveAction)
	session.POST("/actions/:uid/reject", s.RejectAction)
	session.POST("/actions/:uid/modify", s.ModifyAction)
	session.POST("/actions/:uid/retry", s.RetryAction)
	session.GET("/insights/stats", s.GetLearningStats)
	session.GET("/insights/triggers/:trigger", s.GetTriggerInsights)
	session.POST("/feedback", s.RecordFeedback)
	session.GET("/metrics", s.GetMetrics)
}

// httpError maps an engine error to the HTTP status that fits its code.
// Policy skips never reach this: they are successful responses.
func httpError(err error) error {
	code := engineerrors.GetCodeFromError(err, "")
	switch code {
	case engineerrors.ErrCodeUnauthorized:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case engineerrors.ErrCodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case engineerrors.ErrCodeInvalidArgument:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case engineerrors.ErrCodeInvalidTransition, engineerrors.ErrCodeInvalidEpisodeState:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case engineerrors.ErrCodeRateLimitExceeded:
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case engineerrors.ErrCodeGenerationTimeout, engineerrors.ErrCodeGenerationFailed, engineerrors.ErrCodeDeliveryFailed:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
