package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/subpilot/subpilot/plugin/engine/orchestrator"
	"github.com/subpilot/subpilot/internal/observability"
	"github.com/subpilot/subpilot/server/middleware"
)

type eventRequest struct {
	Type         string           `json:"type"`
	SubscriberID string           `json:"subscriber_id"`
	Data         eventDataRequest `json:"data"`
}

type eventDataRequest struct {
	SubscriberName      string            `json:"subscriber_name"`
	SubscriberEmail     string            `json:"subscriber_email"`
	Plan                string            `json:"plan"`
	TenureDays          int               `json:"tenure_days"`
	InteractionCount    int               `json:"interaction_count"`
	MonthlyRevenueCents int64             `json:"monthly_revenue_cents"`
	Extra               map[string]string `json:"extra"`
}

type eventResponse struct {
	Action     *actionResponse `json:"action,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// HandleEvent ingests one billing event. Policy skips are 200 responses with
// a skip reason; only infrastructure failures produce error statuses.
func (s *APIV1Service) HandleEvent(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Type == "" || req.SubscriberID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type and subscriber_id are required")
	}

	event := &orchestrator.Event{
		Type:         req.Type,
		UserID:       userID,
		SubscriberID: req.SubscriberID,
		Data: orchestrator.EventData{
			SubscriberName:      req.Data.SubscriberName,
			SubscriberEmail:     req.Data.SubscriberEmail,
			Plan:                req.Data.Plan,
			TenureDays:          req.Data.TenureDays,
			InteractionCount:    req.Data.InteractionCount,
			MonthlyRevenueCents: req.Data.MonthlyRevenueCents,
			Extra:               req.Data.Extra,
		},
	}

	metrics := observability.GlobalMetrics()
	agentType, _ := orchestrator.AgentTypeForEvent(req.Type)
	reqCtx := observability.NewRequestContext(userID, req.Type)
	ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)

	result, err := s.orchestrator.HandleEvent(ctx, event)
	metrics.RecordEvent(string(agentType))
	metrics.RecordDuration(string(agentType), reqCtx.Duration())
	if err != nil {
		metrics.RecordFailure(string(agentType))
		return httpError(err)
	}

	if result.Skipped() {
		metrics.RecordSkip(result.SkipReason)
		return c.JSON(http.StatusOK, &eventResponse{SkipReason: result.SkipReason})
	}

	metrics.RecordActionCreated(string(agentType))
	return c.JSON(http.StatusOK, &eventResponse{Action: toActionResponse(result.Action)})
}

// GetMetrics returns the in-process engine counters.
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, observability.GlobalMetrics().Snapshot())
}
