package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/subpilot/subpilot/server/middleware"
	"github.com/subpilot/subpilot/store"
)

// agentTypeParam parses and validates the agent_type query parameter.
func agentTypeParam(c echo.Context) (store.AgentType, error) {
	agentType := store.AgentType(c.QueryParam("agent_type"))
	if err := agentType.Validate(); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return agentType, nil
}

// GetLearningStats returns learning progress for one agent type.
func (s *APIV1Service) GetLearningStats(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	agentType, err := agentTypeParam(c)
	if err != nil {
		return err
	}

	stats, err := s.learning.GetLearningStats(c.Request().Context(), userID, agentType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetTriggerInsights returns the ranked patterns for one trigger together
// with the sample sizes backing them.
func (s *APIV1Service) GetTriggerInsights(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	agentType, err := agentTypeParam(c)
	if err != nil {
		return err
	}

	insights, err := s.learning.GetTriggerInsights(c.Request().Context(), userID, agentType, c.Param("trigger"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, insights)
}

type feedbackRequest struct {
	SubscriberID string `json:"subscriber_id"`
	FeedbackType string `json:"feedback_type"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

// RecordFeedback stores operator feedback about a subscriber.
func (s *APIV1Service) RecordFeedback(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.SubscriberID == "" || req.FeedbackType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subscriber_id and feedback_type are required")
	}

	feedback, err := s.learning.RecordFeedback(c.Request().Context(), &store.Feedback{
		UserID:       userID,
		SubscriberID: req.SubscriberID,
		FeedbackType: req.FeedbackType,
		Rating:       req.Rating,
		Comment:      req.Comment,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, feedback)
}
