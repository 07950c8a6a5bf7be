package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/subpilot/subpilot/plugin/engine/lifecycle"
	"github.com/subpilot/subpilot/server/middleware"
	"github.com/subpilot/subpilot/store"
)

type actionResponse struct {
	UID          string            `json:"uid"`
	SubscriberID string            `json:"subscriber_id"`
	AgentType    store.AgentType   `json:"agent_type"`
	Trigger      string            `json:"trigger"`
	ActionType   string            `json:"action_type"`
	Description  string            `json:"description"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Taken        store.ActionTaken `json:"taken"`
	Confidence   float64           `json:"confidence"`
	Status       string            `json:"status"`

	CreatedTs     int64  `json:"created_ts"`
	ApprovedTs    *int64 `json:"approved_ts,omitempty"`
	RejectedTs    *int64 `json:"rejected_ts,omitempty"`
	ExecutedTs    *int64 `json:"executed_ts,omitempty"`
	ExpiredTs     *int64 `json:"expired_ts,omitempty"`
	RejectReason  string `json:"reject_reason,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func toActionResponse(action *store.AgentAction) *actionResponse {
	return &actionResponse{
		UID:           action.UID,
		SubscriberID:  action.SubscriberID,
		AgentType:     action.AgentType,
		Trigger:       action.Trigger,
		ActionType:    action.ActionType,
		Description:   action.Description,
		Subject:       action.Subject,
		Body:          action.Body,
		Taken:         action.Taken,
		Confidence:    action.Confidence,
		Status:        string(action.Status),
		CreatedTs:     action.CreatedTs,
		ApprovedTs:    action.ApprovedTs,
		RejectedTs:    action.RejectedTs,
		ExecutedTs:    action.ExecutedTs,
		ExpiredTs:     action.ExpiredTs,
		RejectReason:  action.RejectReason,
		FailureReason: action.FailureReason,
	}
}

// ListActions returns the caller's actions, optionally filtered by status and
// subscriber.
func (s *APIV1Service) ListActions(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	find := &store.FindAgentAction{UserID: &userID, Limit: 50}
	if v := c.QueryParam("status"); v != "" {
		status := store.ActionStatus(v)
		find.Status = &status
	}
	if v := c.QueryParam("subscriber_id"); v != "" {
		find.SubscriberID = &v
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		find.Limit = limit
	}

	actions, err := s.store.ListAgentActions(c.Request().Context(), find)
	if err != nil {
		return httpError(err)
	}

	out := make([]*actionResponse, 0, len(actions))
	for _, action := range actions {
		out = append(out, toActionResponse(action))
	}
	return c.JSON(http.StatusOK, out)
}

// GetAction returns one action owned by the caller.
func (s *APIV1Service) GetAction(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	uid := c.Param("uid")

	action, err := s.store.GetAgentAction(c.Request().Context(), &store.FindAgentAction{UID: &uid, UserID: &userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "action not found")
	}
	return c.JSON(http.StatusOK, toActionResponse(action))
}

// ApproveAction approves a pending action and executes it.
func (s *APIV1Service) ApproveAction(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	action, err := s.lifecycle.Approve(c.Request().Context(), userID, c.Param("uid"))
	if err != nil && action == nil {
		return httpError(err)
	}
	// A delivery failure still returns the action: it is FAILED and retryable.
	return c.JSON(http.StatusOK, toActionResponse(action))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectAction rejects a pending action.
func (s *APIV1Service) RejectAction(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	action, err := s.lifecycle.Reject(c.Request().Context(), userID, c.Param("uid"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toActionResponse(action))
}

type modifyRequest struct {
	DiscountPercent float64 `json:"discount_percent"`
	Tone            string  `json:"tone"`
	CustomNote      string  `json:"custom_note"`
}

// ModifyAction adjusts a pending action's parameters and regenerates its
// content. The action stays pending.
func (s *APIV1Service) ModifyAction(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	var req modifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	action, err := s.lifecycle.Modify(c.Request().Context(), userID, c.Param("uid"), &lifecycle.Overrides{
		DiscountPercent: req.DiscountPercent,
		Tone:            req.Tone,
		CustomNote:      req.CustomNote,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toActionResponse(action))
}

// RetryAction re-executes a failed action.
func (s *APIV1Service) RetryAction(c echo.Context) error {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	action, err := s.lifecycle.Retry(c.Request().Context(), userID, c.Param("uid"))
	if err != nil && action == nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toActionResponse(action))
}
