package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// Executor performs approved actions. The action status is re-checked at the
// point of execution, so an action rejected or expired after approval was
// requested is never executed.
type Executor struct {
	store     *store.Store
	deliverer delivery.Deliverer
}

// NewExecutor creates an executor backed by the given deliverer.
func NewExecutor(s *store.Store, deliverer delivery.Deliverer) *Executor {
	return &Executor{store: s, deliverer: deliverer}
}

// Execute delivers one action. The action must currently be APPROVED, or
// FAILED for a retry. Delivery failure marks the action FAILED with a reason;
// it is never reported as EXECUTED.
func (e *Executor) Execute(ctx context.Context, actionID int64) (*store.AgentAction, error) {
	action, err := e.store.GetAgentAction(ctx, &store.FindAgentAction{ID: &actionID})
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeNotFound, "action not found")
	}

	if action.Status != store.ActionStatusApproved && action.Status != store.ActionStatusFailed {
		return nil, engineerrors.InvalidTransition("action is not executable").
			WithContext("status", string(action.Status))
	}
	expected := action.Status

	msg, err := e.buildMessage(ctx, action)
	if err != nil {
		return e.markFailed(ctx, action, expected, err)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, timeout.DeliveryTimeout)
	defer cancel()
	if err := e.deliverer.Deliver(deliverCtx, msg); err != nil {
		slog.Warn("action delivery failed",
			"action_uid", action.UID,
			"subscriber_id", action.SubscriberID,
			"error", err)
		return e.markFailed(ctx, action, expected, err)
	}

	now := time.Now().Unix()
	executed, err := e.store.UpdateAgentActionStatus(ctx, &store.UpdateAgentActionStatus{
		ID:             action.ID,
		ExpectedStatus: expected,
		Status:         store.ActionStatusExecuted,
		ExecutedTs:     &now,
	})
	if err != nil {
		return nil, mapStatusErr(err)
	}

	slog.Info("action executed",
		"action_uid", executed.UID,
		"subscriber_id", executed.SubscriberID,
		"action_type", executed.ActionType)
	return executed, nil
}

// markFailed records a delivery failure. A retry that fails again stays
// FAILED with the updated reason.
func (e *Executor) markFailed(ctx context.Context, action *store.AgentAction, expected store.ActionStatus, cause error) (*store.AgentAction, error) {
	reason := cause.Error()
	failed, err := e.store.UpdateAgentActionStatus(ctx, &store.UpdateAgentActionStatus{
		ID:             action.ID,
		ExpectedStatus: expected,
		Status:         store.ActionStatusFailed,
		FailureReason:  &reason,
	})
	if err != nil {
		return nil, mapStatusErr(err)
	}
	return failed, engineerrors.DeliveryFailed("action execution failed", cause)
}

// buildMessage resolves the recipient from the decision-time situation
// snapshot recorded on the action's episode.
func (e *Executor) buildMessage(ctx context.Context, action *store.AgentAction) (*delivery.Message, error) {
	if action.EpisodeUID == "" {
		return nil, engineerrors.InvalidArgument("action has no episode")
	}
	episode, err := e.store.GetEpisode(ctx, &store.FindEpisode{UID: &action.EpisodeUID})
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeNotFound, "episode not found")
	}

	var situation reasoning.Situation
	if err := json.Unmarshal([]byte(episode.SituationJSON), &situation); err != nil {
		return nil, engineerrors.InvalidArgument("malformed situation snapshot")
	}

	email := situation.Attributes["email"]
	if email == "" {
		return nil, engineerrors.InvalidArgument("subscriber has no email address")
	}

	return &delivery.Message{
		To:      email,
		ToName:  situation.Attributes["name"],
		Subject: action.Subject,
		Body:    action.Body,
	}, nil
}

// mapStatusErr converts store sentinel errors into engine errors.
func mapStatusErr(err error) error {
	switch {
	case err == nil:
		return nil
	case isStoreErr(err, store.ErrNotFound):
		return engineerrors.NotFound("action not found")
	case isStoreErr(err, store.ErrInvalidTransition):
		return engineerrors.InvalidTransition("action status changed concurrently")
	default:
		return err
	}
}
