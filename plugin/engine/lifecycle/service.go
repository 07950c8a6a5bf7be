package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/generation"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// Service exposes the human-facing lifecycle operations. Every operation
// verifies that the caller owns the action before touching it.
type Service struct {
	store     *store.Store
	generator generation.Generator
	memory    memory.MemoryService
	executor  *Executor
}

// NewService creates the lifecycle service.
func NewService(s *store.Store, generator generation.Generator, mem memory.MemoryService, executor *Executor) *Service {
	return &Service{
		store:     s,
		generator: generator,
		memory:    mem,
		executor:  executor,
	}
}

// Executor returns the underlying executor.
func (s *Service) Executor() *Executor {
	return s.executor
}

// Approve transitions a pending action to APPROVED and executes it. The
// returned action carries the post-execution status (EXECUTED, or FAILED with
// a reason when delivery failed).
func (s *Service) Approve(ctx context.Context, userID int32, actionUID string) (*store.AgentAction, error) {
	action, err := s.getOwnedAction(ctx, userID, actionUID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(action.Status, store.ActionStatusApproved) {
		return nil, engineerrors.InvalidTransition("action is not pending approval").
			WithContext("status", string(action.Status))
	}

	now := time.Now().Unix()
	approved, err := s.store.UpdateAgentActionStatus(ctx, &store.UpdateAgentActionStatus{
		ID:             action.ID,
		ExpectedStatus: store.ActionStatusPendingApproval,
		Status:         store.ActionStatusApproved,
		ApprovedTs:     &now,
		ApproverID:     &userID,
	})
	if err != nil {
		return nil, mapStatusErr(err)
	}

	slog.Info("action approved",
		"action_uid", approved.UID,
		"approver_id", userID)

	executed, execErr := s.executor.Execute(ctx, approved.ID)
	if executed != nil {
		return executed, execErr
	}
	return approved, execErr
}

// Reject transitions a pending action to REJECTED with an optional reason.
func (s *Service) Reject(ctx context.Context, userID int32, actionUID, reason string) (*store.AgentAction, error) {
	action, err := s.getOwnedAction(ctx, userID, actionUID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(action.Status, store.ActionStatusRejected) {
		return nil, engineerrors.InvalidTransition("action is not pending approval").
			WithContext("status", string(action.Status))
	}

	now := time.Now().Unix()
	rejected, err := s.store.UpdateAgentActionStatus(ctx, &store.UpdateAgentActionStatus{
		ID:             action.ID,
		ExpectedStatus: store.ActionStatusPendingApproval,
		Status:         store.ActionStatusRejected,
		RejectedTs:     &now,
		ApproverID:     &userID,
		RejectReason:   &reason,
	})
	if err != nil {
		return nil, mapStatusErr(err)
	}

	slog.Info("action rejected",
		"action_uid", rejected.UID,
		"approver_id", userID)
	return rejected, nil
}

// Overrides are the operator-supplied adjustments for a modify request.
// Zero values mean "unchanged".
type Overrides struct {
	DiscountPercent float64
	Tone            string
	CustomNote      string
}

// Modify adjusts a pending action's parameters and regenerates its content.
// The status is unchanged: the modified action still requires approval.
func (s *Service) Modify(ctx context.Context, userID int32, actionUID string, overrides *Overrides) (*store.AgentAction, error) {
	action, err := s.getOwnedAction(ctx, userID, actionUID)
	if err != nil {
		return nil, err
	}
	if action.Status != store.ActionStatusPendingApproval {
		return nil, engineerrors.InvalidTransition("only pending actions can be modified").
			WithContext("status", string(action.Status))
	}

	taken := action.Taken
	if overrides.DiscountPercent > 0 {
		config, err := s.store.GetOrCreateAgentConfig(ctx, userID, action.AgentType)
		if err != nil {
			return nil, err
		}
		rule := config.RuleFor(taken.ActionType)
		if rule != nil && rule.MaxDiscountPercent > 0 && overrides.DiscountPercent > rule.MaxDiscountPercent {
			return nil, engineerrors.InvalidArgument("discount exceeds rule maximum").
				WithContext("max_discount_percent", rule.MaxDiscountPercent)
		}
		taken.Details.DiscountPercent = overrides.DiscountPercent
	}
	if overrides.Tone != "" {
		taken.Details.Tone = overrides.Tone
	}
	if overrides.CustomNote != "" {
		taken.Details.CustomNote = overrides.CustomNote
	}

	summary, err := s.memory.SummarizeMemories(ctx, userID, action.SubscriberID, timeout.MaxSummaryLength)
	if err != nil {
		slog.Warn("memory summary unavailable for modify", "action_uid", action.UID, "error", err)
		summary = ""
	}
	brand, err := s.store.GetBrandSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	req := &generation.Request{
		UserID:        userID,
		AgentType:     action.AgentType,
		Trigger:       action.Trigger,
		SubscriberID:  action.SubscriberID,
		Action:        taken,
		MemorySummary: summary,
		Brand:         brand,
		CustomNote:    overrides.CustomNote,
	}
	if situation := s.situationSnapshot(ctx, action); situation != nil {
		req.SubscriberName = situation.Attributes["name"]
		req.SubscriberEmail = situation.Attributes["email"]
		req.Plan = situation.Plan
		req.MonthlyRevenueCents = situation.MonthlyRevenueCents
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
	defer cancel()
	content, err := s.generator.Generate(genCtx, req)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateAgentActionContent(ctx, &store.UpdateAgentActionContent{
		ID:          action.ID,
		Subject:     content.Subject,
		Body:        content.Body,
		Description: action.Description,
		Taken:       taken,
	})
	if err != nil {
		return nil, mapStatusErr(err)
	}

	slog.Info("action modified",
		"action_uid", updated.UID,
		"approver_id", userID)
	return updated, nil
}

// Retry re-executes a FAILED action.
func (s *Service) Retry(ctx context.Context, userID int32, actionUID string) (*store.AgentAction, error) {
	action, err := s.getOwnedAction(ctx, userID, actionUID)
	if err != nil {
		return nil, err
	}
	if action.Status != store.ActionStatusFailed {
		return nil, engineerrors.InvalidTransition("only failed actions can be retried").
			WithContext("status", string(action.Status))
	}
	return s.executor.Execute(ctx, action.ID)
}

// situationSnapshot loads the decision-time situation recorded on the
// action's episode. Best effort: a missing or malformed snapshot only costs
// the regenerated draft its subscriber context.
func (s *Service) situationSnapshot(ctx context.Context, action *store.AgentAction) *reasoning.Situation {
	if action.EpisodeUID == "" {
		return nil
	}
	episode, err := s.store.GetEpisode(ctx, &store.FindEpisode{UID: &action.EpisodeUID})
	if err != nil {
		slog.Warn("situation snapshot unavailable", "action_uid", action.UID, "error", err)
		return nil
	}
	var situation reasoning.Situation
	if err := json.Unmarshal([]byte(episode.SituationJSON), &situation); err != nil {
		slog.Warn("malformed situation snapshot", "action_uid", action.UID, "error", err)
		return nil
	}
	return &situation
}

// getOwnedAction loads an action and verifies the caller owns it. A foreign
// action is reported as unauthorized, not as not-found, to keep the audit
// trail honest.
func (s *Service) getOwnedAction(ctx context.Context, userID int32, actionUID string) (*store.AgentAction, error) {
	action, err := s.store.GetAgentAction(ctx, &store.FindAgentAction{UID: &actionUID})
	if err != nil {
		if isStoreErr(err, store.ErrNotFound) {
			return nil, engineerrors.NotFound("action not found")
		}
		return nil, err
	}
	if action.UserID != userID {
		return nil, engineerrors.Unauthorized("action belongs to another user")
	}
	return action, nil
}

func isStoreErr(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
