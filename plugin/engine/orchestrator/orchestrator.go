package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/generation"
	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/lifecycle"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/internal/observability"
	"github.com/subpilot/subpilot/server/timezone"
	"github.com/subpilot/subpilot/store"
)

// Service coordinates one event end to end: policy gates, reasoning, content
// generation, the atomic pending insert, and the confidence policy.
type Service struct {
	store     *store.Store
	memory    memory.MemoryService
	learning  *learning.Service
	reasoner  *reasoning.Engine
	generator generation.Generator
	lifecycle *lifecycle.Service
	deliverer delivery.Deliverer
	guard     *guardEvaluator

	now func() time.Time
}

// NewService creates the orchestrator.
func NewService(
	s *store.Store,
	mem memory.MemoryService,
	learn *learning.Service,
	reasoner *reasoning.Engine,
	generator generation.Generator,
	lc *lifecycle.Service,
	deliverer delivery.Deliverer,
) (*Service, error) {
	guard, err := newGuardEvaluator()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     s,
		memory:    mem,
		learning:  learn,
		reasoner:  reasoner,
		generator: generator,
		lifecycle: lc,
		deliverer: deliverer,
		guard:     guard,
		now:       time.Now,
	}, nil
}

// WithNow overrides the clock. Used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// HandleEvent processes one inbound event. Policy outcomes (unknown event
// type, inactive agent, violated limit, duplicate) come back as a skip
// reason, not an error. Every invocation is logged either way.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (*Result, error) {
	result, err := s.handle(ctx, event)

	fields := []any{
		"event_type", event.Type,
		"user_id", event.UserID,
		"subscriber_id", event.SubscriberID,
	}
	if id := observability.RequestID(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}

	switch {
	case err != nil:
		slog.Error("event handling failed", append(fields, "error", err)...)
	case result.Skipped():
		slog.Info("event skipped", append(fields, "reason", result.SkipReason)...)
	default:
		slog.Info("event produced action", append(fields,
			"action_uid", result.Action.UID,
			"action_type", result.Action.ActionType,
			"status", string(result.Action.Status))...)
	}
	return result, err
}

func (s *Service) handle(ctx context.Context, event *Event) (*Result, error) {
	// Outcome signals close open episodes before anything else, so a
	// subscriber who already recovered or canceled feeds learning even when
	// the event itself produces no new action.
	if resolved, err := s.learning.ResolveFromPaymentEvent(ctx, event.UserID, event.SubscriberID, event.Type); err != nil {
		slog.Warn("outcome signal resolution failed",
			"event_type", event.Type, "subscriber_id", event.SubscriberID, "error", err)
	} else if resolved > 0 {
		slog.Info("episodes resolved from outcome signal",
			"event_type", event.Type, "subscriber_id", event.SubscriberID, "count", resolved)
	}

	agentType, ok := AgentTypeForEvent(event.Type)
	if !ok {
		return &Result{SkipReason: SkipNoMatchingAgent}, nil
	}
	if event.SubscriberID == "" {
		return nil, engineerrors.InvalidArgument("event has no subscriber")
	}

	config, err := s.store.GetOrCreateAgentConfig(ctx, event.UserID, agentType)
	if err != nil {
		return nil, err
	}
	if !config.Active {
		return &Result{SkipReason: SkipAgentInactive}, nil
	}

	// Policy gates run before reasoning in the config's timezone.
	tz, err := timezone.ParseTimezone(config.Timezone)
	if err != nil {
		slog.Warn("invalid config timezone, using UTC",
			"user_id", event.UserID, "timezone", config.Timezone)
	}
	now := s.now()
	if !timezone.InSendWindow(now, tz, config.SendHourStart, config.SendHourEnd, config.ExcludeWeekends) {
		return &Result{SkipReason: SkipOutsideSendWindow}, nil
	}

	limits := &store.ActionLimits{
		MaxActionsPerDay:           config.MaxActionsPerDay,
		MaxEmailsPerSubscriberWeek: config.MaxEmailsPerSubscriberWeek,
		MaxOffersPerSubscriberYear: config.MaxOffersPerSubscriberYear,
		DayStartTs:                 timezone.StartOfDay(now, tz).Unix(),
		WeekStartTs:                timezone.StartOfWeek(now, tz).Unix(),
		YearStartTs:                timezone.StartOfYear(now, tz).Unix(),
	}
	if skip, err := s.checkLimits(ctx, event, limits); err != nil || skip != nil {
		return skip, err
	}

	situation := s.buildSituation(event, agentType)
	brand, err := s.store.GetBrandSettings(ctx, event.UserID)
	if err != nil {
		return nil, err
	}

	decision, err := s.reasoner.Reason(ctx, situation, config, brand)
	if err != nil {
		return nil, err
	}

	summary, err := s.memory.SummarizeMemories(ctx, event.UserID, event.SubscriberID, timeout.MaxSummaryLength)
	if err != nil {
		slog.Warn("memory summary unavailable", "subscriber_id", event.SubscriberID, "error", err)
		summary = ""
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
	content, err := s.generator.Generate(genCtx, &generation.Request{
		UserID:              event.UserID,
		AgentType:           agentType,
		Trigger:             event.Type,
		SubscriberID:        event.SubscriberID,
		Action:              decision.Action,
		SubscriberName:      event.Data.SubscriberName,
		SubscriberEmail:     event.Data.SubscriberEmail,
		Plan:                event.Data.Plan,
		MonthlyRevenueCents: event.Data.MonthlyRevenueCents,
		MemorySummary:       summary,
		Brand:               brand,
	})
	cancel()
	if err != nil {
		return nil, err
	}

	episodeUID := shortuuid.New()
	action, err := s.store.CreatePendingAgentAction(ctx, &store.AgentAction{
		UID:          shortuuid.New(),
		UserID:       event.UserID,
		SubscriberID: event.SubscriberID,
		AgentType:    agentType,
		Trigger:      event.Type,
		ActionType:   decision.Action.ActionType,
		Description:  describeAction(agentType, decision.Action),
		Subject:      content.Subject,
		Body:         content.Body,
		Taken:        decision.Action,
		Confidence:   decision.Confidence,
		EpisodeUID:   episodeUID,
		CreatedTs:    now.Unix(),
	}, limits)
	if err != nil {
		return s.mapInsertErr(err)
	}

	if err := s.recordEpisode(ctx, episodeUID, situation, decision); err != nil {
		// The action exists and is reviewable; learning just loses one sample.
		slog.Error("episode record failed", "action_uid", action.UID, "error", err)
	}
	if err := s.memory.StoreInteraction(ctx, event.UserID, event.SubscriberID,
		fmt.Sprintf("proposed %s (%s) on %s", decision.Action.ActionType, decision.Action.Strategy, event.Type)); err != nil {
		slog.Warn("interaction memory write failed", "subscriber_id", event.SubscriberID, "error", err)
	}

	return s.applyConfidencePolicy(ctx, config, decision, action)
}

// checkLimits short-circuits before reasoning. The daily cap gates every
// action; the weekly per-subscriber email cap gates everything too, since all
// action types reach the subscriber by email. The yearly offer cap depends on
// the chosen action type and is enforced atomically at insert.
func (s *Service) checkLimits(ctx context.Context, event *Event, limits *store.ActionLimits) (*Result, error) {
	daily, err := s.store.CountActionsCreatedSince(ctx, event.UserID, limits.DayStartTs)
	if err != nil {
		return nil, err
	}
	if daily >= limits.MaxActionsPerDay {
		return &Result{SkipReason: skipLimitExceeded("daily_actions")}, nil
	}

	weekly, err := s.store.CountSubscriberActionsSince(ctx, event.SubscriberID, store.EmailActionTypes, limits.WeekStartTs)
	if err != nil {
		return nil, err
	}
	if weekly >= limits.MaxEmailsPerSubscriberWeek {
		return &Result{SkipReason: skipLimitExceeded("weekly_subscriber_emails")}, nil
	}
	return nil, nil
}

func (s *Service) buildSituation(event *Event, agentType store.AgentType) *reasoning.Situation {
	attributes := map[string]string{
		"email": event.Data.SubscriberEmail,
		"name":  event.Data.SubscriberName,
	}
	for k, v := range event.Data.Extra {
		attributes[k] = v
	}
	return &reasoning.Situation{
		UserID:              event.UserID,
		SubscriberID:        event.SubscriberID,
		AgentType:           agentType,
		Trigger:             event.Type,
		TenureDays:          event.Data.TenureDays,
		InteractionCount:    event.Data.InteractionCount,
		MonthlyRevenueCents: event.Data.MonthlyRevenueCents,
		Plan:                event.Data.Plan,
		Attributes:          attributes,
	}
}

func (s *Service) recordEpisode(ctx context.Context, uid string, situation *reasoning.Situation, decision *reasoning.Decision) error {
	raw, err := json.Marshal(situation)
	if err != nil {
		return err
	}
	_, err = s.learning.RecordEpisode(ctx, &store.Episode{
		UID:           uid,
		UserID:        situation.UserID,
		SubscriberID:  situation.SubscriberID,
		AgentType:     situation.AgentType,
		Trigger:       situation.Trigger,
		SituationJSON: string(raw),
		Taken:         decision.Action,
	})
	return err
}

func (s *Service) mapInsertErr(err error) (*Result, error) {
	if errors.Is(err, store.ErrAlreadyPending) {
		return &Result{SkipReason: SkipAlreadyPending}, nil
	}
	var limitErr *store.LimitExceededError
	if errors.As(err, &limitErr) {
		return &Result{SkipReason: skipLimitExceeded(limitErr.Limit)}, nil
	}
	return nil, err
}

// applyConfidencePolicy auto-approves and executes the action when the config
// allows it. Auto-approval requires a rule that does not demand human review,
// confidence at or above the threshold, and a passing guard expression.
// Under auto_with_copy the owner additionally receives a copy.
func (s *Service) applyConfidencePolicy(ctx context.Context, config *store.AgentConfig, decision *reasoning.Decision, action *store.AgentAction) (*Result, error) {
	if config.ConfidencePolicy == store.ConfidencePolicyReviewAll {
		return &Result{Action: action}, nil
	}
	rule := config.RuleFor(action.ActionType)
	if rule == nil || rule.RequiresApproval {
		return &Result{Action: action}, nil
	}
	if decision.Confidence < config.AutoApproveThreshold {
		return &Result{Action: action}, nil
	}

	pass, err := s.guard.Eval(config.AutoApproveGuard, decision.Confidence, decision.Action)
	if err != nil {
		// Fail closed: a broken guard sends the action to human review.
		slog.Warn("auto-approve guard failed, routing to review",
			"action_uid", action.UID, "error", err)
		return &Result{Action: action}, nil
	}
	if !pass {
		return &Result{Action: action}, nil
	}

	executed, err := s.lifecycle.Approve(ctx, action.UserID, action.UID)
	if executed == nil {
		return &Result{Action: action}, err
	}
	if err != nil {
		// Delivery failed; the action is FAILED and retryable.
		return &Result{Action: executed}, nil
	}

	if config.ConfidencePolicy == store.ConfidencePolicyAutoWithCopy {
		s.sendOwnerCopy(ctx, executed)
	}
	return &Result{Action: executed}, nil
}

// sendOwnerCopy emails the owner a copy of an auto-approved action. Best
// effort: a failure is logged and never affects the executed action.
func (s *Service) sendOwnerCopy(ctx context.Context, action *store.AgentAction) {
	user, err := s.store.GetUser(ctx, &store.FindUser{ID: &action.UserID})
	if err != nil {
		slog.Warn("owner copy skipped: owner lookup failed",
			"action_uid", action.UID, "error", err)
		return
	}
	err = s.deliverer.Deliver(ctx, &delivery.Message{
		To:      user.Email,
		ToName:  user.DisplayName,
		Subject: fmt.Sprintf("[auto-approved] %s", action.Subject),
		Body: fmt.Sprintf("This %s action for subscriber `%s` was auto-approved and sent.\n\n---\n\n%s",
			action.ActionType, action.SubscriberID, action.Body),
	})
	if err != nil {
		slog.Warn("owner copy delivery failed", "action_uid", action.UID, "error", err)
	}
}

func describeAction(agentType store.AgentType, taken store.ActionTaken) string {
	switch taken.ActionType {
	case store.ActionTypeDiscountOffer:
		return fmt.Sprintf("%s: offer %.0f%% off for %d months (%s)",
			agentType, taken.Details.DiscountPercent, taken.Details.DiscountMonths, taken.Strategy)
	case store.ActionTypePauseOffer:
		return fmt.Sprintf("%s: offer a %d-day pause (%s)", agentType, taken.Details.PauseDays, taken.Strategy)
	case store.ActionTypeTrialExtension:
		return fmt.Sprintf("%s: extend trial by %d days (%s)", agentType, taken.Details.ExtensionDays, taken.Strategy)
	default:
		return fmt.Sprintf("%s: send %s email (%s)", agentType, taken.Details.Tone, taken.Strategy)
	}
}
