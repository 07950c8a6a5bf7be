package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// Confidence bounds. Reasoning never claims certainty and never claims zero.
const (
	MinConfidence = 0.05
	MaxConfidence = 0.99
)

// minPatternScore is the score below which a learned pattern is not trusted
// over the configured strategy.
const minPatternScore = 0.15

// fallbackPenalty scales confidence down when rule validation had to replace
// the preferred action with a different allowed one.
const fallbackPenalty = 0.8

// PatternProvider supplies ranked patterns per trigger plus the subscriber's
// feedback bias. Satisfied by *learning.Service.
type PatternProvider interface {
	GetTriggerInsights(ctx context.Context, userID int32, agentType store.AgentType, trigger string) (*learning.TriggerInsights, error)
	FeedbackBias(ctx context.Context, userID int32, subscriberID string) (float64, error)
}

// Engine runs the five-stage decision pipeline.
type Engine struct {
	memory   memory.MemoryService
	patterns PatternProvider
}

// NewEngine creates a reasoning engine.
func NewEngine(mem memory.MemoryService, patterns PatternProvider) *Engine {
	return &Engine{memory: mem, patterns: patterns}
}

// Reason produces a decision for a situation under a config and brand. The
// returned decision always satisfies the config's rule set.
func (e *Engine) Reason(ctx context.Context, situation *Situation, config *store.AgentConfig, brand *store.BrandSettings) (*Decision, error) {
	if situation == nil || config == nil {
		return nil, engineerrors.InvalidArgument("situation and config are required")
	}
	if len(config.Rules) == 0 {
		return nil, engineerrors.InvalidArgument("config has no allowed action types")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.ReasoningTimeout)
	defer cancel()

	decision := &Decision{}
	stepNum := 0
	trace := func(t StepType, started time.Time, rationale string) {
		stepNum++
		decision.Trace = append(decision.Trace, Step{
			Number:    stepNum,
			Type:      t,
			Rationale: rationale,
			Duration:  time.Since(started),
		})
	}

	// Stage 1: retrieval.
	started := time.Now()
	summary, err := e.memory.SummarizeMemories(ctx, situation.UserID, situation.SubscriberID, timeout.MaxSummaryLength)
	if err != nil {
		slog.Warn("memory retrieval failed, reasoning without history",
			"subscriber", situation.SubscriberID, "error", err)
		summary = ""
	}
	insights, err := e.patterns.GetTriggerInsights(ctx, situation.UserID, situation.AgentType, situation.Trigger)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeInvalidArgument, "pattern retrieval failed")
	}
	trace(StepRetrieval, started, fmt.Sprintf("retrieved %d chars of memory, %d patterns for trigger %s",
		len(summary), len(insights.Patterns), situation.Trigger))

	// Stage 2: strategy selection.
	started = time.Now()
	chosen, rationale := selectStrategy(config, insights.Patterns)
	trace(StepStrategy, started, rationale)

	// Stage 3: brand shaping.
	started = time.Now()
	tone := shapeTone(config, brand)
	chosen.Details.Tone = tone
	trace(StepBrandShaping, started, "tone set to "+tone)

	// Stage 4: confidence scoring.
	started = time.Now()
	bias, err := e.patterns.FeedbackBias(ctx, situation.UserID, situation.SubscriberID)
	if err != nil {
		slog.Warn("feedback bias unavailable, scoring without it",
			"subscriber", situation.SubscriberID, "error", err)
		bias = 0
	}
	confidence, confRationale := scoreConfidence(situation, insights.Patterns, chosen.Strategy, bias)
	trace(StepConfidence, started, confRationale)

	// Stage 5: rule validation with fallback.
	started = time.Now()
	validated, fellBack, valRationale := validate(chosen, config)
	if fellBack {
		confidence *= fallbackPenalty
	}
	trace(StepRuleValidation, started, valRationale)

	decision.Action = validated
	decision.Confidence = clamp(confidence)
	return decision, nil
}

// selectStrategy prefers the best learned pattern when its score clears the
// trust floor; otherwise it uses the configured strategy template.
func selectStrategy(config *store.AgentConfig, patterns []*store.Pattern) (store.ActionTaken, string) {
	if len(patterns) > 0 && patterns[0].Score >= minPatternScore {
		best := patterns[0]
		taken := actionForStrategy(best.Strategy, config)
		if best.ActionType != "" {
			taken.ActionType = best.ActionType
		}
		return taken, fmt.Sprintf("pattern %s scored %.2f over %d samples", best.Strategy, best.Score, best.SampleSize)
	}

	template := config.Strategy.Template
	if template == "" {
		template = "gentle_nudge"
	}
	taken := actionForStrategy(template, config)
	return taken, "no trusted pattern, using configured strategy " + template
}

// actionForStrategy maps a strategy template to its action type and typed
// parameters.
func actionForStrategy(template string, config *store.AgentConfig) store.ActionTaken {
	taken := store.ActionTaken{Strategy: template}
	switch template {
	case "discount_ladder":
		taken.ActionType = store.ActionTypeDiscountOffer
		percent := config.Strategy.DiscountPercent
		if percent <= 0 {
			percent = 15
		}
		taken.Details.DiscountPercent = percent
		taken.Details.DiscountMonths = 3
	case "pause_first":
		taken.ActionType = store.ActionTypePauseOffer
		days := config.Strategy.PauseDays
		if days <= 0 {
			days = 30
		}
		taken.Details.PauseDays = days
	default:
		// gentle_nudge, value_first, urgency all lead with an email.
		taken.ActionType = store.ActionTypeEmail
	}
	return taken
}

// shapeTone resolves the tone: strategy override first, then brand, then a
// neutral default.
func shapeTone(config *store.AgentConfig, brand *store.BrandSettings) string {
	if config.Strategy.Tone != "" {
		return config.Strategy.Tone
	}
	if brand != nil && brand.Tone != "" {
		return brand.Tone
	}
	return "friendly"
}

// scoreConfidence combines the matching pattern's weighted score with
// subscriber signals and the feedback bias. Deterministic by construction.
func scoreConfidence(situation *Situation, patterns []*store.Pattern, strategy string, feedbackBias float64) (float64, string) {
	base := 0.35
	patternPart := 0.0
	for _, p := range patterns {
		if p.Strategy == strategy {
			patternPart = p.Score * 0.5
			break
		}
	}

	// Subscriber signals: long tenure and an interaction history make the
	// outcome more predictable; very high MRR warrants caution.
	signal := 0.0
	signal += minf(float64(situation.TenureDays)/365.0, 1.0) * 0.06
	signal += minf(float64(situation.InteractionCount)/20.0, 1.0) * 0.06
	if situation.MonthlyRevenueCents >= 50000 {
		signal -= 0.05
	}

	conf := base + patternPart + signal + feedbackBias
	return conf, fmt.Sprintf("base %.2f + pattern %.2f + signals %.2f + feedback %.2f",
		base, patternPart, signal, feedbackBias)
}

// validate enforces the rule set: if the chosen action type is not allowed,
// fall back to the best allowed candidate; clamp offer parameters to rule
// maxima.
func validate(taken store.ActionTaken, config *store.AgentConfig) (store.ActionTaken, bool, string) {
	fellBack := false
	rule := config.RuleFor(taken.ActionType)
	if rule == nil {
		fallback := fallbackAction(config)
		fallback.Strategy = taken.Strategy
		fallback.Details.Tone = taken.Details.Tone
		taken = fallback
		rule = config.RuleFor(taken.ActionType)
		fellBack = true
	}

	rationale := "action type " + taken.ActionType + " allowed by rule set"
	if fellBack {
		rationale = "preferred action disallowed, fell back to " + taken.ActionType
	}

	if rule != nil && rule.MaxDiscountPercent > 0 && taken.Details.DiscountPercent > rule.MaxDiscountPercent {
		taken.Details.DiscountPercent = rule.MaxDiscountPercent
		rationale += fmt.Sprintf("; discount clamped to %.0f%%", rule.MaxDiscountPercent)
	}
	return taken, fellBack, rationale
}

// fallbackAction picks the safest allowed action: email when permitted,
// otherwise the first rule in configured order.
func fallbackAction(config *store.AgentConfig) store.ActionTaken {
	if config.AllowsActionType(store.ActionTypeEmail) {
		return store.ActionTaken{ActionType: store.ActionTypeEmail}
	}
	first := config.Rules[0].ActionType
	taken := store.ActionTaken{ActionType: first}
	switch first {
	case store.ActionTypeDiscountOffer:
		taken.Details.DiscountPercent = 10
		taken.Details.DiscountMonths = 1
	case store.ActionTypePauseOffer:
		taken.Details.PauseDays = 30
	case store.ActionTypeTrialExtension:
		taken.Details.ExtensionDays = 7
	}
	return taken
}

func clamp(v float64) float64 {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
