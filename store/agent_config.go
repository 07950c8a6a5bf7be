package store

import (
	"fmt"
	"slices"
)

// AgentType identifies a policy-scoped decision maker for a category of
// subscriber lifecycle events.
type AgentType string

const (
	AgentTypeRecovery   AgentType = "recovery"
	AgentTypeRetention  AgentType = "retention"
	AgentTypeConversion AgentType = "conversion"
)

// Validate checks that the agent type is one of the known values.
func (t AgentType) Validate() error {
	switch t {
	case AgentTypeRecovery, AgentTypeRetention, AgentTypeConversion:
		return nil
	}
	return fmt.Errorf("unknown agent type: %s", t)
}

// ConfidencePolicy is the approval stringency for an agent.
type ConfidencePolicy string

const (
	// ConfidencePolicyReviewAll queues every action for human approval.
	ConfidencePolicyReviewAll ConfidencePolicy = "review_all"
	// ConfidencePolicyAutoWithCopy auto-approves above the configured
	// threshold but always sends the owner a copy.
	ConfidencePolicyAutoWithCopy ConfidencePolicy = "auto_with_copy"
	// ConfidencePolicyFullAuto auto-approves above the configured threshold
	// for action types whose rule does not require approval.
	ConfidencePolicyFullAuto ConfidencePolicy = "full_auto"
)

// ActionRule allows one action type for a config and controls its approval
// requirements. An action type absent from the rule set cannot be produced by
// reasoning for that config.
type ActionRule struct {
	ActionType         string  `json:"action_type"`
	RequiresApproval   bool    `json:"requires_approval"`
	MaxDiscountPercent float64 `json:"max_discount_percent,omitempty"`
}

// StrategyParams is the schema-validated strategy configuration for an agent.
// Unknown strategy templates are rejected at the configuration boundary, not
// at reasoning time.
type StrategyParams struct {
	Template        string  `json:"template"` // e.g. "gentle_nudge", "value_first", "discount_ladder"
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	PauseDays       int     `json:"pause_days,omitempty"`
	Tone            string  `json:"tone,omitempty"`
	FollowUpDays    int     `json:"follow_up_days,omitempty"`
}

// Validate checks the strategy parameters against the known templates.
func (p *StrategyParams) Validate() error {
	switch p.Template {
	case "", "gentle_nudge", "value_first", "discount_ladder", "pause_first", "urgency":
	default:
		return fmt.Errorf("unknown strategy template: %s", p.Template)
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return fmt.Errorf("discount percent out of range: %.1f", p.DiscountPercent)
	}
	if p.PauseDays < 0 || p.PauseDays > 180 {
		return fmt.Errorf("pause days out of range: %d", p.PauseDays)
	}
	return nil
}

// AgentConfig is the per-(user, agent type) policy configuration. It is a
// read-only input to the engine; only the owning user mutates it, and configs
// are deactivated, never deleted.
type AgentConfig struct {
	ID        int32
	UserID    int32
	AgentType AgentType
	Active    bool

	ConfidencePolicy ConfidencePolicy
	// AutoApproveThreshold is the minimum confidence for auto-approval under
	// auto_with_copy and full_auto. Product-configurable; the default is
	// deliberately conservative.
	AutoApproveThreshold float64
	// AutoApproveGuard is an optional CEL expression over
	// {confidence, action_type, discount_percent}; when set it must also
	// evaluate true for auto-approval.
	AutoApproveGuard string

	Strategy StrategyParams
	Rules    []ActionRule

	// Limits, evaluated in Timezone.
	MaxActionsPerDay           int
	MaxEmailsPerSubscriberWeek int
	MaxOffersPerSubscriberYear int
	SendHourStart              int // inclusive, 0-23
	SendHourEnd                int // exclusive, 1-24
	Timezone                   string
	ExcludeWeekends            bool

	CreatedTs int64
	UpdatedTs int64
}

// FindAgentConfig specifies the conditions for finding agent configs.
type FindAgentConfig struct {
	ID        *int32
	UserID    *int32
	AgentType *AgentType
}

// AllowsActionType reports whether the rule set contains the action type.
func (c *AgentConfig) AllowsActionType(actionType string) bool {
	return c.RuleFor(actionType) != nil
}

// RuleFor returns the rule for an action type, or nil if it is not allowed.
func (c *AgentConfig) RuleFor(actionType string) *ActionRule {
	for i := range c.Rules {
		if c.Rules[i].ActionType == actionType {
			return &c.Rules[i]
		}
	}
	return nil
}

// AllowedActionTypes returns the action types permitted by the rule set.
func (c *AgentConfig) AllowedActionTypes() []string {
	types := make([]string, 0, len(c.Rules))
	for _, rule := range c.Rules {
		if !slices.Contains(types, rule.ActionType) {
			types = append(types, rule.ActionType)
		}
	}
	return types
}

// DefaultAgentConfig returns the conservative lazily-created config for a
// (user, agent type) pair: inactive, review everything.
func DefaultAgentConfig(userID int32, agentType AgentType) *AgentConfig {
	return &AgentConfig{
		UserID:               userID,
		AgentType:            agentType,
		Active:               false,
		ConfidencePolicy:     ConfidencePolicyReviewAll,
		AutoApproveThreshold: 0.85,
		Strategy:             StrategyParams{Template: "gentle_nudge", Tone: "friendly"},
		Rules:                defaultRulesFor(agentType),

		MaxActionsPerDay:           50,
		MaxEmailsPerSubscriberWeek: 2,
		MaxOffersPerSubscriberYear: 4,
		SendHourStart:              9,
		SendHourEnd:                18,
		Timezone:                   "UTC",
		ExcludeWeekends:            true,
	}
}

// defaultRulesFor returns the default allowed action types per agent type.
// Each agent type supplies data, not behavior.
func defaultRulesFor(agentType AgentType) []ActionRule {
	switch agentType {
	case AgentTypeRecovery:
		return []ActionRule{
			{ActionType: ActionTypeEmail, RequiresApproval: false},
			{ActionType: ActionTypeDiscountOffer, RequiresApproval: true, MaxDiscountPercent: 20},
			{ActionType: ActionTypePaymentRetry, RequiresApproval: false},
		}
	case AgentTypeRetention:
		return []ActionRule{
			{ActionType: ActionTypeEmail, RequiresApproval: false},
			{ActionType: ActionTypeDiscountOffer, RequiresApproval: true, MaxDiscountPercent: 30},
			{ActionType: ActionTypePauseOffer, RequiresApproval: true},
		}
	case AgentTypeConversion:
		return []ActionRule{
			{ActionType: ActionTypeEmail, RequiresApproval: false},
			{ActionType: ActionTypeTrialExtension, RequiresApproval: true},
			{ActionType: ActionTypeDiscountOffer, RequiresApproval: true, MaxDiscountPercent: 25},
		}
	}
	return nil
}
