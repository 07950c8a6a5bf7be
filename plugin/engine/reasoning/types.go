// Package reasoning decides which action an agent proposes for a situation.
// The pipeline is deterministic: identical inputs produce the identical
// decision, so every decision can be replayed and audited.
package reasoning

import (
	"time"

	"github.com/subpilot/subpilot/store"
)

// Situation is the immutable input snapshot at decision time.
type Situation struct {
	UserID       int32           `json:"user_id"`
	SubscriberID string          `json:"subscriber_id"`
	AgentType    store.AgentType `json:"agent_type"`
	Trigger      string          `json:"trigger"`

	// Subscriber signals feeding confidence scoring.
	TenureDays          int   `json:"tenure_days"`
	InteractionCount    int   `json:"interaction_count"`
	MonthlyRevenueCents int64 `json:"monthly_revenue_cents"`

	Plan       string            `json:"plan,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// StepType tags one stage of the reasoning pipeline.
type StepType string

const (
	StepRetrieval      StepType = "retrieval"
	StepStrategy       StepType = "strategy_selection"
	StepBrandShaping   StepType = "brand_shaping"
	StepConfidence     StepType = "confidence_scoring"
	StepRuleValidation StepType = "rule_validation"
)

// Step is one traced pipeline stage.
type Step struct {
	Number    int           `json:"number"`
	Type      StepType      `json:"type"`
	Rationale string        `json:"rationale"`
	Duration  time.Duration `json:"duration"`
}

// Decision is the reasoning output: the chosen action, a bounded confidence,
// and the full trace.
type Decision struct {
	Action     store.ActionTaken `json:"action"`
	Confidence float64           `json:"confidence"`
	Trace      []Step            `json:"trace"`
}
