// Package orchestrator is the single entry point for inbound business events.
// It maps each event to one agent, enforces policy limits before reasoning,
// creates the durable action record, and applies the confidence policy.
package orchestrator

import (
	"github.com/subpilot/subpilot/store"
)

// Event is one inbound business event from the billing pipeline.
type Event struct {
	Type         string
	UserID       int32
	SubscriberID string
	Data         EventData
}

// EventData is the subscriber context carried with an event. Unknown
// provider-specific fields travel in Extra.
type EventData struct {
	SubscriberName      string
	SubscriberEmail     string
	Plan                string
	TenureDays          int
	InteractionCount    int
	MonthlyRevenueCents int64
	Extra               map[string]string
}

// Skip reasons returned for policy outcomes. These are expected results, not
// failures; callers branch on them instead of retrying.
const (
	SkipNoMatchingAgent   = "no_matching_agent"
	SkipAgentInactive     = "agent_inactive"
	SkipAlreadyPending    = "already_pending"
	SkipOutsideSendWindow = "outside_send_window"
	// Limit skips are "limit_exceeded:<which>", see skipLimitExceeded.
	skipLimitPrefix = "limit_exceeded:"
)

// skipLimitExceeded renders the skip reason for a named limit.
func skipLimitExceeded(limit string) string {
	return skipLimitPrefix + limit
}

// Result is the outcome of one event: either a created action or a skip
// reason, never both.
type Result struct {
	Action     *store.AgentAction
	SkipReason string
}

// Skipped reports whether the event was skipped.
func (r *Result) Skipped() bool {
	return r.SkipReason != ""
}

// eventAgentTypes is the fixed event-type taxonomy. Each event type maps to
// exactly one agent type.
var eventAgentTypes = map[string]store.AgentType{
	"payment_failed": store.AgentTypeRecovery,

	"cancel_pending":        store.AgentTypeRetention,
	"subscription_canceled": store.AgentTypeRetention,
	"downgrade":             store.AgentTypeRetention,
	"inactive_subscriber":   store.AgentTypeRetention,

	"trial_ending":           store.AgentTypeConversion,
	"trial_expired":          store.AgentTypeConversion,
	"freemium_inactive":      store.AgentTypeConversion,
	"signup_no_subscription": store.AgentTypeConversion,
}

// AgentTypeForEvent returns the agent type handling an event type.
func AgentTypeForEvent(eventType string) (store.AgentType, bool) {
	agentType, ok := eventAgentTypes[eventType]
	return agentType, ok
}
