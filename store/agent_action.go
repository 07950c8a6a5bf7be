package store

import "strings"

// ActionStatus is the lifecycle state of an AgentAction.
type ActionStatus string

const (
	ActionStatusPendingApproval ActionStatus = "PENDING_APPROVAL"
	ActionStatusApproved        ActionStatus = "APPROVED"
	ActionStatusRejected        ActionStatus = "REJECTED"
	ActionStatusExpired         ActionStatus = "EXPIRED"
	ActionStatusExecuted        ActionStatus = "EXECUTED"
	// ActionStatusFailed marks an approved action whose delivery failed.
	// It is retryable and never reported as executed.
	ActionStatusFailed ActionStatus = "FAILED"
)

// Known action types. The rule set of each config decides which of these the
// reasoning engine may emit.
const (
	ActionTypeEmail          = "email"
	ActionTypeDiscountOffer  = "discount_offer"
	ActionTypePauseOffer     = "pause_offer"
	ActionTypeTrialExtension = "trial_extension"
	ActionTypePaymentRetry   = "payment_retry"
	ActionTypeRefund         = "refund"
	ActionTypePartialRefund  = "partial_refund"
)

// IsRefundCategory reports whether the action type belongs to the refund
// category, which is exempt from the automatic expiration sweep.
func IsRefundCategory(actionType string) bool {
	return actionType == ActionTypeRefund || strings.HasSuffix(actionType, "_refund")
}

// ActionDetails is the typed parameter block of a chosen action.
type ActionDetails struct {
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	DiscountMonths  int     `json:"discount_months,omitempty"`
	PauseDays       int     `json:"pause_days,omitempty"`
	ExtensionDays   int     `json:"extension_days,omitempty"`
	Tone            string  `json:"tone,omitempty"`
	Channel         string  `json:"channel,omitempty"`
	CustomNote      string  `json:"custom_note,omitempty"`
}

// ActionTaken is the chosen action: type, named strategy, and typed details.
// It is embedded in both the AgentAction record and the Episode.
type ActionTaken struct {
	ActionType string        `json:"action_type"`
	Strategy   string        `json:"strategy"`
	Details    ActionDetails `json:"details"`
}

// AgentAction is the durable decision record. Its lifecycle is owned
// exclusively by the orchestrator and executor.
type AgentAction struct {
	ID           int64
	UID          string
	UserID       int32
	SubscriberID string
	AgentType    AgentType
	Trigger      string // triggering event type
	ActionType   string
	Description  string
	Subject      string
	Body         string
	Taken        ActionTaken
	Confidence   float64
	Status       ActionStatus

	CreatedTs     int64
	ApprovedTs    *int64
	RejectedTs    *int64
	ExecutedTs    *int64
	ExpiredTs     *int64
	ApproverID    *int32
	RejectReason  string
	FailureReason string
	EpisodeUID    string
}

// FindAgentAction specifies the conditions for finding agent actions.
type FindAgentAction struct {
	ID            *int64
	UID           *string
	UserID        *int32
	SubscriberID  *string
	AgentType     *AgentType
	Trigger       *string
	Status        *ActionStatus
	CreatedBefore *int64
	Limit         int
	Offset        int
}

// ActionLimits is the policy-limit snapshot evaluated atomically with the
// pending-action insert. Counting and inserting happen in one transaction so
// two concurrent events cannot both pass the check.
type ActionLimits struct {
	MaxActionsPerDay           int
	MaxEmailsPerSubscriberWeek int
	MaxOffersPerSubscriberYear int
	// DayStartTs/WeekStartTs/YearStartTs are window starts precomputed in the
	// user's configured timezone.
	DayStartTs  int64
	WeekStartTs int64
	YearStartTs int64
}

// UpdateAgentActionStatus is a guarded status transition: the update applies
// only if the action is currently in ExpectedStatus.
type UpdateAgentActionStatus struct {
	ID             int64
	ExpectedStatus ActionStatus
	Status         ActionStatus

	ApprovedTs    *int64
	RejectedTs    *int64
	ExecutedTs    *int64
	ExpiredTs     *int64
	ApproverID    *int32
	RejectReason  *string
	FailureReason *string
}

// UpdateAgentActionContent replaces the generated content of an action after
// a modify request. Status is unchanged.
type UpdateAgentActionContent struct {
	ID          int64
	Subject     string
	Body        string
	Description string
	Taken       ActionTaken
}

// OfferActionTypes lists the action types counted against the yearly offer cap.
var OfferActionTypes = []string{ActionTypeDiscountOffer, ActionTypePauseOffer, ActionTypeTrialExtension}

// EmailActionTypes lists the action types counted against the weekly email
// cap. Offers count too: they reach the subscriber's inbox just like a plain
// email.
var EmailActionTypes = []string{ActionTypeEmail, ActionTypeDiscountOffer, ActionTypePauseOffer, ActionTypeTrialExtension}
