package store

// Outcome is the resolved result of an episode.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNeutral Outcome = "neutral"
)

// Episode links a situation and the action taken to an eventual outcome.
// Created unresolved at decision time and resolved exactly once.
type Episode struct {
	ID           int64
	UID          string
	UserID       int32
	SubscriberID string
	AgentType    AgentType
	Trigger      string
	// SituationJSON is the immutable situation snapshot at decision time.
	SituationJSON string
	Taken         ActionTaken
	Outcome       Outcome // empty until resolved
	OutcomeDetail string
	CreatedTs     int64
	ResolvedTs    *int64
}

// Resolved reports whether the episode has an outcome.
func (e *Episode) Resolved() bool {
	return e.Outcome != ""
}

// FindEpisode specifies the conditions for finding episodes.
type FindEpisode struct {
	ID           *int64
	UID          *string
	UserID       *int32
	SubscriberID *string
	AgentType    *AgentType
	Trigger      *string
	Resolved     *bool
	Limit        int
	Offset       int
}

// ResolveEpisode resolves an episode exactly once. The update is guarded on
// the outcome still being empty.
type ResolveEpisode struct {
	UID           string
	Outcome       Outcome
	OutcomeDetail string
	ResolvedTs    int64
}

// Feedback is an operator- or system-supplied rating tied to a subscriber,
// independent of any single episode.
type Feedback struct {
	ID           int64
	UserID       int32
	SubscriberID string
	FeedbackType string // e.g. "recovered", "churned_anyway", "complained"
	Rating       int    // -1, 0, +1
	Comment      string
	CreatedTs    int64
}

// FindFeedback specifies the conditions for finding feedback.
type FindFeedback struct {
	UserID       *int32
	SubscriberID *string
	FeedbackType *string
	Limit        int
}
