package store

// Pattern is an aggregated (trigger, strategy) success statistic derived from
// resolved episodes. Patterns are recomputed from scratch by batch analysis
// and never hand-edited.
type Pattern struct {
	ID          int64
	UserID      int32
	AgentType   AgentType
	Trigger     string
	Strategy    string
	ActionType  string
	SuccessRate float64
	SampleSize  int
	// Score is the confidence-weighted rank: small samples are penalized so a
	// 1/1 pattern never outranks a 40/50 one.
	Score      float64
	ComputedTs int64
}

// FindPattern specifies the conditions for finding patterns.
type FindPattern struct {
	UserID    *int32
	AgentType *AgentType
	Trigger   *string
	Limit     int
}

// ReplacePatterns swaps the full pattern set for (user, agent type) in one
// transaction. Batch analysis recomputes rather than incrementally mutating,
// so re-running it is idempotent.
type ReplacePatterns struct {
	UserID    int32
	AgentType AgentType
	Patterns  []*Pattern
}
