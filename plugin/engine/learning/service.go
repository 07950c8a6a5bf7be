// Package learning records decision episodes, resolves their outcomes, and
// distills resolved episodes into ranked (trigger, strategy) patterns that
// feed back into reasoning.
package learning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// priorSampleWeight is the pseudo-count used to shrink small-sample success
// rates toward zero when scoring patterns. A 1/1 pattern must never outrank a
// 40/50 one.
const priorSampleWeight = 5.0

// LearningStats summarizes learning progress for one (user, agent type).
type LearningStats struct {
	TotalEpisodes    int     `json:"total_episodes"`
	ResolvedEpisodes int     `json:"resolved_episodes"`
	SuccessCount     int     `json:"success_count"`
	FailureCount     int     `json:"failure_count"`
	NeutralCount     int     `json:"neutral_count"`
	SuccessRate      float64 `json:"success_rate"` // over resolved, neutral excluded
	PatternCount     int     `json:"pattern_count"`
	LastComputedTs   int64   `json:"last_computed_ts"`
}

// TriggerInsights ranks the known strategies for one trigger.
type TriggerInsights struct {
	Trigger  string           `json:"trigger"`
	Patterns []*store.Pattern `json:"patterns"` // best score first
}

// Service implements the learning module over the store.
type Service struct {
	store *store.Store
}

// NewService creates a learning service.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// RecordEpisode persists an unresolved episode at decision time. The
// situation snapshot is immutable from here on.
func (s *Service) RecordEpisode(ctx context.Context, episode *store.Episode) (*store.Episode, error) {
	if episode.UID == "" {
		episode.UID = shortuuid.New()
	}
	created, err := s.store.CreateEpisode(ctx, episode)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeInvalidArgument, "failed to record episode")
	}
	slog.Info("episode recorded",
		"episode", created.UID,
		"subscriber", created.SubscriberID,
		"trigger", created.Trigger)
	return created, nil
}

// ResolveEpisode sets the outcome of an episode exactly once. Resolving a
// missing or already resolved episode returns an invalid-episode-state error.
func (s *Service) ResolveEpisode(ctx context.Context, uid string, outcome store.Outcome, detail string) (*store.Episode, error) {
	switch outcome {
	case store.OutcomeSuccess, store.OutcomeFailure, store.OutcomeNeutral:
	default:
		return nil, engineerrors.InvalidArgument("unknown outcome: " + string(outcome))
	}

	resolved, err := s.store.ResolveEpisode(ctx, &store.ResolveEpisode{
		UID:           uid,
		Outcome:       outcome,
		OutcomeDetail: detail,
		ResolvedTs:    time.Now().Unix(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidEpisodeState) {
			return nil, engineerrors.InvalidEpisodeState("episode missing or already resolved: " + uid)
		}
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeInvalidArgument, "failed to resolve episode")
	}
	slog.Info("episode resolved", "episode", uid, "outcome", string(outcome))
	return resolved, nil
}

// RecordFeedback stores operator or system feedback about a subscriber.
func (s *Service) RecordFeedback(ctx context.Context, feedback *store.Feedback) (*store.Feedback, error) {
	if feedback.Rating < -1 || feedback.Rating > 1 {
		return nil, engineerrors.InvalidArgument("rating must be -1, 0 or 1")
	}
	return s.store.CreateFeedback(ctx, feedback)
}

// Feedback bias bounds. Recent subscriber feedback nudges confidence, it
// never dominates it, and negative feedback weighs double: a subscriber who
// disliked past outreach deserves a human in the loop sooner.
const (
	feedbackSampleLimit  = 10
	positiveFeedbackStep = 0.02
	negativeFeedbackStep = 0.04
	maxPositiveBias      = 0.06
	maxNegativeBias      = -0.12
)

// FeedbackBias turns a subscriber's recent feedback into a bounded
// confidence adjustment.
func (s *Service) FeedbackBias(ctx context.Context, userID int32, subscriberID string) (float64, error) {
	items, err := s.store.ListFeedback(ctx, &store.FindFeedback{
		UserID:       &userID,
		SubscriberID: &subscriberID,
		Limit:        feedbackSampleLimit,
	})
	if err != nil {
		return 0, err
	}

	bias := 0.0
	for _, f := range items {
		switch {
		case f.Rating > 0:
			bias += positiveFeedbackStep
		case f.Rating < 0:
			bias -= negativeFeedbackStep
		}
	}
	if bias > maxPositiveBias {
		bias = maxPositiveBias
	}
	if bias < maxNegativeBias {
		bias = maxNegativeBias
	}
	return bias, nil
}

// GetLearningStats aggregates episode outcomes and pattern coverage.
func (s *Service) GetLearningStats(ctx context.Context, userID int32, agentType store.AgentType) (*LearningStats, error) {
	episodes, err := s.store.ListEpisodes(ctx, &store.FindEpisode{UserID: &userID, AgentType: &agentType})
	if err != nil {
		return nil, err
	}

	stats := &LearningStats{TotalEpisodes: len(episodes)}
	for _, e := range episodes {
		if !e.Resolved() {
			continue
		}
		stats.ResolvedEpisodes++
		switch e.Outcome {
		case store.OutcomeSuccess:
			stats.SuccessCount++
		case store.OutcomeFailure:
			stats.FailureCount++
		case store.OutcomeNeutral:
			stats.NeutralCount++
		}
	}
	if decided := stats.SuccessCount + stats.FailureCount; decided > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(decided)
	}

	patterns, err := s.store.ListPatterns(ctx, &store.FindPattern{UserID: &userID, AgentType: &agentType})
	if err != nil {
		return nil, err
	}
	stats.PatternCount = len(patterns)
	for _, p := range patterns {
		if p.ComputedTs > stats.LastComputedTs {
			stats.LastComputedTs = p.ComputedTs
		}
	}
	return stats, nil
}

// GetTriggerInsights returns the ranked patterns for one trigger, best first.
func (s *Service) GetTriggerInsights(ctx context.Context, userID int32, agentType store.AgentType, trigger string) (*TriggerInsights, error) {
	patterns, err := s.store.ListPatterns(ctx, &store.FindPattern{
		UserID:    &userID,
		AgentType: &agentType,
		Trigger:   &trigger,
	})
	if err != nil {
		return nil, err
	}
	return &TriggerInsights{Trigger: trigger, Patterns: patterns}, nil
}

// BatchAnalyzeEpisodes recomputes the pattern set for (user, agent type) from
// the most recent sampleLimit resolved episodes. The replacement is a single
// delete+insert transaction, so re-running the analysis is idempotent.
// Returns the number of patterns written.
func (s *Service) BatchAnalyzeEpisodes(ctx context.Context, userID int32, agentType store.AgentType, sampleLimit int) (int, error) {
	if sampleLimit <= 0 {
		sampleLimit = timeout.AnalysisBatchSize
	}
	resolved := true
	episodes, err := s.store.ListEpisodes(ctx, &store.FindEpisode{
		UserID:    &userID,
		AgentType: &agentType,
		Resolved:  &resolved,
		Limit:     sampleLimit,
	})
	if err != nil {
		return 0, err
	}

	patterns := computePatterns(episodes)
	if err := s.store.ReplacePatterns(ctx, &store.ReplacePatterns{
		UserID:    userID,
		AgentType: agentType,
		Patterns:  patterns,
	}); err != nil {
		return 0, err
	}

	slog.Info("batch analysis complete",
		"user", userID,
		"agent_type", string(agentType),
		"episodes", len(episodes),
		"patterns", len(patterns))
	return len(patterns), nil
}

// computePatterns groups resolved episodes by (trigger, strategy) and scores
// each group. Neutral outcomes count toward the sample but not the rate.
func computePatterns(episodes []*store.Episode) []*store.Pattern {
	type bucket struct {
		trigger    string
		strategy   string
		actionType string
		success    int
		failure    int
		neutral    int
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0)
	for _, e := range episodes {
		key := e.Trigger + "\x00" + e.Taken.Strategy
		b, ok := buckets[key]
		if !ok {
			b = &bucket{trigger: e.Trigger, strategy: e.Taken.Strategy, actionType: e.Taken.ActionType}
			buckets[key] = b
			order = append(order, key)
		}
		switch e.Outcome {
		case store.OutcomeSuccess:
			b.success++
		case store.OutcomeFailure:
			b.failure++
		case store.OutcomeNeutral:
			b.neutral++
		}
	}

	now := time.Now().Unix()
	patterns := make([]*store.Pattern, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		sample := b.success + b.failure + b.neutral
		decided := b.success + b.failure
		rate := 0.0
		if decided > 0 {
			rate = float64(b.success) / float64(decided)
		}
		patterns = append(patterns, &store.Pattern{
			Trigger:     b.trigger,
			Strategy:    b.strategy,
			ActionType:  b.actionType,
			SuccessRate: rate,
			SampleSize:  sample,
			Score:       scorePattern(rate, sample),
			ComputedTs:  now,
		})
	}
	return patterns
}

// scorePattern shrinks the success rate toward zero for small samples.
func scorePattern(successRate float64, sampleSize int) float64 {
	if sampleSize <= 0 {
		return 0
	}
	weight := float64(sampleSize) / (float64(sampleSize) + priorSampleWeight)
	return successRate * weight
}
