package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := store.New(store.NewMockDriver(), nil)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s)
}

func seedEpisode(t *testing.T, svc *Service, agentType store.AgentType, trigger string) *store.Episode {
	t.Helper()
	episode, err := svc.RecordEpisode(context.Background(), &store.Episode{
		UserID:       1,
		SubscriberID: "sub-1",
		AgentType:    agentType,
		Trigger:      trigger,
		Taken:        store.ActionTaken{ActionType: store.ActionTypeEmail, Strategy: "gentle_nudge"},
	})
	require.NoError(t, err)
	return episode
}

func TestResolveEpisode(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves exactly once", func(t *testing.T) {
		svc := newTestService(t)
		episode := seedEpisode(t, svc, store.AgentTypeRecovery, "payment_failed")

		resolved, err := svc.ResolveEpisode(ctx, episode.UID, store.OutcomeSuccess, "payment recovered")
		require.NoError(t, err)
		assert.True(t, resolved.Resolved())
		assert.Equal(t, store.OutcomeSuccess, resolved.Outcome)
		assert.Equal(t, "payment recovered", resolved.OutcomeDetail)

		// The outcome is immutable from here on.
		_, err = svc.ResolveEpisode(ctx, episode.UID, store.OutcomeFailure, "changed my mind")
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidEpisodeState))

		got, err := svc.store.GetEpisode(ctx, &store.FindEpisode{UID: &episode.UID})
		require.NoError(t, err)
		assert.Equal(t, store.OutcomeSuccess, got.Outcome)
	})

	t.Run("unknown episode", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.ResolveEpisode(ctx, "missing", store.OutcomeSuccess, "")
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidEpisodeState))
	})

	t.Run("unknown outcome", func(t *testing.T) {
		svc := newTestService(t)
		episode := seedEpisode(t, svc, store.AgentTypeRecovery, "payment_failed")

		_, err := svc.ResolveEpisode(ctx, episode.UID, store.Outcome("shrug"), "")
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidArgument))
	})
}

func TestResolveFromPaymentEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("payment_succeeded closes recovery episodes as success", func(t *testing.T) {
		svc := newTestService(t)
		episode := seedEpisode(t, svc, store.AgentTypeRecovery, "payment_failed")

		count, err := svc.ResolveFromPaymentEvent(ctx, 1, "sub-1", "payment_succeeded")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := svc.store.GetEpisode(ctx, &store.FindEpisode{UID: &episode.UID})
		require.NoError(t, err)
		assert.Equal(t, store.OutcomeSuccess, got.Outcome)
	})

	t.Run("subscription_canceled closes retention episodes as failure", func(t *testing.T) {
		svc := newTestService(t)
		episode := seedEpisode(t, svc, store.AgentTypeRetention, "cancel_pending")

		count, err := svc.ResolveFromPaymentEvent(ctx, 1, "sub-1", "subscription_canceled")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := svc.store.GetEpisode(ctx, &store.FindEpisode{UID: &episode.UID})
		require.NoError(t, err)
		assert.Equal(t, store.OutcomeFailure, got.Outcome)
	})

	t.Run("other event types resolve nothing", func(t *testing.T) {
		svc := newTestService(t)
		seedEpisode(t, svc, store.AgentTypeRecovery, "payment_failed")

		count, err := svc.ResolveFromPaymentEvent(ctx, 1, "sub-1", "downgrade")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("only the subscriber's own episodes close", func(t *testing.T) {
		svc := newTestService(t)
		episode := seedEpisode(t, svc, store.AgentTypeRecovery, "payment_failed")

		count, err := svc.ResolveFromPaymentEvent(ctx, 1, "sub-other", "payment_succeeded")
		require.NoError(t, err)
		assert.Zero(t, count)

		got, err := svc.store.GetEpisode(ctx, &store.FindEpisode{UID: &episode.UID})
		require.NoError(t, err)
		assert.False(t, got.Resolved())
	})
}

func TestFeedbackBias(t *testing.T) {
	ctx := context.Background()

	addFeedback := func(t *testing.T, svc *Service, rating int) {
		t.Helper()
		_, err := svc.RecordFeedback(ctx, &store.Feedback{
			UserID:       1,
			SubscriberID: "sub-1",
			FeedbackType: "action_outcome",
			Rating:       rating,
		})
		require.NoError(t, err)
	}

	t.Run("no feedback means no bias", func(t *testing.T) {
		svc := newTestService(t)
		bias, err := svc.FeedbackBias(ctx, 1, "sub-1")
		require.NoError(t, err)
		assert.Zero(t, bias)
	})

	t.Run("negative feedback pushes down, capped", func(t *testing.T) {
		svc := newTestService(t)
		for i := 0; i < 5; i++ {
			addFeedback(t, svc, -1)
		}
		bias, err := svc.FeedbackBias(ctx, 1, "sub-1")
		require.NoError(t, err)
		assert.InDelta(t, maxNegativeBias, bias, 1e-9)
	})

	t.Run("positive feedback pushes up, capped", func(t *testing.T) {
		svc := newTestService(t)
		for i := 0; i < 5; i++ {
			addFeedback(t, svc, 1)
		}
		bias, err := svc.FeedbackBias(ctx, 1, "sub-1")
		require.NoError(t, err)
		assert.InDelta(t, maxPositiveBias, bias, 1e-9)
	})

	t.Run("mixed feedback nets out", func(t *testing.T) {
		svc := newTestService(t)
		addFeedback(t, svc, 1)
		addFeedback(t, svc, -1)
		addFeedback(t, svc, 0)
		bias, err := svc.FeedbackBias(ctx, 1, "sub-1")
		require.NoError(t, err)
		assert.InDelta(t, positiveFeedbackStep-negativeFeedbackStep, bias, 1e-9)
	})

	t.Run("other subscribers' feedback is ignored", func(t *testing.T) {
		svc := newTestService(t)
		addFeedback(t, svc, -1)
		bias, err := svc.FeedbackBias(ctx, 1, "sub-other")
		require.NoError(t, err)
		assert.Zero(t, bias)
	})
}

func TestScorePattern(t *testing.T) {
	t.Run("small perfect sample loses to large good sample", func(t *testing.T) {
		oneOfOne := scorePattern(1.0, 1)
		fortyOfFifty := scorePattern(0.8, 50)
		assert.Greater(t, fortyOfFifty, oneOfOne)
	})

	t.Run("score grows with sample size at fixed rate", func(t *testing.T) {
		assert.Greater(t, scorePattern(0.7, 100), scorePattern(0.7, 10))
	})

	t.Run("zero sample scores zero", func(t *testing.T) {
		assert.Zero(t, scorePattern(1.0, 0))
	})

	t.Run("score never exceeds the success rate", func(t *testing.T) {
		assert.LessOrEqual(t, scorePattern(0.9, 1000), 0.9)
	})
}

func episodeWith(trigger, strategy, actionType string, outcome store.Outcome) *store.Episode {
	return &store.Episode{
		Trigger: trigger,
		Taken: store.ActionTaken{
			ActionType: actionType,
			Strategy:   strategy,
		},
		Outcome: outcome,
	}
}

func TestComputePatterns(t *testing.T) {
	t.Run("groups by trigger and strategy", func(t *testing.T) {
		episodes := []*store.Episode{
			episodeWith("payment_failed", "gentle_nudge", "email", store.OutcomeSuccess),
			episodeWith("payment_failed", "gentle_nudge", "email", store.OutcomeFailure),
			episodeWith("payment_failed", "discount_ladder", "discount_offer", store.OutcomeSuccess),
			episodeWith("cancel_pending", "gentle_nudge", "email", store.OutcomeSuccess),
		}

		patterns := computePatterns(episodes)
		require.Len(t, patterns, 3)

		byKey := make(map[string]*store.Pattern)
		for _, p := range patterns {
			byKey[p.Trigger+"/"+p.Strategy] = p
		}

		nudge := byKey["payment_failed/gentle_nudge"]
		require.NotNil(t, nudge)
		assert.Equal(t, 2, nudge.SampleSize)
		assert.InDelta(t, 0.5, nudge.SuccessRate, 1e-9)
		assert.Equal(t, "email", nudge.ActionType)
	})

	t.Run("neutral counts toward sample but not rate", func(t *testing.T) {
		episodes := []*store.Episode{
			episodeWith("payment_failed", "gentle_nudge", "email", store.OutcomeSuccess),
			episodeWith("payment_failed", "gentle_nudge", "email", store.OutcomeNeutral),
		}

		patterns := computePatterns(episodes)
		require.Len(t, patterns, 1)
		assert.Equal(t, 2, patterns[0].SampleSize)
		assert.InDelta(t, 1.0, patterns[0].SuccessRate, 1e-9)
	})

	t.Run("all neutral yields zero rate", func(t *testing.T) {
		episodes := []*store.Episode{
			episodeWith("downgrade", "value_first", "email", store.OutcomeNeutral),
		}

		patterns := computePatterns(episodes)
		require.Len(t, patterns, 1)
		assert.Zero(t, patterns[0].SuccessRate)
		assert.Zero(t, patterns[0].Score)
	})

	t.Run("empty input yields empty set", func(t *testing.T) {
		assert.Empty(t, computePatterns(nil))
	})
}
