package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/store"
)

type stubPatterns struct {
	patterns []*store.Pattern
	bias     float64
	biasErr  error
}

func (s *stubPatterns) GetTriggerInsights(_ context.Context, _ int32, _ store.AgentType, trigger string) (*learning.TriggerInsights, error) {
	return &learning.TriggerInsights{Trigger: trigger, Patterns: s.patterns}, nil
}

func (s *stubPatterns) FeedbackBias(_ context.Context, _ int32, _ string) (float64, error) {
	return s.bias, s.biasErr
}

func testConfig() *store.AgentConfig {
	config := store.DefaultAgentConfig(1, store.AgentTypeRecovery)
	config.Active = true
	return config
}

func testSituation() *Situation {
	return &Situation{
		UserID:              1,
		SubscriberID:        "sub-1",
		AgentType:           store.AgentTypeRecovery,
		Trigger:             "payment_failed",
		TenureDays:          400,
		InteractionCount:    12,
		MonthlyRevenueCents: 2900,
	}
}

func TestReasonDeterminism(t *testing.T) {
	engine := NewEngine(memory.NewMockService(), &stubPatterns{patterns: []*store.Pattern{
		{Strategy: "gentle_nudge", ActionType: store.ActionTypeEmail, SuccessRate: 0.8, SampleSize: 40, Score: 0.71},
	}})

	first, err := engine.Reason(context.Background(), testSituation(), testConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := engine.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, first.Action, again.Action)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestReasonTrace(t *testing.T) {
	engine := NewEngine(memory.NewMockService(), &stubPatterns{})

	decision, err := engine.Reason(context.Background(), testSituation(), testConfig(), nil)
	require.NoError(t, err)

	require.Len(t, decision.Trace, 5)
	expected := []StepType{StepRetrieval, StepStrategy, StepBrandShaping, StepConfidence, StepRuleValidation}
	for i, step := range decision.Trace {
		assert.Equal(t, i+1, step.Number)
		assert.Equal(t, expected[i], step.Type)
		assert.NotEmpty(t, step.Rationale)
	}
}

func TestReasonConfidenceBounds(t *testing.T) {
	t.Run("floor", func(t *testing.T) {
		engine := NewEngine(memory.NewMockService(), &stubPatterns{})
		situation := testSituation()
		situation.TenureDays = 0
		situation.InteractionCount = 0
		situation.MonthlyRevenueCents = 100000

		decision, err := engine.Reason(context.Background(), situation, testConfig(), nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, decision.Confidence, MinConfidence)
	})

	t.Run("ceiling", func(t *testing.T) {
		engine := NewEngine(memory.NewMockService(), &stubPatterns{patterns: []*store.Pattern{
			{Strategy: "gentle_nudge", ActionType: store.ActionTypeEmail, SuccessRate: 1.0, SampleSize: 500, Score: 0.99},
		}})

		decision, err := engine.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, decision.Confidence, MaxConfidence)
	})
}

func TestReasonRuleCompliance(t *testing.T) {
	t.Run("never emits a disallowed action type", func(t *testing.T) {
		// Pattern recommends a pause offer, but recovery configs do not
		// allow it.
		engine := NewEngine(memory.NewMockService(), &stubPatterns{patterns: []*store.Pattern{
			{Strategy: "pause_first", ActionType: store.ActionTypePauseOffer, SuccessRate: 0.9, SampleSize: 30, Score: 0.77},
		}})
		config := testConfig()

		decision, err := engine.Reason(context.Background(), testSituation(), config, nil)
		require.NoError(t, err)
		assert.True(t, config.AllowsActionType(decision.Action.ActionType))
		assert.Equal(t, store.ActionTypeEmail, decision.Action.ActionType)
	})

	t.Run("fallback lowers confidence", func(t *testing.T) {
		pattern := []*store.Pattern{
			{Strategy: "gentle_nudge", ActionType: store.ActionTypeEmail, SuccessRate: 0.8, SampleSize: 40, Score: 0.71},
		}
		allowed := NewEngine(memory.NewMockService(), &stubPatterns{patterns: pattern})
		okDecision, err := allowed.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		disallowedPattern := []*store.Pattern{
			{Strategy: "gentle_nudge", ActionType: store.ActionTypePauseOffer, SuccessRate: 0.8, SampleSize: 40, Score: 0.71},
		}
		fallback := NewEngine(memory.NewMockService(), &stubPatterns{patterns: disallowedPattern})
		fbDecision, err := fallback.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		assert.Less(t, fbDecision.Confidence, okDecision.Confidence)
	})

	t.Run("discount clamped to rule maximum", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Template = "discount_ladder"
		config.Strategy.DiscountPercent = 50 // rule cap for recovery is 20

		engine := NewEngine(memory.NewMockService(), &stubPatterns{})
		decision, err := engine.Reason(context.Background(), testSituation(), config, nil)
		require.NoError(t, err)
		assert.Equal(t, store.ActionTypeDiscountOffer, decision.Action.ActionType)
		assert.InDelta(t, 20, decision.Action.Details.DiscountPercent, 1e-9)
	})

	t.Run("empty rule set rejected", func(t *testing.T) {
		config := testConfig()
		config.Rules = nil

		engine := NewEngine(memory.NewMockService(), &stubPatterns{})
		_, err := engine.Reason(context.Background(), testSituation(), config, nil)
		assert.Error(t, err)
	})
}

func TestReasonFeedbackBias(t *testing.T) {
	t.Run("negative feedback lowers confidence", func(t *testing.T) {
		neutral := NewEngine(memory.NewMockService(), &stubPatterns{})
		baseline, err := neutral.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		sour := NewEngine(memory.NewMockService(), &stubPatterns{bias: -0.12})
		lowered, err := sour.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		assert.Less(t, lowered.Confidence, baseline.Confidence)
		assert.Equal(t, lowered.Action, baseline.Action)
	})

	t.Run("positive feedback raises confidence", func(t *testing.T) {
		neutral := NewEngine(memory.NewMockService(), &stubPatterns{})
		baseline, err := neutral.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		happy := NewEngine(memory.NewMockService(), &stubPatterns{bias: 0.06})
		raised, err := happy.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		assert.Greater(t, raised.Confidence, baseline.Confidence)
	})

	t.Run("bias lookup failure scores without it", func(t *testing.T) {
		neutral := NewEngine(memory.NewMockService(), &stubPatterns{})
		baseline, err := neutral.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)

		broken := NewEngine(memory.NewMockService(), &stubPatterns{bias: 0.06, biasErr: assert.AnError})
		decision, err := broken.Reason(context.Background(), testSituation(), testConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, baseline.Confidence, decision.Confidence)
	})
}

func TestSelectStrategy(t *testing.T) {
	t.Run("trusted pattern wins over config", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Template = "value_first"
		patterns := []*store.Pattern{
			{Strategy: "discount_ladder", ActionType: store.ActionTypeDiscountOffer, Score: 0.6, SampleSize: 25},
		}

		taken, _ := selectStrategy(config, patterns)
		assert.Equal(t, "discount_ladder", taken.Strategy)
	})

	t.Run("weak pattern loses to config", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Template = "value_first"
		patterns := []*store.Pattern{
			{Strategy: "discount_ladder", ActionType: store.ActionTypeDiscountOffer, Score: 0.1, SampleSize: 1},
		}

		taken, _ := selectStrategy(config, patterns)
		assert.Equal(t, "value_first", taken.Strategy)
		assert.Equal(t, store.ActionTypeEmail, taken.ActionType)
	})
}

func TestShapeTone(t *testing.T) {
	t.Run("strategy tone wins", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Tone = "formal"
		assert.Equal(t, "formal", shapeTone(config, &store.BrandSettings{Tone: "playful"}))
	})

	t.Run("brand tone when strategy silent", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Tone = ""
		assert.Equal(t, "playful", shapeTone(config, &store.BrandSettings{Tone: "playful"}))
	})

	t.Run("default when both silent", func(t *testing.T) {
		config := testConfig()
		config.Strategy.Tone = ""
		assert.Equal(t, "friendly", shapeTone(config, nil))
	})
}
