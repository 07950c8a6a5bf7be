package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/generation"
	"github.com/subpilot/subpilot/plugin/engine/learning"
	"github.com/subpilot/subpilot/plugin/engine/lifecycle"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	"github.com/subpilot/subpilot/store"
)

// A Wednesday morning inside the default 9-18 send window.
var wednesdayMorning = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.Store
	deliverer *delivery.MockDeliverer
	generator *generation.MockGenerator
	service   *Service
	user      *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(store.NewMockDriver(), nil)
	t.Cleanup(func() { _ = s.Close() })

	user, err := s.CreateUser(context.Background(), &store.User{Email: "owner@example.com", DisplayName: "Owner"})
	require.NoError(t, err)

	mem := memory.NewMockService()
	learn := learning.NewService(s)
	reasoner := reasoning.NewEngine(mem, learn)
	generator := generation.NewMockGenerator()
	deliverer := delivery.NewMockDeliverer()
	lc := lifecycle.NewService(s, generator, mem, lifecycle.NewExecutor(s, deliverer))

	service, err := NewService(s, mem, learn, reasoner, generator, lc, deliverer)
	require.NoError(t, err)
	service.WithNow(func() time.Time { return wednesdayMorning })

	return &fixture{store: s, deliverer: deliverer, generator: generator, service: service, user: user}
}

// activateConfig stores an active config for the agent type, letting the
// test tweak the defaults first.
func (f *fixture) activateConfig(t *testing.T, agentType store.AgentType, mutate func(*store.AgentConfig)) *store.AgentConfig {
	t.Helper()
	config := store.DefaultAgentConfig(f.user.ID, agentType)
	config.Active = true
	if mutate != nil {
		mutate(config)
	}
	config, err := f.store.UpsertAgentConfig(context.Background(), config)
	require.NoError(t, err)
	return config
}

func (f *fixture) event(eventType, subscriberID string) *Event {
	return &Event{
		Type:         eventType,
		UserID:       f.user.ID,
		SubscriberID: subscriberID,
		Data: EventData{
			SubscriberName:      "Pat",
			SubscriberEmail:     "pat@example.com",
			Plan:                "pro",
			TenureDays:          400,
			InteractionCount:    6,
			MonthlyRevenueCents: 4900,
		},
	}
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("payment_failed creates a pending recovery action", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, nil)

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		require.False(t, result.Skipped())

		action := result.Action
		assert.Equal(t, store.ActionStatusPendingApproval, action.Status)
		assert.Equal(t, store.AgentTypeRecovery, action.AgentType)
		assert.Equal(t, "payment_failed", action.Trigger)
		assert.NotEmpty(t, action.Subject)
		assert.NotEmpty(t, action.Body)
		assert.NotEmpty(t, action.EpisodeUID)

		// The decision-time episode exists and is unresolved.
		episode, err := f.store.GetEpisode(ctx, &store.FindEpisode{UID: &action.EpisodeUID})
		require.NoError(t, err)
		assert.False(t, episode.Resolved())

		// Generation saw the subscriber context from the event payload.
		req := f.generator.LastRequest()
		require.NotNil(t, req)
		assert.Equal(t, "Pat", req.SubscriberName)
		assert.Equal(t, "pat@example.com", req.SubscriberEmail)
		assert.Equal(t, "pro", req.Plan)
		assert.Equal(t, int64(4900), req.MonthlyRevenueCents)

		// A second identical event before approval is deduplicated.
		result, err = f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, SkipAlreadyPending, result.SkipReason)
	})

	t.Run("unknown event type", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.HandleEvent(ctx, f.event("invoice_viewed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, SkipNoMatchingAgent, result.SkipReason)
	})

	t.Run("inactive agent", func(t *testing.T) {
		f := newFixture(t)
		// No config stored: the lazily created default is inactive.
		result, err := f.service.HandleEvent(ctx, f.event("cancel_pending", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, SkipAgentInactive, result.SkipReason)
	})

	t.Run("daily cap short-circuits before reasoning", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.MaxActionsPerDay = 1
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		require.False(t, result.Skipped())
		require.Equal(t, 1, f.generator.Calls())

		result, err = f.service.HandleEvent(ctx, f.event("payment_failed", "sub_2"))
		require.NoError(t, err)
		assert.Equal(t, "limit_exceeded:daily_actions", result.SkipReason)
		// The pipeline never ran for the skipped event.
		assert.Equal(t, 1, f.generator.Calls())
	})

	t.Run("weekly subscriber email cap", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRetention, func(c *store.AgentConfig) {
			c.MaxEmailsPerSubscriberWeek = 1
		})

		result, err := f.service.HandleEvent(ctx, f.event("cancel_pending", "sub_1"))
		require.NoError(t, err)
		require.False(t, result.Skipped())

		result, err = f.service.HandleEvent(ctx, f.event("downgrade", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, "limit_exceeded:weekly_subscriber_emails", result.SkipReason)
	})

	t.Run("yearly subscriber offer cap", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRetention, func(c *store.AgentConfig) {
			c.Strategy.Template = "discount_ladder"
			c.MaxOffersPerSubscriberYear = 1
			c.MaxEmailsPerSubscriberWeek = 5
		})

		result, err := f.service.HandleEvent(ctx, f.event("cancel_pending", "sub_1"))
		require.NoError(t, err)
		require.False(t, result.Skipped())
		require.Equal(t, store.ActionTypeDiscountOffer, result.Action.ActionType)

		result, err = f.service.HandleEvent(ctx, f.event("downgrade", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, "limit_exceeded:yearly_subscriber_offers", result.SkipReason)
	})

	t.Run("concurrent duplicate events produce one action", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, nil)

		const n = 8
		var wg sync.WaitGroup
		results := make([]*Result, n)
		errs := make([]error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
			}(i)
		}
		wg.Wait()

		created := 0
		for i, result := range results {
			require.NoError(t, errs[i])
			if !result.Skipped() {
				created++
				continue
			}
			assert.Equal(t, SkipAlreadyPending, result.SkipReason)
		}
		assert.Equal(t, 1, created)

		actions, err := f.store.ListAgentActions(ctx, &store.FindAgentAction{UserID: &f.user.ID})
		require.NoError(t, err)
		assert.Len(t, actions, 1)
	})

	t.Run("weekend excluded in config timezone", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, nil)
		saturday := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
		f.service.WithNow(func() time.Time { return saturday })

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, SkipOutsideSendWindow, result.SkipReason)
	})

	t.Run("outside send hours", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, nil)
		lateNight := time.Date(2026, time.March, 4, 23, 0, 0, 0, time.UTC)
		f.service.WithNow(func() time.Time { return lateNight })

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, SkipOutsideSendWindow, result.SkipReason)
	})
}

func TestConfidencePolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("review_all never auto-approves", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.AutoApproveThreshold = 0.01
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, result.Action.Status)
		assert.Empty(t, f.deliverer.Delivered())
	})

	t.Run("full_auto executes immediately", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.1
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExecuted, result.Action.Status)

		delivered := f.deliverer.Delivered()
		require.Len(t, delivered, 1)
		assert.Equal(t, "pat@example.com", delivered[0].To)
	})

	t.Run("full_auto below threshold stays pending", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.99
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, result.Action.Status)
	})

	t.Run("auto_with_copy notifies the owner", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyAutoWithCopy
			c.AutoApproveThreshold = 0.1
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExecuted, result.Action.Status)

		delivered := f.deliverer.Delivered()
		require.Len(t, delivered, 2)
		assert.Equal(t, "pat@example.com", delivered[0].To)
		assert.Equal(t, "owner@example.com", delivered[1].To)
	})

	t.Run("guard expression blocks auto-approval", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.1
			c.AutoApproveGuard = "confidence >= 0.95 && action_type == 'email'"
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, result.Action.Status)
	})

	t.Run("guard expression permits auto-approval", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.1
			c.AutoApproveGuard = "action_type == 'email' && discount_percent == 0.0"
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExecuted, result.Action.Status)
	})

	t.Run("malformed guard fails closed", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.1
			c.AutoApproveGuard = "confidence >>> banana"
		})

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, result.Action.Status)
	})

	t.Run("delivery failure leaves action failed", func(t *testing.T) {
		f := newFixture(t)
		f.activateConfig(t, store.AgentTypeRecovery, func(c *store.AgentConfig) {
			c.ConfidencePolicy = store.ConfidencePolicyFullAuto
			c.AutoApproveThreshold = 0.1
		})
		f.deliverer.Err = assert.AnError

		result, err := f.service.HandleEvent(ctx, f.event("payment_failed", "sub_1"))
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusFailed, result.Action.Status)
		assert.NotEmpty(t, result.Action.FailureReason)
	})
}

func TestAgentTypeForEvent(t *testing.T) {
	cases := map[string]store.AgentType{
		"payment_failed":         store.AgentTypeRecovery,
		"cancel_pending":         store.AgentTypeRetention,
		"subscription_canceled":  store.AgentTypeRetention,
		"downgrade":              store.AgentTypeRetention,
		"inactive_subscriber":    store.AgentTypeRetention,
		"trial_ending":           store.AgentTypeConversion,
		"trial_expired":          store.AgentTypeConversion,
		"freemium_inactive":      store.AgentTypeConversion,
		"signup_no_subscription": store.AgentTypeConversion,
	}
	for eventType, want := range cases {
		got, ok := AgentTypeForEvent(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, want, got, eventType)
	}

	_, ok := AgentTypeForEvent("unknown")
	assert.False(t, ok)
}
