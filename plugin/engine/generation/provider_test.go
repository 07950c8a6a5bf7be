package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpilot/subpilot/store"
)

func TestParseContent(t *testing.T) {
	t.Run("subject line and body", func(t *testing.T) {
		content := parseContent("Subject: We miss you\n\nCome back and save 20%.")
		assert.Equal(t, "We miss you", content.Subject)
		assert.Equal(t, "Come back and save 20%.", content.Body)
	})

	t.Run("no subject prefix falls through to body", func(t *testing.T) {
		content := parseContent("Just a body with no subject.")
		assert.Empty(t, content.Subject)
		assert.Equal(t, "Just a body with no subject.", content.Body)
	})

	t.Run("subject only", func(t *testing.T) {
		content := parseContent("Subject: Only a subject")
		assert.Equal(t, "Only a subject", content.Subject)
		assert.Empty(t, content.Body)
	})
}

func TestUserPromptSubscriberContext(t *testing.T) {
	req := &Request{
		AgentType:    store.AgentTypeRecovery,
		Trigger:      "payment_failed",
		SubscriberID: "sub-1",
		Action: store.ActionTaken{
			ActionType: store.ActionTypeEmail,
			Strategy:   "gentle_reminder",
		},
	}

	t.Run("renders name, plan and revenue when present", func(t *testing.T) {
		req := *req
		req.SubscriberName = "Ada Lovelace"
		req.Plan = "pro_monthly"
		req.MonthlyRevenueCents = 2900

		prompt := userPrompt(&req)
		assert.Contains(t, prompt, "Subscriber: Ada Lovelace.")
		assert.Contains(t, prompt, "Plan: pro_monthly.")
		assert.Contains(t, prompt, "Monthly revenue: $29.00.")
	})

	t.Run("omits empty context", func(t *testing.T) {
		prompt := userPrompt(req)
		assert.NotContains(t, prompt, "Subscriber:")
		assert.NotContains(t, prompt, "Plan:")
		assert.NotContains(t, prompt, "Monthly revenue:")
	})
}

func TestMockGeneratorDeterminism(t *testing.T) {
	mock := NewMockGenerator()
	req := &Request{
		AgentType:    store.AgentTypeRetention,
		Trigger:      "cancel_pending",
		SubscriberID: "sub-1",
		Action: store.ActionTaken{
			ActionType: store.ActionTypeDiscountOffer,
			Strategy:   "discount_ladder",
			Details:    store.ActionDetails{DiscountPercent: 20, DiscountMonths: 3},
		},
	}

	first, err := mock.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := mock.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first.Body, "20% off")
	assert.Equal(t, 2, mock.Calls())
}

func TestRateLimitedGenerator(t *testing.T) {
	t.Run("burst then limited", func(t *testing.T) {
		limited := NewRateLimitedGenerator(NewMockGenerator(), 1, 2)
		req := &Request{UserID: 1, Action: store.ActionTaken{ActionType: store.ActionTypeEmail}}

		_, err := limited.Generate(context.Background(), req)
		require.NoError(t, err)
		_, err = limited.Generate(context.Background(), req)
		require.NoError(t, err)

		_, err = limited.Generate(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("users limited independently", func(t *testing.T) {
		limited := NewRateLimitedGenerator(NewMockGenerator(), 1, 1)

		_, err := limited.Generate(context.Background(), &Request{UserID: 1})
		require.NoError(t, err)
		_, err = limited.Generate(context.Background(), &Request{UserID: 1})
		assert.Error(t, err)

		_, err = limited.Generate(context.Background(), &Request{UserID: 2})
		assert.NoError(t, err)
	})
}
