package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/generation"
	"github.com/subpilot/subpilot/plugin/engine/memory"
	"github.com/subpilot/subpilot/plugin/engine/reasoning"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

type fixture struct {
	store     *store.Store
	deliverer *delivery.MockDeliverer
	generator *generation.MockGenerator
	service   *Service
	user      *store.User
	seeded    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(store.NewMockDriver(), nil)
	t.Cleanup(func() { _ = s.Close() })

	user, err := s.CreateUser(context.Background(), &store.User{Email: "owner@example.com", DisplayName: "Owner"})
	require.NoError(t, err)

	deliverer := delivery.NewMockDeliverer()
	generator := generation.NewMockGenerator()
	executor := NewExecutor(s, deliverer)
	service := NewService(s, generator, memory.NewMockService(), executor)

	return &fixture{store: s, deliverer: deliverer, generator: generator, service: service, user: user}
}

// seedAction creates an episode plus a pending action tied to it.
func (f *fixture) seedAction(t *testing.T, actionType string, createdTs int64) *store.AgentAction {
	t.Helper()
	ctx := context.Background()
	f.seeded++

	situation := reasoning.Situation{
		UserID:              f.user.ID,
		SubscriberID:        fmt.Sprintf("sub_%d", f.seeded),
		AgentType:           store.AgentTypeRetention,
		Trigger:             "cancel_pending",
		Plan:                "pro_monthly",
		MonthlyRevenueCents: 2900,
		Attributes:          map[string]string{"email": "pat@example.com", "name": "Pat"},
	}
	raw, err := json.Marshal(situation)
	require.NoError(t, err)

	episode, err := f.store.CreateEpisode(ctx, &store.Episode{
		UID:           shortuuid.New(),
		UserID:        f.user.ID,
		SubscriberID:  situation.SubscriberID,
		AgentType:     situation.AgentType,
		Trigger:       situation.Trigger,
		SituationJSON: string(raw),
	})
	require.NoError(t, err)

	taken := store.ActionTaken{ActionType: actionType, Strategy: "gentle_nudge"}
	if actionType == store.ActionTypeDiscountOffer {
		taken.Details.DiscountPercent = 15
		taken.Details.DiscountMonths = 3
	}

	action, err := f.store.CreatePendingAgentAction(ctx, &store.AgentAction{
		UID:          shortuuid.New(),
		UserID:       f.user.ID,
		SubscriberID: situation.SubscriberID,
		AgentType:    situation.AgentType,
		Trigger:      situation.Trigger,
		ActionType:   actionType,
		Subject:      "We would love to keep you",
		Body:         "Stay with us, **Pat**.",
		Taken:        taken,
		Confidence:   0.7,
		EpisodeUID:   episode.UID,
		CreatedTs:    createdTs,
	}, nil)
	require.NoError(t, err)
	return action
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("approves and executes", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeEmail, 0)

		executed, err := f.service.Approve(ctx, f.user.ID, action.UID)
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExecuted, executed.Status)
		require.NotNil(t, executed.ApprovedTs)
		require.NotNil(t, executed.ExecutedTs)
		require.NotNil(t, executed.ApproverID)
		assert.Equal(t, f.user.ID, *executed.ApproverID)

		delivered := f.deliverer.Delivered()
		require.Len(t, delivered, 1)
		assert.Equal(t, "pat@example.com", delivered[0].To)
		assert.Equal(t, "We would love to keep you", delivered[0].Subject)
	})

	t.Run("foreign action is unauthorized", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeEmail, 0)

		_, err := f.service.Approve(ctx, f.user.ID+1, action.UID)
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeUnauthorized))
	})

	t.Run("unknown action is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Approve(ctx, f.user.ID, "missing")
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeNotFound))
	})

	t.Run("rejected action cannot be approved", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeEmail, 0)
		_, err := f.service.Reject(ctx, f.user.ID, action.UID, "not now")
		require.NoError(t, err)

		_, err = f.service.Approve(ctx, f.user.ID, action.UID)
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidTransition))
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	action := f.seedAction(t, store.ActionTypeEmail, 0)

	rejected, err := f.service.Reject(ctx, f.user.ID, action.UID, "too aggressive")
	require.NoError(t, err)
	assert.Equal(t, store.ActionStatusRejected, rejected.Status)
	assert.Equal(t, "too aggressive", rejected.RejectReason)
	require.NotNil(t, rejected.RejectedTs)
	assert.Empty(t, f.deliverer.Delivered())
}

func TestDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	action := f.seedAction(t, store.ActionTypeEmail, 0)
	f.deliverer.Err = engineerrors.DeliveryFailed("relay down", nil)

	failed, err := f.service.Approve(ctx, f.user.ID, action.UID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeDeliveryFailed))
	require.NotNil(t, failed)
	// Never reported as executed.
	assert.Equal(t, store.ActionStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	t.Run("retry after recovery succeeds", func(t *testing.T) {
		f.deliverer.Err = nil
		executed, err := f.service.Retry(ctx, f.user.ID, action.UID)
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExecuted, executed.Status)
	})

	t.Run("executed action cannot be retried", func(t *testing.T) {
		_, err := f.service.Retry(ctx, f.user.ID, action.UID)
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidTransition))
	})
}

func TestModify(t *testing.T) {
	ctx := context.Background()

	t.Run("regenerates content without status change", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeDiscountOffer, 0)

		modified, err := f.service.Modify(ctx, f.user.ID, action.UID, &Overrides{
			DiscountPercent: 20,
			Tone:            "warm",
			CustomNote:      "mention the new analytics feature",
		})
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, modified.Status)
		assert.Equal(t, 20.0, modified.Taken.Details.DiscountPercent)
		assert.Equal(t, "warm", modified.Taken.Details.Tone)
		assert.Contains(t, modified.Body, "mention the new analytics feature")
		assert.Equal(t, 1, f.generator.Calls())
	})

	t.Run("regeneration carries the subscriber snapshot", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeEmail, 0)

		_, err := f.service.Modify(ctx, f.user.ID, action.UID, &Overrides{Tone: "warm"})
		require.NoError(t, err)

		req := f.generator.LastRequest()
		require.NotNil(t, req)
		assert.Equal(t, "Pat", req.SubscriberName)
		assert.Equal(t, "pat@example.com", req.SubscriberEmail)
		assert.Equal(t, "pro_monthly", req.Plan)
		assert.Equal(t, int64(2900), req.MonthlyRevenueCents)
	})

	t.Run("discount above rule maximum is rejected", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeDiscountOffer, 0)

		// The default retention rule caps discounts at 30 percent.
		_, err := f.service.Modify(ctx, f.user.ID, action.UID, &Overrides{DiscountPercent: 50})
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidArgument))
		assert.Equal(t, 0, f.generator.Calls())
	})

	t.Run("executed action cannot be modified", func(t *testing.T) {
		f := newFixture(t)
		action := f.seedAction(t, store.ActionTypeEmail, 0)
		_, err := f.service.Approve(ctx, f.user.ID, action.UID)
		require.NoError(t, err)

		_, err = f.service.Modify(ctx, f.user.ID, action.UID, &Overrides{Tone: "warm"})
		assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidTransition))
	})
}

func TestTransitions(t *testing.T) {
	t.Run("closed state machine", func(t *testing.T) {
		all := []store.ActionStatus{
			store.ActionStatusPendingApproval,
			store.ActionStatusApproved,
			store.ActionStatusRejected,
			store.ActionStatusExpired,
			store.ActionStatusExecuted,
			store.ActionStatusFailed,
		}
		allowed := map[[2]store.ActionStatus]bool{
			{store.ActionStatusPendingApproval, store.ActionStatusApproved}: true,
			{store.ActionStatusPendingApproval, store.ActionStatusRejected}: true,
			{store.ActionStatusPendingApproval, store.ActionStatusExpired}:  true,
			{store.ActionStatusApproved, store.ActionStatusExecuted}:        true,
			{store.ActionStatusApproved, store.ActionStatusFailed}:          true,
			{store.ActionStatusFailed, store.ActionStatusExecuted}:          true,
		}
		for _, from := range all {
			for _, to := range all {
				assert.Equal(t, allowed[[2]store.ActionStatus{from, to}], CanTransition(from, to),
					"%s -> %s", from, to)
			}
		}
	})

	t.Run("terminal statuses", func(t *testing.T) {
		assert.True(t, IsTerminal(store.ActionStatusRejected))
		assert.True(t, IsTerminal(store.ActionStatusExpired))
		assert.True(t, IsTerminal(store.ActionStatusExecuted))
		assert.False(t, IsTerminal(store.ActionStatusFailed))
	})
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour).Unix()

	t.Run("expires stale pending actions", func(t *testing.T) {
		f := newFixture(t)
		stale := f.seedAction(t, store.ActionTypeEmail, old)
		fresh := f.seedAction(t, store.ActionTypeDiscountOffer, 0)

		sw := NewSweeper(f.store, f.deliverer, 48, 30)
		count, err := sw.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := f.store.GetAgentAction(ctx, &store.FindAgentAction{UID: &stale.UID})
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExpired, got.Status)
		require.NotNil(t, got.ExpiredTs)

		got, err = f.store.GetAgentAction(ctx, &store.FindAgentAction{UID: &fresh.UID})
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, got.Status)

		// Owner was notified about the expired one.
		delivered := f.deliverer.Delivered()
		require.Len(t, delivered, 1)
		assert.Equal(t, "owner@example.com", delivered[0].To)
	})

	t.Run("second pass finds nothing", func(t *testing.T) {
		f := newFixture(t)
		f.seedAction(t, store.ActionTypeEmail, old)

		sw := NewSweeper(f.store, f.deliverer, 48, 30)
		count, err := sw.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = sw.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("refund actions never expire", func(t *testing.T) {
		f := newFixture(t)
		refund := f.seedAction(t, store.ActionTypeRefund, old)

		sw := NewSweeper(f.store, f.deliverer, 48, 30)
		count, err := sw.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		got, err := f.store.GetAgentAction(ctx, &store.FindAgentAction{UID: &refund.UID})
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusPendingApproval, got.Status)
	})

	t.Run("notification failure does not roll back", func(t *testing.T) {
		f := newFixture(t)
		stale := f.seedAction(t, store.ActionTypeEmail, old)
		f.deliverer.Err = engineerrors.DeliveryFailed("relay down", nil)

		sw := NewSweeper(f.store, f.deliverer, 48, 30)
		count, err := sw.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := f.store.GetAgentAction(ctx, &store.FindAgentAction{UID: &stale.UID})
		require.NoError(t, err)
		assert.Equal(t, store.ActionStatusExpired, got.Status)
	})
}
