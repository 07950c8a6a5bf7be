package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/delivery"
	"github.com/subpilot/subpilot/plugin/engine/timeout"
	"github.com/subpilot/subpilot/store"
)

// Sweeper expires stale pending actions on a fixed interval. Refund-category
// actions are exempt: money-movement decisions wait for a human however long
// it takes. The sweep is idempotent; expired actions are skipped by the
// status filter on the next pass.
type Sweeper struct {
	store     *store.Store
	deliverer delivery.Deliverer

	expiration time.Duration
	interval   time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewSweeper creates a sweeper. expirationHours and intervalMinutes of zero
// fall back to 48h and 30m.
func NewSweeper(s *store.Store, deliverer delivery.Deliverer, expirationHours, intervalMinutes int) *Sweeper {
	if expirationHours <= 0 {
		expirationHours = 48
	}
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	return &Sweeper{
		store:      s,
		deliverer:  deliverer,
		expiration: time.Duration(expirationHours) * time.Hour,
		interval:   time.Duration(intervalMinutes) * time.Minute,
	}
}

// Start begins the periodic sweep.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = true
	sw.stopChan = make(chan struct{})
	sw.mu.Unlock()

	go sw.loop(ctx)
	slog.Info("expiration sweeper started", "interval", sw.interval, "expiration", sw.expiration)
}

// Stop halts the periodic sweep.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return
	}
	sw.running = false
	close(sw.stopChan)
}

func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if count, err := sw.SweepOnce(ctx); err != nil {
				slog.Error("expiration sweep failed", "error", err)
			} else if count > 0 {
				slog.Info("expired stale pending actions", "count", count)
			}
		case <-sw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce expires pending actions older than the threshold and returns the
// number expired. Owner notification is best effort: a notification failure
// is logged and never rolls the expiration back.
func (sw *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-sw.expiration).Unix()
	pending := store.ActionStatusPendingApproval
	actions, err := sw.store.ListAgentActions(ctx, &store.FindAgentAction{
		Status:        &pending,
		CreatedBefore: &cutoff,
		Limit:         timeout.SweepBatchSize,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, action := range actions {
		if store.IsRefundCategory(action.ActionType) {
			continue
		}

		now := time.Now().Unix()
		_, err := sw.store.UpdateAgentActionStatus(ctx, &store.UpdateAgentActionStatus{
			ID:             action.ID,
			ExpectedStatus: store.ActionStatusPendingApproval,
			Status:         store.ActionStatusExpired,
			ExpiredTs:      &now,
		})
		if err != nil {
			// Lost the race to an approval or rejection; nothing to do.
			if isStoreErr(err, store.ErrInvalidTransition) || isStoreErr(err, store.ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++

		sw.notifyOwner(ctx, action)
	}
	return expired, nil
}

// notifyOwner emails the owner that a pending action expired unreviewed.
func (sw *Sweeper) notifyOwner(ctx context.Context, action *store.AgentAction) {
	user, err := sw.store.GetUser(ctx, &store.FindUser{ID: &action.UserID})
	if err != nil {
		slog.Warn("expiration notification skipped: owner lookup failed",
			"action_uid", action.UID, "user_id", action.UserID, "error", err)
		return
	}

	msg := &delivery.Message{
		To:      user.Email,
		ToName:  user.DisplayName,
		Subject: fmt.Sprintf("Pending %s action for subscriber %s expired", action.AgentType, action.SubscriberID),
		Body: fmt.Sprintf("A proposed **%s** action for subscriber `%s` was not reviewed within the approval window and has expired.\n\nTrigger: %s",
			action.ActionType, action.SubscriberID, action.Trigger),
	}
	if err := sw.deliverer.Deliver(ctx, msg); err != nil {
		slog.Warn("expiration notification failed",
			"action_uid", action.UID, "user_id", action.UserID, "error", err)
	}
}
