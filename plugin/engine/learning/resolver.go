package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// staleEpisodeDays is how long an unresolved episode may wait for a signal
// before the resolver closes it as a failure.
const staleEpisodeDays = 14

// ResolveFromPaymentEvent closes open episodes for a subscriber when a
// payment signal arrives: payment_succeeded resolves open recovery episodes
// as success, subscription_canceled resolves open retention episodes as
// failure. Other event types are ignored. Returns the number of episodes
// resolved.
func (s *Service) ResolveFromPaymentEvent(ctx context.Context, userID int32, subscriberID, eventType string) (int, error) {
	var agentType store.AgentType
	var outcome store.Outcome
	switch eventType {
	case "payment_succeeded":
		agentType, outcome = store.AgentTypeRecovery, store.OutcomeSuccess
	case "subscription_canceled":
		agentType, outcome = store.AgentTypeRetention, store.OutcomeFailure
	default:
		return 0, nil
	}

	unresolved := false
	episodes, err := s.store.ListEpisodes(ctx, &store.FindEpisode{
		UserID:       &userID,
		SubscriberID: &subscriberID,
		AgentType:    &agentType,
		Resolved:     &unresolved,
	})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, e := range episodes {
		if _, err := s.ResolveEpisode(ctx, e.UID, outcome, "auto-resolved from "+eventType); err != nil {
			// A concurrent resolve is fine; anything else is logged.
			if !engineerrors.IsCode(err, engineerrors.ErrCodeInvalidEpisodeState) {
				slog.Error("failed to auto-resolve episode", "episode", e.UID, "error", err)
			}
			continue
		}
		resolved++
	}
	return resolved, nil
}

// Resolver periodically closes episodes that never received an outcome
// signal, marking them neutral so they stop polluting the unresolved set.
type Resolver struct {
	service  *Service
	store    *store.Store
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewResolver creates a stale-episode resolver running every 6 hours.
func NewResolver(service *Service, s *store.Store) *Resolver {
	return &Resolver{
		service:  service,
		store:    s,
		interval: 6 * time.Hour,
	}
}

// Start begins the periodic resolution loop.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

// Stop stops the loop.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

func (r *Resolver) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.resolveStale(ctx)
		}
	}
}

func (r *Resolver) resolveStale(ctx context.Context) {
	unresolved := false
	episodes, err := r.store.ListEpisodes(ctx, &store.FindEpisode{Resolved: &unresolved, Limit: 500})
	if err != nil {
		slog.Error("failed to list unresolved episodes", "error", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -staleEpisodeDays).Unix()
	count := 0
	for _, e := range episodes {
		if e.CreatedTs >= cutoff {
			continue
		}
		if _, err := r.service.ResolveEpisode(ctx, e.UID, store.OutcomeNeutral, "no outcome signal received"); err != nil {
			if !engineerrors.IsCode(err, engineerrors.ErrCodeInvalidEpisodeState) {
				slog.Error("failed to resolve stale episode", "episode", e.UID, "error", err)
			}
			continue
		}
		count++
	}
	if count > 0 {
		slog.Info("resolved stale episodes", "count", count)
	}
}
