package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/subpilot/subpilot/plugin/engine/timeout"
	"github.com/subpilot/subpilot/store"
)

// Analyzer runs periodic batch analysis for users with recent episode
// activity. One pass per day at the configured hour, plus one on start.
type Analyzer struct {
	service     *Service
	store       *store.Store
	runHour     int // hour of day to run (0-23)
	sampleLimit int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewAnalyzer creates an analyzer. Default run hour is 3 AM server time.
func NewAnalyzer(service *Service, s *store.Store) *Analyzer {
	return &Analyzer{
		service:     service,
		store:       s,
		runHour:     3,
		sampleLimit: timeout.AnalysisBatchSize,
	}
}

// WithRunHour sets the hour of day to run analysis.
func (a *Analyzer) WithRunHour(hour int) *Analyzer {
	if hour >= 0 && hour < 24 {
		a.runHour = hour
	}
	return a
}

// WithSampleLimit sets the resolved-episode sample size per analysis run.
func (a *Analyzer) WithSampleLimit(limit int) *Analyzer {
	if limit > 0 {
		a.sampleLimit = limit
	}
	return a
}

// Start begins the periodic analysis. Calling Start on a running analyzer is
// a no-op.
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.stopChan = make(chan struct{})
	a.mu.Unlock()

	// Run immediately on start.
	go a.runAnalysis(ctx)

	go a.scheduleDaily(ctx)

	return nil
}

// Stop stops the periodic analysis.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	close(a.stopChan)
}

// scheduleDaily runs analysis at the configured hour each day.
func (a *Analyzer) scheduleDaily(ctx context.Context) {
	for {
		now := time.Now()
		nextRun := time.Date(now.Year(), now.Month(), now.Day(), a.runHour, 0, 0, 0, now.Location())
		if now.After(nextRun) {
			nextRun = nextRun.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-time.After(time.Until(nextRun)):
			a.runAnalysis(ctx)
		}
	}
}

// runAnalysis recomputes patterns for every (user, agent type) pair with
// episodes in the recent window.
func (a *Analyzer) runAnalysis(ctx context.Context) {
	slog.Info("starting pattern analysis")
	startTime := time.Now()

	pairs, err := a.activePairs(ctx)
	if err != nil {
		slog.Error("failed to list active users for analysis", "error", err)
		return
	}
	if len(pairs) == 0 {
		slog.Info("no recent episodes, skipping pattern analysis")
		return
	}

	successCount := 0
	errorCount := 0
	for _, p := range pairs {
		if _, err := a.service.BatchAnalyzeEpisodes(ctx, p.userID, p.agentType, a.sampleLimit); err != nil {
			slog.Error("pattern analysis failed",
				"user", p.userID,
				"agent_type", string(p.agentType),
				"error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.Info("pattern analysis complete",
		"pairs", len(pairs),
		"succeeded", successCount,
		"failed", errorCount,
		"duration", time.Since(startTime).String())
}

type analysisPair struct {
	userID    int32
	agentType store.AgentType
}

// activePairs derives (user, agent type) pairs from episodes created in the
// last 30 days.
func (a *Analyzer) activePairs(ctx context.Context) ([]analysisPair, error) {
	episodes, err := a.store.ListEpisodes(ctx, &store.FindEpisode{Limit: 1000})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -30).Unix()
	seen := make(map[analysisPair]bool)
	pairs := make([]analysisPair, 0)
	for _, e := range episodes {
		if e.CreatedTs < cutoff {
			continue
		}
		p := analysisPair{userID: e.UserID, agentType: e.AgentType}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}
