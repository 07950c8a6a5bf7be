package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates counters for engine operations.
type Metrics struct {
	mu sync.Mutex

	// Counters
	eventsTotal    atomic.Int64
	eventsSkipped  atomic.Int64
	actionsCreated atomic.Int64
	actionsFailed  atomic.Int64

	// Per-agent-type metrics
	agentMetrics map[string]*AgentMetrics

	// Per-skip-reason counters
	skipReasons map[string]*atomic.Int64

	// Duration samples for event handling (bounded FIFO)
	durations    []time.Duration
	maxDurations int
}

// AgentMetrics represents counters for a specific agent type.
type AgentMetrics struct {
	eventCount    atomic.Int64
	actionCount   atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a new metrics collector.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		agentMetrics: make(map[string]*AgentMetrics),
		skipReasons:  make(map[string]*atomic.Int64),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// Global metrics instance.
var globalMetrics = NewMetrics(1000)

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordEvent records one handled event for an agent type.
func (m *Metrics) RecordEvent(agentType string) {
	m.eventsTotal.Add(1)
	m.getAgentMetrics(agentType).eventCount.Add(1)
}

// RecordSkip records a skipped event with its reason.
func (m *Metrics) RecordSkip(reason string) {
	m.eventsSkipped.Add(1)
	m.mu.Lock()
	counter, ok := m.skipReasons[reason]
	if !ok {
		counter = &atomic.Int64{}
		m.skipReasons[reason] = counter
	}
	m.mu.Unlock()
	counter.Add(1)
}

// RecordActionCreated records a created action for an agent type.
func (m *Metrics) RecordActionCreated(agentType string) {
	m.actionsCreated.Add(1)
	m.getAgentMetrics(agentType).actionCount.Add(1)
}

// RecordFailure records a failed event for an agent type.
func (m *Metrics) RecordFailure(agentType string) {
	m.actionsFailed.Add(1)
	m.getAgentMetrics(agentType).errorCount.Add(1)
}

// RecordDuration records an event-handling duration.
func (m *Metrics) RecordDuration(agentType string, duration time.Duration) {
	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()

	m.getAgentMetrics(agentType).totalDuration.Add(duration.Milliseconds())
}

// GetEventsTotal returns the total number of handled events.
func (m *Metrics) GetEventsTotal() int64 {
	return m.eventsTotal.Load()
}

// GetEventsSkipped returns the total number of skipped events.
func (m *Metrics) GetEventsSkipped() int64 {
	return m.eventsSkipped.Load()
}

// GetActionsCreated returns the total number of created actions.
func (m *Metrics) GetActionsCreated() int64 {
	return m.actionsCreated.Load()
}

// getAgentMetrics gets or creates the counters for an agent type.
func (m *Metrics) getAgentMetrics(agentType string) *AgentMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	am, ok := m.agentMetrics[agentType]
	if !ok {
		am = &AgentMetrics{}
		m.agentMetrics[agentType] = am
	}
	return am
}

// GetAverageDuration returns the average event-handling duration in
// milliseconds for an agent type.
func (m *Metrics) GetAverageDuration(agentType string) int64 {
	am := m.getAgentMetrics(agentType)
	count := am.eventCount.Load()
	if count == 0 {
		return 0
	}
	return am.totalDuration.Load() / count
}

// Reset resets all metrics. Used by tests.
func (m *Metrics) Reset() {
	m.eventsTotal.Store(0)
	m.eventsSkipped.Store(0)
	m.actionsCreated.Store(0)
	m.actionsFailed.Store(0)

	m.mu.Lock()
	m.agentMetrics = make(map[string]*AgentMetrics)
	m.skipReasons = make(map[string]*atomic.Int64)
	m.durations = m.durations[:0]
	m.mu.Unlock()
}

// Snapshot returns a point-in-time snapshot of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	agentSnapshots := make(map[string]*AgentMetricsSnapshot, len(m.agentMetrics))
	for agentType, am := range m.agentMetrics {
		count := am.eventCount.Load()
		avg := int64(0)
		if count > 0 {
			avg = am.totalDuration.Load() / count
		}
		agentSnapshots[agentType] = &AgentMetricsSnapshot{
			EventCount:      count,
			ActionCount:     am.actionCount.Load(),
			ErrorCount:      am.errorCount.Load(),
			AverageDuration: avg,
		}
	}

	skips := make(map[string]int64, len(m.skipReasons))
	for reason, counter := range m.skipReasons {
		skips[reason] = counter.Load()
	}

	return &MetricsSnapshot{
		EventsTotal:    m.eventsTotal.Load(),
		EventsSkipped:  m.eventsSkipped.Load(),
		ActionsCreated: m.actionsCreated.Load(),
		ActionsFailed:  m.actionsFailed.Load(),
		SkipReasons:    skips,
		AgentMetrics:   agentSnapshots,
		DurationCount:  len(m.durations),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	EventsTotal    int64
	EventsSkipped  int64
	ActionsCreated int64
	ActionsFailed  int64
	SkipReasons    map[string]int64
	AgentMetrics   map[string]*AgentMetricsSnapshot
	DurationCount  int
}

// AgentMetricsSnapshot represents counters for a specific agent type.
type AgentMetricsSnapshot struct {
	EventCount      int64
	ActionCount     int64
	ErrorCount      int64
	AverageDuration int64
}

// ActionRate returns the share of handled events that produced an action,
// as a percentage.
func (s *MetricsSnapshot) ActionRate() float64 {
	if s.EventsTotal == 0 {
		return 0
	}
	return float64(s.ActionsCreated) / float64(s.EventsTotal) * 100.0
}
