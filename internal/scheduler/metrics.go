package scheduler

import (
	"sync"
	"time"
)

// Metrics is the scheduler's monitoring surface, ported from
// background_reflection_service.rs's ReflectionServiceMetrics.
type Metrics struct {
	mu sync.RWMutex

	serviceStartTime         time.Time
	totalReflectionsCompleted uint64
	totalReflectionsFailed   uint64
	totalInsightsGenerated   uint64
	totalSessionDurationMs   uint64
	currentActiveSessions    int
	lastReflectionTime       *time.Time
	triggerTypeDistribution  map[TriggerType]uint64
}

func newMetrics() *Metrics {
	return &Metrics{
		serviceStartTime:        time.Now(),
		triggerTypeDistribution: make(map[TriggerType]uint64),
	}
}

// Snapshot is an immutable copy of Metrics safe to hand to callers.
type Snapshot struct {
	ServiceUptime             time.Duration
	TotalReflectionsCompleted uint64
	TotalReflectionsFailed    uint64
	TotalInsightsGenerated    uint64
	AverageSessionDuration    time.Duration
	AverageInsightsPerSession float64
	CurrentActiveSessions     int
	LastReflectionTime        *time.Time
	TriggerTypeDistribution   map[TriggerType]uint64
}

func (m *Metrics) recordStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentActiveSessions++
}

func (m *Metrics) recordCompleted(triggerType TriggerType, duration time.Duration, insightCount int, startedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentActiveSessions--
	m.totalReflectionsCompleted++
	m.totalInsightsGenerated += uint64(insightCount)
	m.totalSessionDurationMs += uint64(duration.Milliseconds())
	m.triggerTypeDistribution[triggerType]++
	t := startedAt
	m.lastReflectionTime = &t
}

func (m *Metrics) recordFailed(triggerType TriggerType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentActiveSessions--
	m.totalReflectionsFailed++
	m.triggerTypeDistribution[triggerType]++
}

func (m *Metrics) snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dist := make(map[TriggerType]uint64, len(m.triggerTypeDistribution))
	for k, v := range m.triggerTypeDistribution {
		dist[k] = v
	}

	var avgDuration time.Duration
	var avgInsights float64
	if m.totalReflectionsCompleted > 0 {
		avgDuration = time.Duration(m.totalSessionDurationMs/m.totalReflectionsCompleted) * time.Millisecond
		avgInsights = float64(m.totalInsightsGenerated) / float64(m.totalReflectionsCompleted)
	}

	return Snapshot{
		ServiceUptime:             time.Since(m.serviceStartTime),
		TotalReflectionsCompleted: m.totalReflectionsCompleted,
		TotalReflectionsFailed:    m.totalReflectionsFailed,
		TotalInsightsGenerated:    m.totalInsightsGenerated,
		AverageSessionDuration:    avgDuration,
		AverageInsightsPerSession: avgInsights,
		CurrentActiveSessions:     m.currentActiveSessions,
		LastReflectionTime:        m.lastReflectionTime,
		TriggerTypeDistribution:   dist,
	}
}
