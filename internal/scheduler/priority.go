package scheduler

import "github.com/scrypster/arbor/internal/config"

// Priority is the closed set of urgency bands a ReflectionTrigger carries,
// ported from background_reflection_service.rs's ReflectionPriority. Order
// matters: Critical > High > Medium > Low, mirrored here by increasing
// integer value so callers can compare priorities directly.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// determinePriority maps accumulated importance onto a Priority band using
// the configured thresholds, ported from determine_priority: thresholds are
// checked critical-first, each a simple >= cutoff against the next band
// down, falling through to Low with no lower bound.
func determinePriority(t config.PriorityThresholds, accumulatedImportance float64) Priority {
	switch {
	case accumulatedImportance >= t.CriticalPatternThreshold:
		return PriorityCritical
	case accumulatedImportance >= t.HighImportanceThreshold:
		return PriorityHigh
	case accumulatedImportance >= t.MediumImportanceThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// TriggerType is the closed set of reasons a reflection session was
// scheduled, ported from background_reflection_service.rs's TriggerType.
type TriggerType string

const (
	TriggerImportanceAccumulation TriggerType = "importance_accumulation"
	TriggerTemporalMaintenance    TriggerType = "temporal_maintenance"
	TriggerSemanticDensity        TriggerType = "semantic_density"
	TriggerContradictionDetection TriggerType = "contradiction_detection"
	TriggerManualRequest          TriggerType = "manual_request"
	TriggerSystemMaintenance      TriggerType = "system_maintenance"
)

// Trigger carries everything the scheduler needs to justify and prioritize
// one reflection run.
type Trigger struct {
	Priority             Priority
	Type                 TriggerType
	Reason               string
	AccumulatedImportance float64
	MemoryCount          int
}
