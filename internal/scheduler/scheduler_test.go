package scheduler

import (
	"testing"

	"github.com/scrypster/arbor/internal/config"
)

func TestDeterminePriority_BandsByThreshold(t *testing.T) {
	thresholds := config.PriorityThresholds{
		CriticalPatternThreshold:  500,
		HighImportanceThreshold:   300,
		MediumImportanceThreshold: 200,
		LowImportanceThreshold:    100,
	}

	cases := []struct {
		importance float64
		want       Priority
	}{
		{600, PriorityCritical},
		{500, PriorityCritical},
		{350, PriorityHigh},
		{250, PriorityMedium},
		{50, PriorityLow},
		{0, PriorityLow},
	}

	for _, c := range cases {
		if got := determinePriority(thresholds, c.importance); got != c.want {
			t.Fatalf("determinePriority(%v) = %v, want %v", c.importance, got, c.want)
		}
	}
}

func TestPriority_OrderingMatchesCriticalHighMediumLow(t *testing.T) {
	if !(PriorityCritical > PriorityHigh && PriorityHigh > PriorityMedium && PriorityMedium > PriorityLow) {
		t.Fatalf("expected Critical > High > Medium > Low, got %v %v %v %v",
			PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow)
	}
}

func TestPriority_String(t *testing.T) {
	if PriorityCritical.String() != "critical" {
		t.Fatalf("expected %q, got %q", "critical", PriorityCritical.String())
	}
}
