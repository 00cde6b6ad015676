package tools

import (
	"strings"
	"sync"
	"time"
)

// harvestMinContentLength is the shortest message the harvester will ever
// turn into a memory on its own judgment; anything shorter is skipped
// unless force_harvest overrides it.
const harvestMinContentLength = 20

// Harvester decides whether an in-flight conversation message is worth
// remembering and tracks how often it has harvested versus skipped. There
// is no equivalent module in the retrieved corpus to ground this on beyond
// the tool's name and scope in spec.md §6, so the heuristic itself is this
// package's own: content below harvestMinContentLength, or a duplicate of
// the immediately preceding message, is skipped unless the caller forces
// the harvest.
type Harvester struct {
	mu              sync.Mutex
	totalHarvested  uint64
	totalSkipped    uint64
	lastHarvestedAt *time.Time
	lastMessage     string
}

// NewHarvester builds an empty Harvester.
func NewHarvester() *Harvester {
	return &Harvester{}
}

// ShouldHarvest reports whether message is significant enough to persist
// as a memory, and records the decision in the harvester's metrics.
func (h *Harvester) ShouldHarvest(message string, force bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	trimmed := strings.TrimSpace(message)
	harvest := force
	if !harvest {
		harvest = len(trimmed) >= harvestMinContentLength && trimmed != h.lastMessage
	}

	if harvest {
		h.totalHarvested++
		now := time.Now()
		h.lastHarvestedAt = &now
	} else {
		h.totalSkipped++
	}
	h.lastMessage = trimmed
	return harvest
}

// Metrics returns a snapshot of the harvester's counters.
func (h *Harvester) Metrics() GetHarvesterMetricsResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return GetHarvesterMetricsResult{
		TotalHarvested:  h.totalHarvested,
		TotalSkipped:    h.totalSkipped,
		LastHarvestedAt: h.lastHarvestedAt,
	}
}
