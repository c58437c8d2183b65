package filter

import (
	"github.com/cespare/xxhash/v2"

	"github.com/neur0map/yinx/internal/patterns"
)

// Tier1Filter deduplicates repeated line patterns within a session.
// Lines are normalized (timestamps, IPs, UUIDs and similar volatile
// tokens replaced with placeholders) and hashed; once a pattern has
// been seen more than maxOccurrences times, further occurrences are
// dropped. State accumulates across captures until Reset.
type Tier1Filter struct {
	registry       *patterns.Registry
	maxOccurrences int
	counts         map[uint64]int
	total          uint64
}

// Tier1Stats summarizes accumulated deduplication state.
type Tier1Stats struct {
	UniquePatterns   int
	TotalOccurrences uint64
}

// NewTier1Filter creates a tier 1 filter backed by the registry's
// normalization patterns.
func NewTier1Filter(registry *patterns.Registry, maxOccurrences int) *Tier1Filter {
	return &Tier1Filter{
		registry:       registry,
		maxOccurrences: maxOccurrences,
		counts:         make(map[uint64]int),
	}
}

// ProcessLine records one line and reports whether it should be kept.
// The first maxOccurrences occurrences of a pattern pass through.
func (f *Tier1Filter) ProcessLine(line string) bool {
	normalized := patterns.Normalize(line, f.registry.Tier1Normalization)
	key := xxhash.Sum64String(normalized)

	f.counts[key]++
	f.total++
	return f.counts[key] <= f.maxOccurrences
}

// FilterLines runs ProcessLine over lines and returns the kept ones.
func (f *Tier1Filter) FilterLines(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if f.ProcessLine(line) {
			kept = append(kept, line)
		}
	}
	return kept
}

// Reset clears all accumulated pattern counts. Called when a session
// ends so the next session starts with fresh state.
func (f *Tier1Filter) Reset() {
	f.counts = make(map[uint64]int)
	f.total = 0
}

// Stats returns the current deduplication counters.
func (f *Tier1Filter) Stats() Tier1Stats {
	return Tier1Stats{
		UniquePatterns:   len(f.counts),
		TotalOccurrences: f.total,
	}
}
