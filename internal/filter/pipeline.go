package filter

import (
	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/patterns"
)

// PipelineStats counts how many lines survived each reduction stage
// for one Process call.
type PipelineStats struct {
	Input      int
	AfterTier1 int
	AfterTier2 int
	Clusters   int
}

// Pipeline chains the three reduction tiers: per-session pattern
// deduplication, statistical importance scoring, and pattern
// clustering. Tier 1 state persists across Process calls until Reset.
type Pipeline struct {
	tier1 *Tier1Filter
	tier2 *Tier2Filter
	tier3 *Tier3Filter
}

// NewPipeline builds a pipeline from the filtering configuration.
func NewPipeline(registry *patterns.Registry, cfg config.FilteringConfig) *Pipeline {
	return &Pipeline{
		tier1: NewTier1Filter(registry, cfg.Tier1.MaxOccurrences),
		tier2: NewTier2Filter(registry, cfg.Tier2),
		tier3: NewTier3Filter(registry, cfg.Tier3),
	}
}

// Process reduces one capture's output lines to clusters.
func (p *Pipeline) Process(lines []string) ([]Cluster, PipelineStats) {
	stats := PipelineStats{Input: len(lines)}

	deduped := p.tier1.FilterLines(lines)
	stats.AfterTier1 = len(deduped)

	scored := p.tier2.FilterLines(deduped)
	stats.AfterTier2 = len(scored)

	clusters := p.tier3.ClusterLines(scored)
	stats.Clusters = len(clusters)

	return clusters, stats
}

// Reset clears per-session state. Tier 2 and 3 are stateless.
func (p *Pipeline) Reset() {
	p.tier1.Reset()
}

// Tier1Stats exposes accumulated deduplication counters.
func (p *Pipeline) Tier1Stats() Tier1Stats {
	return p.tier1.Stats()
}
