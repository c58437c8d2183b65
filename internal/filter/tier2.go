package filter

import (
	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/patterns"
)

// ScoreComponents breaks a line's importance score into its weighted
// inputs, useful for tuning thresholds.
type ScoreComponents struct {
	Entropy    float64
	Uniqueness float64
	Technical  float64
	Change     float64
}

// ScoredLine pairs a retained line with its importance score.
type ScoredLine struct {
	Line       string
	Score      float64
	Components ScoreComponents
}

// Tier2Filter scores lines by importance and retains those above a
// percentile threshold of the batch. Scoring combines entropy,
// frequency-based uniqueness, technical content density, and
// line-to-line change.
type Tier2Filter struct {
	registry *patterns.Registry
	cfg      config.Tier2Config
}

// NewTier2Filter creates a tier 2 filter with the given weights and
// percentile threshold.
func NewTier2Filter(registry *patterns.Registry, cfg config.Tier2Config) *Tier2Filter {
	return &Tier2Filter{registry: registry, cfg: cfg}
}

// FilterLines scores every line and returns those at or above the
// configured percentile of the batch, in input order.
func (f *Tier2Filter) FilterLines(lines []string) []ScoredLine {
	if len(lines) == 0 {
		return nil
	}

	freq := make(map[string]int, len(lines))
	for _, line := range lines {
		freq[line]++
	}
	total := float64(len(lines))

	scored := make([]ScoredLine, len(lines))
	scores := make([]float64, len(lines))
	for i, line := range lines {
		components := ScoreComponents{
			Entropy:    ShannonEntropy(line),
			Uniqueness: 1 - float64(freq[line])/total,
			Technical:  f.technicalScore(line),
		}
		// The first line has no predecessor; treat it as a full change
		// so batch openers are never penalized.
		if i == 0 {
			components.Change = 1
		} else {
			components.Change = ChangeScore(line, lines[i-1])
		}

		score := components.Entropy*f.cfg.EntropyWeight +
			components.Uniqueness*f.cfg.UniquenessWeight +
			components.Technical*f.cfg.TechnicalWeight +
			components.Change*f.cfg.ChangeWeight

		scored[i] = ScoredLine{Line: line, Score: score, Components: components}
		scores[i] = score
	}

	threshold := Percentile(scores, f.cfg.ScoreThresholdPercentile)

	kept := make([]ScoredLine, 0, len(scored))
	for _, s := range scored {
		if s.Score >= threshold {
			kept = append(kept, s)
		}
	}
	return kept
}

// technicalScore sums pattern-match weights and normalizes to 0..1
// against the configured maximum.
func (f *Tier2Filter) technicalScore(line string) float64 {
	var score float64
	for _, p := range f.registry.Technical {
		matches := p.Regex.FindAllStringIndex(line, -1)
		if len(matches) > 0 {
			score += float64(len(matches)) * p.Weight
		}
	}

	normalized := score / f.cfg.MaxTechnicalScore
	if normalized > 1 {
		return 1
	}
	return normalized
}
