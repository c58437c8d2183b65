package filter

import (
	"fmt"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/patterns"
)

// RepresentativeStrategy selects which member line stands for a cluster.
type RepresentativeStrategy int

const (
	// StrategyHighestEntropy picks the most information-dense member.
	StrategyHighestEntropy RepresentativeStrategy = iota
	// StrategyFirst picks the earliest member.
	StrategyFirst
	// StrategyLongest picks the longest member.
	StrategyLongest
)

// ParseStrategy maps a config string to a strategy. Unknown values
// fall back to highest_entropy.
func ParseStrategy(s string) RepresentativeStrategy {
	switch s {
	case "first":
		return StrategyFirst
	case "longest":
		return StrategyLongest
	default:
		return StrategyHighestEntropy
	}
}

// Cluster groups lines sharing a normalized pattern. Metadata carries
// shape hints consumed downstream when chunks are persisted.
type Cluster struct {
	Pattern        string
	Representative string
	Members        []string
	Size           int
	Metadata       map[string]string
}

// Tier3Filter clusters scored lines by normalized pattern, replacing
// each cluster with a single representative line. Groups smaller than
// the minimum become singleton clusters; groups larger than the
// maximum are split into bounded chunks.
type Tier3Filter struct {
	registry *patterns.Registry
	cfg      config.Tier3Config
	strategy RepresentativeStrategy
}

// NewTier3Filter creates a tier 3 filter with the configured cluster
// bounds and representative strategy.
func NewTier3Filter(registry *patterns.Registry, cfg config.Tier3Config) *Tier3Filter {
	return &Tier3Filter{
		registry: registry,
		cfg:      cfg,
		strategy: ParseStrategy(cfg.RepresentativeStrategy),
	}
}

// ClusterLines groups lines by cluster pattern. Output order follows
// first appearance of each pattern in the input.
func (f *Tier3Filter) ClusterLines(lines []ScoredLine) []Cluster {
	groups := make(map[string][]string)
	var order []string
	for _, s := range lines {
		pattern := patterns.Normalize(s.Line, f.registry.Tier3Cluster)
		if _, seen := groups[pattern]; !seen {
			order = append(order, pattern)
		}
		groups[pattern] = append(groups[pattern], s.Line)
	}

	var clusters []Cluster
	for _, pattern := range order {
		members := groups[pattern]
		switch {
		case len(members) < f.cfg.ClusterMinSize:
			// Too few repeats to treat as one pattern; keep each line.
			for _, member := range members {
				clusters = append(clusters, Cluster{
					Pattern:        pattern,
					Representative: member,
					Members:        []string{member},
					Size:           1,
					Metadata:       map[string]string{"singleton": "true"},
				})
			}
		case len(members) > f.cfg.MaxClusterSize:
			for start := 0; start < len(members); start += f.cfg.MaxClusterSize {
				end := start + f.cfg.MaxClusterSize
				if end > len(members) {
					end = len(members)
				}
				chunk := members[start:end]
				clusters = append(clusters, Cluster{
					Pattern:        pattern,
					Representative: f.pickRepresentative(chunk),
					Members:        chunk,
					Size:           len(chunk),
					Metadata: map[string]string{
						"split": "true",
						"count": fmt.Sprintf("%d", len(chunk)),
					},
				})
			}
		default:
			clusters = append(clusters, Cluster{
				Pattern:        pattern,
				Representative: f.pickRepresentative(members),
				Members:        members,
				Size:           len(members),
				Metadata:       map[string]string{"count": fmt.Sprintf("%d", len(members))},
			})
		}
	}

	return clusters
}

func (f *Tier3Filter) pickRepresentative(members []string) string {
	if len(members) == 0 {
		return ""
	}

	switch f.strategy {
	case StrategyFirst:
		return members[0]
	case StrategyLongest:
		longest := members[0]
		for _, m := range members[1:] {
			if len(m) > len(longest) {
				longest = m
			}
		}
		return longest
	default:
		best := members[0]
		bestEntropy := ShannonEntropy(best)
		for _, m := range members[1:] {
			if e := ShannonEntropy(m); e > bestEntropy {
				best = m
				bestEntropy = e
			}
		}
		return best
	}
}
