package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternSet is the shape of an external patterns file. Each section
// is appended to the corresponding configuration list, so a patterns
// file extends the built-in defaults rather than replacing them.
type PatternSet struct {
	Tier1Normalization []NormalizationPatternConfig `yaml:"tier1_normalization"`
	Tier3Cluster       []NormalizationPatternConfig `yaml:"tier3_cluster"`
	Technical          []TechnicalPatternConfig     `yaml:"technical"`
	Entities           []EntityPatternConfig        `yaml:"entities"`
	Tools              []ToolPatternConfig          `yaml:"tools"`
}

// LoadPatternSet reads and parses a patterns file.
func LoadPatternSet(path string) (*PatternSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}

	var set PatternSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file: %w", err)
	}
	return &set, nil
}

// applyTo appends the set's sections to the configuration lists.
func (s *PatternSet) applyTo(cfg *Config) {
	cfg.Filtering.Tier1.NormalizationPatterns = append(
		cfg.Filtering.Tier1.NormalizationPatterns, s.Tier1Normalization...)
	cfg.Filtering.Tier3.ClusterPatterns = append(
		cfg.Filtering.Tier3.ClusterPatterns, s.Tier3Cluster...)
	cfg.Filtering.Tier2.TechnicalPatterns = append(
		cfg.Filtering.Tier2.TechnicalPatterns, s.Technical...)
	cfg.Entities = append(cfg.Entities, s.Entities...)
	cfg.Tools = append(cfg.Tools, s.Tools...)
}
