package patterns

import (
	"regexp"
	"sort"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/types"
)

// NormalizationPattern is a compiled pattern/replacement pair. Patterns
// apply in ascending priority order.
type NormalizationPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Priority    int
}

// TechnicalPattern is a compiled weighted pattern for content scoring.
type TechnicalPattern struct {
	Name   string
	Regex  *regexp.Regexp
	Weight float64
}

// EntityPattern is a compiled entity detector. TypeName is the open
// string registered in configuration.
type EntityPattern struct {
	TypeName      string
	Regex         *regexp.Regexp
	Confidence    float64
	ContextWindow int
	Redact        bool
}

// OutputPattern names a section of a tool's output.
type OutputPattern struct {
	Regex   *regexp.Regexp
	Section string
}

// ToolPattern is a compiled tool detector. A command matches the tool
// when any of its command regexes match.
type ToolPattern struct {
	Name           string
	CommandRegexes []*regexp.Regexp
	EntityHints    []string
	OutputPatterns []OutputPattern
}

// Registry holds every compiled pattern consumed by the filtering,
// entity extraction and tool detection stages. Compiled once at startup
// and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	Tier1Normalization []NormalizationPattern
	Tier3Cluster       []NormalizationPattern
	Technical          []TechnicalPattern
	Entities           []EntityPattern
	Tools              []ToolPattern
}

// NewRegistry compiles all patterns from the configuration. A pattern
// that fails to compile aborts registry construction.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	tier1, err := compileNormalization(cfg.Filtering.Tier1.NormalizationPatterns)
	if err != nil {
		return nil, err
	}

	tier3, err := compileNormalization(cfg.Filtering.Tier3.ClusterPatterns)
	if err != nil {
		return nil, err
	}

	technical := make([]TechnicalPattern, 0, len(cfg.Filtering.Tier2.TechnicalPatterns))
	for _, p := range cfg.Filtering.Tier2.TechnicalPatterns {
		re, err := compile(p.Name, p.Pattern)
		if err != nil {
			return nil, err
		}
		technical = append(technical, TechnicalPattern{
			Name:   p.Name,
			Regex:  re,
			Weight: p.Weight,
		})
	}

	entities := make([]EntityPattern, 0, len(cfg.Entities))
	for _, p := range cfg.Entities {
		re, err := compile(p.TypeName, p.Pattern)
		if err != nil {
			return nil, err
		}
		entities = append(entities, EntityPattern{
			TypeName:      p.TypeName,
			Regex:         re,
			Confidence:    p.Confidence,
			ContextWindow: p.ContextWindow,
			Redact:        p.Redact,
		})
	}

	tools := make([]ToolPattern, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tool := ToolPattern{
			Name:        t.Name,
			EntityHints: t.EntityHints,
		}
		for _, cp := range t.CommandPatterns {
			re, err := compile(t.Name, cp)
			if err != nil {
				return nil, err
			}
			tool.CommandRegexes = append(tool.CommandRegexes, re)
		}
		for _, op := range t.OutputPatterns {
			re, err := compile(t.Name, op.Pattern)
			if err != nil {
				return nil, err
			}
			tool.OutputPatterns = append(tool.OutputPatterns, OutputPattern{
				Regex:   re,
				Section: op.Section,
			})
		}
		tools = append(tools, tool)
	}

	return &Registry{
		Tier1Normalization: tier1,
		Tier3Cluster:       tier3,
		Technical:          technical,
		Entities:           entities,
		Tools:              tools,
	}, nil
}

// DetectTool returns the first registered tool whose command pattern
// matches, or the empty string when no tool matches.
func (r *Registry) DetectTool(command string) string {
	for _, tool := range r.Tools {
		for _, re := range tool.CommandRegexes {
			if re.MatchString(command) {
				return tool.Name
			}
		}
	}
	return ""
}

// ToolByName returns the compiled tool pattern for name, if registered.
func (r *Registry) ToolByName(name string) (*ToolPattern, bool) {
	for i := range r.Tools {
		if r.Tools[i].Name == name {
			return &r.Tools[i], true
		}
	}
	return nil, false
}

// Normalize applies the given normalization patterns to a line in
// ascending priority order.
func Normalize(line string, pats []NormalizationPattern) string {
	for _, p := range pats {
		line = p.Regex.ReplaceAllString(line, p.Replacement)
	}
	return line
}

func compileNormalization(cfgs []config.NormalizationPatternConfig) ([]NormalizationPattern, error) {
	out := make([]NormalizationPattern, 0, len(cfgs))
	for _, p := range cfgs {
		re, err := compile(p.Name, p.Pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, NormalizationPattern{
			Name:        p.Name,
			Regex:       re,
			Replacement: p.Replacement,
			Priority:    p.Priority,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

func compile(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, types.WrapError(types.PATTERN_COMPILE_FAILED,
			"pattern "+name+" does not compile", err)
	}
	return re, nil
}
