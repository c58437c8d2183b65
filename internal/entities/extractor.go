package entities

import (
	"sort"

	"github.com/neur0map/yinx/internal/patterns"
	"github.com/neur0map/yinx/internal/types"
)

// Extractor matches configured entity patterns against text. All
// patterns come from the registry; the extractor itself carries no
// hardcoded knowledge of entity kinds.
type Extractor struct {
	registry *patterns.Registry
}

// NewExtractor creates an extractor over the given pattern registry.
func NewExtractor(registry *patterns.Registry) *Extractor {
	return &Extractor{registry: registry}
}

// Extract returns every entity matched in text, sorted by position.
// Each entity carries a context window of the pattern's configured
// width on both sides of the match.
func (e *Extractor) Extract(text string) []*types.Entity {
	type positioned struct {
		entity *types.Entity
		start  int
	}

	var found []positioned
	for i := range e.registry.Entities {
		p := &e.registry.Entities[i]
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			found = append(found, positioned{
				entity: &types.Entity{
					TypeName:   p.TypeName,
					Value:      text[loc[0]:loc[1]],
					Context:    contextWindow(text, loc[0], loc[1], p.ContextWindow),
					Confidence: p.Confidence,
					Redact:     p.Redact,
				},
				start: loc[0],
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].start < found[j].start
	})

	out := make([]*types.Entity, len(found))
	for i, f := range found {
		out[i] = f.entity
	}
	return out
}

// ExtractByType returns entities of a single registered kind.
func (e *Extractor) ExtractByType(text, typeName string) []*types.Entity {
	var out []*types.Entity
	for _, entity := range e.Extract(text) {
		if entity.TypeName == typeName {
			out = append(out, entity)
		}
	}
	return out
}

// ExtractSensitive returns only entities flagged for redaction.
func (e *Extractor) ExtractSensitive(text string) []*types.Entity {
	var out []*types.Entity
	for _, entity := range e.Extract(text) {
		if entity.Redact {
			out = append(out, entity)
		}
	}
	return out
}

// EntityTypes returns the sorted set of entity kinds found in text.
func (e *Extractor) EntityTypes(text string) []string {
	seen := make(map[string]struct{})
	for _, entity := range e.Extract(text) {
		seen[entity.TypeName] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func contextWindow(text string, start, end, window int) string {
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	return text[from:to]
}
