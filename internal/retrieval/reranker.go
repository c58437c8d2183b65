package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/neur0map/yinx/internal/types"
)

// Candidate is one chunk entering the reranker.
type Candidate struct {
	ChunkID int64
	Text    string
	Score   float64
}

// Reranker rescores candidates against the query. Implementations
// must return all candidates, reordered best-first.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)
	Name() string
}

// LexicalReranker is the built-in cross-scorer: it rescores each
// candidate by the fraction of query terms it contains; every query
// term counts the same. It runs locally with no model download and keeps
// the fusion score as a tiebreaker so it never orders a healthy
// result set worse than fusion alone.
type LexicalReranker struct{}

// NewLexicalReranker creates the built-in lexical reranker.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Name identifies the reranker in degraded-search flags.
func (r *LexicalReranker) Name() string { return "lexical" }

// Rerank scores candidates by query-term overlap. The fused score is
// folded in as a small additive component so full-overlap ties keep
// their fusion order.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.RERANK_FAILED, "rerank cancelled", err)
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return candidates, nil
	}

	maxFused := 0.0
	for _, candidate := range candidates {
		if candidate.Score > maxFused {
			maxFused = candidate.Score
		}
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		overlap := overlapScore(queryTerms, tokenize(out[i].Text))
		tiebreak := 0.0
		if maxFused > 0 {
			tiebreak = out[i].Score / maxFused * 0.01
		}
		out[i].Score = overlap + tiebreak
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// overlapScore is the fraction of query terms present in the document,
// with substring hits for terms of four or more characters counting as
// presence.
func overlapScore(queryTerms map[string]struct{}, docTerms map[string]struct{}) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	hits := 0
	for term := range queryTerms {
		if _, ok := docTerms[term]; ok {
			hits++
			continue
		}
		for doc := range docTerms {
			if len(term) >= 4 && strings.Contains(doc, term) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

var tokenSplitter = func(r rune) bool {
	return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' ||
		r == '.' || r == '-' || r == '_')
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), tokenSplitter) {
		out[field] = struct{}{}
	}
	return out
}

// FailingReranker always errors. Used in tests and fault drills to
// exercise the degraded-search path.
type FailingReranker struct {
	mu  sync.Mutex
	err error
}

// NewFailingReranker creates a reranker that fails with err.
func NewFailingReranker(err error) *FailingReranker {
	return &FailingReranker{err: err}
}

func (r *FailingReranker) Name() string { return "failing" }

func (r *FailingReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return nil, r.err
}
