package index

import (
	"context"
	"strings"

	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/types"
)

// KeywordMatch is one full-text search hit. Score is BM25-derived,
// higher is better.
type KeywordMatch struct {
	ChunkID   int64
	CaptureID int64
	Snippet   string
	Score     float64
}

// KeywordIndex searches chunk representative text through the FTS5
// virtual table. Writes ride the chunk insert transaction via
// triggers, so the keyword index commits atomically with the chunks
// it mirrors.
type KeywordIndex struct {
	db *database.DB
}

// NewKeywordIndex wraps the FTS index backed by db. The FTS schema is
// created by db.InitSchema after the migrations run.
func NewKeywordIndex(db *database.DB) *KeywordIndex {
	return &KeywordIndex{db: db}
}

// Search returns up to limit chunks matching the query, best first.
// The raw query is quoted per-term so user input cannot inject FTS5
// operators.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	ftsQuery := sanitizeQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := k.db.SearchChunkText(ctx, ftsQuery, limit)
	if err != nil {
		return nil, types.WrapError(types.KEYWORD_INDEX_FAILED, "full-text search failed", err)
	}

	out := make([]KeywordMatch, 0, len(rows))
	for _, row := range rows {
		// FTS5 bm25 rank is negative, lower is better.
		out = append(out, KeywordMatch{
			ChunkID:   row.ChunkID,
			CaptureID: row.CaptureID,
			Snippet:   row.Snippet,
			Score:     -row.Rank,
		})
	}
	return out, nil
}

// Rebuild repopulates the FTS table from the chunks table.
func (k *KeywordIndex) Rebuild(ctx context.Context) error {
	if err := k.db.RebuildChunkFTS(ctx); err != nil {
		return types.WrapError(types.KEYWORD_INDEX_FAILED, "failed to rebuild keyword index", err)
	}
	return nil
}

// Optimize merges the FTS b-tree segments. Called after bulk inserts.
func (k *KeywordIndex) Optimize(ctx context.Context) error {
	if err := k.db.OptimizeChunkFTS(ctx); err != nil {
		return types.WrapError(types.KEYWORD_INDEX_FAILED, "failed to optimize keyword index", err)
	}
	return nil
}

// sanitizeQuery turns free text into a conjunction of quoted terms.
func sanitizeQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		escaped := strings.ReplaceAll(field, `"`, `""`)
		terms = append(terms, `"`+escaped+`"`)
	}
	return strings.Join(terms, " ")
}
