package retrieval

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/embedding"
	"github.com/neur0map/yinx/internal/index"
	"github.com/neur0map/yinx/internal/types"
)

// Degradation flags reported in search results.
const (
	DegradedVector   = "vector"
	DegradedKeyword  = "keyword"
	DegradedReranker = "reranker"
)

// Filters restrict search candidates before reranking.
type Filters struct {
	SessionID types.ID  `json:"session_id,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Until     time.Time `json:"until,omitempty"`
}

// Provenance points a result back to its capture and raw bytes.
type Provenance struct {
	CaptureID int64     `json:"capture_id"`
	SessionID types.ID  `json:"session_id"`
	BlobHash  string    `json:"blob_hash"`
	Command   string    `json:"command"`
	Tool      string    `json:"tool,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoredChunk is one search result with provenance.
type ScoredChunk struct {
	ChunkID    int64      `json:"chunk_id"`
	Text       string     `json:"text"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// Result is a full search response. Degraded lists the retrieval legs
// that were unavailable; an empty list means the full pipeline ran.
type Result struct {
	Chunks   []ScoredChunk `json:"chunks"`
	Degraded []string      `json:"degraded,omitempty"`
}

// Searcher runs the hybrid retrieval pipeline: concurrent ANN and
// keyword searches, reciprocal rank fusion, reranking, provenance
// hydration.
type Searcher struct {
	embedder embedding.Embedder
	vectors  *index.VectorIndex
	keywords *index.KeywordIndex
	chunks   database.ChunkDAO
	captures database.CaptureDAO
	reranker Reranker
	cfg      config.RetrievalConfig
	logger   *slog.Logger
}

// NewSearcher wires the hybrid searcher.
func NewSearcher(
	embedder embedding.Embedder,
	vectors *index.VectorIndex,
	keywords *index.KeywordIndex,
	chunks database.ChunkDAO,
	captures database.CaptureDAO,
	reranker Reranker,
	cfg config.RetrievalConfig,
	logger *slog.Logger,
) *Searcher {
	return &Searcher{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		chunks:   chunks,
		captures: captures,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger.With("component", "searcher"),
	}
}

// Search runs the full pipeline. If one retrieval leg fails the other
// still serves results and the failure is reported in Degraded; only
// both legs failing is an error.
func (s *Searcher) Search(ctx context.Context, query string, limit int, filters *Filters) (*Result, error) {
	if query == "" {
		return nil, types.NewError(types.QUERY_INVALID, "query must not be empty")
	}
	if limit <= 0 || limit > s.cfg.FinalLimit {
		limit = s.cfg.FinalLimit
	}

	topK := s.cfg.RerankTopK
	result := &Result{}

	var (
		vectorIDs  []int64
		keywordIDs []int64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ids, err := s.searchVector(groupCtx, query, topK)
		if err != nil {
			s.logger.Warn("vector search unavailable", "error", err)
			return nil
		}
		vectorIDs = ids
		return nil
	})
	group.Go(func() error {
		matches, err := s.keywords.Search(groupCtx, query, topK)
		if err != nil {
			s.logger.Warn("keyword search unavailable", "error", err)
			return nil
		}
		keywordIDs = make([]int64, len(matches))
		for i, match := range matches {
			keywordIDs[i] = match.ChunkID
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if vectorIDs == nil && keywordIDs == nil {
		return nil, types.NewError(types.SEARCH_FAILED,
			"both vector and keyword search unavailable")
	}
	if vectorIDs == nil {
		result.Degraded = append(result.Degraded, DegradedVector)
	}
	if keywordIDs == nil {
		result.Degraded = append(result.Degraded, DegradedKeyword)
	}

	fused := FuseRRF([]RankedList{
		{Source: "semantic", Weight: s.cfg.SemanticWeight, ChunkID: vectorIDs},
		{Source: "keyword", Weight: s.cfg.KeywordWeight, ChunkID: keywordIDs},
	}, s.cfg.RRFK)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	candidates, provenance, err := s.hydrate(ctx, fused, filters)
	if err != nil {
		return nil, err
	}

	if s.cfg.EnableReranking && len(candidates) > 0 {
		reranked, err := s.reranker.Rerank(ctx, query, candidates)
		if err != nil {
			s.logger.Warn("reranker unavailable, returning fusion order",
				"reranker", s.reranker.Name(), "error", err)
			result.Degraded = append(result.Degraded, DegradedReranker)
		} else {
			candidates = reranked
		}
	}

	candidates = dedupeByChunk(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result.Chunks = make([]ScoredChunk, 0, len(candidates))
	for _, candidate := range candidates {
		result.Chunks = append(result.Chunks, ScoredChunk{
			ChunkID:    candidate.ChunkID,
			Text:       candidate.Text,
			Score:      candidate.Score,
			Provenance: provenance[candidate.ChunkID],
		})
	}
	return result, nil
}

// searchVector embeds the query and runs the ANN search, dropping
// hits below the similarity floor.
func (s *Searcher) searchVector(ctx context.Context, query string, topK int) ([]int64, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.vectors.Search(embedding.Normalize(vector), topK)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(matches))
	for _, match := range matches {
		if match.Similarity < s.cfg.MinSimilarity {
			continue
		}
		ids = append(ids, match.ChunkID)
	}
	return ids, nil
}

// hydrate loads chunk rows and capture provenance for the fused
// candidates and applies metadata filters.
func (s *Searcher) hydrate(ctx context.Context, fused []FusedCandidate, filters *Filters) ([]Candidate, map[int64]Provenance, error) {
	ids := make([]int64, len(fused))
	for i, candidate := range fused {
		ids[i] = candidate.ChunkID
	}

	chunkRows, err := s.chunks.GetBatch(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	captureIDs := make([]int64, 0, len(chunkRows))
	seen := make(map[int64]struct{})
	for _, chunk := range chunkRows {
		if _, ok := seen[chunk.CaptureID]; !ok {
			seen[chunk.CaptureID] = struct{}{}
			captureIDs = append(captureIDs, chunk.CaptureID)
		}
	}
	captureRows, err := s.captures.GetBatch(ctx, captureIDs)
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]Candidate, 0, len(fused))
	provenance := make(map[int64]Provenance, len(fused))
	for _, fusedCandidate := range fused {
		chunk, ok := chunkRows[fusedCandidate.ChunkID]
		if !ok {
			continue
		}
		capture, ok := captureRows[chunk.CaptureID]
		if !ok {
			continue
		}
		if !matchesFilters(capture, filters) {
			continue
		}

		candidates = append(candidates, Candidate{
			ChunkID: chunk.ID,
			Text:    chunk.RepresentativeText,
			Score:   fusedCandidate.Score,
		})
		provenance[chunk.ID] = Provenance{
			CaptureID: capture.ID,
			SessionID: capture.SessionID,
			BlobHash:  capture.OutputHash,
			Command:   capture.Command,
			Tool:      capture.Tool,
			Timestamp: capture.Timestamp,
		}
	}
	return candidates, provenance, nil
}

func matchesFilters(capture *types.Capture, filters *Filters) bool {
	if filters == nil {
		return true
	}
	if filters.SessionID != "" && capture.SessionID != filters.SessionID {
		return false
	}
	if filters.Tool != "" && capture.Tool != filters.Tool {
		return false
	}
	if !filters.Since.IsZero() && capture.Timestamp.Before(filters.Since) {
		return false
	}
	if !filters.Until.IsZero() && capture.Timestamp.After(filters.Until) {
		return false
	}
	return true
}

// dedupeByChunk keeps the first (highest scored) occurrence of each
// chunk id.
func dedupeByChunk(candidates []Candidate) []Candidate {
	seen := make(map[int64]struct{}, len(candidates))
	out := candidates[:0]
	for _, candidate := range candidates {
		if _, ok := seen[candidate.ChunkID]; ok {
			continue
		}
		seen[candidate.ChunkID] = struct{}{}
		out = append(out, candidate)
	}
	return out
}
