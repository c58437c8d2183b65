package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/embedding"
	"github.com/neur0map/yinx/internal/types"
)

// Builder embeds chunk text in batches and inserts the vectors into
// the ANN index. Keyword indexing needs no work here: the FTS table
// is populated by triggers inside the chunk insert transaction.
//
// Embedding rows are committed only after the vector index insert
// acknowledges, so a crash between the two leaves the chunk in the
// missing-embeddings set and a later sweep repairs it.
type Builder struct {
	chunks     database.ChunkDAO
	embeddings database.EmbeddingDAO
	embedder   embedding.Embedder
	vectors    *VectorIndex
	logger     *slog.Logger

	batchSize    int
	batchTimeout time.Duration
}

// NewBuilder wires the index builder.
func NewBuilder(
	chunks database.ChunkDAO,
	embeddings database.EmbeddingDAO,
	embedder embedding.Embedder,
	vectors *VectorIndex,
	cfg config.EmbeddingConfig,
	logger *slog.Logger,
) *Builder {
	return &Builder{
		chunks:       chunks,
		embeddings:   embeddings,
		embedder:     embedder,
		vectors:      vectors,
		logger:       logger.With("component", "index_builder"),
		batchSize:    cfg.BatchSize,
		batchTimeout: time.Duration(cfg.BatchTimeoutSeconds) * time.Second,
	}
}

// IndexChunks embeds and indexes the given chunks in batches. A batch
// that times out is retried once; a batch that still fails is skipped
// and its chunks stay unembedded for a later Sweep. Returns the number
// of chunks indexed.
func (b *Builder) IndexChunks(ctx context.Context, chunks []*types.Chunk) (int, error) {
	indexed := 0
	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := ctx.Err(); err != nil {
			return indexed, types.WrapError(types.OP_CANCELLED, "indexing cancelled", err)
		}

		if err := b.indexBatch(ctx, batch); err != nil {
			b.logger.Warn("embedding batch deferred",
				"chunks", len(batch),
				"error", err)
			continue
		}
		indexed += len(batch)
	}
	return indexed, nil
}

// Sweep embeds chunks that have no stored embedding, up to limit.
// Called on daemon startup after index load.
func (b *Builder) Sweep(ctx context.Context, limit int) (int, error) {
	missing, err := b.chunks.ListMissingEmbeddings(ctx, b.embedder.Model(), limit)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	b.logger.Info("sweeping unembedded chunks", "count", len(missing))
	return b.IndexChunks(ctx, missing)
}

// Rebuild restores the vector index from stored embeddings, then
// sweeps chunks the stored set is missing. Called when the on-disk
// index is absent or unreadable.
func (b *Builder) Rebuild(ctx context.Context) error {
	stored, err := b.embeddings.ListByModel(ctx, b.embedder.Model())
	if err != nil {
		return err
	}

	ids := make([]int64, len(stored))
	vectors := make([][]float32, len(stored))
	for i, emb := range stored {
		ids[i] = emb.ChunkID
		vectors[i] = emb.Vector
	}
	if err := b.vectors.InsertBatch(ids, vectors); err != nil {
		return err
	}

	b.logger.Info("vector index rebuilt from store", "vectors", len(stored))

	_, err = b.Sweep(ctx, rebuildSweepLimit)
	return err
}

// rebuildSweepLimit bounds the startup repair pass.
const rebuildSweepLimit = 10000

// indexBatch embeds one batch (with one retry on timeout), inserts the
// vectors, then persists the embedding rows.
func (b *Builder) indexBatch(ctx context.Context, batch []*types.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.RepresentativeText
	}

	vectors, err := b.embedBatch(ctx, texts)
	if err != nil && types.IsRetryable(err) {
		b.logger.Warn("embedding batch timed out, retrying once", "chunks", len(batch))
		vectors, err = b.embedBatch(ctx, texts)
	}
	if err != nil {
		return err
	}

	ids := make([]int64, len(batch))
	for i, chunk := range batch {
		ids[i] = chunk.ID
	}
	if err := b.vectors.InsertBatch(ids, vectors); err != nil {
		return err
	}

	rows := make([]*types.Embedding, len(batch))
	now := time.Now().UTC()
	for i, chunk := range batch {
		rows[i] = &types.Embedding{
			ChunkID:   chunk.ID,
			Vector:    vectors[i],
			Model:     b.embedder.Model(),
			CreatedAt: now,
		}
	}
	if err := b.embeddings.UpsertBatch(ctx, rows); err != nil {
		return types.WrapError(types.EMBEDDING_BATCH_FAILED,
			"vectors indexed but embedding rows not persisted", err)
	}
	return nil
}

// embedBatch runs one embedder call under the configured timeout.
// Timeouts come back retryable.
func (b *Builder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batchCtx, cancel := context.WithTimeout(ctx, b.batchTimeout)
	defer cancel()

	vectors, err := b.embedder.EmbedBatch(batchCtx, texts)
	if err != nil {
		if batchCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			retryable := types.NewRetryableError(types.EMBEDDING_BATCH_FAILED,
				fmt.Sprintf("embedding batch of %d timed out after %s", len(texts), b.batchTimeout))
			retryable.Cause = err
			return nil, retryable
		}
		return nil, err
	}

	for i, vector := range vectors {
		if len(vector) != b.embedder.Dimensions() {
			return nil, types.NewError(types.EMBEDDING_BATCH_FAILED,
				fmt.Sprintf("embedder returned %d-dimensional vector for text %d, want %d",
					len(vector), i, b.embedder.Dimensions()))
		}
	}
	return vectors, nil
}
