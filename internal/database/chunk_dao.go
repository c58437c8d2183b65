package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/neur0map/yinx/internal/types"
)

// ChunkDAO provides data access operations for reducer output chunks.
type ChunkDAO interface {
	InsertBatch(ctx context.Context, chunks []*types.Chunk) error
	// InsertBatchTx is InsertBatch inside an existing transaction.
	InsertBatchTx(ctx context.Context, tx *sql.Tx, chunks []*types.Chunk) error
	Get(ctx context.Context, id int64) (*types.Chunk, error)
	GetBatch(ctx context.Context, ids []int64) (map[int64]*types.Chunk, error)
	ListByCapture(ctx context.Context, captureID int64) ([]*types.Chunk, error)
	// ListMissingEmbeddings returns chunks with no stored embedding for
	// the given model, oldest first, up to limit.
	ListMissingEmbeddings(ctx context.Context, model string, limit int) ([]*types.Chunk, error)
	Count(ctx context.Context) (int64, error)
}

// chunkDAO implements ChunkDAO.
type chunkDAO struct {
	db *DB
}

// NewChunkDAO creates a new ChunkDAO instance.
func NewChunkDAO(db *DB) ChunkDAO {
	return &chunkDAO{db: db}
}

// InsertBatch persists chunks in one transaction and assigns their
// generated IDs.
func (d *chunkDAO) InsertBatch(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		return d.InsertBatchTx(ctx, tx, chunks)
	})
}

// InsertBatchTx is InsertBatch inside an existing transaction.
func (d *chunkDAO) InsertBatchTx(ctx context.Context, tx *sql.Tx, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (capture_id, blob_hash, representative_text, cluster_size, metadata)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadata, err := chunk.MetadataJSON()
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to encode chunk metadata", err)
		}

		result, err := stmt.ExecContext(ctx,
			chunk.CaptureID,
			chunk.BlobHash,
			chunk.RepresentativeText,
			chunk.ClusterSize,
			metadata,
		)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to insert chunk", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to get chunk id", err)
		}
		chunk.ID = id
	}

	return nil
}

// Get retrieves a chunk by ID.
func (d *chunkDAO) Get(ctx context.Context, id int64) (*types.Chunk, error) {
	query := `
		SELECT id, capture_id, blob_hash, representative_text, cluster_size, metadata
		FROM chunks
		WHERE id = ?
	`

	chunk, err := scanChunk(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.CHUNK_NOT_FOUND, fmt.Sprintf("chunk %d not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get chunk", err)
	}

	return chunk, nil
}

// GetBatch retrieves multiple chunks keyed by ID.
func (d *chunkDAO) GetBatch(ctx context.Context, ids []int64) (map[int64]*types.Chunk, error) {
	result := make(map[int64]*types.Chunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, capture_id, blob_hash, representative_text, cluster_size, metadata
		FROM chunks
		WHERE id IN (` + placeholders(len(ids)) + `)
	`

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to batch get chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan chunk", err)
		}
		result[chunk.ID] = chunk
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating chunks", err)
	}

	return result, nil
}

// ListByCapture returns all chunks produced from one capture.
func (d *chunkDAO) ListByCapture(ctx context.Context, captureID int64) ([]*types.Chunk, error) {
	query := `
		SELECT id, capture_id, blob_hash, representative_text, cluster_size, metadata
		FROM chunks
		WHERE capture_id = ?
		ORDER BY id
	`

	rows, err := d.db.QueryContext(ctx, query, captureID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list chunks", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// ListMissingEmbeddings returns chunks lacking an embedding for model.
func (d *chunkDAO) ListMissingEmbeddings(ctx context.Context, model string, limit int) ([]*types.Chunk, error) {
	query := `
		SELECT c.id, c.capture_id, c.blob_hash, c.representative_text, c.cluster_size, c.metadata
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model = ?
		WHERE e.chunk_id IS NULL
		ORDER BY c.id
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, model, limit)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list unembedded chunks", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// Count returns the total number of chunks.
func (d *chunkDAO) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "failed to count chunks", err)
	}
	return count, nil
}

func collectChunks(rows *sql.Rows) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan chunk", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating chunks", err)
	}

	return chunks, nil
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var chunk types.Chunk
	var metadata string

	err := row.Scan(
		&chunk.ID,
		&chunk.CaptureID,
		&chunk.BlobHash,
		&chunk.RepresentativeText,
		&chunk.ClusterSize,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("invalid chunk metadata: %w", err)
		}
	}

	return &chunk, nil
}
