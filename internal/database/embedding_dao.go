package database

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/neur0map/yinx/internal/types"
)

// EmbeddingDAO stores chunk vectors. A chunk has at most one embedding
// per model; Upsert is idempotent on (chunk_id, model).
type EmbeddingDAO interface {
	Upsert(ctx context.Context, embedding *types.Embedding) error
	UpsertBatch(ctx context.Context, embeddings []*types.Embedding) error
	Get(ctx context.Context, chunkID int64, model string) (*types.Embedding, error)
	// ListByModel returns all stored embeddings for a model, ordered by
	// chunk ID. Used to rebuild the vector index on startup.
	ListByModel(ctx context.Context, model string) ([]*types.Embedding, error)
	CountByModel(ctx context.Context, model string) (int64, error)
}

// embeddingDAO implements EmbeddingDAO.
type embeddingDAO struct {
	db *DB
}

// NewEmbeddingDAO creates a new EmbeddingDAO instance.
func NewEmbeddingDAO(db *DB) EmbeddingDAO {
	return &embeddingDAO{db: db}
}

// Upsert stores or replaces the vector for (chunk_id, model).
func (d *embeddingDAO) Upsert(ctx context.Context, embedding *types.Embedding) error {
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO embeddings (chunk_id, model, vector, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id, model) DO UPDATE SET vector = excluded.vector
	`

	_, err := d.db.ExecContext(
		ctx, query,
		embedding.ChunkID,
		embedding.Model,
		EncodeVector(embedding.Vector),
		embedding.CreatedAt,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to upsert embedding", err)
	}

	return nil
}

// UpsertBatch stores embeddings in one transaction.
func (d *embeddingDAO) UpsertBatch(ctx context.Context, embeddings []*types.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (chunk_id, model, vector, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(chunk_id, model) DO UPDATE SET vector = excluded.vector
		`)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to prepare embedding insert", err)
		}
		defer stmt.Close()

		for _, embedding := range embeddings {
			if embedding.CreatedAt.IsZero() {
				embedding.CreatedAt = time.Now().UTC()
			}
			_, err := stmt.ExecContext(ctx,
				embedding.ChunkID,
				embedding.Model,
				EncodeVector(embedding.Vector),
				embedding.CreatedAt,
			)
			if err != nil {
				return types.WrapError(types.DB_QUERY_FAILED, "failed to insert embedding", err)
			}
		}

		return nil
	})
}

// Get retrieves the embedding for (chunkID, model).
func (d *embeddingDAO) Get(ctx context.Context, chunkID int64, model string) (*types.Embedding, error) {
	query := `
		SELECT chunk_id, model, vector, created_at
		FROM embeddings
		WHERE chunk_id = ? AND model = ?
	`

	var embedding types.Embedding
	var raw []byte
	err := d.db.QueryRowContext(ctx, query, chunkID, model).Scan(
		&embedding.ChunkID,
		&embedding.Model,
		&raw,
		&embedding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.CHUNK_NOT_FOUND,
			fmt.Sprintf("no embedding for chunk %d model %s", chunkID, model))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get embedding", err)
	}

	vector, err := DecodeVector(raw)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode vector", err)
	}
	embedding.Vector = vector

	return &embedding, nil
}

// ListByModel returns all embeddings for a model ordered by chunk ID.
func (d *embeddingDAO) ListByModel(ctx context.Context, model string) ([]*types.Embedding, error) {
	query := `
		SELECT chunk_id, model, vector, created_at
		FROM embeddings
		WHERE model = ?
		ORDER BY chunk_id
	`

	rows, err := d.db.QueryContext(ctx, query, model)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list embeddings", err)
	}
	defer rows.Close()

	var embeddings []*types.Embedding
	for rows.Next() {
		var embedding types.Embedding
		var raw []byte
		if err := rows.Scan(&embedding.ChunkID, &embedding.Model, &raw, &embedding.CreatedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan embedding", err)
		}

		vector, err := DecodeVector(raw)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode vector", err)
		}
		embedding.Vector = vector
		embeddings = append(embeddings, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating embeddings", err)
	}

	return embeddings, nil
}

// CountByModel returns the number of stored embeddings for a model.
func (d *embeddingDAO) CountByModel(ctx context.Context, model string) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embeddings WHERE model = ?", model).Scan(&count)
	if err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "failed to count embeddings", err)
	}
	return count, nil
}

// EncodeVector serializes a float32 vector as little-endian bytes.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes a little-endian float32 vector.
func DecodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	vector := make([]float32, len(raw)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vector, nil
}
