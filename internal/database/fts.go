package database

import (
	"context"
	"database/sql"

	"github.com/neur0map/yinx/internal/types"
)

// ftsSchema declares the external-content FTS5 table over chunk
// representative text plus the triggers that keep it in lockstep with
// the chunks table. content=chunks means the virtual table stores only
// the inverted index; the text itself stays in chunks. Because the
// triggers fire inside whatever transaction touches chunks, keyword
// index updates commit atomically with the rows they mirror.
var ftsSchema = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		representative_text,
		content=chunks,
		content_rowid=id
	)`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert
	AFTER INSERT ON chunks
	BEGIN
		INSERT INTO chunks_fts(rowid, representative_text)
		VALUES (new.id, new.representative_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_update
	AFTER UPDATE ON chunks
	BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, representative_text)
		VALUES ('delete', old.id, old.representative_text);
		INSERT INTO chunks_fts(rowid, representative_text)
		VALUES (new.id, new.representative_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete
	AFTER DELETE ON chunks
	BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, representative_text)
		VALUES ('delete', old.id, old.representative_text);
	END`,
}

// initFTS creates the FTS5 table and sync triggers. Runs after the
// migrations so the chunks table exists.
func (db *DB) initFTS(ctx context.Context) error {
	for _, stmt := range ftsSchema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return types.WrapError(types.DB_MIGRATION_FAILED,
				"failed to create keyword index schema", err)
		}
	}
	return nil
}

// ChunkMatch is one full-text hit against chunk representative text.
// Rank is FTS5 bm25, negative, lower is better.
type ChunkMatch struct {
	ChunkID   int64
	CaptureID int64
	Snippet   string
	Rank      float64
}

// SearchChunkText runs an FTS5 MATCH over chunk representative text
// and returns up to limit hits, best first.
func (db *DB) SearchChunkText(ctx context.Context, match string, limit int) ([]ChunkMatch, error) {
	query := `
		SELECT c.id, c.capture_id,
			snippet(chunks_fts, 0, '', '', '...', 32),
			rank
		FROM chunks c
		JOIN chunks_fts fts ON c.id = fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, match, limit)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to search chunk text", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.CaptureID, &m.Snippet, &m.Rank); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan chunk match", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating chunk matches", err)
	}

	return matches, nil
}

// RebuildChunkFTS repopulates the keyword index from the chunks table
// in one transaction, then merges its segments. Used when the index
// drifts out of sync with its content table.
func (db *DB) RebuildChunkFTS(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		steps := []string{
			`INSERT INTO chunks_fts(chunks_fts) VALUES ('delete-all')`,
			`INSERT INTO chunks_fts(rowid, representative_text)
			SELECT id, representative_text FROM chunks`,
			`INSERT INTO chunks_fts(chunks_fts) VALUES ('optimize')`,
		}
		for _, stmt := range steps {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return types.WrapError(types.DB_QUERY_FAILED,
					"failed to rebuild keyword index", err)
			}
		}
		return nil
	})
}

// OptimizeChunkFTS merges the keyword index b-tree segments. Worth
// running after bulk inserts.
func (db *DB) OptimizeChunkFTS(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO chunks_fts(chunks_fts) VALUES ('optimize')`); err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to optimize keyword index", err)
	}
	return nil
}
