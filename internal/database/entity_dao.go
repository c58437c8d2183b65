package database

import (
	"context"
	"database/sql"

	"github.com/neur0map/yinx/internal/types"
)

// EntityDAO provides data access operations for extracted entities.
type EntityDAO interface {
	InsertBatch(ctx context.Context, entities []*types.Entity) error
	// InsertBatchTx is InsertBatch inside an existing transaction.
	InsertBatchTx(ctx context.Context, tx *sql.Tx, entities []*types.Entity) error
	ListByCapture(ctx context.Context, captureID int64) ([]*types.Entity, error)
	ListByType(ctx context.Context, typeName string) ([]*types.Entity, error)
	// ListAll streams every stored entity, oldest first. Used to
	// rebuild the correlation graph on daemon startup.
	ListAll(ctx context.Context) ([]*types.Entity, error)
	CountByType(ctx context.Context) (map[string]int64, error)
}

// entityDAO implements EntityDAO.
type entityDAO struct {
	db *DB
}

// NewEntityDAO creates a new EntityDAO instance.
func NewEntityDAO(db *DB) EntityDAO {
	return &entityDAO{db: db}
}

// InsertBatch persists entities in one transaction and assigns their
// generated IDs.
func (d *entityDAO) InsertBatch(ctx context.Context, entities []*types.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		return d.InsertBatchTx(ctx, tx, entities)
	})
}

// InsertBatchTx is InsertBatch inside an existing transaction.
func (d *entityDAO) InsertBatchTx(ctx context.Context, tx *sql.Tx, entities []*types.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (capture_id, type, value, context, confidence, redact)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to prepare entity insert", err)
	}
	defer stmt.Close()

	for _, entity := range entities {
		result, err := stmt.ExecContext(ctx,
			entity.CaptureID,
			entity.TypeName,
			entity.Value,
			nullableString(entity.Context),
			entity.Confidence,
			entity.Redact,
		)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to insert entity", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to get entity id", err)
		}
		entity.ID = id
	}

	return nil
}

// ListByCapture returns entities extracted from one capture.
func (d *entityDAO) ListByCapture(ctx context.Context, captureID int64) ([]*types.Entity, error) {
	query := entitySelect + " WHERE capture_id = ? ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, captureID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list entities", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// ListByType returns entities of one registered kind.
func (d *entityDAO) ListByType(ctx context.Context, typeName string) ([]*types.Entity, error) {
	query := entitySelect + " WHERE type = ? ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, typeName)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list entities by type", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// ListAll returns every stored entity, oldest first.
func (d *entityDAO) ListAll(ctx context.Context) ([]*types.Entity, error) {
	rows, err := d.db.QueryContext(ctx, entitySelect+" ORDER BY id")
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list entities", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// CountByType returns the number of stored entities per kind.
func (d *entityDAO) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM entities GROUP BY type")
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to count entities", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var typeName string
		var count int64
		if err := rows.Scan(&typeName, &count); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan entity count", err)
		}
		counts[typeName] = count
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating entity counts", err)
	}

	return counts, nil
}

const entitySelect = `
	SELECT id, capture_id, type, value, context, confidence, redact
	FROM entities`

func collectEntities(rows *sql.Rows) ([]*types.Entity, error) {
	var entities []*types.Entity
	for rows.Next() {
		var entity types.Entity
		var context sql.NullString

		err := rows.Scan(
			&entity.ID,
			&entity.CaptureID,
			&entity.TypeName,
			&entity.Value,
			&context,
			&entity.Confidence,
			&entity.Redact,
		)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan entity", err)
		}

		entity.Context = context.String
		entities = append(entities, &entity)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating entities", err)
	}

	return entities, nil
}
