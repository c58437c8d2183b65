package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/neur0map/yinx/internal/types"
)

// BlobDAO tracks blob metadata and reference counts. The blob bytes
// themselves live in the content-addressed store on disk; this table is
// the source of truth for which hashes are still referenced.
type BlobDAO interface {
	// Upsert inserts the blob row or, when the hash already exists,
	// increments its reference count.
	Upsert(ctx context.Context, blob *types.Blob) error
	// UpsertTx is Upsert inside an existing transaction.
	UpsertTx(ctx context.Context, tx *sql.Tx, blob *types.Blob) error
	Get(ctx context.Context, hash string) (*types.Blob, error)
	DecrementRef(ctx context.Context, hash string) error
	// ListUnreferenced returns hashes whose reference count has
	// dropped to zero. These are candidates for garbage collection.
	ListUnreferenced(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, hash string) error
	Exists(ctx context.Context, hash string) (bool, error)
}

// blobDAO implements BlobDAO.
type blobDAO struct {
	db *DB
}

// NewBlobDAO creates a new BlobDAO instance.
func NewBlobDAO(db *DB) BlobDAO {
	return &blobDAO{db: db}
}

// Upsert inserts the blob row or increments the existing ref count.
func (d *blobDAO) Upsert(ctx context.Context, blob *types.Blob) error {
	return upsertBlob(ctx, d.db, blob)
}

// UpsertTx is Upsert inside an existing transaction.
func (d *blobDAO) UpsertTx(ctx context.Context, tx *sql.Tx, blob *types.Blob) error {
	return upsertBlob(ctx, tx, blob)
}

func upsertBlob(ctx context.Context, ex execer, blob *types.Blob) error {
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}
	if blob.RefCount == 0 {
		blob.RefCount = 1
	}

	query := `
		INSERT INTO blobs (hash, size, compressed, ref_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET ref_count = ref_count + 1
	`

	_, err := ex.ExecContext(
		ctx, query,
		blob.Hash,
		blob.Size,
		blob.Compressed,
		blob.RefCount,
		blob.CreatedAt,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to upsert blob", err)
	}

	return nil
}

// Get retrieves blob metadata by hash.
func (d *blobDAO) Get(ctx context.Context, hash string) (*types.Blob, error) {
	query := `
		SELECT hash, size, compressed, ref_count, created_at
		FROM blobs
		WHERE hash = ?
	`

	var blob types.Blob
	err := d.db.QueryRowContext(ctx, query, hash).Scan(
		&blob.Hash,
		&blob.Size,
		&blob.Compressed,
		&blob.RefCount,
		&blob.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.BLOB_NOT_FOUND, "blob "+hash+" not found")
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get blob", err)
	}

	return &blob, nil
}

// DecrementRef lowers the reference count by one, stopping at zero.
func (d *blobDAO) DecrementRef(ctx context.Context, hash string) error {
	query := `
		UPDATE blobs
		SET ref_count = MAX(ref_count - 1, 0)
		WHERE hash = ?
	`

	result, err := d.db.ExecContext(ctx, query, hash)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to decrement blob ref", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to get rows affected", err)
	}
	if affected == 0 {
		return types.NewError(types.BLOB_NOT_FOUND, "blob "+hash+" not found")
	}

	return nil
}

// ListUnreferenced returns hashes with a zero reference count.
func (d *blobDAO) ListUnreferenced(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT hash FROM blobs WHERE ref_count = 0")
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list unreferenced blobs", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan blob hash", err)
		}
		hashes = append(hashes, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating blobs", err)
	}

	return hashes, nil
}

// Delete removes a blob metadata row.
func (d *blobDAO) Delete(ctx context.Context, hash string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM blobs WHERE hash = ?", hash); err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete blob", err)
	}
	return nil
}

// Exists reports whether a blob row exists for hash.
func (d *blobDAO) Exists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE hash = ?", hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, types.WrapError(types.DB_QUERY_FAILED, "failed to check blob existence", err)
	}
	return true, nil
}
