package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neur0map/yinx/internal/types"
)

// CaptureDAO provides data access operations for captures.
type CaptureDAO interface {
	Insert(ctx context.Context, capture *types.Capture) error
	// InsertTx persists a capture inside an existing transaction.
	InsertTx(ctx context.Context, tx *sql.Tx, capture *types.Capture) error
	Get(ctx context.Context, id int64) (*types.Capture, error)
	GetBatch(ctx context.Context, ids []int64) (map[int64]*types.Capture, error)
	ListBySession(ctx context.Context, sessionID types.ID, limit int) ([]*types.Capture, error)
	CountBySession(ctx context.Context, sessionID types.ID) (int64, error)
}

// captureDAO implements CaptureDAO.
type captureDAO struct {
	db *DB
}

// NewCaptureDAO creates a new CaptureDAO instance.
func NewCaptureDAO(db *DB) CaptureDAO {
	return &captureDAO{db: db}
}

// Insert persists a capture and assigns its generated ID.
func (d *captureDAO) Insert(ctx context.Context, capture *types.Capture) error {
	return insertCapture(ctx, d.db, capture)
}

// InsertTx persists a capture inside an existing transaction.
func (d *captureDAO) InsertTx(ctx context.Context, tx *sql.Tx, capture *types.Capture) error {
	return insertCapture(ctx, tx, capture)
}

func insertCapture(ctx context.Context, ex execer, capture *types.Capture) error {
	query := `
		INSERT INTO captures (session_id, timestamp, command, output_hash, tool, exit_code, cwd)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := ex.ExecContext(
		ctx, query,
		capture.SessionID.String(),
		capture.Timestamp,
		capture.Command,
		capture.OutputHash,
		nullableString(capture.Tool),
		capture.ExitCode,
		capture.CWD,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to insert capture", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to get capture id", err)
	}
	capture.ID = id

	return nil
}

// Get retrieves a capture by ID.
func (d *captureDAO) Get(ctx context.Context, id int64) (*types.Capture, error) {
	query := `
		SELECT id, session_id, timestamp, command, output_hash, tool, exit_code, cwd
		FROM captures
		WHERE id = ?
	`

	capture, err := scanCapture(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.CAPTURE_NOT_FOUND, fmt.Sprintf("capture %d not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get capture", err)
	}

	return capture, nil
}

// GetBatch retrieves multiple captures keyed by ID. Missing IDs are
// simply absent from the result map.
func (d *captureDAO) GetBatch(ctx context.Context, ids []int64) (map[int64]*types.Capture, error) {
	result := make(map[int64]*types.Capture, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, session_id, timestamp, command, output_hash, tool, exit_code, cwd
		FROM captures
		WHERE id IN (` + placeholders(len(ids)) + `)
	`

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to batch get captures", err)
	}
	defer rows.Close()

	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan capture", err)
		}
		result[capture.ID] = capture
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating captures", err)
	}

	return result, nil
}

// ListBySession returns captures for a session, newest first. A limit
// of 0 returns all captures.
func (d *captureDAO) ListBySession(ctx context.Context, sessionID types.ID, limit int) ([]*types.Capture, error) {
	query := `
		SELECT id, session_id, timestamp, command, output_hash, tool, exit_code, cwd
		FROM captures
		WHERE session_id = ?
		ORDER BY id DESC
	`
	args := []interface{}{sessionID.String()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list captures", err)
	}
	defer rows.Close()

	var captures []*types.Capture
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan capture", err)
		}
		captures = append(captures, capture)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating captures", err)
	}

	return captures, nil
}

// CountBySession returns the number of captures recorded for a session.
func (d *captureDAO) CountBySession(ctx context.Context, sessionID types.ID) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM captures WHERE session_id = ?", sessionID.String()).Scan(&count)
	if err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "failed to count captures", err)
	}
	return count, nil
}

func scanCapture(row rowScanner) (*types.Capture, error) {
	var capture types.Capture
	var sessionIDStr string
	var tool sql.NullString

	err := row.Scan(
		&capture.ID,
		&sessionIDStr,
		&capture.Timestamp,
		&capture.Command,
		&capture.OutputHash,
		&tool,
		&capture.ExitCode,
		&capture.CWD,
	)
	if err != nil {
		return nil, err
	}

	sessionID, err := types.ParseID(sessionIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", sessionIDStr, err)
	}
	capture.SessionID = sessionID
	capture.Tool = tool.String

	return &capture, nil
}

// nullableString converts an empty string to NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
