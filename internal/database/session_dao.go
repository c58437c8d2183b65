package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neur0map/yinx/internal/types"
)

// SessionDAO provides data access operations for recording sessions.
type SessionDAO interface {
	Create(ctx context.Context, session *types.Session) error
	Get(ctx context.Context, id types.ID) (*types.Session, error)
	GetActive(ctx context.Context) (*types.Session, error)
	List(ctx context.Context) ([]*types.Session, error)
	UpdateStatus(ctx context.Context, id types.ID, status types.SessionStatus, stoppedAt *time.Time) error
	IncrementCounters(ctx context.Context, id types.ID, captures, blobs int64) error
	// IncrementCountersTx is IncrementCounters inside an existing
	// transaction.
	IncrementCountersTx(ctx context.Context, tx *sql.Tx, id types.ID, captures, blobs int64) error
}

// sessionDAO implements SessionDAO.
type sessionDAO struct {
	db *DB
}

// NewSessionDAO creates a new SessionDAO instance.
func NewSessionDAO(db *DB) SessionDAO {
	return &sessionDAO{db: db}
}

// Create persists a new session.
func (d *sessionDAO) Create(ctx context.Context, session *types.Session) error {
	if session.ID.IsZero() {
		session.ID = types.NewID()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = types.SessionStatusActive
	}

	query := `
		INSERT INTO sessions (id, name, started_at, stopped_at, status, capture_count, blob_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(
		ctx, query,
		session.ID.String(),
		session.Name,
		session.StartedAt,
		nullableTime(session.StoppedAt),
		string(session.Status),
		session.CaptureCount,
		session.BlobCount,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create session", err)
	}

	return nil
}

// Get retrieves a session by ID.
func (d *sessionDAO) Get(ctx context.Context, id types.ID) (*types.Session, error) {
	query := `
		SELECT id, name, started_at, stopped_at, status, capture_count, blob_count
		FROM sessions
		WHERE id = ?
	`

	session, err := scanSession(d.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.SESSION_NOT_FOUND, "session "+id.String()+" not found")
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get session", err)
	}

	return session, nil
}

// GetActive returns the most recently started active session.
func (d *sessionDAO) GetActive(ctx context.Context) (*types.Session, error) {
	query := `
		SELECT id, name, started_at, stopped_at, status, capture_count, blob_count
		FROM sessions
		WHERE status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	session, err := scanSession(d.db.QueryRowContext(ctx, query, string(types.SessionStatusActive)))
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.SESSION_NOT_FOUND, "no active session")
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get active session", err)
	}

	return session, nil
}

// List returns all sessions, newest first.
func (d *sessionDAO) List(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, name, started_at, stopped_at, status, capture_count, blob_count
		FROM sessions
		ORDER BY started_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list sessions", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan session", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating sessions", err)
	}

	return sessions, nil
}

// UpdateStatus transitions a session's lifecycle state.
func (d *sessionDAO) UpdateStatus(ctx context.Context, id types.ID, status types.SessionStatus, stoppedAt *time.Time) error {
	query := `UPDATE sessions SET status = ?, stopped_at = ? WHERE id = ?`

	result, err := d.db.ExecContext(ctx, query, string(status), nullableTime(stoppedAt), id.String())
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update session status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to get rows affected", err)
	}
	if affected == 0 {
		return types.NewError(types.SESSION_NOT_FOUND, "session "+id.String()+" not found")
	}

	return nil
}

// IncrementCounters adds to the session's capture and blob counters.
func (d *sessionDAO) IncrementCounters(ctx context.Context, id types.ID, captures, blobs int64) error {
	return incrementSessionCounters(ctx, d.db, id, captures, blobs)
}

// IncrementCountersTx is IncrementCounters inside an existing
// transaction.
func (d *sessionDAO) IncrementCountersTx(ctx context.Context, tx *sql.Tx, id types.ID, captures, blobs int64) error {
	return incrementSessionCounters(ctx, tx, id, captures, blobs)
}

func incrementSessionCounters(ctx context.Context, ex execer, id types.ID, captures, blobs int64) error {
	query := `
		UPDATE sessions
		SET capture_count = capture_count + ?, blob_count = blob_count + ?
		WHERE id = ?
	`

	result, err := ex.ExecContext(ctx, query, captures, blobs, id.String())
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to increment session counters", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to get rows affected", err)
	}
	if affected == 0 {
		return types.NewError(types.SESSION_NOT_FOUND, "session "+id.String()+" not found")
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var idStr, status string
	var stoppedAt sql.NullTime

	err := row.Scan(
		&idStr,
		&session.Name,
		&session.StartedAt,
		&stoppedAt,
		&status,
		&session.CaptureCount,
		&session.BlobCount,
	)
	if err != nil {
		return nil, err
	}

	id, err := types.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", idStr, err)
	}
	session.ID = id
	session.Status = types.SessionStatus(status)
	if stoppedAt.Valid {
		t := stoppedAt.Time
		session.StoppedAt = &t
	}

	return &session, nil
}

// nullableTime converts a *time.Time to a driver-friendly value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
