package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/motion.report/internal/bouts"
)

// Session workflow states the core reads and writes. Other review states
// exist downstream but pass through this package untouched.
const (
	StatusInitial = "Initial"
	StatusSplit   = "Split"
)

// Session is the unit of analysis: one contiguous recording with its bout
// list and review flags. Keep and Verified are tri-state (nil means not yet
// reviewed). Parent* fields are audit breadcrumbs recorded at split time.
type Session struct {
	ID              int64        `json:"id"`
	ProjectID       int64        `json:"project_id"`
	Name            string       `json:"name"`
	Status          string       `json:"status"`
	Keep            *int         `json:"keep"`
	Verified        *int         `json:"verified"`
	Bouts           []bouts.Bout `json:"bouts"`
	StartNs         int64        `json:"start_ns"`
	StopNs          int64        `json:"stop_ns"`
	ParentDataPath  *string      `json:"parent_session_data_path,omitempty"`
	DataStartOffset *int64       `json:"data_start_offset,omitempty"`
	DataEndOffset   *int64       `json:"data_end_offset,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

const sessionColumns = `session_id, project_id, session_name, status, keep, verified,
	bouts, start_ns, stop_ns, parent_session_data_path, data_start_offset,
	data_end_offset, created_at, updated_at`

// InsertSession inserts a session row and sets its ID. An empty Status
// defaults to Initial.
func (db *DB) InsertSession(ctx context.Context, s *Session) error {
	return insertSession(ctx, db.DB, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, e execer, s *Session) error {
	if s.Status == "" {
		s.Status = StatusInitial
	}
	boutsJSON, err := bouts.Encode(s.Bouts)
	if err != nil {
		return fmt.Errorf("failed to encode bouts: %w", err)
	}

	result, err := e.ExecContext(ctx, `
		INSERT INTO sessions (
			project_id, session_name, status, keep, verified, bouts,
			start_ns, stop_ns, parent_session_data_path,
			data_start_offset, data_end_offset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ProjectID, s.Name, s.Status, s.Keep, s.Verified, string(boutsJSON),
		s.StartNs, s.StopNs, s.ParentDataPath, s.DataStartOffset, s.DataEndOffset,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %q: %w", s.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	s.ID = id
	return nil
}

// InsertSessionsTx inserts a batch of sessions in one transaction. Either
// every row lands or none do; IDs are set on success. The auto-split path
// uses this so a failure partway cannot strand a subset of segments.
func (db *DB) InsertSessionsTx(ctx context.Context, sessions []*Session) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return
		}
	}()

	for _, s := range sessions {
		if err := insertSession(ctx, tx, s); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanSession(scan func(...any) error) (*Session, error) {
	var s Session
	var boutsJSON string
	var createdAt, updatedAt float64
	err := scan(
		&s.ID, &s.ProjectID, &s.Name, &s.Status, &s.Keep, &s.Verified,
		&boutsJSON, &s.StartNs, &s.StopNs, &s.ParentDataPath,
		&s.DataStartOffset, &s.DataEndOffset, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	decoded, err := bouts.Decode([]byte(boutsJSON))
	if err != nil {
		return nil, fmt.Errorf("session %d has malformed bouts JSON: %w", s.ID, err)
	}
	s.Bouts = decoded
	s.CreatedAt = unixToTime(createdAt)
	s.UpdatedAt = unixToTime(updatedAt)
	return &s, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns a project's sessions ordered by name. Sessions whose
// status is Split are retained for lineage but hidden from default listings;
// pass includeSplit to see them.
func (db *DB) ListSessions(ctx context.Context, projectID int64, includeSplit bool) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE project_id = ?`
	if !includeSplit {
		query += ` AND status != '` + StatusSplit + `'`
	}
	query += ` ORDER BY session_name`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// SessionNameExists reports whether a session with the given name exists in
// the project. Used as the database half of the unique-name pre-check; the
// UNIQUE index remains the final arbiter under concurrency.
func (db *DB) SessionNameExists(ctx context.Context, projectID int64, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE project_id = ? AND session_name = ?`,
		projectID, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session name: %w", err)
	}
	return count > 0, nil
}

// AppendBouts merges additional bouts onto a session's list. The merge is
// append-only: existing bouts are never rewritten or removed, which is the
// contract both manual labeling and ML-assisted scoring write through.
func (db *DB) AppendBouts(ctx context.Context, sessionID int64, add []bouts.Bout) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return
		}
	}()

	var boutsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT bouts FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&boutsJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("session %d not found", sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to read bouts: %w", err)
	}

	existing, err := bouts.Decode([]byte(boutsJSON))
	if err != nil {
		return fmt.Errorf("session %d has malformed bouts JSON: %w", sessionID, err)
	}

	merged := append(existing, add...)
	encoded, err := bouts.Encode(merged)
	if err != nil {
		return fmt.Errorf("failed to encode bouts: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET bouts = ?, updated_at = UNIXEPOCH('subsec') WHERE session_id = ?`,
		string(encoded), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bouts: %w", err)
	}

	return tx.Commit()
}

// SetReviewFlags updates the keep / verified review flags. A nil pointer
// leaves that flag untouched.
func (db *DB) SetReviewFlags(ctx context.Context, sessionID int64, keep, verified *int) error {
	if keep == nil && verified == nil {
		return nil
	}

	query := `UPDATE sessions SET updated_at = UNIXEPOCH('subsec')`
	var args []any
	if keep != nil {
		query += `, keep = ?`
		args = append(args, *keep)
	}
	if verified != nil {
		query += `, verified = ?`
		args = append(args, *verified)
	}
	query += ` WHERE session_id = ?`
	args = append(args, sessionID)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set review flags: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %d not found", sessionID)
	}
	return nil
}

// DeleteSession physically removes a session row. Only project/participant
// cascade deletion uses this; splits mark sessions Split instead.
func (db *DB) DeleteSession(ctx context.Context, sessionID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
