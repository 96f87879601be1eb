package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// ErrAlreadySplit reports an attempt to split a session that has already
// been split. A session is terminal as a parent once its status is Split.
var ErrAlreadySplit = errors.New("session has already been split")

// InsertLineage records a parent->child split edge. Edges are written once
// at split time and never mutated.
func (db *DB) InsertLineage(ctx context.Context, childID, parentID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO session_lineage (child_session_id, parent_session_id) VALUES (?, ?)`,
		childID, parentID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lineage edge: %w", err)
	}
	return nil
}

// ParentSessionID returns the parent of a split-generated session, if any.
func (db *DB) ParentSessionID(ctx context.Context, sessionID int64) (int64, bool, error) {
	var parentID int64
	err := db.QueryRowContext(ctx,
		`SELECT parent_session_id FROM session_lineage WHERE child_session_id = ?`,
		sessionID,
	).Scan(&parentID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up parent: %w", err)
	}
	return parentID, true, nil
}

// RootSession walks parent edges from the given session up to the root of
// its lineage tree and returns the root's name. isVirtual reports whether
// any edge was traversed, i.e. the session was derived from a split.
func (db *DB) RootSession(ctx context.Context, sessionID int64) (name string, isVirtual bool, err error) {
	current := sessionID
	for {
		parentID, ok, err := db.ParentSessionID(ctx, current)
		if err != nil {
			return "", false, err
		}
		if !ok {
			break
		}
		isVirtual = true
		current = parentID
	}

	s, err := db.GetSession(ctx, current)
	if err != nil {
		return "", false, err
	}
	return s.Name, isVirtual, nil
}

// SplitTx atomically commits a manual split: every child session is
// inserted with its lineage edge recorded immediately after, then the
// parent transitions to Split with keep cleared. A failure anywhere rolls
// the whole split back: no children without lineage, no Split parent
// without children.
func (db *DB) SplitTx(ctx context.Context, parentID int64, children []*Session) ([]int64, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("warning: failed to rollback split transaction: %v", err)
		}
	}()

	// Guard the single-split invariant inside the transaction.
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM sessions WHERE session_id = ?`, parentID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parent status: %w", err)
	}
	if status == StatusSplit {
		return nil, ErrAlreadySplit
	}

	ids := make([]int64, 0, len(children))
	for _, child := range children {
		if err := insertSession(ctx, tx, child); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_lineage (child_session_id, parent_session_id) VALUES (?, ?)`,
			child.ID, parentID,
		); err != nil {
			return nil, fmt.Errorf("failed to insert lineage for %q: %w", child.Name, err)
		}
		ids = append(ids, child.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, keep = 0, updated_at = UNIXEPOCH('subsec') WHERE session_id = ?`,
		StatusSplit, parentID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark parent split: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}
