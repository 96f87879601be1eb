package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Project owns sessions and the directory their raw data directories live in.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProject inserts a project and sets its ID.
func (db *DB) CreateProject(ctx context.Context, p *Project) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO projects (name, path) VALUES (?, ?)`,
		p.Name, p.Path,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	p.ID = id
	return nil
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	var createdAt float64
	err := db.QueryRowContext(ctx,
		`SELECT project_id, name, path, created_at FROM projects WHERE project_id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Path, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.CreatedAt = unixToTime(createdAt)
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (db *DB) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT project_id, name, path, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdAt float64
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = unixToTime(createdAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, through foreign keys, all its
// sessions and lineage rows. Callers are responsible for removing the
// on-disk project directory.
func (db *DB) DeleteProject(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM projects WHERE project_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func unixToTime(unix float64) time.Time {
	sec := int64(unix)
	nsec := int64((unix - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
