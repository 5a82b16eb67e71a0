package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

const taskColumns = `id,title,COALESCE(description,''),priority,status,project_id,assigned_to,created_by,due_date,completed_at,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var priority, status string
	var projectID, assignedTo, createdBy, dueDate, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &priority, &status,
		&projectID, &assignedTo, &createdBy, &dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	t.ProjectID = fromNull(projectID)
	t.AssignedTo = fromNull(assignedTo)
	t.CreatedBy = fromNull(createdBy)
	t.DueDate = fromNull(dueDate)
	t.CompletedAt = fromNull(completedAt)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,status,project_id,assigned_to,created_by,due_date,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), string(t.Priority), string(t.Status),
		nullablePtr(t.ProjectID), nullablePtr(t.AssignedTo), nullablePtr(t.CreatedBy), nullablePtr(t.DueDate), nullablePtr(t.CompletedAt),
		t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("task %s: %w", t.ID, ErrConflict)
	}
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// TaskFilter narrows a task select. Empty fields match everything.
type TaskFilter struct {
	ProjectID  string
	AssignedTo string
	Status     domain.Status
	Priority   domain.Priority
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilter) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(f.Priority))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks` + where(clauses) + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTask writes every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, status=?, project_id=?, assigned_to=?, due_date=?, completed_at=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), string(t.Priority), string(t.Status),
		nullablePtr(t.ProjectID), nullablePtr(t.AssignedTo), nullablePtr(t.DueDate), nullablePtr(t.CompletedAt),
		t.UpdatedAt, t.ID)
	return affectedOne(res, err)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	return affectedOne(res, err)
}

// CountTasksByStatus counts the tasks of a project, only those assigned to
// assignedTo when it is set.
func (r Repo) CountTasksByStatus(ctx context.Context, tx *sql.Tx, projectID, assignedTo string) (map[domain.Status]int, error) {
	query := `SELECT status, count(*) FROM tasks WHERE project_id=?`
	args := []any{projectID}
	if assignedTo != "" {
		query += ` AND assigned_to=?`
		args = append(args, assignedTo)
	}
	rows, err := tx.QueryContext(ctx, query+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}
