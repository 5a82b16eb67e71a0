package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

func scanRole(row rowScanner) (domain.RoleAssignment, error) {
	var ra domain.RoleAssignment
	var role string
	err := row.Scan(&ra.ActorID, &role, &ra.CreatedAt, &ra.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ra, ErrNotFound
	}
	ra.Role = domain.Role(role)
	return ra, err
}

func (r Repo) GetRole(ctx context.Context, tx *sql.Tx, actorID string) (domain.RoleAssignment, error) {
	return scanRole(tx.QueryRowContext(ctx, `SELECT actor_id,role,created_at,updated_at FROM user_roles WHERE actor_id=?`, actorID))
}

func (r Repo) ListRoles(ctx context.Context, tx *sql.Tx, actorID string) ([]domain.RoleAssignment, error) {
	query := `SELECT actor_id,role,created_at,updated_at FROM user_roles`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	rows, err := tx.QueryContext(ctx, query+` ORDER BY actor_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.RoleAssignment{}
	for rows.Next() {
		ra, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ra)
	}
	return res, rows.Err()
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO user_roles(actor_id,role,created_at,updated_at) VALUES (?,?,?,?)`,
		actorID, string(role), now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("role for %s already assigned: %w", actorID, ErrConflict)
	}
	return err
}

// ReplaceRole overwrites the single role row of an actor.
func (r Repo) ReplaceRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE user_roles SET role=?, updated_at=? WHERE actor_id=?`, string(role), now, actorID)
	return affectedOne(res, err)
}

func (r Repo) DeleteRole(ctx context.Context, tx *sql.Tx, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE actor_id=?`, actorID)
	return affectedOne(res, err)
}

func (r Repo) CountRole(ctx context.Context, tx *sql.Tx, role domain.Role) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM user_roles WHERE role=?`, string(role)).Scan(&n)
	return n, err
}
