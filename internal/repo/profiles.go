package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProfile(ctx context.Context, tx *sql.Tx, id string) (domain.Profile, error) {
	return scanProfile(tx.QueryRowContext(ctx, `SELECT id,email,full_name,created_at,updated_at FROM profiles WHERE id=?`, id))
}

func (r Repo) ListProfiles(ctx context.Context, tx *sql.Tx) ([]domain.Profile, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,email,full_name,created_at,updated_at FROM profiles ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProfileName is the only profile write; there is no column for role.
func (r Repo) UpdateProfileName(ctx context.Context, tx *sql.Tx, id, fullName, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET full_name=?, updated_at=? WHERE id=?`, fullName, now, id)
	return affectedOne(res, err)
}
