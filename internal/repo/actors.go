package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

// InsertActor creates the actor row. The actors_after_insert trigger creates
// the profile and the default role in the same statement.
func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor, fullName string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,email,full_name,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Email, fullName, a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("actor %s: %w", a.Email, domain.ErrDuplicateEmail)
	}
	return err
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(tx.QueryRowContext(ctx, `SELECT id,email,created_at FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorByEmail(ctx context.Context, tx *sql.Tx, email string) (domain.Actor, error) {
	return scanActor(tx.QueryRowContext(ctx, `SELECT id,email,created_at FROM actors WHERE email=?`, email))
}

func (r Repo) ActorExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	return exists(ctx, tx, `SELECT 1 FROM actors WHERE id=?`, id)
}

func scanActor(row rowScanner) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Email, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) UpsertCredential(ctx context.Context, tx *sql.Tx, actorID, hash, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO credentials(actor_id,password_hash,updated_at) VALUES (?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET password_hash=excluded.password_hash, updated_at=excluded.updated_at`, actorID, hash, now)
	return err
}

func (r Repo) GetCredential(ctx context.Context, tx *sql.Tx, actorID string) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx, `SELECT password_hash FROM credentials WHERE actor_id=?`, actorID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return hash, err
}
