package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

// ForbiddenError indicates the rule table denied the operation.
type ForbiddenError struct {
	Resource  Resource
	Operation Operation
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s not permitted", e.Operation, e.Resource)
}

func (e ForbiddenError) Is(target error) bool {
	return target == domain.ErrForbidden
}

// Service resolves actor roles from the role store.
type Service struct {
	DB *sql.DB
}

// ResolveRole is the single authoritative role lookup. An actor without a
// role row is not a resolvable actor.
func (s Service) ResolveRole(ctx context.Context, tx *sql.Tx, actorID string) (domain.Role, error) {
	if actorID == "" {
		return "", domain.ErrUnauthenticated
	}
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE actor_id=?`, actorID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("stored role for %s: %w", actorID, err)
	}
	return role, nil
}

// Authorize resolves the caller's role and evaluates one cell against a record.
func (s Service) Authorize(ctx context.Context, tx *sql.Tx, actorID string, res Resource, op Operation, ownerID string) (domain.Role, error) {
	role, err := s.ResolveRole(ctx, tx, actorID)
	if err != nil {
		return "", err
	}
	if err := Evaluate(actorID, role, res, op, ownerID); err != nil {
		return role, err
	}
	return role, nil
}
