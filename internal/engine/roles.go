package engine

import (
	"context"
	"database/sql"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine/auth"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/repo"
)

func (e Engine) GetRole(ctx context.Context, actorID, targetID string) (domain.RoleAssignment, error) {
	var out domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceRoleAssignment, auth.OpRead, func() (string, error) {
			ra, err := e.Repo.GetRole(ctx, tx, targetID)
			out = ra
			return ra.ActorID, err
		})
		return err
	})
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	return out, nil
}

// ListRoles returns every assignment for admins and only the caller's own
// row for everyone else.
func (e Engine) ListRoles(ctx context.Context, actorID string) ([]domain.RoleAssignment, error) {
	var out []domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		role, err := e.Auth.ResolveRole(ctx, tx, actorID)
		if err != nil {
			return err
		}
		scope := ""
		if auth.Lookup(auth.ResourceRoleAssignment, auth.OpRead, role) == auth.AllowSelf {
			scope = actorID
		}
		rows, err := e.Repo.ListRoles(ctx, tx, scope)
		if err != nil {
			return err
		}
		out = auth.Filter(actorID, role, auth.ResourceRoleAssignment, auth.OpRead, rows, func(ra domain.RoleAssignment) string { return ra.ActorID })
		return nil
	})
	return out, err
}

// SetRole replaces the single role held by targetID.
func (e Engine) SetRole(ctx context.Context, actorID, targetID, rawRole string) (domain.RoleAssignment, error) {
	var out domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceRoleAssignment, auth.OpUpdate); err != nil {
			return err
		}
		role, err := domain.ParseRole(rawRole)
		if err != nil {
			return err
		}
		current, err := e.Repo.GetRole(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if current.Role == role {
			out = current
			return nil
		}
		now := e.timestamp()
		if err := e.Repo.ReplaceRole(ctx, tx, targetID, role, now); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "role.set", "role_assignment", targetID, actorID, events.Payload{"from": current.Role, "to": role}); err != nil {
			return err
		}
		current.Role = role
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	e.logger().InfoContext(ctx, "role assigned", "actor", actorID, "target", targetID, "role", out.Role)
	return out, nil
}

// CreateRole inserts a role row for an actor that has none. Every account
// carries a row from creation, so this reports ErrConflict unless the row was
// removed out of band.
func (e Engine) CreateRole(ctx context.Context, actorID, targetID, rawRole string) (domain.RoleAssignment, error) {
	var out domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceRoleAssignment, auth.OpCreate); err != nil {
			return err
		}
		role, err := domain.ParseRole(rawRole)
		if err != nil {
			return err
		}
		ok, err := e.Repo.ActorExists(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return repo.ErrNotFound
		}
		now := e.timestamp()
		if err := e.Repo.InsertRole(ctx, tx, targetID, role, now); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "role.create", "role_assignment", targetID, actorID, events.Payload{"role": role}); err != nil {
			return err
		}
		out = domain.RoleAssignment{ActorID: targetID, Role: role, CreatedAt: now, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	return out, nil
}

// DeleteRole removes the assigned role and reinstates the default one in the
// same transaction, so an actor never holds zero roles.
func (e Engine) DeleteRole(ctx context.Context, actorID, targetID string) (domain.RoleAssignment, error) {
	var out domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceRoleAssignment, auth.OpDelete); err != nil {
			return err
		}
		current, err := e.Repo.GetRole(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteRole(ctx, tx, targetID); err != nil {
			return err
		}
		now := e.timestamp()
		if err := e.Repo.InsertRole(ctx, tx, targetID, domain.DefaultRole, now); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "role.delete", "role_assignment", targetID, actorID, events.Payload{"removed": current.Role, "reset_to": domain.DefaultRole}); err != nil {
			return err
		}
		out = domain.RoleAssignment{ActorID: targetID, Role: domain.DefaultRole, CreatedAt: now, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	return out, nil
}

// BootstrapAdmin promotes targetID to admin while the store has no admin at
// all. It is the operator path for a fresh database; once an admin exists,
// role changes go through SetRole.
func (e Engine) BootstrapAdmin(ctx context.Context, targetID string) (domain.RoleAssignment, error) {
	var out domain.RoleAssignment
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		admins, err := e.Repo.CountRole(ctx, tx, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if admins > 0 {
			return auth.ForbiddenError{Resource: auth.ResourceRoleAssignment, Operation: auth.OpUpdate}
		}
		current, err := e.Repo.GetRole(ctx, tx, targetID)
		if err != nil {
			return err
		}
		now := e.timestamp()
		if err := e.Repo.ReplaceRole(ctx, tx, targetID, domain.RoleAdmin, now); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "role.bootstrap", "role_assignment", targetID, targetID, events.Payload{"from": current.Role, "to": domain.RoleAdmin}); err != nil {
			return err
		}
		current.Role = domain.RoleAdmin
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	e.logger().InfoContext(ctx, "admin bootstrapped", "target", targetID)
	return out, nil
}
