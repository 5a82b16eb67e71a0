package engine

import (
	"context"
	"database/sql"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine/auth"
	"github.com/Paulygold/task-flow-manager/internal/events"
)

// Me is the caller's own identity as seen by the store.
type Me struct {
	Profile domain.Profile `json:"profile"`
	Role    domain.Role    `json:"role" enum:"admin,department_head,employee"`
}

func (e Engine) Me(ctx context.Context, actorID string) (Me, error) {
	var out Me
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		role, err := e.Auth.ResolveRole(ctx, tx, actorID)
		if err != nil {
			return err
		}
		p, err := e.Repo.GetProfile(ctx, tx, actorID)
		if err != nil {
			return err
		}
		out = Me{Profile: p, Role: role}
		return nil
	})
	return out, err
}

func (e Engine) ListProfiles(ctx context.Context, actorID string) ([]domain.Profile, error) {
	var out []domain.Profile
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		role, err := e.authorize(ctx, tx, actorID, auth.ResourceProfile, auth.OpRead)
		if err != nil {
			return err
		}
		rows, err := e.Repo.ListProfiles(ctx, tx)
		if err != nil {
			return err
		}
		out = auth.Filter(actorID, role, auth.ResourceProfile, auth.OpRead, rows, func(p domain.Profile) string { return p.ID })
		return nil
	})
	return out, err
}

func (e Engine) GetProfile(ctx context.Context, actorID, id string) (domain.Profile, error) {
	var out domain.Profile
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceProfile, auth.OpRead, func() (string, error) {
			p, err := e.Repo.GetProfile(ctx, tx, id)
			out = p
			return p.ID, err
		})
		return err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}

// ProfilePatch is the whole writable surface of a profile. Role is held
// elsewhere and cannot be named here.
type ProfilePatch struct {
	FullName *string
}

func (e Engine) UpdateProfile(ctx context.Context, actorID, id string, patch ProfilePatch) (domain.Profile, error) {
	var out domain.Profile
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		// A profile is owned by the actor with the same id.
		if _, err := e.Auth.Authorize(ctx, tx, actorID, auth.ResourceProfile, auth.OpUpdate, id); err != nil {
			return err
		}
		p, err := e.Repo.GetProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		name := trimmed(patch.FullName)
		if name == nil || *name == p.FullName {
			out = p
			return nil
		}
		p.FullName = *name
		p.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateProfileName(ctx, tx, p.ID, p.FullName, p.UpdatedAt); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "profile.update", "profile", p.ID, actorID, events.Payload{"full_name": p.FullName}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}
