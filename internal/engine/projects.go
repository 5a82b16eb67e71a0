package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine/auth"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/repo"
)

type ProjectFilter = repo.ProjectFilter

func (e Engine) ListProjects(ctx context.Context, actorID string, f ProjectFilter) ([]domain.Project, error) {
	var out []domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceProject, auth.OpRead); err != nil {
			return err
		}
		rows, err := e.Repo.ListProjects(ctx, tx, f)
		out = rows
		return err
	})
	return out, err
}

func (e Engine) GetProject(ctx context.Context, actorID, id string) (domain.Project, error) {
	var out domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceProject, auth.OpRead, func() (string, error) {
			p, err := e.Repo.GetProject(ctx, tx, id)
			out = p
			return deref(p.CreatedBy), err
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

type ProjectCreateOptions struct {
	Name        string
	Description string
}

func (e Engine) CreateProject(ctx context.Context, actorID string, opts ProjectCreateOptions) (domain.Project, error) {
	var out domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceProject, auth.OpCreate); err != nil {
			return err
		}
		name := strings.TrimSpace(opts.Name)
		if name == "" {
			return domain.Required("name")
		}
		now := e.timestamp()
		p := domain.Project{
			ID:          e.newID(),
			Name:        name,
			Description: strings.TrimSpace(opts.Description),
			CreatedBy:   optional(actorID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "project.create", "project", p.ID, actorID, events.Payload{"name": p.Name}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.logger().InfoContext(ctx, "project created", "actor", actorID, "project", out.ID)
	return out, nil
}

// ProjectPatch carries the fields to change; nil leaves a field untouched.
type ProjectPatch struct {
	Name        *string
	Description *string
}

func (e Engine) UpdateProject(ctx context.Context, actorID, id string, patch ProjectPatch) (domain.Project, error) {
	var out domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var p domain.Project
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceProject, auth.OpUpdate, func() (string, error) {
			var err error
			p, err = e.Repo.GetProject(ctx, tx, id)
			return deref(p.CreatedBy), err
		})
		if err != nil {
			return err
		}
		next := p
		if name := trimmed(patch.Name); name != nil {
			if *name == "" {
				return domain.Required("name")
			}
			next.Name = *name
		}
		if desc := trimmed(patch.Description); desc != nil {
			next.Description = *desc
		}
		if next.Name == p.Name && next.Description == p.Description {
			out = p
			return nil
		}
		next.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateProject(ctx, tx, next); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "project.update", "project", next.ID, actorID, events.Payload{"name": next.Name, "description": next.Description}); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// DeleteProject removes the project. Its tasks survive with project_id cleared.
func (e Engine) DeleteProject(ctx context.Context, actorID, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceProject, auth.OpDelete, func() (string, error) {
			p, err := e.Repo.GetProject(ctx, tx, id)
			return deref(p.CreatedBy), err
		})
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, "project.delete", "project", id, actorID, nil)
	})
}

// ProjectSummary counts a project's tasks by status.
type ProjectSummary struct {
	Project domain.Project        `json:"project"`
	Counts  map[domain.Status]int `json:"counts"`
}

// SummarizeProject counts only tasks the caller may read, so employees see
// totals for their own assignments.
func (e Engine) SummarizeProject(ctx context.Context, actorID, id string) (ProjectSummary, error) {
	var out ProjectSummary
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		role, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceProject, auth.OpRead, func() (string, error) {
			p, err := e.Repo.GetProject(ctx, tx, id)
			out.Project = p
			return deref(p.CreatedBy), err
		})
		if err != nil {
			return err
		}
		switch auth.Lookup(auth.ResourceTask, auth.OpRead, role) {
		case auth.Allow:
			out.Counts, err = e.Repo.CountTasksByStatus(ctx, tx, id, "")
		case auth.AllowSelf:
			out.Counts, err = e.Repo.CountTasksByStatus(ctx, tx, id, actorID)
		default:
			out.Counts = map[domain.Status]int{}
		}
		return err
	})
	if err != nil {
		return ProjectSummary{}, err
	}
	return out, nil
}
