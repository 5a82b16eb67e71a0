package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine/auth"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/repo"
)

func taskOwner(t domain.Task) string { return deref(t.AssignedTo) }

// TaskListOptions filters a task listing. Values are raw strings parsed here.
type TaskListOptions struct {
	ProjectID  string
	AssignedTo string
	Status     string
	Priority   string
	Limit      int
}

// ListTasks returns the tasks the caller may read. Self-scoped roles get the
// assignee predicate pushed into the query, and the rule table filters the
// rows once more.
func (e Engine) ListTasks(ctx context.Context, actorID string, opts TaskListOptions) ([]domain.Task, error) {
	f := repo.TaskFilter{ProjectID: opts.ProjectID, AssignedTo: opts.AssignedTo, Limit: opts.Limit}
	if opts.Status != "" {
		s, err := domain.ParseStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		f.Status = s
	}
	if opts.Priority != "" {
		p, err := domain.ParsePriority(opts.Priority)
		if err != nil {
			return nil, err
		}
		f.Priority = p
	}
	var out []domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		role, err := e.Auth.ResolveRole(ctx, tx, actorID)
		if err != nil {
			return err
		}
		switch auth.Lookup(auth.ResourceTask, auth.OpRead, role) {
		case auth.Deny:
			out = []domain.Task{}
			return nil
		case auth.AllowSelf:
			if f.AssignedTo != "" && f.AssignedTo != actorID {
				out = []domain.Task{}
				return nil
			}
			f.AssignedTo = actorID
		}
		rows, err := e.Repo.ListTasks(ctx, tx, f)
		if err != nil {
			return err
		}
		out = auth.Filter(actorID, role, auth.ResourceTask, auth.OpRead, rows, taskOwner)
		return nil
	})
	return out, err
}

func (e Engine) GetTask(ctx context.Context, actorID, id string) (domain.Task, error) {
	var out domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceTask, auth.OpRead, func() (string, error) {
			t, err := e.Repo.GetTask(ctx, tx, id)
			out = t
			return taskOwner(t), err
		})
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	Status      string
	ProjectID   string
	AssignedTo  string
	DueDate     string
}

func (e Engine) CreateTask(ctx context.Context, actorID string, opts TaskCreateOptions) (domain.Task, error) {
	var out domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.authorize(ctx, tx, actorID, auth.ResourceTask, auth.OpCreate); err != nil {
			return err
		}
		now := e.timestamp()
		t := domain.Task{
			ID:          e.newID(),
			Title:       strings.TrimSpace(opts.Title),
			Description: strings.TrimSpace(opts.Description),
			Priority:    domain.PriorityMedium,
			Status:      domain.StatusPending,
			ProjectID:   optional(strings.TrimSpace(opts.ProjectID)),
			AssignedTo:  optional(strings.TrimSpace(opts.AssignedTo)),
			CreatedBy:   optional(actorID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if t.Title == "" {
			return domain.Required("title")
		}
		if opts.Priority != "" {
			p, err := domain.ParsePriority(opts.Priority)
			if err != nil {
				return err
			}
			t.Priority = p
		}
		status := domain.StatusPending
		if opts.Status != "" {
			s, err := domain.ParseStatus(opts.Status)
			if err != nil {
				return err
			}
			status = s
		}
		t.SetStatus(status, now)
		due, err := parseDueDate(opts.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = due
		if err := e.checkReferences(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "task.create", "task", t.ID, actorID, events.Payload{
			"title": t.Title, "status": t.Status, "assigned_to": deref(t.AssignedTo), "project_id": deref(t.ProjectID),
		}); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.logger().InfoContext(ctx, "task created", "actor", actorID, "task", out.ID)
	return out, nil
}

// TaskPatch carries the fields to change; nil leaves a field untouched and an
// empty string clears an optional field.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *string
	Status      *string
	ProjectID   *string
	AssignedTo  *string
	DueDate     *string
}

// UpdateTask applies patch with last-write-wins semantics. The rule is
// checked against the stored row and again against the patched row, so a
// self-scoped caller cannot hand the task to someone else.
func (e Engine) UpdateTask(ctx context.Context, actorID, id string, patch TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var current domain.Task
		role, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceTask, auth.OpUpdate, func() (string, error) {
			var err error
			current, err = e.Repo.GetTask(ctx, tx, id)
			return taskOwner(current), err
		})
		if err != nil {
			return err
		}
		now := e.timestamp()
		next, err := applyTaskPatch(current, patch, now)
		if err != nil {
			return err
		}
		if err := auth.Evaluate(actorID, role, auth.ResourceTask, auth.OpUpdate, taskOwner(next)); err != nil {
			return err
		}
		if sameTask(current, next) {
			out = current
			return nil
		}
		if err := e.checkReferences(ctx, tx, next); err != nil {
			return err
		}
		next.UpdatedAt = now
		if err := e.Repo.UpdateTask(ctx, tx, next); err != nil {
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, "task.update", "task", next.ID, actorID, taskChanges(current, next)); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

func (e Engine) DeleteTask(ctx context.Context, actorID, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		_, err := e.authorizeRecord(ctx, tx, actorID, auth.ResourceTask, auth.OpDelete, func() (string, error) {
			t, err := e.Repo.GetTask(ctx, tx, id)
			return taskOwner(t), err
		})
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, "task.delete", "task", id, actorID, nil)
	})
}

func applyTaskPatch(t domain.Task, patch TaskPatch, now string) (domain.Task, error) {
	if title := trimmed(patch.Title); title != nil {
		if *title == "" {
			return t, domain.Required("title")
		}
		t.Title = *title
	}
	if desc := trimmed(patch.Description); desc != nil {
		t.Description = *desc
	}
	if patch.Priority != nil {
		p, err := domain.ParsePriority(*patch.Priority)
		if err != nil {
			return t, err
		}
		t.Priority = p
	}
	if patch.Status != nil {
		s, err := domain.ParseStatus(*patch.Status)
		if err != nil {
			return t, err
		}
		t.SetStatus(s, now)
	}
	if v := trimmed(patch.ProjectID); v != nil {
		t.ProjectID = optional(*v)
	}
	if v := trimmed(patch.AssignedTo); v != nil {
		t.AssignedTo = optional(*v)
	}
	if patch.DueDate != nil {
		due, err := parseDueDate(*patch.DueDate)
		if err != nil {
			return t, err
		}
		t.DueDate = due
	}
	return t, nil
}

func sameTask(a, b domain.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Priority == b.Priority &&
		a.Status == b.Status &&
		samePtr(a.ProjectID, b.ProjectID) &&
		samePtr(a.AssignedTo, b.AssignedTo) &&
		samePtr(a.DueDate, b.DueDate) &&
		samePtr(a.CompletedAt, b.CompletedAt)
}

func taskChanges(before, after domain.Task) events.Payload {
	changes := events.Payload{}
	if before.Title != after.Title {
		changes["title"] = after.Title
	}
	if before.Description != after.Description {
		changes["description"] = after.Description
	}
	if before.Priority != after.Priority {
		changes["priority"] = after.Priority
	}
	if before.Status != after.Status {
		changes["status"] = map[string]any{"from": before.Status, "to": after.Status}
	}
	if !samePtr(before.ProjectID, after.ProjectID) {
		changes["project_id"] = deref(after.ProjectID)
	}
	if !samePtr(before.AssignedTo, after.AssignedTo) {
		changes["assigned_to"] = deref(after.AssignedTo)
	}
	if !samePtr(before.DueDate, after.DueDate) {
		changes["due_date"] = deref(after.DueDate)
	}
	return changes
}

// checkReferences rejects writes naming a project or assignee that does not
// exist.
func (e Engine) checkReferences(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if t.ProjectID != nil {
		ok, err := e.Repo.ProjectExists(ctx, tx, *t.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ValidationError{Field: "project_id", Reason: "unknown project"}
		}
	}
	if t.AssignedTo != nil {
		ok, err := e.Repo.ActorExists(ctx, tx, *t.AssignedTo)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ValidationError{Field: "assigned_to", Reason: "unknown user"}
		}
	}
	return nil
}

// parseDueDate accepts a calendar date or an RFC3339 timestamp and stores the
// calendar date.
func parseDueDate(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		s := d.Format(time.DateOnly)
		return &s, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		s := ts.UTC().Format(time.DateOnly)
		return &s, nil
	}
	return nil, domain.ValidationError{Field: "due_date", Reason: "expected YYYY-MM-DD"}
}
