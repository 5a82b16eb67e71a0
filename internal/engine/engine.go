package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine/auth"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/repo"
)

// Engine executes every record operation inside one transaction, resolving
// the caller's role and consulting the rule table before touching a row.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{},
		Logger: logger,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// eventWriter stamps events with the engine clock unless Events carries its
// own.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// withTx runs fn in a transaction and commits when it returns nil.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// authorizeRecord resolves the caller's role and evaluates op against the
// record returned by owner. Hidden reads report ErrNotFound, like absent
// records. Writes by a self-scoped role report ForbiddenError for absent
// records too, so existence is never revealed.
func (e Engine) authorizeRecord(ctx context.Context, tx *sql.Tx, actorID string, res auth.Resource, op auth.Operation, owner func() (string, error)) (domain.Role, error) {
	role, err := e.Auth.ResolveRole(ctx, tx, actorID)
	if err != nil {
		return "", err
	}
	denied := func() error {
		if op == auth.OpRead {
			return repo.ErrNotFound
		}
		return auth.ForbiddenError{Resource: res, Operation: op}
	}
	rule := auth.Lookup(res, op, role)
	if rule == auth.Deny {
		return role, denied()
	}
	ownerID, err := owner()
	if errors.Is(err, repo.ErrNotFound) {
		if rule == auth.AllowSelf {
			return role, denied()
		}
		return role, err
	}
	if err != nil {
		return role, err
	}
	if err := auth.Evaluate(actorID, role, res, op, ownerID); err != nil {
		e.logger().DebugContext(ctx, "denied", "actor", actorID, "role", role, "resource", res, "op", op)
		return role, denied()
	}
	return role, nil
}

// authorize evaluates a cell that does not depend on a stored record.
func (e Engine) authorize(ctx context.Context, tx *sql.Tx, actorID string, res auth.Resource, op auth.Operation) (domain.Role, error) {
	role, err := e.Auth.Authorize(ctx, tx, actorID, res, op, "")
	if err != nil && errors.Is(err, domain.ErrForbidden) {
		e.logger().DebugContext(ctx, "denied", "actor", actorID, "role", role, "resource", res, "op", op)
	}
	return role, err
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// optional maps an empty string to nil.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func samePtr(a, b *string) bool {
	return deref(a) == deref(b)
}
