package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the single authority level held by an actor.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDepartmentHead Role = "department_head"
	RoleEmployee       Role = "employee"
)

// DefaultRole is assigned to every actor at creation.
const DefaultRole = RoleEmployee

// Roles lists the closed set of roles.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDepartmentHead, RoleEmployee}
}

// ParseRole rejects anything outside the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", s)}
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDepartmentHead, RoleEmployee:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.TrimSpace(s))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", s)}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	switch st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type RoleAssignment struct {
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role" enum:"admin,department_head,employee"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority" enum:"low,medium,high,urgent"`
	Status      Status   `json:"status" enum:"pending,in_progress,completed"`
	ProjectID   *string  `json:"project_id,omitempty"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	CreatedBy   *string  `json:"created_by,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// SetStatus moves the task to s and keeps completed_at consistent with it:
// set on entering completed, cleared on leaving it, untouched otherwise.
func (t *Task) SetStatus(s Status, now string) {
	switch {
	case s == StatusCompleted && (t.Status != StatusCompleted || t.CompletedAt == nil):
		t.CompletedAt = &now
	case s != StatusCompleted:
		t.CompletedAt = nil
	}
	t.Status = s
}

// Session is the proof of authentication held by a client.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Actor     `json:"user"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
