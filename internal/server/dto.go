package server

import (
	"time"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine"
)

// Request payloads

type SignUpRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"admin,department_head,employee"`
}

type CreateRoleRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"admin,department_head,employee"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type SessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

type ProfileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type RoleResponse struct {
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type MeResponse struct {
	Profile ProfileResponse `json:"profile"`
	Role    string          `json:"role"`
}

type ProjectResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type ProjectSummaryResponse struct {
	Project ProjectResponse `json:"project"`
	Counts  map[string]int  `json:"counts"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	ProjectID   *string `json:"project_id,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func sessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		User:         UserResponse{ID: s.User.ID, Email: s.User.Email},
	}
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func roleResponse(ra domain.RoleAssignment) RoleResponse {
	return RoleResponse{
		ActorID:   ra.ActorID,
		Role:      string(ra.Role),
		CreatedAt: ra.CreatedAt,
		UpdatedAt: ra.UpdatedAt,
	}
}

func meResponse(me engine.Me) MeResponse {
	return MeResponse{Profile: profileResponse(me.Profile), Role: string(me.Role)}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func summaryResponse(s engine.ProjectSummary) ProjectSummaryResponse {
	counts := map[string]int{}
	for _, st := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted} {
		counts[string(st)] = s.Counts[st]
	}
	return ProjectSummaryResponse{Project: projectResponse(s.Project), Counts: counts}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		ProjectID:   t.ProjectID,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapProfiles(items []domain.Profile) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(items))
	for _, p := range items {
		out = append(out, profileResponse(p))
	}
	return out
}

func mapRoles(items []domain.RoleAssignment) []RoleResponse {
	out := make([]RoleResponse, 0, len(items))
	for _, ra := range items {
		out = append(out, roleResponse(ra))
	}
	return out
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func toTaskPatch(in UpdateTaskRequest) engine.TaskPatch {
	return engine.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      in.Status,
		ProjectID:   in.ProjectID,
		AssignedTo:  in.AssignedTo,
		DueDate:     in.DueDate,
	}
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
