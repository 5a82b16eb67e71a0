package auth

import (
	"github.com/Paulygold/task-flow-manager/internal/domain"
)

type Resource string

const (
	ResourceProfile        Resource = "profile"
	ResourceRoleAssignment Resource = "role_assignment"
	ResourceProject        Resource = "project"
	ResourceTask           Resource = "task"
)

func Resources() []Resource {
	return []Resource{ResourceProfile, ResourceRoleAssignment, ResourceProject, ResourceTask}
}

type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func Operations() []Operation {
	return []Operation{OpRead, OpCreate, OpUpdate, OpDelete}
}

// Rule is the outcome of one table cell.
type Rule uint8

const (
	// Deny is the zero value so missing cells reject.
	Deny Rule = iota
	Allow
	// AllowSelf permits only when the record's owning actor is the caller.
	AllowSelf
)

func (r Rule) String() string {
	switch r {
	case Allow:
		return "allow"
	case AllowSelf:
		return "self"
	default:
		return "deny"
	}
}

type roleRules map[domain.Role]Rule

func everyone(rule Rule) roleRules {
	return roleRules{
		domain.RoleAdmin:          rule,
		domain.RoleDepartmentHead: rule,
		domain.RoleEmployee:       rule,
	}
}

var (
	adminOnly = roleRules{domain.RoleAdmin: Allow}
	managers  = roleRules{domain.RoleAdmin: Allow, domain.RoleDepartmentHead: Allow}

	adminOrSelf = roleRules{
		domain.RoleAdmin:          Allow,
		domain.RoleDepartmentHead: AllowSelf,
		domain.RoleEmployee:       AllowSelf,
	}

	// managers any row, employees their own.
	managersOrSelf = roleRules{
		domain.RoleAdmin:          Allow,
		domain.RoleDepartmentHead: Allow,
		domain.RoleEmployee:       AllowSelf,
	}
)

// table is resource × operation × role. Profile create/delete are absent:
// profiles only come from the account-creation trigger.
var table = map[Resource]map[Operation]roleRules{
	ResourceProfile: {
		OpRead:   everyone(Allow),
		OpUpdate: everyone(AllowSelf),
	},
	ResourceRoleAssignment: {
		OpRead:   adminOrSelf,
		OpCreate: adminOnly,
		OpUpdate: adminOnly,
		OpDelete: adminOnly,
	},
	ResourceProject: {
		OpRead:   everyone(Allow),
		OpCreate: managers,
		OpUpdate: managers,
		OpDelete: adminOnly,
	},
	ResourceTask: {
		OpRead:   managersOrSelf,
		OpCreate: managers,
		OpUpdate: managersOrSelf,
		OpDelete: managers,
	},
}

// Lookup returns the cell for (resource, op, role).
func Lookup(res Resource, op Operation, role domain.Role) Rule {
	return table[res][op][role]
}

// Evaluate decides a single operation. ownerID is the record's relevant actor
// field (profile id, role assignment actor, task assignee) and may be empty.
func Evaluate(actorID string, role domain.Role, res Resource, op Operation, ownerID string) error {
	if actorID == "" {
		return domain.ErrUnauthenticated
	}
	switch Lookup(res, op, role) {
	case Allow:
		return nil
	case AllowSelf:
		if ownerID != "" && ownerID == actorID {
			return nil
		}
	}
	return ForbiddenError{Resource: res, Operation: op}
}

// Permits is Evaluate as a predicate.
func Permits(actorID string, role domain.Role, res Resource, op Operation, ownerID string) bool {
	return Evaluate(actorID, role, res, op, ownerID) == nil
}

// Filter keeps the rows the caller may see under op.
func Filter[T any](actorID string, role domain.Role, res Resource, op Operation, rows []T, owner func(T) string) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if Permits(actorID, role, res, op, owner(row)) {
			out = append(out, row)
		}
	}
	return out
}
