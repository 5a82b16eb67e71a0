package identity

import (
	"github.com/Paulygold/task-flow-manager/internal/domain"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateResolving       State = "resolving"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// AuthEvent is a session change reported by the authentication service.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// Snapshot is an immutable view of the session state. Profile and Role are
// only populated in StateAuthenticated.
type Snapshot struct {
	State      State
	Session    *domain.Session
	Profile    *domain.Profile
	Role       domain.Role
	Err        error
	Generation uint64
}

func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

func (s Snapshot) IsAdmin() bool {
	return s.hasRole(domain.RoleAdmin)
}

func (s Snapshot) IsDepartmentHead() bool {
	return s.hasRole(domain.RoleDepartmentHead)
}

func (s Snapshot) IsEmployee() bool {
	return s.hasRole(domain.RoleEmployee)
}

func (s Snapshot) hasRole(r domain.Role) bool {
	return s.State == StateAuthenticated && s.Role == r
}

type action interface{ isAction() }

type signedIn struct{ session domain.Session }

type signedOut struct{}

type refreshed struct{ session domain.Session }

type resolved struct {
	generation uint64
	profile    domain.Profile
	role       domain.Role
}

type failed struct {
	generation uint64
	err        error
}

func (signedIn) isAction()  {}
func (signedOut) isAction() {}
func (refreshed) isAction() {}
func (resolved) isAction()  {}
func (failed) isAction()    {}

// reduce is the whole transition table. Sign-in and sign-out start a new
// generation; fetch results carry the generation they were started under and
// are dropped when it is no longer current. The bool reports whether s moved.
func reduce(s Snapshot, a action) (Snapshot, bool) {
	switch a := a.(type) {
	case signedIn:
		session := a.session
		return Snapshot{State: StateResolving, Session: &session, Generation: s.Generation + 1}, true
	case signedOut:
		return Snapshot{State: StateUnauthenticated, Generation: s.Generation + 1}, true
	case refreshed:
		if s.State == StateUnauthenticated {
			return s, false
		}
		session := a.session
		s.Session = &session
		return s, true
	case resolved:
		if a.generation != s.Generation || s.State != StateResolving {
			return s, false
		}
		profile := a.profile
		s.State = StateAuthenticated
		s.Profile = &profile
		s.Role = a.role
		s.Err = nil
		return s, true
	case failed:
		if a.generation != s.Generation || s.State != StateResolving {
			return s, false
		}
		s.State = StateError
		s.Profile = nil
		s.Role = ""
		s.Err = a.err
		return s, true
	}
	return s, false
}
