package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

type fakeAuth struct {
	mu        sync.Mutex
	listeners map[int]func(AuthEvent, *domain.Session)
	next      int
	persisted *domain.Session
	signInErr error
	signOut   error
	session   domain.Session
}

func newFakeAuth(actorID string) *fakeAuth {
	return &fakeAuth{
		listeners: map[int]func(AuthEvent, *domain.Session){},
		session:   domain.Session{AccessToken: "access-1", RefreshToken: "refresh-1", User: domain.Actor{ID: actorID}},
	}
}

func (f *fakeAuth) emit(evt AuthEvent, s *domain.Session) {
	f.mu.Lock()
	fns := make([]func(AuthEvent, *domain.Session), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(evt, s)
	}
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	if f.signInErr != nil {
		return domain.Session{}, f.signInErr
	}
	s := f.session
	f.emit(EventSignedIn, &s)
	return s, nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password, displayName string) (*domain.Session, error) {
	s := f.session
	return &s, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.emit(EventSignedOut, nil)
	return f.signOut
}

func (f *fakeAuth) GetSession(ctx context.Context) (*domain.Session, error) {
	return f.persisted, nil
}

func (f *fakeAuth) OnAuthStateChange(fn func(AuthEvent, *domain.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

type fakeDirectory struct {
	role       domain.Role
	profileErr error
	roleErr    error
	// gate, when set, holds every fetch until it is closed; fetches ignore
	// cancellation while held.
	gate    chan struct{}
	started chan struct{}
	// honorCtx makes fetches block until the context ends.
	honorCtx bool
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.honorCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *fakeDirectory) FetchProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	if err := d.wait(ctx); err != nil {
		return domain.Profile{}, err
	}
	if d.profileErr != nil {
		return domain.Profile{}, d.profileErr
	}
	return domain.Profile{ID: actorID, Email: actorID + "@example.com"}, nil
}

func (d *fakeDirectory) FetchRole(ctx context.Context, actorID string) (domain.Role, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	if d.roleErr != nil {
		return "", d.roleErr
	}
	return d.role, nil
}

func TestSignInResolvesIdentity(t *testing.T) {
	auth := newFakeAuth("u1")
	m := NewManager(auth, &fakeDirectory{role: domain.RoleDepartmentHead}, Options{})
	defer m.Close()
	snap, err := m.SignIn(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if snap.State != StateAuthenticated || snap.Profile == nil || snap.Profile.ID != "u1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.IsDepartmentHead() || snap.IsAdmin() || snap.IsEmployee() {
		t.Fatalf("predicates wrong for %s", snap.Role)
	}
	if snap.Generation != 1 {
		t.Fatalf("event and direct call should collapse into one generation, got %d", snap.Generation)
	}
}

func TestSignInFailureLeavesStateUnchanged(t *testing.T) {
	auth := newFakeAuth("u1")
	auth.signInErr = domain.ErrInvalidCredentials
	m := NewManager(auth, &fakeDirectory{role: domain.RoleEmployee}, Options{})
	defer m.Close()
	snap, err := m.SignIn(context.Background(), "u1@example.com", "bad")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if snap.State != StateUnauthenticated || snap.Session != nil {
		t.Fatalf("state moved: %+v", snap)
	}
}

func TestSignOutDuringResolutionDiscardsResult(t *testing.T) {
	auth := newFakeAuth("u1")
	dir := &fakeDirectory{role: domain.RoleAdmin, gate: make(chan struct{}), started: make(chan struct{}, 2)}
	m := NewManager(auth, dir, Options{})

	s := auth.session
	auth.emit(EventSignedIn, &s)
	<-dir.started
	<-dir.started
	if got := m.Snapshot().State; got != StateResolving {
		t.Fatalf("expected resolving, got %s", got)
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	close(dir.gate)
	m.Close()

	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.Profile != nil || snap.Role != "" || snap.Session != nil {
		t.Fatalf("stale resolution applied: %+v", snap)
	}
	if snap.IsAdmin() {
		t.Fatalf("admin capability leaked after sign out")
	}
}

func TestFetchFailureEntersErrorState(t *testing.T) {
	auth := newFakeAuth("u1")
	m := NewManager(auth, &fakeDirectory{role: domain.RoleAdmin, roleErr: domain.ErrNetwork}, Options{})
	defer m.Close()
	snap, err := m.SignIn(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if snap.State != StateError || !errors.Is(snap.Err, domain.ErrNetwork) {
		t.Fatalf("expected error state, got %+v", snap)
	}
	if snap.Session == nil || snap.Profile != nil || snap.Role != "" {
		t.Fatalf("error state must keep session and drop identity: %+v", snap)
	}
	if snap.IsAdmin() || snap.IsDepartmentHead() || snap.IsEmployee() {
		t.Fatalf("no capability in error state")
	}
}

func TestResolveTimeoutEntersErrorState(t *testing.T) {
	auth := newFakeAuth("u1")
	m := NewManager(auth, &fakeDirectory{role: domain.RoleEmployee, honorCtx: true}, Options{ResolveTimeout: 20 * time.Millisecond})
	defer m.Close()
	snap, err := m.SignIn(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if snap.State != StateError || !errors.Is(snap.Err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout error state, got %+v", snap)
	}
}

func TestTokenRefreshReplacesSessionInPlace(t *testing.T) {
	auth := newFakeAuth("u1")
	m := NewManager(auth, &fakeDirectory{role: domain.RoleEmployee}, Options{})
	defer m.Close()
	before, err := m.SignIn(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	fresh := domain.Session{AccessToken: "access-2", RefreshToken: "refresh-2", User: domain.Actor{ID: "u1"}}
	auth.emit(EventTokenRefreshed, &fresh)
	after := m.Snapshot()
	if after.State != StateAuthenticated || after.Generation != before.Generation {
		t.Fatalf("refresh changed state: %+v", after)
	}
	if after.Session.AccessToken != "access-2" || after.Role != domain.RoleEmployee {
		t.Fatalf("session not replaced in place: %+v", after)
	}
}

func TestStartAdoptsPersistedSession(t *testing.T) {
	auth := newFakeAuth("u1")
	s := auth.session
	auth.persisted = &s
	m := NewManager(auth, &fakeDirectory{role: domain.RoleEmployee}, Options{})
	defer m.Close()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := m.Wait(context.Background())
	if err != nil || snap.State != StateAuthenticated || !snap.IsEmployee() {
		t.Fatalf("expected authenticated employee: %v %+v", err, snap)
	}
}

func TestStartWithoutSessionStaysUnauthenticated(t *testing.T) {
	m := NewManager(newFakeAuth("u1"), &fakeDirectory{role: domain.RoleEmployee}, Options{})
	defer m.Close()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := m.Snapshot().State; got != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
}

func TestSignOutClearsLocallyWhenRemoteFails(t *testing.T) {
	auth := newFakeAuth("u1")
	auth.signOut = domain.ErrNetwork
	m := NewManager(auth, &fakeDirectory{role: domain.RoleAdmin}, Options{})
	defer m.Close()
	if _, err := m.SignIn(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := m.SignOut(context.Background()); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected remote error to be reported, got %v", err)
	}
	if snap := m.Snapshot(); snap.State != StateUnauthenticated || snap.IsAdmin() {
		t.Fatalf("local state not cleared: %+v", snap)
	}
}

func TestSignUpResolvesDefaultRole(t *testing.T) {
	m := NewManager(newFakeAuth("u1"), &fakeDirectory{role: domain.RoleEmployee}, Options{})
	defer m.Close()
	snap, err := m.SignUp(context.Background(), "u1@example.com", "long enough", "U One")
	if err != nil || !snap.IsEmployee() {
		t.Fatalf("sign up: %v %+v", err, snap)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	auth := newFakeAuth("u1")
	m := NewManager(auth, &fakeDirectory{role: domain.RoleEmployee}, Options{})
	ch, cancel := m.Subscribe()
	defer cancel()
	if first := <-ch; first.State != StateUnauthenticated {
		t.Fatalf("expected initial unauthenticated, got %s", first.State)
	}
	if _, err := m.SignIn(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if latest := <-ch; latest.State != StateAuthenticated {
		t.Fatalf("expected latest authenticated, got %s", latest.State)
	}
	m.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after Close")
	}
}

func TestReduceDropsStaleGenerations(t *testing.T) {
	s := Snapshot{State: StateUnauthenticated}
	s, _ = reduce(s, signedIn{session: domain.Session{AccessToken: "a"}})
	old := s.Generation
	s, _ = reduce(s, signedOut{})
	s, _ = reduce(s, signedIn{session: domain.Session{AccessToken: "b"}})

	if next, changed := reduce(s, resolved{generation: old, role: domain.RoleAdmin}); changed || next.State != StateResolving {
		t.Fatalf("stale resolution applied: %+v", next)
	}
	if next, changed := reduce(s, failed{generation: old, err: errors.New("x")}); changed || next.State != StateResolving {
		t.Fatalf("stale failure applied: %+v", next)
	}
	next, changed := reduce(s, resolved{generation: s.Generation, role: domain.RoleEmployee})
	if !changed || next.State != StateAuthenticated || next.Role != domain.RoleEmployee {
		t.Fatalf("current resolution not applied: %+v", next)
	}
	if next, changed := reduce(Snapshot{State: StateUnauthenticated}, refreshed{}); changed || next.Session != nil {
		t.Fatalf("refresh without a session must not move state")
	}
}

func TestPredicatesAreExclusive(t *testing.T) {
	for _, role := range domain.Roles() {
		s := Snapshot{State: StateAuthenticated, Role: role}
		count := 0
		for _, ok := range []bool{s.IsAdmin(), s.IsDepartmentHead(), s.IsEmployee()} {
			if ok {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("%s: %d predicates true", role, count)
		}
		s.State = StateResolving
		if s.IsAdmin() || s.IsDepartmentHead() || s.IsEmployee() {
			t.Fatalf("%s: predicate true outside authenticated", role)
		}
	}
}

type countingDirectory struct {
	fakeDirectory
	active atomic.Int32
	calls  atomic.Int32
}

func (d *countingDirectory) FetchProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	d.calls.Add(1)
	d.active.Add(1)
	defer d.active.Add(-1)
	return d.fakeDirectory.FetchProfile(ctx, actorID)
}

func (d *countingDirectory) FetchRole(ctx context.Context, actorID string) (domain.Role, error) {
	d.calls.Add(1)
	d.active.Add(1)
	defer d.active.Add(-1)
	return d.fakeDirectory.FetchRole(ctx, actorID)
}

func TestCloseConcurrentWithSignIn(t *testing.T) {
	for i := 0; i < 200; i++ {
		auth := newFakeAuth("u1")
		dir := &countingDirectory{fakeDirectory: fakeDirectory{role: domain.RoleEmployee}}
		m := NewManager(auth, dir, Options{})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.SignIn(ctx, "u1@example.com", "pw")
		}()
		go func() {
			defer wg.Done()
			m.Close()
			if n := dir.active.Load(); n != 0 {
				t.Errorf("iteration %d: %d fetches still running after Close", i, n)
			}
		}()
		wg.Wait()
		cancel()

		before := dir.calls.Load()
		if _, err := m.SignIn(context.Background(), "u1@example.com", "pw"); err != nil {
			t.Fatalf("sign in after close: %v", err)
		}
		if after := dir.calls.Load(); after != before {
			t.Fatalf("iteration %d: closed manager started %d fetches", i, after-before)
		}
		m.Close()
	}
}
