package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Paulygold/task-flow-manager/internal/domain"
)

// AuthService is the authentication collaborator. Implementations report
// session changes through OnAuthStateChange; the returned func detaches the
// listener.
type AuthService interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(fn func(AuthEvent, *domain.Session)) (unsubscribe func())
}

// Directory fetches the records that complete an authenticated identity.
type Directory interface {
	FetchProfile(ctx context.Context, actorID string) (domain.Profile, error)
	FetchRole(ctx context.Context, actorID string) (domain.Role, error)
}

type Options struct {
	// ResolveTimeout bounds the profile and role fetches. Zero leaves them to
	// the collaborator's own timeout.
	ResolveTimeout time.Duration
	Logger         *slog.Logger
}

// Manager owns the client-side session state. All transitions go through
// reduce under mu.
type Manager struct {
	auth AuthService
	dir  Directory
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	snap          Snapshot
	changed       chan struct{}
	subs          map[int]chan Snapshot
	nextSub       int
	cancelResolve context.CancelFunc
	closed        bool

	base        context.Context
	cancelBase  context.CancelFunc
	unsubscribe func()
	inflight    sync.WaitGroup
}

func NewManager(auth AuthService, dir Directory, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		auth:       auth,
		dir:        dir,
		opts:       opts,
		log:        logger,
		snap:       Snapshot{State: StateUnauthenticated},
		changed:    make(chan struct{}),
		subs:       map[int]chan Snapshot{},
		base:       base,
		cancelBase: cancel,
	}
	m.unsubscribe = auth.OnAuthStateChange(m.handle)
	return m
}

// Start adopts a session the auth service already holds, if any.
func (m *Manager) Start(ctx context.Context) error {
	session, err := m.auth.GetSession(ctx)
	if err != nil {
		return err
	}
	if session != nil {
		m.begin(*session)
	}
	return nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate states.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if m.closed {
		ch <- m.snap
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snap
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Wait blocks until the state leaves StateResolving.
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap, changed := m.snap, m.changed
		m.mu.Unlock()
		if snap.State != StateResolving {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// SignIn authenticates and waits for the identity to resolve. On failure the
// state is left as it was.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	session, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return m.Snapshot(), err
	}
	m.begin(session)
	return m.Wait(ctx)
}

// SignUp registers an account. When the service signs the new account in,
// the identity is resolved like a sign-in.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) (Snapshot, error) {
	session, err := m.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		return m.Snapshot(), err
	}
	if session == nil {
		return m.Snapshot(), nil
	}
	m.begin(*session)
	return m.Wait(ctx)
}

// SignOut clears local state even when the remote call fails; that error is
// still returned.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.auth.SignOut(ctx)
	m.dispatch(signedOut{})
	if err != nil {
		return fmt.Errorf("remote sign out: %w", err)
	}
	return nil
}

// Close detaches from the auth service and waits for in-flight fetches.
// Once closed is set under mu, begin no longer adds to inflight.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopResolveLocked()
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.cancelBase()
	m.inflight.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) handle(evt AuthEvent, session *domain.Session) {
	switch evt {
	case EventSignedIn:
		if session != nil {
			m.begin(*session)
		}
	case EventSignedOut:
		m.dispatch(signedOut{})
	case EventTokenRefreshed:
		if session != nil {
			m.dispatch(refreshed{session: *session})
		}
	default:
		m.log.Debug("ignoring auth event", "event", evt)
	}
}

// begin enters StateResolving for session and starts the fetches. A session
// that is already current is not resolved twice, so the service event and
// the direct call after SignInWithPassword collapse into one.
func (m *Manager) begin(session domain.Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if cur := m.snap.Session; cur != nil && m.snap.State != StateUnauthenticated && cur.AccessToken == session.AccessToken {
		m.mu.Unlock()
		return
	}
	m.stopResolveLocked()
	m.applyLocked(signedIn{session: session})
	gen := m.snap.Generation
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.opts.ResolveTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.base, m.opts.ResolveTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.base)
	}
	m.cancelResolve = cancel
	m.inflight.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.inflight.Done()
		defer cancel()
		m.resolve(ctx, gen, session.User.ID)
	}()
}

func (m *Manager) resolve(ctx context.Context, gen uint64, actorID string) {
	var (
		profile domain.Profile
		role    domain.Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.dir.FetchProfile(gctx, actorID)
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		r, err := m.dir.FetchRole(gctx, actorID)
		if err != nil {
			return fmt.Errorf("fetch role: %w", err)
		}
		if !r.Valid() {
			return fmt.Errorf("fetch role: unknown role %q", r)
		}
		role = r
		return nil
	})
	if err := g.Wait(); err != nil {
		m.log.Warn("identity resolution failed", "actor", actorID, "err", err)
		m.dispatch(failed{generation: gen, err: err})
		return
	}
	m.dispatch(resolved{generation: gen, profile: profile, role: role})
}

func (m *Manager) dispatch(a action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := a.(signedOut); ok {
		m.stopResolveLocked()
	}
	m.applyLocked(a)
}

func (m *Manager) stopResolveLocked() {
	if m.cancelResolve != nil {
		m.cancelResolve()
		m.cancelResolve = nil
	}
}

func (m *Manager) applyLocked(a action) {
	next, changed := reduce(m.snap, a)
	if !changed {
		return
	}
	m.snap = next
	close(m.changed)
	m.changed = make(chan struct{})
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
