package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Local store keys shared with other components.
const (
	KeySidebarCollapsed = "sidebarCollapsed"
	KeyLoggedIn         = "isLoggedIn"
	KeyUserRole         = "userRole"
)

const defaultRoleLookupTimeout = 10 * time.Second

// Options configures a Manager.
type Options struct {
	Auth   AuthBackend
	Roles  RoleStore
	Local  LocalStore
	Logger zerolog.Logger

	// RoleLookupTimeout bounds a single role document read.
	RoleLookupTimeout time.Duration
}

// Manager is the single writer of session State.
type Manager struct {
	auth          AuthBackend
	roles         RoleStore
	local         LocalStore
	logger        zerolog.Logger
	lookupTimeout time.Duration

	// dispatchMu serializes transitions, their side effects and observer
	// notification so observers see states in event order.
	dispatchMu sync.Mutex

	mu           sync.RWMutex
	state        State
	observers    map[uint64]func(State)
	nextObserver uint64
	closed       bool
	unsubscribe  func()
	lookups      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager in the Resolving state. Call Start to subscribe to
// the auth backend.
func New(opts Options) *Manager {
	timeout := opts.RoleLookupTimeout
	if timeout <= 0 {
		timeout = defaultRoleLookupTimeout
	}

	collapsed := false
	if raw, ok := opts.Local.Get(KeySidebarCollapsed); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			collapsed = v
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		auth:          opts.Auth,
		roles:         opts.Roles,
		local:         opts.Local,
		logger:        opts.Logger.With().Str("component", "session").Logger(),
		lookupTimeout: timeout,
		state:         initialState(collapsed),
		observers:     make(map[uint64]func(State)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start subscribes to identity snapshots. It is safe to call once.
func (m *Manager) Start() {
	unsubscribe := m.auth.OnAuthStateChanged(m.handleSnapshot)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// Close stops reacting to backend events and waits for in-flight role
// lookups. Their results are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAdmin reports whether the current session holds the admin role.
func (m *Manager) IsAdmin() bool {
	return m.State().IsAdmin()
}

// CheckRole reports whether the current session satisfies required.
func (m *Manager) CheckRole(required Role) bool {
	return m.State().HasRole(required)
}

// Subscribe registers fn for every state change. fn runs on the dispatching
// goroutine and must not call Manager mutators.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// WaitFor blocks until pred holds for the current state or ctx ends.
func (m *Manager) WaitFor(ctx context.Context, pred func(State) bool) (State, error) {
	done := make(chan State, 1)
	var once sync.Once
	unsubscribe := m.Subscribe(func(s State) {
		if pred(s) {
			once.Do(func() { done <- s })
		}
	})
	defer unsubscribe()

	if s := m.State(); pred(s) {
		return s, nil
	}

	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// dispatch applies e, runs effects with the new state while still holding the
// dispatch lock, then notifies observers.
func (m *Manager) dispatch(e Event, effects ...func(State)) State {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	next := Transition(m.state, e)
	m.state = next
	observers := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, effect := range effects {
		effect(next)
	}
	for _, fn := range observers {
		fn(next)
	}
	return next
}

func (m *Manager) handleSnapshot(identity *Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if identity != nil {
		m.wg.Add(1)
		m.lookups++
	}
	m.mu.Unlock()

	if identity != nil {
		if mode := m.auth.Persistence(); mode != "" && mode != m.State().Persistence {
			m.dispatch(PersistenceSelected{Mode: mode})
		}
	}
	m.dispatch(IdentityChanged{Identity: identity}, m.mirrorIdentity)

	if identity == nil {
		return
	}

	m.logger.Debug().Str("user_id", identity.ID).Msg("Identity changed, resolving role")
	go func(id string) {
		defer m.wg.Done()
		m.resolveRole(id)
	}(identity.ID)
}

// resolveRole reads the role document for id. A missing document or a failed
// read resolves to RoleUser; the lookup never grants admin by default.
func (m *Manager) resolveRole(id string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.lookupTimeout)
	defer cancel()

	role := RoleUser
	raw, found, err := m.roles.LookupRole(ctx, id)
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Str("user_id", id).Msg("Role lookup failed, defaulting to user")
	case !found:
		m.logger.Debug().Str("user_id", id).Msg("No role document, defaulting to user")
	case Role(raw) == RoleAdmin:
		role = RoleAdmin
	}

	if m.ctx.Err() != nil {
		m.lookupDone()
		return
	}

	m.dispatch(RoleResolved{IdentityID: id, Role: role}, func(State) { m.lookupDone() }, func(s State) {
		if s.Identity == nil || s.Identity.ID != id {
			return
		}
		m.setLocal(KeyUserRole, string(s.Role))
	})
}

func (m *Manager) lookupDone() {
	m.mu.Lock()
	m.lookups--
	m.mu.Unlock()
}

// Settled waits until the initial resolution is over and no role lookup is in
// flight, so the returned role is final for its identity.
func (m *Manager) Settled(ctx context.Context) (State, error) {
	return m.WaitFor(ctx, func(s State) bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return !s.Loading && m.lookups == 0
	})
}

func (m *Manager) mirrorIdentity(s State) {
	if s.Identity == nil {
		m.removeLocal(KeyLoggedIn)
		m.removeLocal(KeyUserRole)
		return
	}
	m.setLocal(KeyLoggedIn, "true")
}

func (m *Manager) setLocal(key, value string) {
	if err := m.local.Set(key, value); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to write local store")
	}
}

func (m *Manager) removeLocal(key string) {
	if err := m.local.Remove(key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to clear local store key")
	}
}

// fail records err as the last error and returns it.
func (m *Manager) fail(err error) error {
	m.dispatch(ErrorRaised{Err: err})
	return err
}

func (m *Manager) succeed() {
	if m.State().LastError != nil {
		m.dispatch(ErrorRaised{})
	}
}

func (m *Manager) authFail(err error) error {
	return m.fail(MapAuthError(err))
}
