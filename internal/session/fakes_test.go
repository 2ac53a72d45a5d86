package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// codeError mimics a backend error carrying an auth code.
type codeError struct{ code string }

func (e *codeError) Error() string    { return "backend: " + e.code }
func (e *codeError) AuthCode() string { return e.code }

type fakeAccount struct {
	password string
	identity Identity
}

// fakeAuth is an in-memory AuthBackend that delivers snapshots synchronously.
type fakeAuth struct {
	mu        sync.Mutex
	calls     []string
	accounts  map[string]*fakeAccount
	current   *Identity
	listeners map[int]func(*Identity)
	nextID    int

	persistence    PersistenceMode
	persistErr     error
	signOutErr     error
	popupErr       error
	popupResult    *PopupResult
	redirectCalled bool
	updatePassword string
	profileErr     error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		accounts:    make(map[string]*fakeAccount),
		listeners:   make(map[int]func(*Identity)),
		persistence: PersistenceSession,
	}
}

func (f *fakeAuth) addAccount(id, email, password string) {
	f.accounts[email] = &fakeAccount{
		password: password,
		identity: Identity{ID: id, Email: email, DisplayName: "user " + id},
	}
}

func (f *fakeAuth) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAuth) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAuth) emit(identity *Identity) {
	f.mu.Lock()
	f.current = identity
	listeners := make([]func(*Identity), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(identity)
	}
}

func (f *fakeAuth) SetPersistence(ctx context.Context, mode PersistenceMode) error {
	f.record("set-persistence:" + string(mode))
	if f.persistErr != nil {
		return f.persistErr
	}
	f.mu.Lock()
	f.persistence = mode
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) Persistence() PersistenceMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistence
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	f.record("sign-in")
	acct, ok := f.accounts[email]
	if !ok {
		return nil, &codeError{code: "auth/user-not-found"}
	}
	if acct.password != password {
		return nil, &codeError{code: "auth/wrong-password"}
	}
	id := acct.identity
	f.emit(&id)
	return &id, nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	f.record("sign-up")
	if _, exists := f.accounts[email]; exists {
		return nil, &codeError{code: "auth/email-already-in-use"}
	}
	if len(password) < 6 {
		return nil, &codeError{code: "auth/weak-password"}
	}
	f.addAccount(fmt.Sprintf("u%d", len(f.accounts)+1), email, password)
	id := f.accounts[email].identity
	return &id, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.record("sign-out")
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.emit(nil)
	return nil
}

func (f *fakeAuth) Reauthenticate(ctx context.Context, email, password string) error {
	f.record("reauthenticate")
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return &codeError{code: "auth/wrong-password"}
	}
	return nil
}

func (f *fakeAuth) UpdatePassword(ctx context.Context, newPassword string) error {
	f.record("update-password")
	if len(newPassword) < 6 {
		return &codeError{code: "auth/weak-password"}
	}
	f.updatePassword = newPassword
	return nil
}

func (f *fakeAuth) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	f.record("update-profile")
	return f.profileErr
}

func (f *fakeAuth) SendPasswordReset(ctx context.Context, email string) error {
	f.record("password-reset")
	return nil
}

func (f *fakeAuth) SignInWithPopup(ctx context.Context) (*PopupResult, error) {
	f.record("popup")
	if f.popupErr != nil {
		return nil, f.popupErr
	}
	if f.popupResult != nil && f.popupResult.Identity != nil {
		f.emit(f.popupResult.Identity)
	}
	return f.popupResult, nil
}

func (f *fakeAuth) SignInWithRedirect(ctx context.Context) error {
	f.record("redirect")
	f.redirectCalled = true
	return nil
}

func (f *fakeAuth) OnAuthStateChanged(fn func(*Identity)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

type fakeWindow struct{ closed atomic.Bool }

func (w *fakeWindow) Close() error {
	w.closed.Store(true)
	return nil
}

// fakeRoles serves role documents; gate, when set, holds lookups until closed.
type fakeRoles struct {
	mu    sync.Mutex
	roles map[string]string
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: make(map[string]string)}
}

func (r *fakeRoles) LookupRole(ctx context.Context, id string) (string, bool, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	if r.err != nil {
		return "", false, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	return role, ok, nil
}

type memLocal struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemLocal() *memLocal {
	return &memLocal{values: make(map[string]string)}
}

func (l *memLocal) Get(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[key]
	return v, ok
}

func (l *memLocal) Set(key, value string) error {
	if l.setErr != nil {
		return l.setErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[key] = value
	return nil
}

func (l *memLocal) Remove(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
	return nil
}

var errLookup = errors.New("document store unavailable")
