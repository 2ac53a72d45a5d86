package auth

import (
	"errors"
	"sync"
)

// TokenStore defines the interface for token storage operations
// This allows us to mock the keyring in tests
type TokenStore interface {
	SaveToken(server, token string) error
	LoadToken(server string) (string, error)
	DeleteToken(server string) error
}

// Mode names where a token is kept.
type Mode string

const (
	ModeSession Mode = "session"
	ModeDurable Mode = "durable"
)

// Tokens routes tokens to the durable or the session store. A server has at
// most one stored token; saving to one store clears the other.
type Tokens struct {
	Durable TokenStore
	Session TokenStore
}

// DefaultTokens uses the OS keyring for durable tokens and the runtime
// directory for session tokens.
func DefaultTokens() *Tokens {
	return &Tokens{Durable: KeyringStore{}, Session: NewSessionStore()}
}

func (t *Tokens) store(mode Mode) (keep, drop TokenStore) {
	if mode == ModeDurable {
		return t.Durable, t.Session
	}
	return t.Session, t.Durable
}

// Save stores token for server under mode.
func (t *Tokens) Save(mode Mode, server, token string) error {
	keep, drop := t.store(mode)
	if err := keep.SaveToken(server, token); err != nil {
		return err
	}
	return drop.DeleteToken(server)
}

// Load returns the stored token and where it was found. The session store
// is checked first.
func (t *Tokens) Load(server string) (string, Mode, error) {
	token, err := t.Session.LoadToken(server)
	if err == nil {
		return token, ModeSession, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return "", "", err
	}

	token, err = t.Durable.LoadToken(server)
	if err != nil {
		return "", "", err
	}
	return token, ModeDurable, nil
}

// Clear removes the token from both stores.
func (t *Tokens) Clear(server string) error {
	return errors.Join(t.Session.DeleteToken(server), t.Durable.DeleteToken(server))
}

// MemoryStore is an in-memory TokenStore.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (m *MemoryStore) SaveToken(server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[server] = token
	return nil
}

func (m *MemoryStore) LoadToken(server string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[server]
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

func (m *MemoryStore) DeleteToken(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, server)
	return nil
}
