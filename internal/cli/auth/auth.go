// Package auth persists backend tokens for the CLI. Durable tokens live in
// the OS keychain; session tokens live in a per-user runtime file that
// disappears on logout or reboot.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zalando/go-keyring"
)

const (
	service = "soulnet-cli"
)

// ErrNoToken is returned when no token is stored for a server.
var ErrNoToken = errors.New("not authenticated. Please run 'soulnet login' first")

// getKeyringKey returns a unique key for storing JWT tokens per server
func getKeyringKey(server string) string {
	return fmt.Sprintf("jwt-%s", server)
}

// KeyringStore keeps tokens in the OS keychain/credential manager.
type KeyringStore struct{}

// SaveToken persists the JWT token securely in the OS keychain/credential manager
func (KeyringStore) SaveToken(server, token string) error {
	if err := keyring.Set(service, getKeyringKey(server), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the JWT token from the OS keychain/credential manager
func (KeyringStore) LoadToken(server string) (string, error) {
	token, err := keyring.Get(service, getKeyringKey(server))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the JWT token from the OS keychain/credential manager
func (KeyringStore) DeleteToken(server string) error {
	if err := keyring.Delete(service, getKeyringKey(server)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// FileStore keeps one token file per server in Dir.
type FileStore struct {
	Dir string
}

// RuntimeDir returns $XDG_RUNTIME_DIR/soulnet, or a per-user directory under
// the system temp dir.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "soulnet")
	}
	return filepath.Join(os.TempDir(), "soulnet-"+strconv.Itoa(os.Getuid()))
}

// NewSessionStore returns a FileStore under RuntimeDir.
func NewSessionStore() *FileStore {
	return &FileStore{Dir: RuntimeDir()}
}

func (f *FileStore) path(server string) string {
	sum := sha256.Sum256([]byte(server))
	return filepath.Join(f.Dir, "token-"+hex.EncodeToString(sum[:8]))
}

func (f *FileStore) SaveToken(server, token string) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(f.path(server), []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (f *FileStore) LoadToken(server string) (string, error) {
	data, err := os.ReadFile(f.path(server))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoToken
	}
	return string(data), nil
}

func (f *FileStore) DeleteToken(server string) error {
	if err := os.Remove(f.path(server)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
