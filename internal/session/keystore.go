// Package session owns the current-user state: the bearer token, the
// validated identity, and the single durable key the token survives
// restarts in.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "token"

// Keystore persists the bearer token as one file under the client config
// directory, readable only by the owner.
type Keystore struct {
	dir string
}

// NewKeystore creates a keystore rooted at configDir (typically
// os.UserConfigDir()/manimate).
func NewKeystore(configDir string) *Keystore {
	return &Keystore{dir: configDir}
}

func (k *Keystore) path() string {
	return filepath.Join(k.dir, tokenFileName)
}

// Save writes the token with 0600 permissions.
func (k *Keystore) Save(token string) error {
	if err := os.MkdirAll(k.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(k.path(), []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Load returns the persisted token, or "" when none exists.
func (k *Keystore) Load() (string, error) {
	data, err := os.ReadFile(k.path())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear removes the persisted token. Removing an absent key is not an error.
func (k *Keystore) Clear() error {
	err := os.Remove(k.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
