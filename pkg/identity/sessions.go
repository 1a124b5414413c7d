package identity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SessionStore persists the raw session token between runs. Load returns an
// empty token and no error when nothing is stored.
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type NopSessions struct{}

func (NopSessions) Load() (string, error) { return "", nil }
func (NopSessions) Save(string) error     { return nil }
func (NopSessions) Clear() error          { return nil }

// FileSessions keeps the token in a single file readable only by the owner.
type FileSessions struct {
	Path string
}

func (s FileSessions) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s FileSessions) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(token), 0o600)
}

func (s FileSessions) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
