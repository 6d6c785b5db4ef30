// Package tokenstore persists login credentials between CLI invocations.
// The file holds bearer tokens, so it is written 0600 and replaced
// atomically; a corrupt or missing file reads as "not logged in" rather
// than an error.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credentials is the on-disk token record.
type Credentials struct {
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	SessionJTI   string    `json:"session_jti,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store reads and writes the credentials file at a fixed path.
type Store struct {
	path string
}

// New creates a store for the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the file the store operates on.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored credentials. A missing or unreadable file returns
// (nil, nil): the user is simply not logged in.
func (s *Store) Load() (*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		// Corrupt file: treat as logged out, leave the file for inspection.
		return nil, nil
	}
	if creds.AccessToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes the credentials atomically with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("nil credentials")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	record := *creds
	if record.SavedAt.IsZero() {
		record.SavedAt = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credentials file mode: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

// Clear removes the credentials file. A file that is already gone is not
// an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}
