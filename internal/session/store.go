// Package session persists the authenticated provider session between
// process runs. The blob is plain JSON on local disk: it no longer carries
// the account password (the legacy tracker did), but the tokens inside are
// still a reusable login credential, so the file is written 0600 and should
// be treated as a secret.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound means no session blob exists at the configured path. Callers
// treat this as fatal and instruct the operator to run `trackagent login`.
var ErrNotFound = errors.New("no saved session found")

// Credential is the opaque session blob: account identity plus the vendor
// tokens/cookies needed to resume without a password. Replaced wholesale on
// every save, never mutated in place.
type Credential struct {
	AppleID      string            `json:"apple_id"`
	SessionToken string            `json:"session_token,omitempty"`
	TrustToken   string            `json:"trust_token,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	Scnt         string            `json:"scnt,omitempty"`
	Cookies      map[string]string `json:"cookies,omitempty"`
	SavedAt      time.Time         `json:"saved_at"`
}

// Store reads and writes the session blob at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the blob location, for operator-facing messages.
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved credential. Returns ErrNotFound when the blob is
// absent.
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, s.path)
		}
		return nil, errors.Wrapf(err, "read session file %s", s.path)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, errors.Wrapf(err, "decode session file %s", s.path)
	}
	return &cred, nil
}

// Save replaces the blob atomically: write a temp file in the same
// directory, sync, then rename over the target so a crash never leaves a
// partial session behind.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return errors.New("session: credential cannot be nil")
	}
	cred.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp session file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp session file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp session file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp session file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return errors.Wrap(err, "chmod temp session file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "replace session file %s", s.path)
	}
	return nil
}
