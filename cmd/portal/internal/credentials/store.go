package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
)

const (
	sessionFile    = "session.json"
	currentVersion = 1
)

var (
	// ErrNoSession is returned when no usable session is stored.
	ErrNoSession = errors.New("not signed in")

	// ErrUnsupportedVersion is returned when the session file was written by a newer CLI.
	ErrUnsupportedVersion = errors.New("unsupported session file version")
)

type storedSession struct {
	Version int                 `json:"version"`
	Session *models.Session     `json:"session"`
	User    *models.CurrentUser `json:"user,omitempty"`
	SavedAt time.Time           `json:"saved_at"`
}

// Store keeps the CLI session on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a session store in baseDir, creating it with 0700
// permissions if needed.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("session directory is required")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("session store initialized")

	return &Store{baseDir: baseDir}, nil
}

// Path returns the session file location.
func (s *Store) Path() string {
	return filepath.Join(s.baseDir, sessionFile)
}

// Load returns the stored session. Expired sessions are removed and reported
// as ErrNoSession.
func (s *Store) Load() (*models.Session, *models.CurrentUser, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNoSession
		}
		return nil, nil, fmt.Errorf("failed to read session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if stored.Version > currentVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, stored.Version)
	}

	if stored.Session == nil || stored.Session.AccessToken == "" {
		return nil, nil, ErrNoSession
	}
	if stored.Session.IsExpired() {
		log.Debug().Msg("stored session expired, removing")
		if err := s.Clear(); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrNoSession
	}

	return stored.Session, stored.User, nil
}

// Save writes the session atomically with 0600 permissions.
func (s *Store) Save(sess *models.Session, user *models.CurrentUser) error {
	if sess == nil {
		return s.Clear()
	}

	data, err := json.MarshalIndent(storedSession{
		Version: currentVersion,
		Session: sess,
		User:    user,
		SavedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Clear removes the stored session. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Attach restores the stored session into state and keeps the file in sync
// with later changes, so a rejected session is also removed from disk.
func (s *Store) Attach(state *session.State) error {
	sess, user, err := s.Load()
	switch {
	case err == nil:
		state.Restore(sess, user)
	case !errors.Is(err, ErrNoSession):
		return err
	}

	state.OnChange(func(reason session.Reason, snap session.Snapshot) {
		if reason == session.ReasonLoading || reason == session.ReasonRestore {
			return
		}

		if err := s.Save(snap.Session, snap.User); err != nil {
			log.Warn().Err(err).Str("reason", string(reason)).Msg("failed to persist session")
		}
	})

	return nil
}
