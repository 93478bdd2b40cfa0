package gateway

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidRecord   = errors.New("invalid session record")
)

// Record is a browser session held by the gateway. The cookie carries only
// the ID, the portal access token never leaves the server.
type Record struct {
	ID        string              `json:"id"`
	Session   *models.Session     `json:"session"`
	User      *models.CurrentUser `json:"user,omitempty"`
	ClientIP  string              `json:"clientIp,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// IsExpired returns true once the record or its portal session has expired.
func (r *Record) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt) || r.Session.IsExpired()
}

// Snapshot returns the record as an authentication snapshot. Expired records
// are unauthenticated.
func (r *Record) Snapshot() session.Snapshot {
	if r == nil || r.Session == nil || r.IsExpired() {
		return session.Snapshot{}
	}
	return session.Snapshot{Session: r.Session, User: r.User}
}

func (r *Record) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if r.Session == nil {
		return fmt.Errorf("%w: missing session", ErrInvalidRecord)
	}
	return nil
}

// NewRecord builds a record for snap. The record expires with the portal
// session, or after ttl when the session has no expiry of its own.
func NewRecord(snap session.Snapshot, clientIP string, ttl time.Duration) (*Record, error) {
	if snap.Session == nil {
		return nil, fmt.Errorf("%w: missing session", ErrInvalidRecord)
	}

	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	if snap.Session.ExpiresAt != nil && snap.Session.ExpiresAt.Before(expiresAt) {
		expiresAt = *snap.Session.ExpiresAt
	}

	return &Record{
		ID:        id,
		Session:   snap.Session,
		User:      snap.User,
		ClientIP:  clientIP,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// NewSessionID returns a base58 encoded 256 bit random identifier.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base58.Encode(buf), nil
}

// SessionStore persists gateway sessions.
type SessionStore interface {
	// Create stores a new record.
	Create(ctx context.Context, rec *Record) error

	// Get returns the record for id, ErrSessionNotFound or ErrSessionExpired.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. Deleting a missing record returns ErrSessionNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes expired records and returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)
}
