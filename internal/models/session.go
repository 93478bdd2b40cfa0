package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrEmptyAccessToken is returned when a login response carries no token.
var ErrEmptyAccessToken = errors.New("access token is empty")

// Session represents the authenticated caller.
// A Session is immutable once created; state changes replace the whole value.
type Session struct {
	AccessToken string     `json:"accessToken"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// NewSession creates a session from a login response.
// When expiresAt is nil the exp claim of the access token is used if the
// token is a JWT. The token signature is not verified, that is the server's job.
func NewSession(accessToken string, expiresAt *time.Time) (*Session, error) {
	if accessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	if expiresAt == nil {
		expiresAt = tokenExpiry(accessToken)
	}

	return &Session{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}, nil
}

// IsExpired returns true if the session has an expiry in the past.
// Sessions without an expiry never expire locally.
func (s *Session) IsExpired() bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*s.ExpiresAt)
}

// Token returns the session credential as an oauth2 bearer token.
func (s *Session) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
	}
	if s.ExpiresAt != nil {
		tok.Expiry = *s.ExpiresAt
	}
	return tok
}

func tokenExpiry(accessToken string) *time.Time {
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	t := exp.Time
	return &t
}
