package gateway

import (
	"context"

	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/portal"
	"github.com/wolfeidau/internportal/internal/session"
)

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=../mocks/authenticator_mock.go github.com/wolfeidau/internportal/internal/gateway Authenticator

// Authenticator signs browser users in and out of the portal API.
type Authenticator interface {
	// Login exchanges credentials for an authenticated snapshot.
	Login(ctx context.Context, username, password string) (session.Snapshot, error)

	// Logout ends the portal session held by snap.
	Logout(ctx context.Context, snap session.Snapshot) error

	// Profile fetches a fresh profile for sess.
	Profile(ctx context.Context, sess *models.Session) (*models.CurrentUser, error)
}

// PortalAuthenticator implements Authenticator with the portal services.
// Every call runs against its own session state so browser sessions never
// share credentials.
type PortalAuthenticator struct {
	portal *portal.Portal
}

// NewPortalAuthenticator creates an Authenticator backed by p.
func NewPortalAuthenticator(p *portal.Portal) *PortalAuthenticator {
	return &PortalAuthenticator{portal: p}
}

func (a *PortalAuthenticator) Login(ctx context.Context, username, password string) (session.Snapshot, error) {
	state := session.NewState()
	if _, err := a.portal.WithState(state).Auth.Login(ctx, username, password); err != nil {
		return session.Snapshot{}, err
	}
	return state.Current(), nil
}

func (a *PortalAuthenticator) Logout(ctx context.Context, snap session.Snapshot) error {
	return a.portal.WithState(session.NewStateFrom(snap.Session, snap.User)).Auth.Logout(ctx)
}

func (a *PortalAuthenticator) Profile(ctx context.Context, sess *models.Session) (*models.CurrentUser, error) {
	p := a.portal.WithState(session.NewStateFrom(sess, nil))
	return client.Retry(ctx, client.DefaultRetryAttempts, p.Auth.Me)
}
