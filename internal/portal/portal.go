// Package portal exposes the internship portal REST API as typed services.
package portal

import (
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/session"
)

// Portal groups the resource services sharing one client and session state.
type Portal struct {
	Auth          *AuthService
	Users         *UsersService
	Commission    *CommissionService
	Departments   *DepartmentsService
	Applications  *ApplicationsService
	Topics        *TopicsService
	Notifications *NotificationsService

	client *client.Client
}

// New creates the services on top of c.
func New(c *client.Client) *Portal {
	return &Portal{
		Auth:          newAuthService(c),
		Users:         &UsersService{c: c},
		Commission:    &CommissionService{c: c},
		Departments:   &DepartmentsService{c: c},
		Applications:  &ApplicationsService{c: c},
		Topics:        &TopicsService{c: c},
		Notifications: &NotificationsService{c: c},
		client:        c,
	}
}

// State returns the session state shared by the services.
func (p *Portal) State() *session.State {
	return p.client.State()
}

// Client returns the underlying API client.
func (p *Portal) Client() *client.Client {
	return p.client
}

// WithState returns services bound to another session state.
func (p *Portal) WithState(state *session.State) *Portal {
	return New(p.client.WithState(state))
}
