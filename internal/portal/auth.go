package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
)

// ErrEmptyProfile is returned when the profile endpoint answers without a user.
var ErrEmptyProfile = errors.New("profile response is empty")

// AuthService creates and destroys the session held by the client's State.
type AuthService struct {
	c        *client.Client
	resolver *session.Resolver
}

func newAuthService(c *client.Client) *AuthService {
	s := &AuthService{c: c}
	s.resolver = session.NewResolver(c.State(), s)
	return s
}

// Login exchanges credentials for a session and resolves the caller's profile.
//
// The session is only kept when the profile resolves, so a successful return
// always leaves the State authenticated. The login request itself carries no
// credential, so rejected credentials leave a stored session untouched.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.CurrentUser, error) {
	anonymous := s.c.WithState(session.NewState())
	resp, err := client.Post[models.LoginResponse](ctx, anonymous, PathLogin, models.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	sess, err := models.NewSession(resp.AccessToken, resp.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("login response: %w", err)
	}

	state := s.c.State()
	if resp.User != nil {
		state.Login(sess, resp.User)
		return resp.User, nil
	}

	state.Login(sess, nil)

	snap, err := s.resolver.Resolve(ctx)
	if err != nil {
		state.Invalidate(sess)
		return nil, err
	}
	if snap.User == nil {
		state.Invalidate(sess)
		return nil, ErrEmptyProfile
	}

	zerolog.Ctx(ctx).Debug().Str("user_id", snap.User.ID.String()).Str("role", string(snap.User.Role)).Msg("signed in")

	return snap.User, nil
}

// Logout tells the portal to end the session and destroys it locally. The
// local session is destroyed even when the portal call fails; that error is
// still returned.
func (s *AuthService) Logout(ctx context.Context) error {
	state := s.c.State()
	if state.Session() == nil {
		return nil
	}

	_, err := client.Post[json.RawMessage](ctx, s.c, PathLogout, nil)
	state.Logout()

	if err != nil && !client.IsKind(err, client.KindUnauthorized) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me fetches the profile of the authenticated caller.
func (s *AuthService) Me(ctx context.Context) (*models.CurrentUser, error) {
	user, err := client.Get[*models.CurrentUser](ctx, s.c, PathMe)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrEmptyProfile
	}
	return user, nil
}

// Resolve attaches the profile to a restored session if it has none yet.
func (s *AuthService) Resolve(ctx context.Context) (session.Snapshot, error) {
	return s.resolver.Resolve(ctx)
}
