package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/internportal/internal/auth"
	"github.com/wolfeidau/internportal/internal/models"
)

type LoginCmd struct {
	Username      string `arg:"" help:"Portal username or email"`
	Password      string `help:"Password" env:"PORTAL_PASSWORD"`
	PasswordStdin bool   `help:"Read the password from stdin"`

	stdin io.Reader
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := l.password()
	if err != nil {
		return err
	}

	p, store, err := globals.Portal()
	if err != nil {
		return err
	}

	user, err := p.Auth.Login(ctx, l.Username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	log.Debug().Str("path", store.Path()).Msg("session stored")

	return globals.Print(user, func(w io.Writer) {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", user.DisplayName(), user.Role)
	})
}

func (l *LoginCmd) password() (string, error) {
	if !l.PasswordStdin {
		if l.Password == "" {
			return "", errors.New("password is required (use --password, PORTAL_PASSWORD or --password-stdin)")
		}
		return l.Password, nil
	}

	in := l.stdin
	if in == nil {
		in = os.Stdin
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	p, _, err := globals.Portal()
	if err != nil {
		return err
	}

	if p.State().Session() == nil {
		fmt.Fprintln(globals.Stdout, "Not signed in")
		return nil
	}

	if err := p.Auth.Logout(ctx); err != nil {
		// The local session is gone either way.
		log.Warn().Err(err).Msg("portal logout failed")
	}

	fmt.Fprintln(globals.Stdout, "Signed out")
	return nil
}

type WhoamiCmd struct {
	Refresh bool `help:"Fetch the profile from the portal instead of using the stored one"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	var user *models.CurrentUser
	if c.Refresh {
		user, err = p.Auth.Me(ctx)
		if err == nil {
			p.State().SetUser(p.State().Session(), user)
		}
	} else {
		snap := p.State().Current()
		if snap.User == nil {
			snap, err = p.Auth.Resolve(ctx)
		}
		user = snap.User
	}
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if user == nil {
		return errors.New("profile unavailable")
	}

	return globals.Print(user, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tPERMISSIONS")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			user.ID, user.DisplayName(), orDash(user.Email), user.Role, orDash(strings.Join(user.Permissions, ",")))
	})
}

type AccessCmd struct {
	Paths  []string `arg:"" help:"Page paths to check, for example /applications/review"`
	Routes string   `help:"YAML route table. Defaults to the built in portal routes." type:"existingfile" env:"PORTAL_GATEWAY_ROUTES_FILE"`
}

type accessResult struct {
	Path    string `json:"path"`
	Route   string `json:"route"`
	Outcome string `json:"outcome"`
	Next    string `json:"next,omitempty"`
}

func (c *AccessCmd) Run(ctx context.Context, globals *Globals) error {
	routes, err := loadRoutes(c.Routes)
	if err != nil {
		return err
	}

	p, _, err := globals.Portal()
	if err != nil {
		return err
	}

	// Decide on a resolved profile. A failed resolution leaves no user, which
	// the gate treats as signed out.
	if p.State().Session() != nil {
		if _, err := p.Auth.Resolve(ctx); err != nil {
			log.Warn().Err(err).Msg("profile resolution failed")
		}
	}

	gate := auth.NewGate(p.State(), routes)

	results := make([]accessResult, 0, len(c.Paths))
	for _, path := range c.Paths {
		decision := gate.Decide(path)
		results = append(results, accessResult{
			Path:    path,
			Route:   routes.Lookup(path).Path,
			Outcome: decision.Outcome.String(),
			Next:    decision.Next,
		})
	}

	return globals.Print(results, func(w io.Writer) {
		fmt.Fprintln(w, "PATH\tROUTE\tOUTCOME")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Path, r.Route, r.Outcome)
		}
	})
}

func loadRoutes(path string) (*auth.RouteTable, error) {
	if path == "" {
		return auth.DefaultRoutes(), nil
	}

	routes, err := auth.LoadRoutesFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	return routes, nil
}
