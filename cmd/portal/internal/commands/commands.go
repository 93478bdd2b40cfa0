package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/internportal/cmd/portal/internal/credentials"
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/config"
	"github.com/wolfeidau/internportal/internal/logger"
	"github.com/wolfeidau/internportal/internal/portal"
	"github.com/wolfeidau/internportal/internal/session"
	"github.com/wolfeidau/internportal/internal/telemetry"
)

// Flags are the global command line flags. They override the loaded config.
type Flags struct {
	Debug      bool
	Query      string
	Origin     string
	APIURL     string
	Timeout    time.Duration
	SessionDir string
	Tracing    bool
}

type Globals struct {
	Debug   bool
	Version string
	Query   string
	Config  config.Config

	Stdout io.Writer
	Logger zerolog.Logger
}

// NewGlobals merges flags into cfg and configures the process logger.
func NewGlobals(cfg config.Config, flags Flags, version string) (*Globals, error) {
	cfg.API.Origin = flags.Origin
	cfg.API.BaseURL = flags.APIURL
	if flags.Timeout > 0 {
		cfg.API.Timeout = flags.Timeout
	}
	cfg.Session.Dir = flags.SessionDir
	cfg.Telemetry.Enabled = flags.Tracing
	cfg.Sanitize()

	if flags.Query != "" {
		if _, err := jmespath.Compile(flags.Query); err != nil {
			return nil, fmt.Errorf("invalid --query expression: %w", err)
		}
	}

	debug := flags.Debug || cfg.Dev
	l := logger.Setup(debug)
	log.Logger = l

	return &Globals{
		Debug:   debug,
		Version: version,
		Query:   flags.Query,
		Config:  cfg,
		Stdout:  os.Stdout,
		Logger:  l,
	}, nil
}

// Run starts telemetry, runs the selected command and flushes telemetry.
func (g *Globals) Run(ctx context.Context, run func(binds ...any) error) error {
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		Enabled:     g.Config.Telemetry.Enabled,
		ServiceName: "internportal",
		Version:     g.Version,
		SampleRatio: g.Config.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise telemetry: %w", err)
	}

	runErr := run(g)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		g.Logger.Warn().Err(err).Msg("failed to flush telemetry")
	}

	return runErr
}

// Portal returns the portal services with the stored session restored. Later
// session changes are written back to the session file.
func (g *Globals) Portal() (*portal.Portal, *credentials.Store, error) {
	dir, err := g.Config.Session.SessionDir()
	if err != nil {
		return nil, nil, err
	}

	store, err := credentials.NewStore(dir)
	if err != nil {
		return nil, nil, err
	}

	state := session.NewState()
	if err := store.Attach(state); err != nil {
		return nil, nil, fmt.Errorf("failed to restore session: %w", err)
	}

	c, err := client.New(g.Config.API.ClientConfig(g.Debug), state, client.WithLogger(g.Logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}

	return portal.New(c), store, nil
}

// SignedIn is like Portal but fails when there is no stored session.
func (g *Globals) SignedIn() (*portal.Portal, error) {
	p, _, err := g.Portal()
	if err != nil {
		return nil, err
	}
	if p.State().Session() == nil {
		return nil, fmt.Errorf("%w, run `portal login` first", credentials.ErrNoSession)
	}
	return p, nil
}

// Print writes v as JSON filtered by --query, or with table when no query is
// set and table is not nil.
func (g *Globals) Print(v any, table func(w io.Writer)) error {
	if g.Query == "" && table != nil {
		tw := tabwriter.NewWriter(g.Stdout, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
	return writeJSON(g.Stdout, v, g.Query)
}

// writeJSON encodes v as indented JSON. A non-empty query is evaluated against
// the JSON form of v first.
func writeJSON(w io.Writer, v any, query string) error {
	if query != "" {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}

		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to decode output: %w", err)
		}

		v, err = jmespath.Search(query, generic)
		if err != nil {
			return fmt.Errorf("failed to evaluate query: %w", err)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
