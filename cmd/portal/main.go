package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/internportal/cmd/portal/internal/commands"
	"github.com/wolfeidau/internportal/internal/config"
)

var (
	version = "dev"
	cli     struct {
		Login         commands.LoginCmd         `cmd:"" help:"Sign in to the portal"`
		Logout        commands.LogoutCmd        `cmd:"" help:"Sign out and remove the stored session"`
		Whoami        commands.WhoamiCmd        `cmd:"" help:"Show the signed in user"`
		Access        commands.AccessCmd        `cmd:"" help:"Check whether the signed in user may open a page"`
		Users         commands.UsersCmd         `cmd:"" help:"Portal accounts"`
		Commission    commands.CommissionCmd    `cmd:"" help:"Internship commission members"`
		Departments   commands.DepartmentsCmd   `cmd:"" help:"University departments"`
		Applications  commands.ApplicationsCmd  `cmd:"" help:"Internship applications"`
		Topics        commands.TopicsCmd        `cmd:"" help:"Internship topics"`
		Notifications commands.NotificationsCmd `cmd:"" help:"Notifications"`
		Serve         commands.ServeCmd         `cmd:"" help:"Run the browser gateway"`

		Debug      bool          `help:"Enable debug mode." env:"PORTAL_DEBUG"`
		Query      string        `help:"JMESPath expression applied to the JSON output." short:"q"`
		Origin     string        `help:"Portal origin used to resolve a relative API URL." default:"${origin}"`
		APIURL     string        `name:"api-url" help:"Portal API base URL." default:"${api_url}"`
		Timeout    time.Duration `help:"Request timeout." default:"${timeout}"`
		SessionDir string        `help:"Directory holding the stored session." default:"${session_dir}"`
		Tracing    bool          `help:"Export traces and metrics over OTLP." default:"${tracing}"`
		Version    kong.VersionFlag
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("portal"),
		kong.Description("Internship portal command line client."),
		kong.Vars{
			"version":     version,
			"origin":      cfg.API.Origin,
			"api_url":     cfg.API.BaseURL,
			"timeout":     cfg.API.Timeout.String(),
			"session_dir": cfg.Session.Dir,
			"tracing":     fmt.Sprint(cfg.Telemetry.Enabled),
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	globals, err := commands.NewGlobals(cfg, commands.Flags{
		Debug:      cli.Debug,
		Query:      cli.Query,
		Origin:     cli.Origin,
		APIURL:     cli.APIURL,
		Timeout:    cli.Timeout,
		SessionDir: cli.SessionDir,
		Tracing:    cli.Tracing,
	}, version)
	cmd.FatalIfErrorf(err)

	err = globals.Run(ctx, cmd.Run)
	cmd.FatalIfErrorf(err)
}
