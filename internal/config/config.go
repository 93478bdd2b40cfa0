// Package config loads portal settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/internportal/internal/client"
)

// Config is the portal configuration. Command line flags take precedence over
// these values.
type Config struct {
	// Dev switches logging to the console writer at debug level.
	Dev bool `env:"PORTAL_DEV" envDefault:"false"`

	API       APIConfig     `envPrefix:"PORTAL_"`
	Session   SessionConfig `envPrefix:"PORTAL_SESSION_"`
	Gateway   GatewayConfig `envPrefix:"PORTAL_GATEWAY_"`
	Redis     RedisConfig   `envPrefix:"PORTAL_REDIS_"`
	Telemetry TelemetryConfig
}

// APIConfig configures the portal API client.
type APIConfig struct {
	// BaseURL may be relative, in which case it is resolved against Origin.
	BaseURL  string        `env:"API_URL"   envDefault:"/api/v1"`
	Origin   string        `env:"ORIGIN"    envDefault:"http://localhost:8080"`
	Timeout  time.Duration `env:"TIMEOUT"   envDefault:"15s"`
	Cache    bool          `env:"CACHE"     envDefault:"false"`
	CacheDir string        `env:"CACHE_DIR" envDefault:""`
}

// SessionConfig configures where the CLI keeps its session.
type SessionConfig struct {
	// Dir defaults to ~/.internportal.
	Dir string `env:"DIR" envDefault:""`
}

// GatewayConfig configures the browser gateway.
type GatewayConfig struct {
	Addr       string `env:"ADDR"        envDefault:"localhost:3000"`
	StaticDir  string `env:"STATIC_DIR"  envDefault:"./web"`
	RoutesFile string `env:"ROUTES_FILE" envDefault:""`
	// Store selects the session store, memory or redis.
	Store          string        `env:"STORE"           envDefault:"memory"`
	SessionTTL     time.Duration `env:"SESSION_TTL"     envDefault:"8h"`
	CookieSecure   bool          `env:"COOKIE_SECURE"   envDefault:"false"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"" envSeparator:","`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr      string `env:"ADDR"       envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"   envDefault:""`
	DB        int    `env:"DB"         envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"portal:session:"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `env:"PORTAL_TRACING"            envDefault:"false"`
	SampleRatio float64 `env:"PORTAL_TRACE_SAMPLE_RATIO" envDefault:"1"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	defaultTimeout    = 15 * time.Second
	defaultSessionTTL = 8 * time.Hour
)

// Load reads the given .env files, or ./.env when none are given, and parses
// the environment. Missing .env files are ignored. Variables already set in the
// environment win over .env values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	c.API.Sanitize()
	c.Gateway.Sanitize()
	c.Telemetry.Sanitize()
}

func (a *APIConfig) Sanitize() {
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	if a.BaseURL == "" {
		a.BaseURL = client.APIPrefix
	}
	a.Origin = strings.TrimRight(strings.TrimSpace(a.Origin), "/")
	if a.Timeout <= 0 {
		a.Timeout = defaultTimeout
	}
}

// ClientConfig converts the API settings into a client configuration.
func (a APIConfig) ClientConfig(debug bool) client.Config {
	return client.Config{
		Origin:   a.Origin,
		BaseURL:  a.BaseURL,
		Timeout:  a.Timeout,
		Debug:    debug,
		Cache:    a.Cache,
		CacheDir: a.CacheDir,
	}
}

func (g *GatewayConfig) Sanitize() {
	g.Store = strings.ToLower(strings.TrimSpace(g.Store))
	if g.Store != StoreRedis {
		g.Store = StoreMemory
	}
	if g.SessionTTL <= 0 {
		g.SessionTTL = defaultSessionTTL
	}

	origins := g.AllowedOrigins[:0]
	for _, o := range g.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	g.AllowedOrigins = origins
}

func (t *TelemetryConfig) Sanitize() {
	if t.SampleRatio < 0 {
		t.SampleRatio = 0
	}
	if t.SampleRatio > 1 {
		t.SampleRatio = 1
	}
}

// SessionDir returns the directory holding the CLI session file.
func (s SessionConfig) SessionDir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".internportal"), nil
}
