package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/config"
	"github.com/wolfeidau/internportal/internal/gateway"
	"github.com/wolfeidau/internportal/internal/portal"
	"github.com/wolfeidau/internportal/internal/session"
)

// ServeCmd runs the browser gateway. Unset flags fall back to the
// PORTAL_GATEWAY_* and PORTAL_REDIS_* environment.
type ServeCmd struct {
	Listen         string        `help:"Listen address"`
	StaticDir      string        `help:"Directory with the browser application"`
	Routes         string        `help:"YAML route table" type:"existingfile"`
	Store          string        `help:"Session store, memory or redis"`
	SessionTTL     time.Duration `help:"Session lifetime when the portal does not set one"`
	CookieSecure   bool          `help:"Only send the session cookie over HTTPS"`
	AllowedOrigins []string      `help:"Origins allowed to call the API relay"`
	RedisAddr      string        `help:"Redis address"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := globals.Logger

	cfg := globals.Config.Gateway
	setIf(&cfg.Addr, s.Listen)
	setIf(&cfg.StaticDir, s.StaticDir)
	setIf(&cfg.RoutesFile, s.Routes)
	setIf(&cfg.Store, s.Store)
	setIf(&cfg.SessionTTL, s.SessionTTL)
	cfg.CookieSecure = cfg.CookieSecure || s.CookieSecure
	if len(s.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = s.AllowedOrigins
	}
	cfg.Sanitize()

	routes, err := loadRoutes(cfg.RoutesFile)
	if err != nil {
		return err
	}

	// Each browser session gets its own State, this one is never signed in.
	c, err := client.New(gatewayClientConfig(globals.Config.API, globals.Debug), session.NewState(), client.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	store, closeStore, err := s.sessionStore(ctx, cfg, globals.Config.Redis)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := gateway.NewServer(gateway.Config{
		Addr:           cfg.Addr,
		StaticDir:      cfg.StaticDir,
		Upstream:       c.BaseURL(),
		Routes:         routes,
		SessionTTL:     cfg.SessionTTL,
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.AllowedOrigins,
	}, gateway.NewPortalAuthenticator(portal.New(c)), store, log)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	return srv.Run(ctx)
}

// gatewayClientConfig is the client configuration shared by every browser
// session. Response caching stays off because the client serves many users.
func gatewayClientConfig(api config.APIConfig, debug bool) client.Config {
	cfg := api.ClientConfig(debug)
	cfg.Cache = false
	cfg.CacheDir = ""
	return cfg
}

func (s *ServeCmd) sessionStore(ctx context.Context, cfg config.GatewayConfig, redisCfg config.RedisConfig) (gateway.SessionStore, func(), error) {
	if cfg.Store != config.StoreRedis {
		return gateway.NewMemoryStore(), func() {}, nil
	}

	setIf(&redisCfg.Addr, s.RedisAddr)

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	store := gateway.NewRedisStore(rdb, redisCfg.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redisCfg.Addr, err)
	}

	return store, func() { _ = rdb.Close() }, nil
}
