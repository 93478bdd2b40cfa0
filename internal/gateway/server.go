// Package gateway serves the portal to browsers. It keeps portal sessions on
// the server behind an opaque cookie, relays API calls with the session token
// attached and guards page routes with the access gate.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/internportal/internal/auth"
	"github.com/wolfeidau/internportal/internal/client"
	httpmiddleware "github.com/wolfeidau/internportal/internal/http"
	"github.com/wolfeidau/internportal/internal/session"
	"github.com/wolfeidau/internportal/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	CookieName = "portal_session"

	PathLogin  = "/auth/login"
	PathLogout = "/auth/logout"
	PathMe     = "/auth/me"
	PathHealth = "/healthz"

	defaultSessionTTL = 8 * time.Hour
	sweepInterval     = time.Minute
	maxLoginBodyBytes = 64 << 10
)

// Config configures the gateway.
type Config struct {
	Addr string
	// StaticDir holds the browser application. Unknown paths fall back to its
	// index.html.
	StaticDir string
	// Upstream is the portal API base URL requests under /api/v1 are relayed to.
	Upstream       *url.URL
	Routes         *auth.RouteTable
	SessionTTL     time.Duration
	CookieSecure   bool
	AllowedOrigins []string
}

// Server is the browser gateway.
type Server struct {
	cfg     Config
	authn   Authenticator
	store   SessionStore
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

type recordContextKey struct{}

// NewServer creates a gateway.
func NewServer(cfg Config, authn Authenticator, store SessionStore, logger zerolog.Logger) (*Server, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("upstream portal url is required")
	}
	if authn == nil || store == nil {
		return nil, errors.New("authenticator and session store are required")
	}
	if cfg.Routes == nil {
		cfg.Routes = auth.DefaultRoutes()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return &Server{
		cfg:     cfg,
		authn:   authn,
		store:   store,
		logger:  logger,
		metrics: telemetry.GetMetrics(),
	}, nil
}

// Handler returns the complete gateway handler.
func (s *Server) Handler() http.Handler {
	// API routes get CORS, everything else gets CSRF protection. Cookie
	// authenticated API calls are checked by the relay itself.
	protection := csrf.New()
	for _, origin := range s.cfg.AllowedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			s.logger.Warn().Err(err).Str("origin", origin).Msg("ignoring invalid trusted origin")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, s.handleLogin)
	mux.HandleFunc("POST "+PathLogout, s.handleLogout)
	mux.HandleFunc("GET "+PathMe, s.handleMe)
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.Handle(client.APIPrefix+"/", s.apiHandler(protection.Handler))
	mux.HandleFunc("/api/", handleUnknownAPI)
	mux.Handle("/", auth.Middleware(s.cfg.Routes, auth.SnapshotProviderFunc(s.snapshot))(s.staticHandler()))

	protected := protection.Handler(mux)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			mux.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})

	return httpmiddleware.Chain(gzhttp.GzipHandler(handler),
		httpmiddleware.RequestIDMiddleware(),
		httpmiddleware.ClientIPMiddleware(),
		httpmiddleware.LoggingMiddleware(s.logger),
	)
}

// Run serves the gateway until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", s.cfg.Addr).Str("upstream", s.cfg.Upstream.Redacted()).Msg("starting gateway")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		s.logger.Info().Msg("shutting down gateway")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to delete expired sessions")
				continue
			}
			if n > 0 {
				s.metrics.GatewaySessionsActive.Add(ctx, -int64(n))
				s.logger.Debug().Int("count", n).Msg("deleted expired sessions")
			}
		}
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type loginResponse struct {
	User      any       `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)
	isJSON := isJSONRequest(r)

	req, err := readLogin(w, r, isJSON)
	if err != nil || req.Username == "" || req.Password == "" {
		s.loginFailed(w, r, isJSON, req.Next, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	snap, err := s.authn.Login(ctx, req.Username, req.Password)
	if err != nil {
		log.Info().Err(err).Str("kind", client.KindOf(err).String()).Msg("portal login failed")
		status, code, message := loginError(err)
		s.loginFailed(w, r, isJSON, req.Next, status, code, message)
		return
	}

	if !snap.Authenticated() {
		log.Warn().Msg("portal login returned no profile")
		s.loginFailed(w, r, isJSON, req.Next, http.StatusBadGateway, "login_failed", "login failed")
		return
	}

	rec, err := NewRecord(snap, httpmiddleware.ClientIPFromContext(ctx), s.cfg.SessionTTL)
	if err == nil {
		err = s.store.Create(ctx, rec)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to store gateway session")
		s.loginFailed(w, r, isJSON, req.Next, http.StatusInternalServerError, "session_error", "failed to create session")
		return
	}

	s.metrics.GatewayLoginsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	s.metrics.GatewaySessionsActive.Add(ctx, 1)
	log.Info().Str("user_id", rec.User.ID.String()).Str("role", string(rec.User.Role)).Msg("user signed in")

	http.SetCookie(w, s.sessionCookie(rec))

	if !isJSON {
		http.Redirect(w, r, auth.SafeNext(req.Next), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: rec.User, ExpiresAt: rec.ExpiresAt})
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, isJSON bool, next string, status int, code, message string) {
	s.metrics.GatewayLoginsTotal.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", code)))

	if !isJSON {
		q := url.Values{"error": {code}}
		if next = auth.SafeNext(next); next != "/" {
			q.Set("next", next)
		}
		http.Redirect(w, r, auth.LoginPath+"?"+q.Encode(), http.StatusSeeOther)
		return
	}
	writeError(w, status, code, message)
}

func loginError(err error) (int, string, string) {
	switch client.KindOf(err) {
	case client.KindUnauthorized, client.KindBadRequest, client.KindForbidden:
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case client.KindNetwork, client.KindServerError:
		return http.StatusBadGateway, "upstream_unavailable", "portal is unavailable, please try again later"
	default:
		return http.StatusBadGateway, "login_failed", "login failed"
	}
}

func readLogin(w http.ResponseWriter, r *http.Request, isJSON bool) (loginRequest, error) {
	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)

	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("decode login request: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("parse login form: %w", err)
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	req.Next = r.Form.Get("next")
	return req, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	if rec, err := s.record(r); err == nil {
		if err := s.authn.Logout(ctx, rec.Snapshot()); err != nil {
			log.Warn().Err(err).Msg("portal logout failed")
		}
		s.deleteRecord(ctx, rec.ID)
		log.Info().Str("session_created", rec.CreatedAt.Format(time.RFC3339)).Msg("user signed out")
	}

	http.SetCookie(w, s.clearCookie())

	if !isJSONRequest(r) && auth.IsBrowserRequest(r) {
		http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := s.record(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication_required", "authentication required")
		return
	}

	if r.URL.Query().Get("refresh") != "" {
		user, err := s.authn.Profile(ctx, rec.Session)
		switch {
		case client.IsKind(err, client.KindUnauthorized):
			s.deleteRecord(ctx, rec.ID)
			http.SetCookie(w, s.clearCookie())
			writeError(w, http.StatusUnauthorized, "authentication_required", "authentication required")
			return
		case err != nil:
			zerolog.Ctx(ctx).Warn().Err(err).Msg("profile refresh failed")
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "portal is unavailable, please try again later")
			return
		}

		rec.User = user
		if err := s.store.Create(ctx, rec); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to update gateway session")
		}
	}

	writeJSON(w, http.StatusOK, rec.User)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("session store health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apiHandler relays /api/v1/ requests to the portal API. A bearer token sent
// by the caller passes through untouched, otherwise the session token is
// attached. Requests authenticated by the session cookie must pass the
// cross-origin check for unsafe methods.
func (s *Server) apiHandler(crossOrigin func(http.Handler) http.Handler) http.Handler {
	upstream := s.cfg.Upstream

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rest := strings.TrimPrefix(pr.In.URL.Path, client.APIPrefix)
			pr.Out.URL = upstream.JoinPath(rest)
			pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			pr.Out.Host = upstream.Host
			pr.Out.Header.Del("Cookie")
			pr.SetXForwarded()

			if rec, ok := pr.In.Context().Value(recordContextKey{}).(*Record); ok && rec.Session != nil {
				rec.Session.Token().SetAuthHeader(pr.Out)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode != http.StatusUnauthorized {
				return nil
			}
			rec, ok := resp.Request.Context().Value(recordContextKey{}).(*Record)
			if !ok {
				return nil
			}

			zerolog.Ctx(resp.Request.Context()).Info().Str("path", resp.Request.URL.Path).Msg("portal rejected session, signing out")
			s.deleteRecord(resp.Request.Context(), rec.ID)
			s.metrics.SessionInvalidations.Add(resp.Request.Context(), 1)
			resp.Header.Add("Set-Cookie", s.clearCookie().String())
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("portal api relay failed")
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "portal is unavailable, please try again later")
		},
	}

	guarded := crossOrigin(proxy)

	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.BearerToken(r) != "" {
			proxy.ServeHTTP(w, r)
			return
		}

		rec, err := s.record(r)
		if err != nil {
			proxy.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), recordContextKey{}, rec))
		guarded.ServeHTTP(w, r)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", httpmiddleware.HeaderRequestID, "X-Requested-With"},
		ExposedHeaders:   []string{httpmiddleware.HeaderRequestID},
		AllowCredentials: true,
	}).Handler(relay)
}

// handleUnknownAPI answers API paths outside the relayed API version.
func handleUnknownAPI(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "unknown API path")
}

// staticHandler serves the browser application. Paths without a file fall
// back to index.html so client side routes load the application shell.
func (s *Server) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.cfg.StaticDir))
	index := filepath.Join(s.cfg.StaticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(s.cfg.StaticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/assets/") {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}

func (s *Server) snapshot(r *http.Request) session.Snapshot {
	rec, err := s.record(r)
	if err != nil {
		return session.Snapshot{}
	}
	return rec.Snapshot()
}

// record returns the stored session named by the request cookie.
func (s *Server) record(r *http.Request) (*Record, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrSessionNotFound
	}

	rec, err := s.store.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.deleteRecord(r.Context(), cookie.Value)
		} else if !errors.Is(err, ErrSessionNotFound) {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to load gateway session")
		}
		return nil, err
	}
	return rec, nil
}

func (s *Server) deleteRecord(ctx context.Context, id string) {
	err := s.store.Delete(ctx, id)
	switch {
	case err == nil:
		s.metrics.GatewaySessionsActive.Add(ctx, -1)
	case !errors.Is(err, ErrSessionNotFound):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to delete gateway session")
	}
}

func (s *Server) sessionCookie(rec *Record) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(rec.ExpiresAt).Seconds()),
	}
}

func (s *Server) clearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF.
func isAPIRoute(p string) bool {
	return strings.HasPrefix(p, "/api/")
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   message,
		"code":    code,
		"message": message,
	})
}
