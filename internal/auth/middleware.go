package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
	"github.com/wolfeidau/internportal/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// SnapshotProvider looks up the session state of the caller making r.
type SnapshotProvider interface {
	Snapshot(r *http.Request) session.Snapshot
}

// SnapshotProviderFunc adapts a function to SnapshotProvider.
type SnapshotProviderFunc func(r *http.Request) session.Snapshot

func (f SnapshotProviderFunc) Snapshot(r *http.Request) session.Snapshot {
	return f(r)
}

type contextKey int

const (
	userContextKey contextKey = iota
)

// WithUser stores the authorized user in ctx.
func WithUser(ctx context.Context, user *models.CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user authorized by Middleware, or nil.
func UserFromContext(ctx context.Context) *models.CurrentUser {
	user, _ := ctx.Value(userContextKey).(*models.CurrentUser)
	return user
}

// Middleware enforces the route table on every request.
//
// Browser requests are redirected to the login or unauthorized page. API
// callers get a JSON 401 or 403. A pending decision answers 503 with
// Retry-After so the caller tries again once the profile is resolved.
func Middleware(routes *RouteTable, provider SnapshotProvider) func(http.Handler) http.Handler {
	decisions := telemetry.GetMetrics().GatewayDecisionsTotal

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routes.Lookup(r.URL.Path)
			if route.Public {
				next.ServeHTTP(w, r)
				return
			}

			requested := r.URL.RequestURI()
			snap := provider.Snapshot(r)
			decision := Check(snap, route.Policy(), requested)

			decisions.Add(r.Context(), 1, metric.WithAttributes(
				attribute.String("outcome", decision.Outcome.String()),
				attribute.String("route", route.Path),
			))

			zerolog.Ctx(r.Context()).Debug().
				Str("route", route.Path).
				Str("outcome", decision.Outcome.String()).
				Msg("access decision")

			switch decision.Outcome {
			case Render:
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), snap.User)))
			case Pending:
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "session_loading", "session is still loading")
			case RedirectToLogin:
				if IsBrowserRequest(r) {
					http.Redirect(w, r, LoginURL(decision.Next), http.StatusFound)
					return
				}
				writeError(w, http.StatusUnauthorized, "authentication_required", "authentication required")
			default:
				if IsBrowserRequest(r) {
					http.Redirect(w, r, UnauthorizedPath, http.StatusFound)
					return
				}
				writeError(w, http.StatusForbidden, "insufficient_permissions", "insufficient permissions")
			}
		})
	}
}

// LoginURL returns the login page URL that returns to next after signing in.
func LoginURL(next string) string {
	next = SafeNext(next)
	if next == "/" {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"next": {next}}.Encode()
}

// SafeNext returns next when it is a local path, otherwise "/".
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// IsBrowserRequest reports whether r comes from a browser navigation rather
// than an API caller.
func IsBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return false
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"code":    code,
		"message": message,
	})
}
