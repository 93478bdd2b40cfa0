package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/mocks"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
	"go.uber.org/mock/gomock"
)

type upstreamCall struct {
	method        string
	path          string
	query         string
	authorization string
	cookie        string
}

type fakeUpstream struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []upstreamCall
	status int
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, upstreamCall{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.RawQuery,
			authorization: r.Header.Get("Authorization"),
			cookie:        r.Header.Get("Cookie"),
		})
		status := f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	t.Cleanup(f.Close)

	return f
}

func (f *fakeUpstream) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeUpstream) last() upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return upstreamCall{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeUpstream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testGateway struct {
	handler  http.Handler
	authn    *mocks.MockAuthenticator
	store    *MemoryStore
	upstream *fakeUpstream
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>portal</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(static, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "assets", "app.js"), []byte("console.log('portal')"), 0o600))

	upstream := newFakeUpstream(t)
	base, err := url.Parse(upstream.URL + "/api/v1")
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	store := NewMemoryStore()

	srv, err := NewServer(Config{
		StaticDir:      static,
		Upstream:       base,
		AllowedOrigins: []string{"https://portal.example.edu"},
	}, authn, store, zerolog.Nop())
	require.NoError(t, err)

	return &testGateway{
		handler:  srv.Handler(),
		authn:    authn,
		store:    store,
		upstream: upstream,
	}
}

func (g *testGateway) signIn(t *testing.T, role models.Role) *Record {
	t.Helper()

	snap := testSnapshot(t, 0)
	snap.User.Role = role
	rec, err := NewRecord(snap, "", time.Hour)
	require.NoError(t, err)
	require.NoError(t, g.store.Create(context.Background(), rec))

	return rec
}

func (g *testGateway) serve(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, r)
	return w
}

func withCookie(r *http.Request, rec *Record) *http.Request {
	if rec != nil {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: rec.ID})
	}
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", CookieName)
	return nil
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{}, nil, NewMemoryStore(), zerolog.Nop())
	require.Error(t, err)

	_, err = NewServer(Config{Upstream: &url.URL{Scheme: "http", Host: "localhost"}}, nil, NewMemoryStore(), zerolog.Nop())
	require.Error(t, err)
}

func TestLogin_JSON(t *testing.T) {
	g := newTestGateway(t)
	snap := testSnapshot(t, 0)
	g.authn.EXPECT().Login(gomock.Any(), "student", "secret").Return(snap, nil)

	r := httptest.NewRequest(http.MethodPost, PathLogin, strings.NewReader(`{"username":"student","password":"secret"}`))
	r.Header.Set("Content-Type", "application/json")
	w := g.serve(r)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User models.CurrentUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ID("42"), body.User.ID)

	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Positive(t, cookie.MaxAge)

	rec, err := g.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, snap.Session.AccessToken, rec.Session.AccessToken)
	assert.Equal(t, "192.0.2.1", rec.ClientIP)
}

func TestLogin_FormRedirects(t *testing.T) {
	tests := []struct {
		name     string
		next     string
		location string
	}{
		{name: "local next", next: "/applications/review", location: "/applications/review"},
		{name: "no next", next: "", location: "/"},
		{name: "protocol relative next", next: "//evil.example.com", location: "/"},
		{name: "absolute next", next: "https://evil.example.com", location: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			g.authn.EXPECT().Login(gomock.Any(), "chair", "pw").Return(testSnapshot(t, 0), nil)

			form := url.Values{"username": {"chair"}, "password": {"pw"}, "next": {tt.next}}
			r := httptest.NewRequest(http.MethodPost, PathLogin, strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := g.serve(r)

			require.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
			assert.NotEmpty(t, sessionCookie(t, w).Value)
		})
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		loginErr error
		snap     session.Snapshot
		status   int
		code     string
	}{
		{name: "missing password", body: `{"username":"student"}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest, code: "invalid_request"},
		{
			name:     "rejected credentials",
			body:     `{"username":"student","password":"wrong"}`,
			loginErr: &client.APIError{Kind: client.KindUnauthorized, Status: 401, Message: client.MessageUnauthorized},
			status:   http.StatusUnauthorized,
			code:     "invalid_credentials",
		},
		{
			name:     "portal unreachable",
			body:     `{"username":"student","password":"pw"}`,
			loginErr: &client.APIError{Kind: client.KindNetwork, Err: context.DeadlineExceeded},
			status:   http.StatusBadGateway,
			code:     "upstream_unavailable",
		},
		{
			name:   "no profile",
			body:   `{"username":"student","password":"pw"}`,
			snap:   session.Snapshot{Session: &models.Session{AccessToken: "t"}},
			status: http.StatusBadGateway,
			code:   "login_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			if tt.code != "invalid_request" {
				g.authn.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.snap, tt.loginErr)
			}

			r := httptest.NewRequest(http.MethodPost, PathLogin, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := g.serve(r)

			require.Equal(t, tt.status, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogin_FormFailureReturnsToLogin(t *testing.T) {
	g := newTestGateway(t)
	g.authn.EXPECT().Login(gomock.Any(), "student", "wrong").
		Return(session.Snapshot{}, &client.APIError{Kind: client.KindUnauthorized, Status: 401})

	form := url.Values{"username": {"student"}, "password": {"wrong"}, "next": {"/student"}}
	r := httptest.NewRequest(http.MethodPost, PathLogin, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := g.serve(r)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?error=invalid_credentials&next=%2Fstudent", w.Header().Get("Location"))
}

func TestLogin_CrossSiteFormIsRejected(t *testing.T) {
	g := newTestGateway(t)

	form := url.Values{"username": {"student"}, "password": {"pw"}}
	r := httptest.NewRequest(http.MethodPost, PathLogin, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Sec-Fetch-Site", "cross-site")
	w := g.serve(r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPages_AccessDecisions(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		role     models.Role
		accept   string
		status   int
		location string
	}{
		{name: "public login page", path: "/login", status: http.StatusOK},
		{name: "public asset", path: "/assets/app.js", status: http.StatusOK},
		{name: "missing asset", path: "/assets/missing.js", status: http.StatusNotFound},
		{name: "anonymous browser", path: "/admin/users", status: http.StatusFound, location: "/login?next=%2Fadmin%2Fusers"},
		{name: "anonymous xhr", path: "/dashboard", accept: "application/json", status: http.StatusUnauthorized},
		{name: "student on admin page", path: "/admin", role: models.RoleStudent, status: http.StatusFound, location: "/unauthorized"},
		{name: "student on admin page xhr", path: "/admin", role: models.RoleStudent, accept: "application/json", status: http.StatusForbidden},
		{name: "admin on admin page", path: "/admin", role: models.RoleAdmin, status: http.StatusOK},
		{name: "student on student page", path: "/student/applications", role: models.RoleStudent, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)

			var rec *Record
			if tt.role != "" {
				rec = g.signIn(t, tt.role)
			}

			r := withCookie(httptest.NewRequest(http.MethodGet, tt.path, nil), rec)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			w := g.serve(r)

			require.Equal(t, tt.status, w.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, w.Header().Get("Location"))
			}
		})
	}
}

func TestPages_ExpiredSessionRedirectsToLogin(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)

	stored, err := g.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	stored.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, g.store.Create(context.Background(), stored))

	w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, "/student", nil), rec))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fstudent", w.Header().Get("Location"))

	_, err = g.store.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAPIRelay_InjectsSessionToken(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)

	w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, "/api/v1/internships/applications?status=PENDING", nil), rec))
	require.Equal(t, http.StatusOK, w.Code)

	call := g.upstream.last()
	assert.Equal(t, "/api/v1/internships/applications", call.path)
	assert.Equal(t, "status=PENDING", call.query)
	assert.Equal(t, "Bearer "+rec.Session.AccessToken, call.authorization)
	assert.Empty(t, call.cookie)
}

func TestAPIRelay_PassesCallerBearerThrough(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)

	r := withCookie(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), rec)
	r.Header.Set("Authorization", "Bearer caller-token")
	w := g.serve(r)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "Bearer caller-token", g.upstream.last().authorization)
}

func TestAPIRelay_AnonymousRequest(t *testing.T) {
	g := newTestGateway(t)

	w := g.serve(httptest.NewRequest(http.MethodGet, "/api/v1/departments", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, g.upstream.last().authorization)
}

func TestAPIRelay_UnauthorizedDestroysSession(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)
	g.upstream.setStatus(http.StatusUnauthorized)

	w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), rec))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := sessionCookie(t, w)
	assert.Negative(t, cookie.MaxAge)

	_, err := g.store.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAPIRelay_ForbiddenKeepsSession(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)
	g.upstream.setStatus(http.StatusForbidden)

	w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), rec))
	require.Equal(t, http.StatusForbidden, w.Code)

	_, err := g.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
}

func TestAPIRelay_CORS(t *testing.T) {
	g := newTestGateway(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	r.Header.Set("Origin", "https://portal.example.edu")
	r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := g.serve(r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIRelay_CrossOriginCheck(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		site     string
		origin   string
		bearer   bool
		expected int
	}{
		{name: "same origin write", method: http.MethodPost, site: "same-origin", expected: http.StatusOK},
		{name: "non browser write", method: http.MethodPut, expected: http.StatusOK},
		{name: "same site write", method: http.MethodPost, site: "same-site", origin: "https://other.example.edu", expected: http.StatusForbidden},
		{name: "cross site delete", method: http.MethodDelete, site: "cross-site", origin: "https://evil.example.com", expected: http.StatusForbidden},
		{name: "trusted origin write", method: http.MethodPost, site: "cross-site", origin: "https://portal.example.edu", expected: http.StatusOK},
		{name: "cross site read", method: http.MethodGet, site: "cross-site", origin: "https://evil.example.com", expected: http.StatusOK},
		{name: "bearer write", method: http.MethodPost, site: "cross-site", origin: "https://evil.example.com", bearer: true, expected: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			rec := g.signIn(t, models.RoleStudent)

			r := withCookie(httptest.NewRequest(tt.method, "/api/v1/internship-applications", strings.NewReader(`{}`)), rec)
			r.Header.Set("Content-Type", "application/json")
			if tt.site != "" {
				r.Header.Set("Sec-Fetch-Site", tt.site)
			}
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.bearer {
				r.Header.Set("Authorization", "Bearer caller-token")
			}

			w := g.serve(r)
			require.Equal(t, tt.expected, w.Code)

			if tt.expected == http.StatusForbidden {
				assert.Zero(t, g.upstream.count())
				return
			}
			assert.Equal(t, 1, g.upstream.count())
		})
	}
}

func TestAPIRelay_OnlyRelaysCurrentVersion(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)

	for _, path := range []string{"/api/v2/users", "/api/users", "/api/"} {
		w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, path, nil), rec))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), `"code":"not_found"`, path)
	}
	assert.Zero(t, g.upstream.count())

	w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), rec))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/v1/users", g.upstream.last().path)
}

func TestLogout(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleTeacher)
	g.authn.EXPECT().Logout(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, snap session.Snapshot) error {
		assert.Equal(t, rec.Session.AccessToken, snap.Session.AccessToken)
		return nil
	})

	r := withCookie(httptest.NewRequest(http.MethodPost, PathLogout, nil), rec)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	w := g.serve(r)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Negative(t, sessionCookie(t, w).MaxAge)

	_, err := g.store.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogout_PortalFailureStillSignsOut(t *testing.T) {
	g := newTestGateway(t)
	rec := g.signIn(t, models.RoleStudent)
	g.authn.EXPECT().Logout(gomock.Any(), gomock.Any()).
		Return(&client.APIError{Kind: client.KindServerError, Status: 500})

	w := g.serve(withCookie(httptest.NewRequest(http.MethodPost, PathLogout, nil), rec))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	_, err := g.store.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMe(t *testing.T) {
	g := newTestGateway(t)

	r := httptest.NewRequest(http.MethodGet, PathMe, nil)
	r.Header.Set("Accept", "application/json")
	w := g.serve(r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	rec := g.signIn(t, models.RoleCommissionChairman)
	w = g.serve(withCookie(httptest.NewRequest(http.MethodGet, PathMe, nil), rec))
	require.Equal(t, http.StatusOK, w.Code)

	var user models.CurrentUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, models.RoleCommissionChairman, user.Role)
}

func TestMe_Refresh(t *testing.T) {
	t.Run("updates stored profile", func(t *testing.T) {
		g := newTestGateway(t)
		rec := g.signIn(t, models.RoleTeacher)
		g.authn.EXPECT().Profile(gomock.Any(), gomock.Any()).
			Return(&models.CurrentUser{ID: "42", Role: models.RoleCommissionMember}, nil)

		w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, PathMe+"?refresh=1", nil), rec))
		require.Equal(t, http.StatusOK, w.Code)

		stored, err := g.store.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleCommissionMember, stored.User.Role)
	})

	t.Run("rejected session is destroyed", func(t *testing.T) {
		g := newTestGateway(t)
		rec := g.signIn(t, models.RoleTeacher)
		g.authn.EXPECT().Profile(gomock.Any(), gomock.Any()).
			Return(nil, &client.APIError{Kind: client.KindUnauthorized, Status: 401})

		w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, PathMe+"?refresh=1", nil), rec))
		require.Equal(t, http.StatusUnauthorized, w.Code)

		_, err := g.store.Get(context.Background(), rec.ID)
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("upstream failure keeps session", func(t *testing.T) {
		g := newTestGateway(t)
		rec := g.signIn(t, models.RoleTeacher)
		g.authn.EXPECT().Profile(gomock.Any(), gomock.Any()).
			Return(nil, &client.APIError{Kind: client.KindNetwork})

		w := g.serve(withCookie(httptest.NewRequest(http.MethodGet, PathMe+"?refresh=1", nil), rec))
		require.Equal(t, http.StatusBadGateway, w.Code)

		_, err := g.store.Get(context.Background(), rec.ID)
		require.NoError(t, err)
	})
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t)

	w := g.serve(httptest.NewRequest(http.MethodGet, PathHealth, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
