package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type fakePortal struct {
	mu       sync.Mutex
	requests []recorded
	mux      *http.ServeMux
}

func newFakePortal(t *testing.T) (*fakePortal, *Portal) {
	t.Helper()

	f := &fakePortal{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = srv.URL + "/api/v1"
	c, err := client.New(cfg, session.NewState())
	require.NoError(t, err)

	return f, New(c)
}

func (f *fakePortal) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakePortal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAuth_LoginResolvesProfile(t *testing.T) {
	f, p := newFakePortal(t)

	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"accessToken": "tok-1"}})
	})
	f.mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{
			"id": 42, "role": "COMMISSION_MEMBER", "permissions": []string{"applications:review"},
		}})
	})

	user, err := p.Auth.Login(context.Background(), "ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.ID("42"), user.ID)
	assert.Equal(t, models.RoleCommissionMember, user.Role)

	snap := p.State().Current()
	require.True(t, snap.Authenticated())
	assert.Equal(t, "tok-1", snap.Session.AccessToken)
	assert.Equal(t, "Bearer tok-1", f.last().Auth)

	f.mu.Lock()
	login := f.requests[0]
	f.mu.Unlock()
	assert.JSONEq(t, `{"username":"ada","password":"secret"}`, login.Body)
	assert.Empty(t, login.Auth)
}

func TestAuth_LoginWithEmbeddedUser(t *testing.T) {
	f, p := newFakePortal(t)

	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken": "tok-2",
			"user":        map[string]any{"id": "s-1", "role": "STUDENT"},
		})
	})

	user, err := p.Auth.Login(context.Background(), "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, 1, f.count())
}

func TestAuth_LoginFailures(t *testing.T) {
	tests := []struct {
		name        string
		loginStatus int
		loginBody   any
		meStatus    int
		kind        client.Kind
		message     string
	}{
		{
			name:        "bad credentials",
			loginStatus: http.StatusBadRequest,
			loginBody:   map[string]string{"message": "invalid username or password"},
			kind:        client.KindBadRequest,
			message:     "invalid username or password",
		},
		{
			name:        "profile rejected",
			loginStatus: http.StatusOK,
			loginBody:   map[string]any{"result": map[string]string{"accessToken": "tok"}},
			meStatus:    http.StatusUnauthorized,
			kind:        client.KindUnauthorized,
			message:     client.MessageUnauthorized,
		},
		{
			name:        "profile server error",
			loginStatus: http.StatusOK,
			loginBody:   map[string]any{"result": map[string]string{"accessToken": "tok"}},
			meStatus:    http.StatusInternalServerError,
			kind:        client.KindServerError,
			message:     "resolve profile: " + client.MessageServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, p := newFakePortal(t)
			f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.loginStatus, tt.loginBody)
			})
			f.mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.meStatus, map[string]string{})
			})

			_, err := p.Auth.Login(context.Background(), "ada", "wrong")
			require.Error(t, err)
			assert.Equal(t, tt.kind, client.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
			assert.Nil(t, p.State().Session())
		})
	}
}

func TestAuth_LoginWithoutToken(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{}})
	})

	_, err := p.Auth.Login(context.Background(), "ada", "pw")
	require.ErrorIs(t, err, models.ErrEmptyAccessToken)
	assert.Nil(t, p.State().Session())
}

func TestAuth_FailedLoginKeepsStoredSession(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	sess, err := models.NewSession("still-valid", nil)
	require.NoError(t, err)
	p.State().Login(sess, &models.CurrentUser{ID: "1", Role: models.RoleStudent})

	var changes []session.Reason
	p.State().OnChange(func(reason session.Reason, _ session.Snapshot) {
		changes = append(changes, reason)
	})

	_, err = p.Auth.Login(context.Background(), "ada", "wrong")
	require.True(t, client.IsKind(err, client.KindUnauthorized))

	assert.Empty(t, f.last().Auth)
	assert.Same(t, sess, p.State().Session())
	assert.True(t, p.State().Current().Authenticated())
	assert.Empty(t, changes)
}

func TestAuth_LoginReplacesStoredSession(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken": "fresh",
			"user":        map[string]any{"id": "2", "role": "TEACHER"},
		})
	})

	old, err := models.NewSession("old", nil)
	require.NoError(t, err)
	p.State().Login(old, &models.CurrentUser{ID: "1", Role: models.RoleStudent})

	user, err := p.Auth.Login(context.Background(), "tea", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.Empty(t, f.last().Auth)
	assert.Equal(t, "fresh", p.State().Session().AccessToken)
}

func TestAuth_LogoutAlwaysDestroysSession(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	sess, err := models.NewSession("tok", nil)
	require.NoError(t, err)
	p.State().Login(sess, &models.CurrentUser{ID: "1"})

	err = p.Auth.Logout(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsKind(err, client.KindServerError))
	assert.Nil(t, p.State().Session())
	assert.Equal(t, "Bearer tok", f.last().Auth)
}

func TestAuth_LogoutWithoutSessionIsNoop(t *testing.T) {
	f, p := newFakePortal(t)
	require.NoError(t, p.Auth.Logout(context.Background()))
	assert.Zero(t, f.count())
}

func TestServices_Endpoints(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": nil})
	})

	ctx := context.Background()
	tests := []struct {
		name   string
		call   func() error
		method string
		path   string
		query  string
	}{
		{"users list", func() error { _, err := p.Users.List(ctx, models.RoleStudent); return err }, "GET", "/api/v1/users", "role=STUDENT"},
		{"users get", func() error { _, err := p.Users.Get(ctx, "7"); return err }, "GET", "/api/v1/users/7", ""},
		{"commission list", func() error { _, err := p.Commission.List(ctx, ""); return err }, "GET", "/api/v1/commission-members", ""},
		{"commission add", func() error {
			_, err := p.Commission.Add(ctx, models.CommissionMemberInput{UserID: "3", DepartmentID: "1", Position: models.CommissionPositionChairman})
			return err
		}, "POST", "/api/v1/commission-members", ""},
		{"commission update", func() error { _, err := p.Commission.Update(ctx, "4", models.CommissionMemberInput{}); return err }, "PUT", "/api/v1/commission-members/4", ""},
		{"commission remove", func() error { return p.Commission.Remove(ctx, "4") }, "DELETE", "/api/v1/commission-members/4", ""},
		{"departments list", func() error { _, err := p.Departments.List(ctx); return err }, "GET", "/api/v1/departments", ""},
		{"departments get", func() error { _, err := p.Departments.Get(ctx, "2"); return err }, "GET", "/api/v1/departments/2", ""},
		{"departments create", func() error { _, err := p.Departments.Create(ctx, models.DepartmentInput{Name: "CS"}); return err }, "POST", "/api/v1/departments", ""},
		{"applications list", func() error {
			_, err := p.Applications.List(ctx, ApplicationFilter{Status: models.ApplicationStatusPending})
			return err
		}, "GET", "/api/v1/internship-applications", "status=PENDING"},
		{"applications mine", func() error { _, err := p.Applications.Mine(ctx); return err }, "GET", "/api/v1/internship-applications/my", ""},
		{"applications get", func() error { _, err := p.Applications.Get(ctx, "9"); return err }, "GET", "/api/v1/internship-applications/9", ""},
		{"applications submit", func() error { _, err := p.Applications.Submit(ctx, models.ApplicationInput{CompanyName: "Acme"}); return err }, "POST", "/api/v1/internship-applications", ""},
		{"applications update", func() error { _, err := p.Applications.Update(ctx, "9", models.ApplicationInput{}); return err }, "PUT", "/api/v1/internship-applications/9", ""},
		{"applications status", func() error {
			_, err := p.Applications.SetStatus(ctx, "9", models.StatusChange{Status: models.ApplicationStatusApproved})
			return err
		}, "PUT", "/api/v1/internship-applications/9/status", ""},
		{"applications assign", func() error { _, err := p.Applications.Assign(ctx, "9", "5"); return err }, "PUT", "/api/v1/internship-applications/9/assign", ""},
		{"topics list", func() error { _, err := p.Topics.List(ctx, "1"); return err }, "GET", "/api/v1/internships/topics", "departmentId=1"},
		{"topics get", func() error { _, err := p.Topics.Get(ctx, "8"); return err }, "GET", "/api/v1/internships/topics/8", ""},
		{"topics create", func() error { _, err := p.Topics.Create(ctx, models.TopicInput{Title: "Compilers"}); return err }, "POST", "/api/v1/internships/topics", ""},
		{"topics update", func() error { _, err := p.Topics.Update(ctx, "8", models.TopicInput{}); return err }, "PUT", "/api/v1/internships/topics/8", ""},
		{"topics delete", func() error { return p.Topics.Delete(ctx, "8") }, "DELETE", "/api/v1/internships/topics/8", ""},
		{"notifications unread", func() error { _, err := p.Notifications.UnreadCount(ctx); return err }, "GET", "/api/v1/notifications/unread-count", ""},
		{"notifications read", func() error { return p.Notifications.MarkAsRead(ctx, "11") }, "PUT", "/api/v1/notifications/11/mark-as-read", ""},
		{"notifications read all", func() error { return p.Notifications.MarkAllRead(ctx) }, "PUT", "/api/v1/notifications/mark-all-read", ""},
		{"auth me", func() error { _, err := p.Auth.Me(ctx); return err }, "GET", "/api/v1/auth/me", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if tt.name == "auth me" {
				require.ErrorIs(t, err, ErrEmptyProfile)
			} else {
				require.NoError(t, err)
			}

			got := f.last()
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.query, got.Query)
		})
	}
}

func TestApplications_AssignBody(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("PUT /api/v1/internship-applications/{id}/assign", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{
			"id": r.PathValue("id"), "status": "UNDER_REVIEW", "assigneeId": 5,
		}})
	})

	app, err := p.Applications.Assign(context.Background(), "12", "5")
	require.NoError(t, err)
	assert.Equal(t, models.ID("12"), app.ID)
	assert.Equal(t, models.ID("5"), app.AssigneeID)
	assert.Equal(t, models.ApplicationStatusUnderReview, app.Status)
	assert.JSONEq(t, `{"assigneeId":"5"}`, f.last().Body)
}

func TestNotifications_UnreadCount(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare number in envelope", body: `{"result": 4}`},
		{name: "object in envelope", body: `{"result": {"count": 4}}`},
		{name: "bare object", body: `{"count": 4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, p := newFakePortal(t)
			f.mux.HandleFunc("GET /api/v1/notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			n, err := p.Notifications.UnreadCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 4, n)
		})
	}
}

func TestPortal_UnauthorizedInvalidatesSharedState(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("GET /api/v1/departments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	sess, err := models.NewSession("expired-on-server", nil)
	require.NoError(t, err)
	p.State().Login(sess, &models.CurrentUser{ID: "1"})

	_, err = p.Departments.List(context.Background())
	require.True(t, client.IsKind(err, client.KindUnauthorized))
	assert.False(t, p.State().Current().Authenticated())
}

func TestPortal_WithState(t *testing.T) {
	f, p := newFakePortal(t)
	f.mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "role": "ADMIN"})
	})

	sess, err := models.NewSession("other", nil)
	require.NoError(t, err)
	other := session.NewStateFrom(sess, nil)

	scoped := p.WithState(other)
	snap, err := scoped.Auth.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, snap.User.Role)
	assert.Nil(t, p.State().Session())
	assert.Equal(t, "Bearer other", f.last().Auth)
}
