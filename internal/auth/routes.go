package auth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/wolfeidau/internportal/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidRoutePath   = errors.New("route path must start with /")
	ErrDuplicateRoutePath = errors.New("duplicate route path")
)

// Route attaches an access policy to a path prefix.
type Route struct {
	Path        string        `yaml:"path" json:"path"`
	Public      bool          `yaml:"public,omitempty" json:"public,omitempty"`
	Roles       []models.Role `yaml:"roles,omitempty" json:"roles,omitempty"`
	Permissions []string      `yaml:"permissions,omitempty" json:"permissions,omitempty"`
}

// Policy returns the access policy of the route.
func (r Route) Policy() Policy {
	return Policy{
		AllowedRoles:       r.Roles,
		AllowedPermissions: ParsePermissions(r.Permissions),
	}
}

// RouteTable maps request paths to routes by longest matching path prefix.
// Prefixes match whole segments: /admin matches /admin/users but not
// /administrator.
type RouteTable struct {
	routes []Route
}

// NewRouteTable validates routes and builds a table.
func NewRouteTable(routes ...Route) (*RouteTable, error) {
	seen := make(map[string]struct{}, len(routes))
	table := make([]Route, 0, len(routes))

	for _, route := range routes {
		if !strings.HasPrefix(route.Path, "/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRoutePath, route.Path)
		}
		route.Path = normalizePath(route.Path)
		if _, ok := seen[route.Path]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoutePath, route.Path)
		}
		seen[route.Path] = struct{}{}
		table = append(table, route)
	}

	slices.SortStableFunc(table, func(a, b Route) int {
		return len(b.Path) - len(a.Path)
	})

	return &RouteTable{routes: table}, nil
}

type routeFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads a YAML route table:
//
//	routes:
//	  - path: /admin
//	    roles: [ADMIN]
//	  - path: /login
//	    public: true
func LoadRoutes(r io.Reader) (*RouteTable, error) {
	var file routeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode routes: %w", err)
	}
	return NewRouteTable(file.Routes...)
}

// LoadRoutesFile reads a YAML route table from path.
func LoadRoutesFile(path string) (*RouteTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open routes file: %w", err)
	}
	defer f.Close()

	return LoadRoutes(f)
}

// Match returns the route with the longest path prefix matching requested.
func (t *RouteTable) Match(requested string) (Route, bool) {
	p := normalizePath(stripQuery(requested))
	for _, route := range t.routes {
		if route.Path == "/" || p == route.Path || strings.HasPrefix(p, route.Path+"/") {
			return route, true
		}
	}
	return Route{}, false
}

// Lookup is Match with a fallback: paths without a route require an
// authenticated caller and nothing else.
func (t *RouteTable) Lookup(requested string) Route {
	if route, ok := t.Match(requested); ok {
		return route
	}
	return Route{Path: normalizePath(stripQuery(requested))}
}

// Routes returns the routes ordered from most to least specific.
func (t *RouteTable) Routes() []Route {
	return slices.Clone(t.routes)
}

// DefaultRoutes is the portal's navigation map.
func DefaultRoutes() *RouteTable {
	table, err := NewRouteTable(
		Route{Path: "/login", Public: true},
		Route{Path: "/unauthorized", Public: true},
		Route{Path: "/healthz", Public: true},
		Route{Path: "/assets", Public: true},
		Route{Path: "/dashboard"},
		Route{Path: "/profile"},
		Route{Path: "/notifications"},
		Route{Path: "/student", Roles: []models.Role{models.RoleStudent}},
		Route{Path: "/applications"},
		Route{Path: "/applications/new", Roles: []models.Role{models.RoleStudent}},
		Route{Path: "/applications/review", Roles: append(slices.Clone(CommissionRoles), models.RoleAdmin)},
		Route{Path: "/applications/assign", Permissions: []string{string(PermApplicationsAssign)}},
		Route{Path: "/commission", Roles: CommissionRoles},
		Route{Path: "/topics"},
		Route{Path: "/topics/manage", Permissions: []string{string(PermTopicsManage)}},
		Route{Path: "/departments", Roles: []models.Role{models.RoleAdmin}},
		Route{Path: "/users", Roles: []models.Role{models.RoleAdmin}, Permissions: []string{string(PermUsersRead)}},
		Route{Path: "/admin", Roles: []models.Role{models.RoleAdmin}},
	)
	if err != nil {
		panic(err)
	}
	return table
}

func stripQuery(requested string) string {
	if i := strings.IndexAny(requested, "?#"); i >= 0 {
		return requested[:i]
	}
	return requested
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
