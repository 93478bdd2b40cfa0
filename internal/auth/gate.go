// Package auth decides whether a caller may open a protected portal route.
package auth

import (
	"slices"

	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/session"
)

// Policy is the access requirement of a protected route.
//
// An empty AllowedRoles places no role restriction. An empty
// AllowedPermissions places no permission restriction. When set, the caller
// needs at least one of the listed permissions.
type Policy struct {
	AllowedRoles       []models.Role
	AllowedPermissions []Permission
}

// Outcome is the result of an access check.
type Outcome int

const (
	Pending Outcome = iota
	Render
	RedirectToLogin
	RedirectToUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Render:
		return "render"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToUnauthorized:
		return "redirect_to_unauthorized"
	default:
		return "unknown"
	}
}

// Decision is what the caller should do with a navigation attempt.
type Decision struct {
	Outcome Outcome
	// Next is the originally requested location, set for RedirectToLogin so
	// the caller can return there after signing in.
	Next string
}

// Evaluate decides access for one navigation attempt. The first matching rule
// wins:
//
//  1. loading is true: Pending
//  2. no usable session or no user: RedirectToLogin
//  3. role not in a non-empty AllowedRoles: RedirectToUnauthorized
//  4. no permission in a non-empty AllowedPermissions: RedirectToUnauthorized
//  5. otherwise: Render
//
// An expired session counts as no session.
func Evaluate(sess *models.Session, user *models.CurrentUser, loading bool, policy Policy, requested string) Decision {
	if loading {
		return Decision{Outcome: Pending}
	}

	if sess == nil || sess.IsExpired() || user == nil {
		return Decision{Outcome: RedirectToLogin, Next: requested}
	}

	if len(policy.AllowedRoles) > 0 && !slices.Contains(policy.AllowedRoles, user.Role) {
		return Decision{Outcome: RedirectToUnauthorized}
	}

	if len(policy.AllowedPermissions) > 0 && !hasAnyPermission(user, policy.AllowedPermissions) {
		return Decision{Outcome: RedirectToUnauthorized}
	}

	return Decision{Outcome: Render}
}

// Check evaluates a snapshot of the shared session state.
func Check(snap session.Snapshot, policy Policy, requested string) Decision {
	return Evaluate(snap.Session, snap.User, snap.Loading, policy, requested)
}

func hasAnyPermission(user *models.CurrentUser, perms []Permission) bool {
	return slices.ContainsFunc(perms, func(p Permission) bool {
		return slices.Contains(user.Permissions, string(p))
	})
}

// Gate evaluates requested locations against a route table and the shared
// session state.
type Gate struct {
	state  *session.State
	routes *RouteTable
}

// NewGate creates a gate. A nil routes uses DefaultRoutes.
func NewGate(state *session.State, routes *RouteTable) *Gate {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Gate{state: state, routes: routes}
}

// Decide evaluates requested, a path with an optional query, with the current
// state. Public routes always render.
func (g *Gate) Decide(requested string) Decision {
	route := g.routes.Lookup(requested)
	if route.Public {
		return Decision{Outcome: Render}
	}
	return Check(g.state.Current(), route.Policy(), requested)
}

// Routes returns the gate's route table.
func (g *Gate) Routes() *RouteTable {
	return g.routes
}
