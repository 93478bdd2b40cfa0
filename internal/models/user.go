package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Role represents a portal authorization role.
// Unknown values returned by the server are preserved as-is.
type Role string

const (
	RoleStudent            Role = "STUDENT"
	RoleTeacher            Role = "TEACHER"
	RoleCommissionMember   Role = "COMMISSION_MEMBER"
	RoleCommissionChairman Role = "COMMISSION_CHAIRMAN"
	RoleAdmin              Role = "ADMIN"
)

// ID is an entity identifier. The portal API returns numeric ids for most
// resources but some are strings, so both forms decode into an ID.
type ID string

// UnmarshalJSON accepts both JSON strings and numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// CurrentUser is the authorization profile of the authenticated caller,
// as returned by the profile endpoint.
type CurrentUser struct {
	ID          ID       `json:"id"`
	Email       string   `json:"email,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasRole reports whether the user holds one of roles.
func (u *CurrentUser) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

// HasAnyPermission reports whether at least one of the user's permissions is in perms.
func (u *CurrentUser) HasAnyPermission(perms ...string) bool {
	if u == nil {
		return false
	}
	return slices.ContainsFunc(u.Permissions, func(p string) bool {
		return slices.Contains(perms, p)
	})
}

// DisplayName returns the user's full name, falling back to email then id.
func (u *CurrentUser) DisplayName() string {
	switch {
	case u.FirstName != "" || u.LastName != "":
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	case u.Email != "":
		return u.Email
	default:
		return u.ID.String()
	}
}
