package auth

import (
	"slices"

	"github.com/wolfeidau/internportal/internal/models"
)

// Permission represents an authorized action
type Permission string

const (
	PermApplicationsSubmit  Permission = "applications:submit"
	PermApplicationsReview  Permission = "applications:review"
	PermApplicationsApprove Permission = "applications:approve"
	PermApplicationsAssign  Permission = "applications:assign"
	PermTopicsManage        Permission = "topics:manage"
	PermDepartmentsManage   Permission = "departments:manage"
	PermCommissionManage    Permission = "commission:manage"
	PermUsersRead           Permission = "users:read"
)

// CommissionRoles are the roles of commission members.
var CommissionRoles = []models.Role{models.RoleCommissionMember, models.RoleCommissionChairman}

// ParsePermissions converts permission names, skipping empty ones.
func ParsePermissions(names []string) []Permission {
	perms := make([]Permission, 0, len(names))
	for _, name := range names {
		if name != "" {
			perms = append(perms, Permission(name))
		}
	}
	return perms
}

// HasPermission reports whether user holds perm.
func HasPermission(user *models.CurrentUser, perm Permission) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.Permissions, string(perm))
}
