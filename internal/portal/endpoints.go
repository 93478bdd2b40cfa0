package portal

import (
	"net/url"
	"strings"

	"github.com/wolfeidau/internportal/internal/models"
)

// Portal API endpoints.
const (
	PathLogin             = "/api/v1/auth/login"
	PathLogout            = "/api/v1/auth/logout"
	PathMe                = "/api/v1/auth/me"
	PathUsers             = "/api/v1/users"
	PathCommissionMembers = "/api/v1/commission-members"
	PathDepartments       = "/api/v1/departments"
	PathApplications      = "/api/v1/internship-applications"
	PathMyApplications    = PathApplications + "/my"
	PathTopics            = "/api/v1/internships/topics"
	PathUnreadCount       = "/api/v1/notifications/unread-count"
	PathMarkAllRead       = "/api/v1/notifications/mark-all-read"
	pathNotifications     = "/api/v1/notifications"
)

// resourcePath builds base/{id}[/suffix...] with id escaped as a single segment.
func resourcePath(base string, id models.ID, suffix ...string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(id.String()))
	for _, s := range suffix {
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}
