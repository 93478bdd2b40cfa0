package portal

import (
	"context"
	"encoding/json"

	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
)

// UsersService reads portal accounts.
type UsersService struct{ c *client.Client }

// List returns users, optionally restricted to a role.
func (s *UsersService) List(ctx context.Context, role models.Role) ([]models.User, error) {
	return client.Get[[]models.User](ctx, s.c, PathUsers, client.WithQuery("role", string(role)))
}

func (s *UsersService) Get(ctx context.Context, id models.ID) (*models.User, error) {
	return client.Get[*models.User](ctx, s.c, resourcePath(PathUsers, id))
}

// CommissionService manages department commission membership.
type CommissionService struct{ c *client.Client }

// List returns commission members, optionally for one department.
func (s *CommissionService) List(ctx context.Context, departmentID models.ID) ([]models.CommissionMember, error) {
	return client.Get[[]models.CommissionMember](ctx, s.c, PathCommissionMembers,
		client.WithQuery("departmentId", departmentID.String()))
}

func (s *CommissionService) Get(ctx context.Context, id models.ID) (*models.CommissionMember, error) {
	return client.Get[*models.CommissionMember](ctx, s.c, resourcePath(PathCommissionMembers, id))
}

func (s *CommissionService) Add(ctx context.Context, in models.CommissionMemberInput) (*models.CommissionMember, error) {
	return client.Post[*models.CommissionMember](ctx, s.c, PathCommissionMembers, in)
}

func (s *CommissionService) Update(ctx context.Context, id models.ID, in models.CommissionMemberInput) (*models.CommissionMember, error) {
	return client.Put[*models.CommissionMember](ctx, s.c, resourcePath(PathCommissionMembers, id), in)
}

func (s *CommissionService) Remove(ctx context.Context, id models.ID) error {
	_, err := client.Delete[json.RawMessage](ctx, s.c, resourcePath(PathCommissionMembers, id))
	return err
}

// DepartmentsService reads and creates departments.
type DepartmentsService struct{ c *client.Client }

func (s *DepartmentsService) List(ctx context.Context) ([]models.Department, error) {
	return client.Get[[]models.Department](ctx, s.c, PathDepartments)
}

func (s *DepartmentsService) Get(ctx context.Context, id models.ID) (*models.Department, error) {
	return client.Get[*models.Department](ctx, s.c, resourcePath(PathDepartments, id))
}

func (s *DepartmentsService) Create(ctx context.Context, in models.DepartmentInput) (*models.Department, error) {
	return client.Post[*models.Department](ctx, s.c, PathDepartments, in)
}

// ApplicationFilter narrows an application listing. Zero fields are ignored.
type ApplicationFilter struct {
	Status       models.ApplicationStatus
	AssigneeID   models.ID
	DepartmentID models.ID
}

func (f ApplicationFilter) options() []client.RequestOption {
	return []client.RequestOption{
		client.WithQuery("status", string(f.Status)),
		client.WithQuery("assigneeId", f.AssigneeID.String()),
		client.WithQuery("departmentId", f.DepartmentID.String()),
	}
}

// ApplicationsService covers the internship application workflow.
type ApplicationsService struct{ c *client.Client }

// List returns the applications visible to the caller.
func (s *ApplicationsService) List(ctx context.Context, filter ApplicationFilter) ([]models.InternshipApplication, error) {
	return client.Get[[]models.InternshipApplication](ctx, s.c, PathApplications, filter.options()...)
}

// Mine returns the caller's own applications.
func (s *ApplicationsService) Mine(ctx context.Context) ([]models.InternshipApplication, error) {
	return client.Get[[]models.InternshipApplication](ctx, s.c, PathMyApplications)
}

func (s *ApplicationsService) Get(ctx context.Context, id models.ID) (*models.InternshipApplication, error) {
	return client.Get[*models.InternshipApplication](ctx, s.c, resourcePath(PathApplications, id))
}

func (s *ApplicationsService) Submit(ctx context.Context, in models.ApplicationInput) (*models.InternshipApplication, error) {
	return client.Post[*models.InternshipApplication](ctx, s.c, PathApplications, in)
}

func (s *ApplicationsService) Update(ctx context.Context, id models.ID, in models.ApplicationInput) (*models.InternshipApplication, error) {
	return client.Put[*models.InternshipApplication](ctx, s.c, resourcePath(PathApplications, id), in)
}

// SetStatus moves an application through review.
func (s *ApplicationsService) SetStatus(ctx context.Context, id models.ID, change models.StatusChange) (*models.InternshipApplication, error) {
	return client.Put[*models.InternshipApplication](ctx, s.c, resourcePath(PathApplications, id, "status"), change)
}

// Assign hands an application to a commission member for review.
func (s *ApplicationsService) Assign(ctx context.Context, id, assigneeID models.ID) (*models.InternshipApplication, error) {
	return client.Put[*models.InternshipApplication](ctx, s.c, resourcePath(PathApplications, id, "assign"),
		models.Assignment{AssigneeID: assigneeID})
}

// TopicsService manages internship topics.
type TopicsService struct{ c *client.Client }

func (s *TopicsService) List(ctx context.Context, departmentID models.ID) ([]models.Topic, error) {
	return client.Get[[]models.Topic](ctx, s.c, PathTopics, client.WithQuery("departmentId", departmentID.String()))
}

func (s *TopicsService) Get(ctx context.Context, id models.ID) (*models.Topic, error) {
	return client.Get[*models.Topic](ctx, s.c, resourcePath(PathTopics, id))
}

func (s *TopicsService) Create(ctx context.Context, in models.TopicInput) (*models.Topic, error) {
	return client.Post[*models.Topic](ctx, s.c, PathTopics, in)
}

func (s *TopicsService) Update(ctx context.Context, id models.ID, in models.TopicInput) (*models.Topic, error) {
	return client.Put[*models.Topic](ctx, s.c, resourcePath(PathTopics, id), in)
}

func (s *TopicsService) Delete(ctx context.Context, id models.ID) error {
	_, err := client.Delete[json.RawMessage](ctx, s.c, resourcePath(PathTopics, id))
	return err
}

// NotificationsService reads and acknowledges notifications.
type NotificationsService struct{ c *client.Client }

func (s *NotificationsService) UnreadCount(ctx context.Context) (int, error) {
	count, err := client.Get[models.UnreadCount](ctx, s.c, PathUnreadCount)
	if err != nil {
		return 0, err
	}
	return count.Count, nil
}

func (s *NotificationsService) MarkAsRead(ctx context.Context, id models.ID) error {
	_, err := client.Put[json.RawMessage](ctx, s.c, resourcePath(pathNotifications, id, "mark-as-read"), nil)
	return err
}

func (s *NotificationsService) MarkAllRead(ctx context.Context) error {
	_, err := client.Put[json.RawMessage](ctx, s.c, PathMarkAllRead, nil)
	return err
}
