package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
)

type UsersCmd struct {
	List UsersListCmd `cmd:"" help:"List users"`
	Get  UsersGetCmd  `cmd:"" help:"Show a user"`
}

type UsersListCmd struct {
	Role string `help:"Only users with this role (STUDENT, TEACHER, COMMISSION_MEMBER, COMMISSION_CHAIRMAN, ADMIN)"`
}

func (c *UsersListCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	users, err := client.Retry(ctx, client.DefaultRetryAttempts, func(ctx context.Context) ([]models.User, error) {
		return p.Users.List(ctx, models.Role(c.Role))
	})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return globals.Print(users, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tDEPARTMENT")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n", u.ID, u.FirstName, u.LastName, u.Email, u.Role, orDash(u.DepartmentID.String()))
		}
	})
}

type UsersGetCmd struct {
	ID string `arg:"" help:"User ID"`
}

func (c *UsersGetCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	user, err := p.Users.Get(ctx, models.ID(c.ID))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	return globals.Print(user, nil)
}

type CommissionCmd struct {
	List   CommissionListCmd   `cmd:"" help:"List commission members"`
	Get    CommissionGetCmd    `cmd:"" help:"Show a commission member"`
	Add    CommissionAddCmd    `cmd:"" help:"Add a commission member"`
	Update CommissionUpdateCmd `cmd:"" help:"Update a commission member"`
	Remove CommissionRemoveCmd `cmd:"" help:"Remove a commission member"`
}

type CommissionListCmd struct {
	Department string `help:"Only members of this department"`
}

func (c *CommissionListCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	members, err := client.Retry(ctx, client.DefaultRetryAttempts, func(ctx context.Context) ([]models.CommissionMember, error) {
		return p.Commission.List(ctx, models.ID(c.Department))
	})
	if err != nil {
		return fmt.Errorf("failed to list commission members: %w", err)
	}

	return globals.Print(members, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tUSER\tDEPARTMENT\tPOSITION")
		for _, m := range members {
			name := m.UserID.String()
			if m.User != nil {
				name = m.User.FirstName + " " + m.User.LastName
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, name, m.DepartmentID, m.Position)
		}
	})
}

type CommissionGetCmd struct {
	ID string `arg:"" help:"Commission member ID"`
}

func (c *CommissionGetCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	member, err := p.Commission.Get(ctx, models.ID(c.ID))
	if err != nil {
		return fmt.Errorf("failed to get commission member: %w", err)
	}
	return globals.Print(member, nil)
}

// CommissionInputFlags build a commission member from a YAML file and flags.
// Flags win over the file.
type CommissionInputFlags struct {
	File       string `help:"YAML file with the member"`
	User       string `help:"User ID"`
	Department string `help:"Department ID"`
	Position   string `help:"Position (MEMBER or CHAIRMAN)"`
}

func (f CommissionInputFlags) input() (models.CommissionMemberInput, error) {
	var in models.CommissionMemberInput
	if f.File != "" {
		if err := readInput(f.File, nil, &in); err != nil {
			return in, err
		}
	}
	setIf(&in.UserID, models.ID(f.User))
	setIf(&in.DepartmentID, models.ID(f.Department))
	setIf(&in.Position, models.CommissionPosition(strings.ToUpper(f.Position)))

	switch in.Position {
	case "", models.CommissionPositionMember, models.CommissionPositionChairman:
	default:
		return in, fmt.Errorf("invalid position %q, expected MEMBER or CHAIRMAN", in.Position)
	}
	return in, nil
}

type CommissionAddCmd struct {
	CommissionInputFlags `embed:""`
}

func (c *CommissionAddCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}
	if in.UserID == "" || in.DepartmentID == "" {
		return errors.New("user and department are required")
	}
	if in.Position == "" {
		in.Position = models.CommissionPositionMember
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	member, err := p.Commission.Add(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to add commission member: %w", err)
	}
	return globals.Print(member, nil)
}

type CommissionUpdateCmd struct {
	ID                   string `arg:"" help:"Commission member ID"`
	CommissionInputFlags `embed:""`
}

func (c *CommissionUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	member, err := p.Commission.Update(ctx, models.ID(c.ID), in)
	if err != nil {
		return fmt.Errorf("failed to update commission member: %w", err)
	}
	return globals.Print(member, nil)
}

type CommissionRemoveCmd struct {
	ID string `arg:"" help:"Commission member ID"`
}

func (c *CommissionRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	if err := p.Commission.Remove(ctx, models.ID(c.ID)); err != nil {
		return fmt.Errorf("failed to remove commission member: %w", err)
	}

	fmt.Fprintf(globals.Stdout, "Removed commission member %s\n", c.ID)
	return nil
}

type DepartmentsCmd struct {
	List   DepartmentsListCmd   `cmd:"" help:"List departments"`
	Get    DepartmentsGetCmd    `cmd:"" help:"Show a department"`
	Create DepartmentsCreateCmd `cmd:"" help:"Create a department"`
}

type DepartmentsListCmd struct{}

func (c *DepartmentsListCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	departments, err := client.Retry(ctx, client.DefaultRetryAttempts, p.Departments.List)
	if err != nil {
		return fmt.Errorf("failed to list departments: %w", err)
	}

	return globals.Print(departments, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tCODE\tNAME")
		for _, d := range departments {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, orDash(d.Code), d.Name)
		}
	})
}

type DepartmentsGetCmd struct {
	ID string `arg:"" help:"Department ID"`
}

func (c *DepartmentsGetCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	department, err := p.Departments.Get(ctx, models.ID(c.ID))
	if err != nil {
		return fmt.Errorf("failed to get department: %w", err)
	}
	return globals.Print(department, nil)
}

type DepartmentsCreateCmd struct {
	Name string `arg:"" help:"Department name"`
	Code string `help:"Short department code"`
}

func (c *DepartmentsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	department, err := p.Departments.Create(ctx, models.DepartmentInput{Name: c.Name, Code: c.Code})
	if err != nil {
		return fmt.Errorf("failed to create department: %w", err)
	}
	return globals.Print(department, nil)
}

type NotificationsCmd struct {
	Unread  NotificationsUnreadCmd  `cmd:"" help:"Show the number of unread notifications"`
	Read    NotificationsReadCmd    `cmd:"" help:"Mark a notification as read"`
	ReadAll NotificationsReadAllCmd `cmd:"" name:"read-all" help:"Mark all notifications as read"`
}

type NotificationsUnreadCmd struct{}

func (c *NotificationsUnreadCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	count, err := client.Retry(ctx, client.DefaultRetryAttempts, p.Notifications.UnreadCount)
	if err != nil {
		return fmt.Errorf("failed to count notifications: %w", err)
	}

	return globals.Print(models.UnreadCount{Count: count}, func(w io.Writer) {
		fmt.Fprintf(w, "%d unread\n", count)
	})
}

type NotificationsReadCmd struct {
	ID string `arg:"" help:"Notification ID"`
}

func (c *NotificationsReadCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	if err := p.Notifications.MarkAsRead(ctx, models.ID(c.ID)); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

type NotificationsReadAllCmd struct{}

func (c *NotificationsReadAllCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	if err := p.Notifications.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}
