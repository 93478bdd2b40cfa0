package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfeidau/internportal/internal/client"
	"github.com/wolfeidau/internportal/internal/models"
	"github.com/wolfeidau/internportal/internal/portal"
)

type ApplicationsCmd struct {
	List   ApplicationsListCmd   `cmd:"" help:"List applications"`
	Mine   ApplicationsMineCmd   `cmd:"" help:"List your own applications"`
	Get    ApplicationsGetCmd    `cmd:"" help:"Show an application"`
	Submit ApplicationsSubmitCmd `cmd:"" help:"Submit an application"`
	Update ApplicationsUpdateCmd `cmd:"" help:"Update an application"`
	Status ApplicationsStatusCmd `cmd:"" help:"Change the review status of an application"`
	Assign ApplicationsAssignCmd `cmd:"" help:"Assign an application to a commission member"`
}

func printApplications(globals *Globals, apps []models.InternshipApplication) error {
	return globals.Print(apps, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tSTUDENT\tCOMPANY\tSTATUS\tASSIGNEE")
		for _, a := range apps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.StudentID, a.CompanyName, a.Status, orDash(a.AssigneeID.String()))
		}
	})
}

type ApplicationsListCmd struct {
	Status     string `help:"Only applications in this status (PENDING, UNDER_REVIEW, APPROVED, REJECTED)"`
	Assignee   string `help:"Only applications assigned to this commission member"`
	Department string `help:"Only applications of this department"`
}

func (c *ApplicationsListCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	filter := portal.ApplicationFilter{
		Status:       models.ApplicationStatus(strings.ToUpper(c.Status)),
		AssigneeID:   models.ID(c.Assignee),
		DepartmentID: models.ID(c.Department),
	}

	apps, err := client.Retry(ctx, client.DefaultRetryAttempts, func(ctx context.Context) ([]models.InternshipApplication, error) {
		return p.Applications.List(ctx, filter)
	})
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}
	return printApplications(globals, apps)
}

type ApplicationsMineCmd struct{}

func (c *ApplicationsMineCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	apps, err := client.Retry(ctx, client.DefaultRetryAttempts, p.Applications.Mine)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}
	return printApplications(globals, apps)
}

type ApplicationsGetCmd struct {
	ID string `arg:"" help:"Application ID"`
}

func (c *ApplicationsGetCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	app, err := p.Applications.Get(ctx, models.ID(c.ID))
	if err != nil {
		return fmt.Errorf("failed to get application: %w", err)
	}
	return globals.Print(app, nil)
}

// ApplicationInputFlags build an application from a YAML file and flags.
// Flags win over the file.
type ApplicationInputFlags struct {
	File      string `help:"YAML file with the application, - for stdin"`
	Topic     string `help:"Topic ID"`
	Company   string `help:"Company name"`
	Position  string `help:"Position at the company"`
	StartDate string `help:"Start date (YYYY-MM-DD)"`
	EndDate   string `help:"End date (YYYY-MM-DD)"`
	Comment   string `help:"Comment for the commission"`
}

func (f ApplicationInputFlags) input() (models.ApplicationInput, error) {
	var in models.ApplicationInput
	if f.File != "" {
		if err := readInput(f.File, nil, &in); err != nil {
			return in, err
		}
	}
	setIf(&in.TopicID, models.ID(f.Topic))
	setIf(&in.CompanyName, f.Company)
	setIf(&in.Position, f.Position)
	setIf(&in.StartDate, f.StartDate)
	setIf(&in.EndDate, f.EndDate)
	setIf(&in.Comment, f.Comment)
	return in, nil
}

type ApplicationsSubmitCmd struct {
	ApplicationInputFlags `embed:""`
}

func (c *ApplicationsSubmitCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}
	if in.CompanyName == "" {
		return errors.New("company name is required (use --company or --file)")
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	app, err := p.Applications.Submit(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to submit application: %w", err)
	}
	return globals.Print(app, func(w io.Writer) {
		fmt.Fprintf(w, "Submitted application %s (%s)\n", app.ID, app.Status)
	})
}

type ApplicationsUpdateCmd struct {
	ID                    string `arg:"" help:"Application ID"`
	ApplicationInputFlags `embed:""`
}

func (c *ApplicationsUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	app, err := p.Applications.Update(ctx, models.ID(c.ID), in)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return globals.Print(app, nil)
}

type ApplicationsStatusCmd struct {
	ID      string `arg:"" help:"Application ID"`
	Status  string `arg:"" help:"New status" enum:"PENDING,UNDER_REVIEW,APPROVED,REJECTED"`
	Comment string `help:"Comment for the student"`
}

func (c *ApplicationsStatusCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	app, err := p.Applications.SetStatus(ctx, models.ID(c.ID), models.StatusChange{
		Status:  models.ApplicationStatus(c.Status),
		Comment: c.Comment,
	})
	if err != nil {
		return fmt.Errorf("failed to change application status: %w", err)
	}
	return globals.Print(app, func(w io.Writer) {
		fmt.Fprintf(w, "Application %s is now %s\n", app.ID, app.Status)
	})
}

type ApplicationsAssignCmd struct {
	ID       string `arg:"" help:"Application ID"`
	Assignee string `arg:"" help:"Commission member ID"`
}

func (c *ApplicationsAssignCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	app, err := p.Applications.Assign(ctx, models.ID(c.ID), models.ID(c.Assignee))
	if err != nil {
		return fmt.Errorf("failed to assign application: %w", err)
	}
	return globals.Print(app, func(w io.Writer) {
		fmt.Fprintf(w, "Application %s assigned to %s\n", app.ID, app.AssigneeID)
	})
}

type TopicsCmd struct {
	List   TopicsListCmd   `cmd:"" help:"List internship topics"`
	Get    TopicsGetCmd    `cmd:"" help:"Show a topic"`
	Create TopicsCreateCmd `cmd:"" help:"Create a topic"`
	Update TopicsUpdateCmd `cmd:"" help:"Update a topic"`
	Delete TopicsDeleteCmd `cmd:"" help:"Delete a topic"`
}

type TopicsListCmd struct {
	Department string `help:"Only topics of this department"`
}

func (c *TopicsListCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	topics, err := client.Retry(ctx, client.DefaultRetryAttempts, func(ctx context.Context) ([]models.Topic, error) {
		return p.Topics.List(ctx, models.ID(c.Department))
	})
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	return globals.Print(topics, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tTITLE\tDEPARTMENT\tCAPACITY")
		for _, t := range topics {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.ID, t.Title, orDash(t.DepartmentID.String()), t.Capacity)
		}
	})
}

type TopicsGetCmd struct {
	ID string `arg:"" help:"Topic ID"`
}

func (c *TopicsGetCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	topic, err := p.Topics.Get(ctx, models.ID(c.ID))
	if err != nil {
		return fmt.Errorf("failed to get topic: %w", err)
	}
	return globals.Print(topic, nil)
}

// TopicInputFlags build a topic from a YAML file and flags. Flags win over
// the file.
type TopicInputFlags struct {
	File        string `help:"YAML file with the topic, - for stdin"`
	Title       string `help:"Topic title"`
	Description string `help:"Topic description"`
	Department  string `help:"Department ID"`
	Capacity    int    `help:"Number of students the topic can take"`
}

func (f TopicInputFlags) input() (models.TopicInput, error) {
	var in models.TopicInput
	if f.File != "" {
		if err := readInput(f.File, nil, &in); err != nil {
			return in, err
		}
	}
	setIf(&in.Title, f.Title)
	setIf(&in.Description, f.Description)
	setIf(&in.DepartmentID, models.ID(f.Department))
	setIf(&in.Capacity, f.Capacity)
	return in, nil
}

type TopicsCreateCmd struct {
	TopicInputFlags `embed:""`
}

func (c *TopicsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}
	if in.Title == "" {
		return errors.New("title is required (use --title or --file)")
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	topic, err := p.Topics.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return globals.Print(topic, nil)
}

type TopicsUpdateCmd struct {
	ID              string `arg:"" help:"Topic ID"`
	TopicInputFlags `embed:""`
}

func (c *TopicsUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := c.input()
	if err != nil {
		return err
	}

	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	topic, err := p.Topics.Update(ctx, models.ID(c.ID), in)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return globals.Print(topic, nil)
}

type TopicsDeleteCmd struct {
	ID string `arg:"" help:"Topic ID"`
}

func (c *TopicsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := globals.SignedIn()
	if err != nil {
		return err
	}

	if err := p.Topics.Delete(ctx, models.ID(c.ID)); err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}

	fmt.Fprintf(globals.Stdout, "Deleted topic %s\n", c.ID)
	return nil
}
