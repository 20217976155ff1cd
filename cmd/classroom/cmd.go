package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/events"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/session"
	"github.com/noah-isme/gema-classroom/internal/status"
	"github.com/noah-isme/gema-classroom/internal/workflow"
)

var (
	readTokenFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// assignmentAPI is the service layer as the CLI uses it.
type assignmentAPI interface {
	workflow.AssignmentAPI
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
}

// subscribeFunc delivers assignment change events until ctx is done.
type subscribeFunc func(ctx context.Context, handle func(events.AssignmentChanged)) error

type commandLine struct {
	sessions *session.Provider
	api      assignmentAPI
	board    *workflow.Board
	alerter  workflow.Alerter
	out      io.Writer
	location *time.Location
	changes  subscribeFunc
	logger   zerolog.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login [-token TOKEN]                              - sign in; the token is prompted when omitted")
	fmt.Fprintln(cli.out, "  logout                                            - sign out")
	fmt.Fprintln(cli.out, "  whoami                                            - show the signed-in user")
	fmt.Fprintln(cli.out, "  list [-search TERM] [-sort KEY] [-page N]         - list assignments")
	fmt.Fprintln(cli.out, "  show -id ID                                       - show one assignment")
	fmt.Fprintln(cli.out, "  create -title T -due DATE -class ID [-description D] [-status draft|published]")
	fmt.Fprintln(cli.out, "  edit -id ID [-title T] [-due DATE] [-class ID] [-description D] [-status S]")
	fmt.Fprintln(cli.out, "  delete -id ID                                     - delete an assignment")
	fmt.Fprintln(cli.out, "  submit -id ID -link URL [-comments C]             - submit work")
	fmt.Fprintln(cli.out, "  grade -id ID -submission SID [-score N|-clear] [-comment C]")
	fmt.Fprintln(cli.out, "  watch                                             - keep the list on screen and refresh on changes")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "login":
		return cli.login(ctx, args[2:])
	case "logout":
		return cli.logout(ctx)
	case "whoami":
		return cli.whoami()
	case "list":
		return cli.list(ctx, args[2:])
	case "show":
		return cli.show(ctx, args[2:])
	case "create":
		return cli.create(ctx, args[2:])
	case "edit":
		return cli.edit(ctx, args[2:])
	case "delete":
		return cli.delete(ctx, args[2:])
	case "submit":
		return cli.submit(ctx, args[2:])
	case "grade":
		return cli.grade(ctx, args[2:])
	case "watch":
		return cli.watch(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) fail(err error) error {
	cli.alerter.Alert(err.Error())
	return err
}

func (cli *commandLine) login(ctx context.Context, args []string) error {
	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginCmd.SetOutput(cli.out)
	token := loginCmd.String("token", "", "Bearer token issued by the school portal. Prompted when omitted.")
	if err := loginCmd.Parse(args); err != nil {
		return errHelp
	}

	value := strings.TrimSpace(*token)
	if value == "" {
		fmt.Fprint(cli.out, "Enter token:")
		raw, err := readTokenFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return cli.fail(err)
		}
		value = strings.TrimSpace(string(raw))
	}
	if value == "" {
		loginCmd.Usage()
		return errHelp
	}

	previous := cli.sessions.Current()
	if err := cli.sessions.Login(ctx, session.Session{Token: value}); err != nil {
		return cli.fail(err)
	}

	profile, err := cli.api.GetUserProfile(ctx)
	if err != nil {
		cli.restoreSession(ctx, previous)
		return cli.fail(fmt.Errorf("sign in failed, the profile could not be loaded: %w", err))
	}

	current := session.Session{
		Token:    value,
		Username: profile.Name,
		Role:     profile.AuthID.Role.Name,
		UserID:   profile.ID,
	}
	if err := cli.sessions.Login(ctx, current); err != nil {
		return cli.fail(err)
	}

	fmt.Fprintf(cli.out, "Signed in as %s (%s)\n", current.Username, current.RoleValue())
	return nil
}

// restoreSession puts back the session that was active before a failed login.
func (cli *commandLine) restoreSession(ctx context.Context, previous session.Session) {
	var err error
	if previous.Authenticated() {
		err = cli.sessions.Login(ctx, previous)
	} else {
		err = cli.sessions.Logout(ctx)
	}
	if err != nil {
		cli.logger.Warn().Err(err).Msg("failed to roll back session after login error")
	}
}

func (cli *commandLine) logout(ctx context.Context) error {
	if err := cli.sessions.Logout(ctx); err != nil {
		return cli.fail(err)
	}
	fmt.Fprintln(cli.out, "Signed out")
	return nil
}

func (cli *commandLine) whoami() error {
	current := cli.sessions.Current()
	if !current.Authenticated() {
		fmt.Fprintln(cli.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(cli.out, "%s\t%s\t%s\n", current.UserID, current.Username, current.RoleValue())
	return nil
}

func (cli *commandLine) list(ctx context.Context, args []string) error {
	listCmd := flag.NewFlagSet("list", flag.ContinueOnError)
	listCmd.SetOutput(cli.out)
	search := listCmd.String("search", "", "Only assignments whose title matches.")
	sortBy := listCmd.String("sort", "", "Sort key: dueDate, -dueDate, title, createdAt.")
	page := listCmd.Int("page", 1, "Page number.")
	if err := listCmd.Parse(args); err != nil {
		return errHelp
	}

	if err := cli.board.Identify(ctx); err != nil {
		return err
	}
	cli.board.SetQuery(workflow.Query{Search: *search, SortBy: *sortBy, Page: *page})
	if err := cli.board.Load(ctx); err != nil {
		return err
	}

	cli.printRows()
	return nil
}

func (cli *commandLine) show(ctx context.Context, args []string) error {
	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	showCmd.SetOutput(cli.out)
	id := showCmd.String("id", "", "Assignment id.")
	if err := showCmd.Parse(args); err != nil || *id == "" {
		showCmd.Usage()
		return errHelp
	}

	item, err := cli.fetch(ctx, *id)
	if err != nil {
		return err
	}
	cli.board.OpenDetail(item)
	defer cli.board.CloseDetail()

	detail, _ := cli.board.Detail()
	cli.printDetail(detail)
	return nil
}

func (cli *commandLine) create(ctx context.Context, args []string) error {
	createCmd := flag.NewFlagSet("create", flag.ContinueOnError)
	createCmd.SetOutput(cli.out)
	form := workflow.CreateForm{}
	createCmd.StringVar(&form.Title, "title", "", "Assignment title.")
	createCmd.StringVar(&form.Description, "description", "", "Assignment description.")
	createCmd.StringVar(&form.DueDate, "due", "", "Due date, e.g. 2025-04-01T10:00.")
	createCmd.StringVar(&form.ClassID, "class", "", "Class id.")
	statusFlag := createCmd.String("status", string(models.AssignmentStatusDraft), "draft or published.")
	if err := createCmd.Parse(args); err != nil {
		return errHelp
	}
	form.Status = models.AssignmentStatus(*statusFlag)

	if err := cli.board.Identify(ctx); err != nil {
		return err
	}
	cli.board.OpenCreate()
	if err := cli.board.Create(ctx, form); err != nil {
		return err
	}

	fmt.Fprintln(cli.out, "Assignment created")
	cli.printRows()
	return nil
}

func (cli *commandLine) edit(ctx context.Context, args []string) error {
	editCmd := flag.NewFlagSet("edit", flag.ContinueOnError)
	editCmd.SetOutput(cli.out)
	id := editCmd.String("id", "", "Assignment id.")
	title := editCmd.String("title", "", "New title.")
	description := editCmd.String("description", "", "New description.")
	due := editCmd.String("due", "", "New due date.")
	class := editCmd.String("class", "", "New class id.")
	statusFlag := editCmd.String("status", "", "draft or published.")
	if err := editCmd.Parse(args); err != nil || *id == "" {
		editCmd.Usage()
		return errHelp
	}

	item, err := cli.fetch(ctx, *id)
	if err != nil {
		return err
	}

	var parseErr error
	editCmd.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			item.Title = *title
		case "description":
			item.Description = *description
		case "class":
			item.ClassID = models.NewRef(*class)
		case "status":
			item.Status = models.AssignmentStatus(*statusFlag)
		case "due":
			item.DueDate, parseErr = dto.ParseDueDate(*due, cli.location)
		}
	})
	if parseErr != nil {
		return cli.fail(parseErr)
	}

	cli.board.OpenEdit(item)
	if err := cli.board.Edit(ctx, item); err != nil {
		return err
	}

	fmt.Fprintln(cli.out, "Assignment updated")
	cli.printRows()
	return nil
}

func (cli *commandLine) delete(ctx context.Context, args []string) error {
	deleteCmd := flag.NewFlagSet("delete", flag.ContinueOnError)
	deleteCmd.SetOutput(cli.out)
	id := deleteCmd.String("id", "", "Assignment id.")
	if err := deleteCmd.Parse(args); err != nil || *id == "" {
		deleteCmd.Usage()
		return errHelp
	}

	if err := cli.board.Identify(ctx); err != nil {
		return err
	}
	if err := cli.board.Delete(ctx, *id); err != nil {
		return err
	}

	fmt.Fprintln(cli.out, "Assignment deleted")
	return nil
}

func (cli *commandLine) submit(ctx context.Context, args []string) error {
	submitCmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	submitCmd.SetOutput(cli.out)
	id := submitCmd.String("id", "", "Assignment id.")
	form := workflow.SubmitForm{}
	submitCmd.StringVar(&form.Link, "link", "", "Link to the submitted work.")
	submitCmd.StringVar(&form.Comments, "comments", "", "Comments for the teacher.")
	if err := submitCmd.Parse(args); err != nil || *id == "" {
		submitCmd.Usage()
		return errHelp
	}

	item, err := cli.fetch(ctx, *id)
	if err != nil {
		return err
	}
	cli.board.OpenSubmit(item)
	if err := cli.board.Submit(ctx, item.ID, form); err != nil {
		return err
	}

	fmt.Fprintln(cli.out, "Work submitted")
	return nil
}

func (cli *commandLine) grade(ctx context.Context, args []string) error {
	gradeCmd := flag.NewFlagSet("grade", flag.ContinueOnError)
	gradeCmd.SetOutput(cli.out)
	id := gradeCmd.String("id", "", "Assignment id.")
	submissionID := gradeCmd.String("submission", "", "Submission id.")
	score := gradeCmd.String("score", "", "Grade between 0 and 100.")
	clearGrade := gradeCmd.Bool("clear", false, "Remove the grade.")
	comment := gradeCmd.String("comment", "", "Teacher comments.")
	if err := gradeCmd.Parse(args); err != nil || *id == "" || *submissionID == "" {
		gradeCmd.Usage()
		return errHelp
	}

	item, err := cli.fetch(ctx, *id)
	if err != nil {
		return err
	}
	if err := cli.board.OpenGrading(item, *submissionID); err != nil {
		return err
	}
	defer cli.board.CloseGrading()

	switch {
	case *clearGrade:
		cli.board.SetGrade(nil)
	case *score != "":
		value, err := strconv.ParseFloat(strings.TrimSpace(*score), 64)
		if err != nil {
			return cli.fail(fmt.Errorf("invalid score %q", *score))
		}
		cli.board.SetGrade(&value)
	}
	gradeCmd.Visit(func(f *flag.Flag) {
		if f.Name == "comment" {
			cli.board.SetTeacherComments(*comment)
		}
	})

	if err := cli.board.SaveGrading(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cli.out, "Submission graded")
	return nil
}

// watch keeps the list on screen, reloading on assignment events and on session changes made
// by this or any other process.
func (cli *commandLine) watch(ctx context.Context) error {
	if err := cli.board.Mount(ctx); err != nil {
		return err
	}
	cli.printRows()

	reload := make(chan string, 1)
	notify := func(reason string) {
		select {
		case reload <- reason:
		default:
		}
	}

	if cli.changes != nil {
		if err := cli.changes(ctx, func(event events.AssignmentChanged) {
			notify(event.Type)
		}); err != nil {
			return cli.fail(err)
		}
	}

	sessions, cancel := cli.sessions.Subscribe()
	defer cancel()

	go func() {
		if err := cli.sessions.Watch(ctx); err != nil && !errors.Is(err, session.ErrWatchUnsupported) {
			cli.logger.Warn().Err(err).Msg("session watch stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case current, ok := <-sessions:
			if !ok {
				return nil
			}
			if !current.Authenticated() {
				fmt.Fprintln(cli.out, "Signed out")
				return nil
			}
			if err := cli.board.Mount(ctx); err == nil {
				cli.printRows()
			}
		case reason := <-reload:
			cli.logger.Debug().Str("reason", reason).Msg("reloading assignments")
			if err := cli.board.Load(ctx); err == nil {
				cli.printRows()
			}
		}
	}
}

// fetch identifies the viewer and loads one assignment.
func (cli *commandLine) fetch(ctx context.Context, id string) (models.Assignment, error) {
	if err := cli.board.Identify(ctx); err != nil {
		return models.Assignment{}, err
	}
	item, err := cli.api.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, cli.fail(err)
	}
	return item, nil
}

func (cli *commandLine) printRows() {
	rows := cli.board.Rows()
	pagination := cli.board.List().Data.Pagination

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCLASS\tDUE\tSTATUS")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			row.Assignment.ID,
			row.Assignment.Title,
			row.Assignment.ClassID.Label(),
			row.Assignment.DueDate.In(cli.location).Format("2006-01-02 15:04"),
			row.Status,
		)
	}
	_ = w.Flush()
	fmt.Fprintf(cli.out, "page %d of %d (%d assignments)\n", pagination.Page, pagination.TotalPages, pagination.TotalItems)
}

func (cli *commandLine) printDetail(item models.Assignment) {
	viewer := cli.board.Viewer()
	fmt.Fprintf(cli.out, "%s\n", item.Title)
	fmt.Fprintf(cli.out, "  id:      %s\n", item.ID)
	fmt.Fprintf(cli.out, "  class:   %s\n", item.ClassID.Label())
	fmt.Fprintf(cli.out, "  due:     %s\n", item.DueDate.In(cli.location).Format("2006-01-02 15:04"))
	fmt.Fprintf(cli.out, "  status:  %s\n", status.Derive(item, viewer, time.Now()))
	fmt.Fprintf(cli.out, "  version: %d\n", item.Version)
	if item.Description != "" {
		fmt.Fprintf(cli.out, "\n%s\n", item.Description)
	}
	if len(item.Submissions) == 0 {
		return
	}

	fmt.Fprintln(cli.out)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMISSION\tSTUDENT\tDATE\tLINK\tGRADE\tCOMMENTS")
	for _, submission := range item.Submissions {
		grade := "-"
		if submission.Grade != nil {
			grade = strconv.FormatFloat(*submission.Grade, 'f', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			submission.ID,
			submission.StudentID.Label(),
			submission.SubmissionDate.In(cli.location).Format("2006-01-02 15:04"),
			submission.Link,
			grade,
			submission.TeacherComments,
		)
	}
	_ = w.Flush()
}
