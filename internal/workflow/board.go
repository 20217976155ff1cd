// Package workflow holds the state of the assignment screens: the paginated list, the
// independent create/detail/edit/submit/grade dialogs, and their forms.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom/internal/async"
	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/status"
)

// ErrForbidden marks an action the viewer's role does not allow.
var ErrForbidden = errors.New("action not allowed for this role")

// DefaultPageSize is used when the board is built without one.
const DefaultPageSize = 10

// AssignmentAPI is the part of the service layer the board drives.
type AssignmentAPI interface {
	GetUserProfile(ctx context.Context) (dto.ProfileResponse, error)
	ListAssignments(ctx context.Context, query dto.AssignmentQuery) (dto.AssignmentPage, error)
	CreateAssignment(ctx context.Context, authorID string, fields dto.AssignmentFields) (models.Assignment, error)
	UpdateAssignment(ctx context.Context, assignment models.Assignment) (models.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	SubmitAssignment(ctx context.Context, id string, payload dto.SubmissionPayload) (models.Assignment, error)
	GradeSubmission(ctx context.Context, assignmentID, submissionID string, grade dto.GradeRequest) (models.Assignment, error)
}

// Query holds the list parameters.
type Query struct {
	Search   string
	SortBy   string
	Page     int
	PageSize int
}

// Row is one list entry with its derived status.
type Row struct {
	Assignment     models.Assignment
	Status         status.Status
	AllSubmissions bool
}

type dialog struct {
	open     bool
	selected *models.Assignment
}

func (d *dialog) show(item models.Assignment) {
	d.open = true
	d.selected = &item
}

func (d *dialog) hide() {
	d.open = false
	d.selected = nil
}

func (d *dialog) current() (models.Assignment, bool) {
	if !d.open || d.selected == nil {
		return models.Assignment{}, false
	}
	return *d.selected, true
}

// Options configures a Board.
type Options struct {
	PageSize int
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Board is the assignment list/detail state holder. Its methods are safe for concurrent use;
// locks are never held across API calls.
type Board struct {
	api      AssignmentAPI
	alerter  Alerter
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time

	list async.State[dto.AssignmentPage]

	mu        sync.Mutex
	viewer    status.Viewer
	query     Query
	lastError string

	createOpen bool
	detail     dialog
	edit       dialog
	submit     dialog
	grading    *GradingForm
	expanded   map[string]bool
}

// NewBoard builds a board that reports failures through alerter.
func NewBoard(api AssignmentAPI, alerter Alerter, opts Options) *Board {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if alerter == nil {
		alerter = AlertFunc(func(string) {})
	}

	return &Board{
		api:      api,
		alerter:  alerter,
		validate: newValidator(),
		logger:   opts.Logger.With().Str("component", "assignment_board").Logger(),
		now:      now,
		query:    Query{Page: 1, PageSize: pageSize},
		expanded: make(map[string]bool),
	}
}

// Mount identifies the viewer, then loads the first page.
func (b *Board) Mount(ctx context.Context) error {
	if err := b.Identify(ctx); err != nil {
		return err
	}
	return b.Load(ctx)
}

// Identify fetches the signed-in profile to learn the viewer's identity and role.
func (b *Board) Identify(ctx context.Context) error {
	profile, err := b.api.GetUserProfile(ctx)
	if err != nil {
		b.report(err)
		return err
	}

	b.SetViewer(status.Viewer{ID: profile.ID, Role: authz.ParseRole(profile.AuthID.Role.Name)})
	return nil
}

// SetViewer replaces the viewer, e.g. after a session change.
func (b *Board) SetViewer(viewer status.Viewer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewer = viewer
}

// Viewer returns the current viewer.
func (b *Board) Viewer() status.Viewer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewer
}

// Query returns the current list parameters.
func (b *Board) Query() Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// SetQuery replaces the list parameters without loading. Zero page and page size fall back
// to the first page and the current page size.
func (b *Board) SetQuery(query Query) {
	b.mu.Lock()
	defer b.mu.Unlock()
	query.Search = strings.TrimSpace(query.Search)
	query.SortBy = strings.TrimSpace(query.SortBy)
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = b.query.PageSize
	}
	b.query = query
}

// Load fetches the page described by the current query and replaces the list. A response
// that arrives after a newer Load has started is discarded.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	viewer := b.viewer
	query := b.query
	b.mu.Unlock()

	request := dto.AssignmentQuery{
		Action:     authz.ListAction(viewer.Role),
		AuthID:     viewer.ID,
		SortBy:     query.SortBy,
		SearchTerm: query.Search,
		Page:       query.Page,
		PageSize:   query.PageSize,
		Populates:  []string{"classId", "studentId"},
	}

	ticket := b.list.Begin()
	page, err := b.api.ListAssignments(ctx, request)
	if err != nil {
		if b.list.Reject(ticket, err) {
			b.report(err)
		}
		return err
	}

	if !b.list.Resolve(ticket, page) {
		b.logger.Debug().Int("page", query.Page).Msg("discarded stale assignment list")
	}
	return nil
}

// List returns the list state.
func (b *Board) List() async.Snapshot[dto.AssignmentPage] {
	return b.list.Snapshot()
}

// Rows returns the loaded assignments with their status derived at call time.
func (b *Board) Rows() []Row {
	snapshot := b.list.Snapshot()
	now := b.now()

	b.mu.Lock()
	viewer := b.viewer
	b.mu.Unlock()

	rows := make([]Row, 0, len(snapshot.Data.Data))
	for _, assignment := range snapshot.Data.Data {
		rows = append(rows, Row{
			Assignment:     assignment,
			Status:         status.Derive(assignment, viewer, now),
			AllSubmissions: b.ShowingAllSubmissions(assignment.ID),
		})
	}
	return rows
}

// ChangePage loads another page. Pages outside 1..totalPages are ignored and no request is
// made; the return value reports whether a load was issued.
func (b *Board) ChangePage(ctx context.Context, page int) (bool, error) {
	totalPages := b.list.Snapshot().Data.Pagination.TotalPages
	if page < 1 || page > totalPages {
		return false, nil
	}

	b.mu.Lock()
	b.query.Page = page
	b.mu.Unlock()

	return true, b.Load(ctx)
}

// Search sets the search term, returns to the first page and reloads.
func (b *Board) Search(ctx context.Context, term string) error {
	b.mu.Lock()
	b.query.Search = strings.TrimSpace(term)
	b.query.Page = 1
	b.mu.Unlock()
	return b.Load(ctx)
}

// Sort sets the sort key, returns to the first page and reloads.
func (b *Board) Sort(ctx context.Context, sortBy string) error {
	b.mu.Lock()
	b.query.SortBy = strings.TrimSpace(sortBy)
	b.query.Page = 1
	b.mu.Unlock()
	return b.Load(ctx)
}

// OpenCreate shows the create dialog.
func (b *Board) OpenCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createOpen = true
}

// CloseCreate hides the create dialog.
func (b *Board) CloseCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createOpen = false
}

// CreateOpen reports whether the create dialog is visible.
func (b *Board) CreateOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createOpen
}

// OpenDetail shows the detail dialog for item.
func (b *Board) OpenDetail(item models.Assignment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detail.show(item)
}

// CloseDetail hides the detail dialog and forgets its selection.
func (b *Board) CloseDetail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detail.hide()
}

// Detail returns the assignment shown in the detail dialog.
func (b *Board) Detail() (models.Assignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detail.current()
}

// OpenEdit shows the edit dialog for item.
func (b *Board) OpenEdit(item models.Assignment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edit.show(item)
}

// CloseEdit hides the edit dialog and forgets its selection.
func (b *Board) CloseEdit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edit.hide()
}

// Editing returns the assignment shown in the edit dialog.
func (b *Board) Editing() (models.Assignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edit.current()
}

// OpenSubmit shows the submission dialog for item.
func (b *Board) OpenSubmit(item models.Assignment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submit.show(item)
}

// CloseSubmit hides the submission dialog and forgets its selection.
func (b *Board) CloseSubmit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submit.hide()
}

// Submitting returns the assignment shown in the submission dialog.
func (b *Board) Submitting() (models.Assignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submit.current()
}

// ToggleAllSubmissions expands or collapses the full submission list of an assignment.
func (b *Board) ToggleAllSubmissions(assignmentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.expanded[assignmentID] {
		delete(b.expanded, assignmentID)
		return false
	}
	b.expanded[assignmentID] = true
	return true
}

// ShowingAllSubmissions reports whether the assignment's submission list is expanded.
func (b *Board) ShowingAllSubmissions(assignmentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expanded[assignmentID]
}

// Create validates the form locally, creates the assignment and reloads the list. The
// create dialog closes on success and stays open on failure.
func (b *Board) Create(ctx context.Context, form CreateForm) error {
	form = form.trimmed()
	if err := checkRequired(b.validate, form); err != nil {
		b.report(err)
		return err
	}

	viewer := b.Viewer()
	created, err := b.api.CreateAssignment(ctx, viewer.ID, form.fields())
	if err != nil {
		b.report(err)
		return err
	}

	b.logger.Info().Str("assignment_id", created.ID).Msg("assignment created")
	b.CloseCreate()
	return b.Load(ctx)
}

// Edit saves the full updated assignment and reloads the list. The edit dialog closes on
// success and stays open on failure.
func (b *Board) Edit(ctx context.Context, updated models.Assignment) error {
	check := editCheck{
		Title:   strings.TrimSpace(updated.Title),
		DueDate: updated.DueDate,
		ClassID: strings.TrimSpace(updated.ClassID.ID),
	}
	if err := checkRequired(b.validate, check); err != nil {
		b.report(err)
		return err
	}

	if _, err := b.api.UpdateAssignment(ctx, updated); err != nil {
		b.report(err)
		return err
	}

	b.logger.Info().Str("assignment_id", updated.ID).Msg("assignment updated")
	b.CloseEdit()
	return b.Load(ctx)
}

// Delete removes an assignment. Only authoring roles may delete.
func (b *Board) Delete(ctx context.Context, id string) error {
	viewer := b.Viewer()
	if !viewer.Role.CanAuthorAssignments() {
		b.report(ErrForbidden)
		return ErrForbidden
	}

	if err := b.api.DeleteAssignment(ctx, id); err != nil {
		b.report(err)
		return err
	}

	b.mu.Lock()
	if selected, ok := b.detail.current(); ok && selected.ID == id {
		b.detail.hide()
	}
	delete(b.expanded, id)
	b.mu.Unlock()

	b.logger.Info().Str("assignment_id", id).Msg("assignment deleted")
	return b.Load(ctx)
}

// Submit sends the viewer's submission for an assignment, reloads the list and closes the
// submission dialog.
func (b *Board) Submit(ctx context.Context, assignmentID string, form SubmitForm) error {
	form.Link = strings.TrimSpace(form.Link)
	if err := checkRequired(b.validate, form); err != nil {
		b.report(err)
		return err
	}

	viewer := b.Viewer()
	payload := dto.SubmissionPayload{
		Link:      form.Link,
		Comments:  form.Comments,
		StudentID: viewer.ID,
	}
	if _, err := b.api.SubmitAssignment(ctx, assignmentID, payload); err != nil {
		b.report(err)
		return err
	}

	b.logger.Info().Str("assignment_id", assignmentID).Msg("assignment submitted")
	loadErr := b.Load(ctx)
	b.CloseSubmit()
	return loadErr
}

// LastError returns the error message currently held by the board. Messages are cleared
// as soon as they have been shown, so this is empty between failures.
func (b *Board) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// report stores the error, shows it once, then clears it.
func (b *Board) report(err error) {
	if err == nil {
		return
	}
	message := err.Error()

	b.mu.Lock()
	b.lastError = message
	b.mu.Unlock()

	b.logger.Warn().Err(err).Msg("assignment action failed")
	b.alerter.Alert(message)

	b.mu.Lock()
	if b.lastError == message {
		b.lastError = ""
	}
	b.mu.Unlock()
}
