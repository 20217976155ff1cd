package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/client"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/status"
)

type fakeAPI struct {
	mu          sync.Mutex
	profile     dto.ProfileResponse
	assignments []models.Assignment
	pageSize    int

	listCalls   []dto.AssignmentQuery
	createCalls []dto.AssignmentFields
	updateCalls []models.Assignment
	deleteCalls []string
	submitCalls []dto.SubmissionPayload
	gradeCalls  []dto.GradeRequest

	listErr   error
	createErr error
	gradeErr  error
}

func (f *fakeAPI) GetUserProfile(context.Context) (dto.ProfileResponse, error) {
	return f.profile, nil
}

func (f *fakeAPI) ListAssignments(_ context.Context, query dto.AssignmentQuery) (dto.AssignmentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, query)
	if f.listErr != nil {
		return dto.AssignmentPage{}, f.listErr
	}
	pageSize := f.pageSize
	if pageSize == 0 {
		pageSize = 10
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(f.assignments) {
		start = len(f.assignments)
	}
	if end > len(f.assignments) {
		end = len(f.assignments)
	}
	items := append([]models.Assignment(nil), f.assignments[start:end]...)
	return dto.AssignmentPage{
		Data:       items,
		Pagination: dto.NewPagination(page, pageSize, int64(len(f.assignments))),
	}, nil
}

func (f *fakeAPI) CreateAssignment(_ context.Context, _ string, fields dto.AssignmentFields) (models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, fields)
	if f.createErr != nil {
		return models.Assignment{}, f.createErr
	}
	created := models.Assignment{ID: fmt.Sprintf("a%d", len(f.assignments)+1), Title: fields.Title}
	f.assignments = append(f.assignments, created)
	return created, nil
}

func (f *fakeAPI) UpdateAssignment(_ context.Context, assignment models.Assignment) (models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, assignment)
	return assignment, nil
}

func (f *fakeAPI) DeleteAssignment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	return nil
}

func (f *fakeAPI) SubmitAssignment(_ context.Context, _ string, payload dto.SubmissionPayload) (models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls = append(f.submitCalls, payload)
	return models.Assignment{}, nil
}

func (f *fakeAPI) GradeSubmission(_ context.Context, assignmentID, submissionID string, grade dto.GradeRequest) (models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gradeCalls = append(f.gradeCalls, grade)
	if f.gradeErr != nil {
		return models.Assignment{}, f.gradeErr
	}
	for i, assignment := range f.assignments {
		if assignment.ID != assignmentID {
			continue
		}
		updated, err := assignment.WithGrade(submissionID, grade.Grade, grade.TeacherComments)
		if err != nil {
			return models.Assignment{}, err
		}
		updated.Version++
		f.assignments[i] = updated
		return updated, nil
	}
	return models.Assignment{}, errors.New("assignment not found")
}

type alertRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (a *alertRecorder) Alert(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestBoard(api *fakeAPI, role authz.Role) (*Board, *alertRecorder) {
	alerts := &alertRecorder{}
	board := NewBoard(api, alerts, Options{
		PageSize: 2,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return fixedNow },
	})
	board.SetViewer(status.Viewer{ID: "u1", Role: role})
	return board, alerts
}

func floatPointer(v float64) *float64 {
	return &v
}

func TestMountUsesProfileRoleForListAction(t *testing.T) {
	api := &fakeAPI{profile: dto.ProfileResponse{ID: "t9", AuthID: dto.AuthAccount{Role: dto.RoleRef{Name: "teacher"}}}}
	board := NewBoard(api, &alertRecorder{}, Options{Logger: zerolog.Nop()})

	require.NoError(t, board.Mount(context.Background()))
	require.Len(t, api.listCalls, 1)
	require.Equal(t, authz.ActionByTeacher, api.listCalls[0].Action)
	require.Equal(t, "t9", api.listCalls[0].AuthID)
	require.Equal(t, DefaultPageSize, api.listCalls[0].PageSize)
	require.Equal(t, authz.RoleTeacher, board.Viewer().Role)
}

func TestLoadForStudentDerivesRowStatus(t *testing.T) {
	api := &fakeAPI{pageSize: 10, assignments: []models.Assignment{
		{ID: "a1", DueDate: fixedNow.Add(-time.Hour)},
		{ID: "a2", DueDate: fixedNow.Add(time.Hour)},
		{ID: "a3", DueDate: fixedNow.Add(-time.Hour), Submissions: []models.Submission{{ID: "s1", StudentID: models.NewRef("u1")}}},
	}}
	board, _ := newTestBoard(api, authz.RoleStudent)

	require.NoError(t, board.Load(context.Background()))
	require.Equal(t, authz.ActionByStudent, api.listCalls[0].Action)

	rows := board.Rows()
	require.Len(t, rows, 3)
	require.Equal(t, status.Overdue, rows[0].Status)
	require.Equal(t, status.Pending, rows[1].Status)
	require.Equal(t, status.Submitted, rows[2].Status)
}

func TestCreateRejectsMissingRequiredFieldsLocally(t *testing.T) {
	api := &fakeAPI{}
	board, alerts := newTestBoard(api, authz.RoleTeacher)
	board.OpenCreate()

	err := board.Create(context.Background(), CreateForm{Title: "", DueDate: "2025-01-01T10:00", ClassID: "c1"})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "title")
	require.Empty(t, api.createCalls)
	require.Empty(t, api.listCalls)
	require.Equal(t, 1, alerts.count())
	require.True(t, board.CreateOpen())
}

func TestCreateIssuesOneCreateAndOneReload(t *testing.T) {
	api := &fakeAPI{}
	board, alerts := newTestBoard(api, authz.RoleTeacher)
	board.OpenCreate()

	err := board.Create(context.Background(), CreateForm{Title: "Essay", DueDate: "2025-01-01T10:00", ClassID: "c1"})
	require.NoError(t, err)
	require.Len(t, api.createCalls, 1)
	require.Len(t, api.listCalls, 1)
	require.Equal(t, models.AssignmentStatusDraft, api.createCalls[0].Status)
	require.False(t, board.CreateOpen())
	require.Zero(t, alerts.count())
}

func TestCreateFailureAlertsOnceAndKeepsDialogOpen(t *testing.T) {
	api := &fakeAPI{createErr: &client.APIError{StatusCode: http.StatusInternalServerError, Message: "server exploded"}}
	board, alerts := newTestBoard(api, authz.RoleTeacher)
	board.OpenCreate()

	err := board.Create(context.Background(), CreateForm{Title: "Essay", DueDate: "2025-01-01", ClassID: "c1"})
	require.Error(t, err)
	require.Equal(t, []string{"server exploded"}, alerts.messages)
	require.Empty(t, board.LastError())
	require.True(t, board.CreateOpen())
	require.Empty(t, api.listCalls)
}

func TestLoadFailureAlertsExactlyOnce(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("failed to load assignments")}
	board, alerts := newTestBoard(api, authz.RoleStudent)

	require.Error(t, board.Load(context.Background()))
	require.Equal(t, 1, alerts.count())
	require.Empty(t, board.LastError())
	require.Error(t, board.List().Err)

	api.listErr = nil
	require.NoError(t, board.Load(context.Background()))
	require.Equal(t, 1, alerts.count(), "no lingering error on the next render")
	require.NoError(t, board.List().Err)
}

func TestChangePageIgnoresOutOfRange(t *testing.T) {
	api := &fakeAPI{pageSize: 2, assignments: []models.Assignment{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}}
	board, _ := newTestBoard(api, authz.RoleTeacher)
	require.NoError(t, board.Load(context.Background()))
	require.Len(t, api.listCalls, 1)

	issued, err := board.ChangePage(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, issued)

	issued, err = board.ChangePage(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, issued)
	require.Len(t, api.listCalls, 1)

	issued, err = board.ChangePage(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, issued)
	require.Len(t, api.listCalls, 2)
	require.Equal(t, 2, api.listCalls[1].Page)
	require.Len(t, board.Rows(), 1)
}

func TestSearchResetsPage(t *testing.T) {
	api := &fakeAPI{pageSize: 2, assignments: []models.Assignment{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}}
	board, _ := newTestBoard(api, authz.RoleTeacher)
	require.NoError(t, board.Load(context.Background()))
	_, err := board.ChangePage(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, board.Search(context.Background(), "  essay "))
	last := api.listCalls[len(api.listCalls)-1]
	require.Equal(t, 1, last.Page)
	require.Equal(t, "essay", last.SearchTerm)

	require.NoError(t, board.Sort(context.Background(), "-dueDate"))
	require.Equal(t, "-dueDate", board.Query().SortBy)
}

func TestSetQueryDoesNotLoad(t *testing.T) {
	api := &fakeAPI{pageSize: 2}
	board, _ := newTestBoard(api, authz.RoleStudent)

	board.SetQuery(Query{Search: " lab ", SortBy: "title", Page: 0})
	require.Empty(t, api.listCalls)
	require.Equal(t, Query{Search: "lab", SortBy: "title", Page: 1, PageSize: 2}, board.Query())

	require.NoError(t, board.Load(context.Background()))
	require.Len(t, api.listCalls, 1)
	require.Equal(t, "lab", api.listCalls[0].SearchTerm)
	require.Equal(t, "getByStudentId", api.listCalls[0].Action)
}

func TestDialogsAreIndependent(t *testing.T) {
	board, _ := newTestBoard(&fakeAPI{}, authz.RoleTeacher)
	first := models.Assignment{ID: "a1"}
	second := models.Assignment{ID: "a2"}

	board.OpenDetail(first)
	board.OpenEdit(second)

	detail, ok := board.Detail()
	require.True(t, ok)
	require.Equal(t, "a1", detail.ID)
	editing, ok := board.Editing()
	require.True(t, ok)
	require.Equal(t, "a2", editing.ID)

	board.CloseEdit()
	_, ok = board.Editing()
	require.False(t, ok)
	_, ok = board.Detail()
	require.True(t, ok, "closing edit leaves detail open")

	board.CloseDetail()
	board.OpenSubmit(first)
	_, ok = board.Detail()
	require.False(t, ok, "closed dialog forgets its selection")
	submitting, ok := board.Submitting()
	require.True(t, ok)
	require.Equal(t, "a1", submitting.ID)
}

func TestDeleteIsGatedByRole(t *testing.T) {
	api := &fakeAPI{}
	board, alerts := newTestBoard(api, authz.RoleStudent)

	require.ErrorIs(t, board.Delete(context.Background(), "a1"), ErrForbidden)
	require.Empty(t, api.deleteCalls)
	require.Equal(t, 1, alerts.count())

	board.SetViewer(status.Viewer{ID: "t1", Role: authz.RoleTeacher})
	board.OpenDetail(models.Assignment{ID: "a1"})
	require.NoError(t, board.Delete(context.Background(), "a1"))
	require.Equal(t, []string{"a1"}, api.deleteCalls)
	_, ok := board.Detail()
	require.False(t, ok)
	require.Len(t, api.listCalls, 1)
}

func TestSubmitAttachesViewerAndClosesDialog(t *testing.T) {
	api := &fakeAPI{}
	board, _ := newTestBoard(api, authz.RoleStudent)
	board.OpenSubmit(models.Assignment{ID: "a1"})

	require.ErrorIs(t, board.Submit(context.Background(), "a1", SubmitForm{Link: " "}), ErrValidation)
	require.Empty(t, api.submitCalls)

	require.NoError(t, board.Submit(context.Background(), "a1", SubmitForm{Link: "https://docs.example.com/essay", Comments: "done"}))
	require.Len(t, api.submitCalls, 1)
	require.Equal(t, "u1", api.submitCalls[0].StudentID)
	require.Len(t, api.listCalls, 1)
	_, ok := board.Submitting()
	require.False(t, ok)
}

func TestEditValidatesAndSendsFullDocument(t *testing.T) {
	api := &fakeAPI{}
	board, _ := newTestBoard(api, authz.RoleTeacher)
	item := models.Assignment{ID: "a1", Title: "Essay", DueDate: fixedNow, ClassID: models.NewRef("c1"), Version: 3}
	board.OpenEdit(item)

	broken := item
	broken.ClassID = models.Ref{}
	require.ErrorIs(t, board.Edit(context.Background(), broken), ErrValidation)
	require.Empty(t, api.updateCalls)

	item.Title = "Essay v2"
	require.NoError(t, board.Edit(context.Background(), item))
	require.Len(t, api.updateCalls, 1)
	require.Equal(t, int64(3), api.updateCalls[0].Version)
	_, ok := board.Editing()
	require.False(t, ok)
}

func TestGradingRoundTrip(t *testing.T) {
	parent := models.Assignment{
		ID:      "a1",
		Version: 5,
		Submissions: []models.Submission{
			{ID: "A", StudentID: models.NewRef("s1"), Link: "https://a"},
			{ID: "B", StudentID: models.NewRef("s2"), Link: "https://b", Comments: "late"},
		},
	}
	api := &fakeAPI{assignments: []models.Assignment{parent}}
	board, alerts := newTestBoard(api, authz.RoleTeacher)
	board.OpenDetail(parent)
	require.True(t, board.ToggleAllSubmissions("a1"))

	require.NoError(t, board.OpenGrading(parent, "B"))
	form, ok := board.Grading()
	require.True(t, ok)
	require.Nil(t, form.Grade)

	board.SetGrade(floatPointer(85))
	board.SetTeacherComments("Good")

	preview, err := func() (models.Assignment, error) {
		form, _ := board.Grading()
		return form.Preview()
	}()
	require.NoError(t, err)
	require.Nil(t, preview.Submissions[0].Grade)
	require.Equal(t, 85.0, *preview.Submissions[1].Grade)

	require.NoError(t, board.SaveGrading(context.Background()))
	require.Zero(t, alerts.count())
	require.Len(t, api.gradeCalls, 1)
	require.Equal(t, int64(5), api.gradeCalls[0].Version)

	stored := api.assignments[0]
	require.Equal(t, parent.Submissions[0], stored.Submissions[0])
	require.Equal(t, 85.0, *stored.Submissions[1].Grade)
	require.Equal(t, "Good", stored.Submissions[1].TeacherComments)
	require.Equal(t, "late", stored.Submissions[1].Comments)

	_, ok = board.Grading()
	require.False(t, ok)
	require.False(t, board.ShowingAllSubmissions("a1"))
	detail, _ := board.Detail()
	require.Equal(t, int64(6), detail.Version)
	require.Len(t, api.listCalls, 1)
}

func TestGradingConflictKeepsFormOpen(t *testing.T) {
	parent := models.Assignment{ID: "a1", Version: 1, Submissions: []models.Submission{{ID: "A"}}}
	api := &fakeAPI{
		assignments: []models.Assignment{parent},
		gradeErr:    &client.APIError{StatusCode: http.StatusConflict, Message: "version mismatch"},
	}
	board, alerts := newTestBoard(api, authz.RoleTeacher)

	require.NoError(t, board.OpenGrading(parent, "A"))
	board.SetGrade(floatPointer(70))

	err := board.SaveGrading(context.Background())
	require.ErrorIs(t, err, ErrStaleAssignment)
	require.Equal(t, []string{ErrStaleAssignment.Error()}, alerts.messages)

	form, ok := board.Grading()
	require.True(t, ok)
	require.Equal(t, 70.0, *form.Grade)
	require.Empty(t, api.listCalls)
}

func TestOpenGradingRequiresGrader(t *testing.T) {
	parent := models.Assignment{ID: "a1", Submissions: []models.Submission{{ID: "A"}}}
	board, _ := newTestBoard(&fakeAPI{}, authz.RoleStudent)
	require.ErrorIs(t, board.OpenGrading(parent, "A"), ErrForbidden)

	board.SetViewer(status.Viewer{ID: "t1", Role: authz.RoleTeacher})
	require.ErrorIs(t, board.OpenGrading(parent, "missing"), models.ErrSubmissionNotFound)
}

type gatedAPI struct {
	*fakeAPI
	release map[int]chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedAPI) ListAssignments(ctx context.Context, query dto.AssignmentQuery) (dto.AssignmentPage, error) {
	g.mu.Lock()
	g.calls++
	gate := g.release[g.calls]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return dto.AssignmentPage{
		Data:       []models.Assignment{{ID: fmt.Sprintf("page-%d", query.Page)}},
		Pagination: dto.NewPagination(query.Page, 1, 5),
	}, nil
}

func TestStaleLoadDoesNotOverwriteNewer(t *testing.T) {
	slow := make(chan struct{})
	api := &gatedAPI{fakeAPI: &fakeAPI{}, release: map[int]chan struct{}{1: slow}}
	board, _ := newTestBoard(api.fakeAPI, authz.RoleTeacher)
	board.api = api

	done := make(chan error, 1)
	go func() { done <- board.Load(context.Background()) }()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.calls == 1
	}, time.Second, 5*time.Millisecond)

	board.mu.Lock()
	board.query.Page = 3
	board.mu.Unlock()
	require.NoError(t, board.Load(context.Background()))

	close(slow)
	require.NoError(t, <-done)
	require.Equal(t, "page-3", board.Rows()[0].Assignment.ID)
}
