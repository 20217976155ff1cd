package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/events"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/observability"
	"github.com/noah-isme/gema-classroom/internal/repository"
)

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrVersionConflict indicates the assignment changed since the caller read it.
	ErrVersionConflict = repository.ErrVersionConflict
	// ErrSubmissionNotFound indicates the assignment has no submission with that id.
	ErrSubmissionNotFound = models.ErrSubmissionNotFound
	// ErrInvalidQuery indicates a list query is missing the identifier its action needs.
	ErrInvalidQuery = errors.New("invalid assignment query")
	// ErrInvalidAssignment indicates an assignment document failed validation.
	ErrInvalidAssignment = errors.New("invalid assignment")
	// ErrAssignmentNotPublished indicates work was submitted to a draft assignment.
	ErrAssignmentNotPublished = errors.New("assignment is not published")
	// ErrForbidden indicates the caller neither owns the assignment nor belongs to its class.
	ErrForbidden = errors.New("caller has no access to this assignment")
)

const submitAttempts = 3

// Caller is the authenticated user issuing a request.
type Caller struct {
	ID   string
	Role authz.Role
}

// AssignmentService exposes assignment use cases.
type AssignmentService interface {
	Query(ctx context.Context, caller Caller, query dto.AssignmentQuery) (dto.AssignmentPage, error)
	Create(ctx context.Context, caller Caller, request dto.AssignmentCreateRequest) (models.Assignment, error)
	Update(ctx context.Context, caller Caller, id string, input models.Assignment) (models.Assignment, error)
	Delete(ctx context.Context, caller Caller, id string) error
	Submit(ctx context.Context, caller Caller, id string, payload dto.SubmissionPayload) (models.Assignment, error)
	Grade(ctx context.Context, caller Caller, assignmentID, submissionID string, request dto.GradeRequest) (models.Assignment, error)
}

// AssignmentServiceOptions tunes an assignment service.
type AssignmentServiceOptions struct {
	PageSize int
	Location *time.Location
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	classes   repository.ClassRepository
	profiles  repository.ProfileRepository
	publisher events.Publisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	richText  *bluemonday.Policy
	pageSize  int
	location  *time.Location
	now       func() time.Time
	newID     func() string
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, classes repository.ClassRepository, profiles repository.ProfileRepository, publisher events.Publisher, validate *validator.Validate, logger zerolog.Logger, opts AssignmentServiceOptions) AssignmentService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}

	return &assignmentService{
		repo:      repo,
		classes:   classes,
		profiles:  profiles,
		publisher: publisher,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-classroom/internal/service/assignment"),
		sanitizer: bluemonday.StrictPolicy(),
		richText:  bluemonday.UGCPolicy(),
		pageSize:  pageSize,
		location:  location,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *assignmentService) Query(ctx context.Context, caller Caller, query dto.AssignmentQuery) (dto.AssignmentPage, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.AssignmentPage{}, err
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	filter := repository.AssignmentFilter{
		Search:        strings.TrimSpace(query.SearchTerm),
		Sort:          query.SortBy,
		Page:          page,
		PageSize:      pageSize,
		PublishedOnly: !caller.Role.CanAuthorAssignments(),
	}

	switch query.Action {
	case authz.ActionByTeacher:
		teacherID := strings.TrimSpace(query.AuthID)
		if teacherID == "" || !caller.Role.CanManageClasses() {
			teacherID = caller.ID
		}
		classIDs, err := s.classes.IDsForMember(ctx, teacherID, models.ClassMemberTeacher)
		if err != nil {
			return dto.AssignmentPage{}, err
		}
		filter.TeacherID = teacherID
		filter.ClassIDs = classIDs
	case authz.ActionByStudent:
		studentID := strings.TrimSpace(query.AuthID)
		if studentID == "" || !caller.Role.CanAuthorAssignments() {
			studentID = caller.ID
		}
		classIDs, err := s.classes.IDsForMember(ctx, studentID, models.ClassMemberStudent)
		if err != nil {
			return dto.AssignmentPage{}, err
		}
		filter.ClassIDs = classIDs
		filter.PublishedOnly = true
	case authz.ActionByClass:
		if strings.TrimSpace(query.ClassID) == "" {
			return dto.AssignmentPage{}, fmt.Errorf("%w: classId is required", ErrInvalidQuery)
		}
		filter.ClassIDs = []string{strings.TrimSpace(query.ClassID)}
	case authz.ActionByAssignment:
		if strings.TrimSpace(query.AssignmentID) == "" {
			return dto.AssignmentPage{}, fmt.Errorf("%w: assignmentId is required", ErrInvalidQuery)
		}
		filter.AssignmentID = strings.TrimSpace(query.AssignmentID)
	}

	items, total, err := s.repo.ListWithFilter(ctx, filter)
	if err != nil {
		return dto.AssignmentPage{}, err
	}

	for i := range items {
		items[i] = s.visibleTo(items[i], caller)
	}

	if query.Populate("classId") {
		if err := s.expandClasses(ctx, items); err != nil {
			return dto.AssignmentPage{}, err
		}
	}
	if query.Populate("studentId") {
		if err := s.expandStudents(ctx, items); err != nil {
			return dto.AssignmentPage{}, err
		}
	}

	return dto.AssignmentPage{
		Data:       items,
		Pagination: dto.NewPagination(page, pageSize, total),
	}, nil
}

func (s *assignmentService) Create(ctx context.Context, caller Caller, request dto.AssignmentCreateRequest) (models.Assignment, error) {
	if err := s.validator.Struct(request); err != nil {
		return models.Assignment{}, err
	}

	dueDate, err := dto.ParseDueDate(request.Data.DueDate, s.location)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
	}

	classID := strings.TrimSpace(request.Data.ClassID)
	if !caller.Role.CanManageClasses() {
		if err := s.requireMember(ctx, classID, caller.ID, models.ClassMemberTeacher); err != nil {
			return models.Assignment{}, err
		}
	}

	status := request.Data.Status
	if status == "" {
		status = models.AssignmentStatusDraft
	}

	teacherID := caller.ID
	if caller.Role.CanManageStaff() && strings.TrimSpace(request.ID) != "" {
		teacherID = strings.TrimSpace(request.ID)
	}

	assignment := models.Assignment{
		ID:          s.newID(),
		Title:       strings.TrimSpace(request.Data.Title),
		Description: s.richText.Sanitize(request.Data.Description),
		DueDate:     dueDate,
		Status:      status,
		ClassID:     models.NewRef(classID),
		TeacherID:   teacherID,
		Submissions: []models.Submission{},
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return models.Assignment{}, err
	}

	observability.AssignmentWrites().WithLabelValues("create").Inc()
	s.logger.Info().Str("assignment_id", assignment.ID).Str("teacher_id", teacherID).Msg("assignment created")
	s.publish(ctx, events.AssignmentChanged{Type: events.AssignmentCreated, AssignmentID: assignment.ID, ClassID: assignment.ClassID.ID, ActorID: caller.ID, Version: assignment.Version})

	return assignment, nil
}

func (s *assignmentService) Update(ctx context.Context, caller Caller, id string, input models.Assignment) (models.Assignment, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}

	if input.ID != "" && input.ID != id {
		return models.Assignment{}, fmt.Errorf("%w: id does not match path", ErrInvalidAssignment)
	}
	if err := validateDocument(input); err != nil {
		return models.Assignment{}, err
	}
	if err := s.authorizeAuthor(ctx, caller, current); err != nil {
		return models.Assignment{}, err
	}
	if target := strings.TrimSpace(input.ClassID.ID); target != current.ClassID.ID && !caller.Role.CanManageClasses() {
		if err := s.requireMember(ctx, target, caller.ID, models.ClassMemberTeacher); err != nil {
			return models.Assignment{}, err
		}
	}

	updated := current
	updated.Title = strings.TrimSpace(input.Title)
	updated.Description = s.richText.Sanitize(input.Description)
	updated.DueDate = input.DueDate
	updated.ClassID = models.NewRef(strings.TrimSpace(input.ClassID.ID))
	if input.Status != "" {
		updated.Status = input.Status
	}
	if input.Submissions != nil {
		updated.Submissions = s.storedSubmissions(input.Submissions)
	}

	if err := s.repo.Update(ctx, &updated, input.Version); err != nil {
		return models.Assignment{}, s.mapWriteError(err)
	}

	observability.AssignmentWrites().WithLabelValues("update").Inc()
	s.logger.Info().Str("assignment_id", id).Int64("version", updated.Version).Msg("assignment updated")
	s.publish(ctx, events.AssignmentChanged{Type: events.AssignmentUpdated, AssignmentID: id, ClassID: updated.ClassID.ID, ActorID: caller.ID, Version: updated.Version})

	return updated, nil
}

func (s *assignmentService) Delete(ctx context.Context, caller Caller, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeAuthor(ctx, caller, current); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	observability.AssignmentWrites().WithLabelValues("delete").Inc()
	s.logger.Info().Str("assignment_id", id).Msg("assignment deleted")
	s.publish(ctx, events.AssignmentChanged{Type: events.AssignmentDeleted, AssignmentID: id, ActorID: caller.ID})
	return nil
}

// Submit appends the caller's submission. The append is retried when another write lands
// between the read and the write, since it never overwrites anyone else's data.
func (s *assignmentService) Submit(ctx context.Context, caller Caller, id string, payload dto.SubmissionPayload) (models.Assignment, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.submit")
	span.SetAttributes(
		attribute.String("assignment.id", id),
		attribute.String("submission.student_id", caller.ID),
	)
	defer span.End()

	payload.Link = strings.TrimSpace(payload.Link)
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return models.Assignment{}, err
	}

	submission := models.Submission{
		ID:             s.newID(),
		StudentID:      models.NewRef(caller.ID),
		SubmissionDate: s.now().UTC(),
		Link:           payload.Link,
		Comments:       s.sanitizer.Sanitize(payload.Comments),
	}

	for attempt := 1; ; attempt++ {
		assignment, err := s.load(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "assignment_lookup_failed")
			return models.Assignment{}, err
		}
		if attempt == 1 {
			if err := s.requireMember(ctx, assignment.ClassID.ID, caller.ID, models.ClassMemberStudent); err != nil {
				span.SetStatus(codes.Error, "caller_not_enrolled")
				return models.Assignment{}, err
			}
		}
		if assignment.Status != models.AssignmentStatusPublished {
			span.SetStatus(codes.Error, "assignment_not_published")
			return models.Assignment{}, ErrAssignmentNotPublished
		}

		assignment.Submissions = append(assignment.Submissions, submission)
		err = s.repo.Update(ctx, &assignment, assignment.Version)
		if errors.Is(err, repository.ErrVersionConflict) && attempt < submitAttempts {
			span.AddEvent("submit.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission_write_failed")
			return models.Assignment{}, s.mapWriteError(err)
		}

		observability.AssignmentWrites().WithLabelValues("submit").Inc()
		s.logger.Info().Str("assignment_id", id).Str("submission_id", submission.ID).Str("student_id", caller.ID).Msg("assignment submitted")
		s.publish(ctx, events.AssignmentChanged{Type: events.AssignmentSubmitted, AssignmentID: id, SubmissionID: submission.ID, ClassID: assignment.ClassID.ID, ActorID: caller.ID, Version: assignment.Version})
		return s.visibleTo(assignment, caller), nil
	}
}

// Grade sets one submission's grade and teacher comments. A non-zero request version must
// equal the stored version; the write itself is always checked against the version read.
func (s *assignmentService) Grade(ctx context.Context, caller Caller, assignmentID, submissionID string, request dto.GradeRequest) (models.Assignment, error) {
	ctx, span := s.tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.String("grading.assignment_id", assignmentID),
		attribute.String("grading.submission_id", submissionID),
		attribute.String("grading.actor_id", caller.ID),
		attribute.Int64("grading.version", request.Version),
	)
	defer span.End()

	if err := s.validator.Struct(request); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return models.Assignment{}, err
	}

	current, err := s.load(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment_lookup_failed")
		return models.Assignment{}, err
	}

	if err := s.authorizeAuthor(ctx, caller, current); err != nil {
		span.SetStatus(codes.Error, "caller_not_authorized")
		return models.Assignment{}, err
	}

	if request.Version > 0 && request.Version != current.Version {
		observability.GradingConflicts().Inc()
		span.SetStatus(codes.Error, "version_conflict")
		return models.Assignment{}, ErrVersionConflict
	}

	updated, err := current.WithGrade(submissionID, request.Grade, s.sanitizer.Sanitize(request.TeacherComments))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_not_found")
		return models.Assignment{}, err
	}

	if err := s.repo.Update(ctx, &updated, current.Version); err != nil {
		err = s.mapWriteError(err)
		if errors.Is(err, ErrVersionConflict) {
			observability.GradingConflicts().Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_write_failed")
		return models.Assignment{}, err
	}

	observability.AssignmentWrites().WithLabelValues("grade").Inc()
	s.logger.Info().
		Str("assignment_id", assignmentID).
		Str("submission_id", submissionID).
		Str("actor_id", caller.ID).
		Int64("version", updated.Version).
		Msg("submission graded")
	s.publish(ctx, events.AssignmentChanged{Type: events.SubmissionGraded, AssignmentID: assignmentID, SubmissionID: submissionID, ClassID: updated.ClassID.ID, ActorID: caller.ID, Version: updated.Version})

	return updated, nil
}

func (s *assignmentService) load(ctx context.Context, id string) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

// authorizeAuthor allows the assignment's author, a teacher of its class, or a class manager.
func (s *assignmentService) authorizeAuthor(ctx context.Context, caller Caller, assignment models.Assignment) error {
	if caller.Role.CanManageClasses() {
		return nil
	}
	if assignment.TeacherID != "" && assignment.TeacherID == caller.ID {
		return nil
	}
	return s.requireMember(ctx, assignment.ClassID.ID, caller.ID, models.ClassMemberTeacher)
}

func (s *assignmentService) requireMember(ctx context.Context, classID, profileID, role string) error {
	if classID == "" || profileID == "" {
		return ErrForbidden
	}
	member, err := s.classes.HasMember(ctx, classID, profileID, role)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}

func (s *assignmentService) mapWriteError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAssignmentNotFound
	}
	return err
}

// visibleTo hides other students' submissions from callers who cannot grade.
func (s *assignmentService) visibleTo(assignment models.Assignment, caller Caller) models.Assignment {
	if caller.Role.CanGrade() {
		return assignment
	}
	own := make([]models.Submission, 0, 1)
	for _, submission := range assignment.Submissions {
		if submission.StudentID.Matches(caller.ID) {
			own = append(own, submission)
		}
	}
	assignment.Submissions = own
	return assignment
}

// storedSubmissions strips expanded references and sanitises free text before a write.
func (s *assignmentService) storedSubmissions(input []models.Submission) []models.Submission {
	stored := make([]models.Submission, len(input))
	for i, submission := range input {
		submission.StudentID = models.NewRef(submission.StudentID.ID)
		submission.Comments = s.sanitizer.Sanitize(submission.Comments)
		submission.TeacherComments = s.sanitizer.Sanitize(submission.TeacherComments)
		if submission.ID == "" {
			submission.ID = s.newID()
		}
		stored[i] = submission
	}
	return stored
}

func (s *assignmentService) expandClasses(ctx context.Context, items []models.Assignment) error {
	ids := uniqueIDs(len(items), func(add func(string)) {
		for _, item := range items {
			add(item.ClassID.ID)
		}
	})
	classes, err := s.classes.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(classes))
	for _, class := range classes {
		names[class.ID] = class.ClassName
	}
	for i := range items {
		if name, ok := names[items[i].ClassID.ID]; ok {
			items[i].ClassID = items[i].ClassID.ExpandClass(name)
		}
	}
	return nil
}

func (s *assignmentService) expandStudents(ctx context.Context, items []models.Assignment) error {
	ids := uniqueIDs(len(items), func(add func(string)) {
		for _, item := range items {
			for _, submission := range item.Submissions {
				add(submission.StudentID.ID)
			}
		}
	})
	profiles, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}
	for i := range items {
		for j := range items[i].Submissions {
			ref := items[i].Submissions[j].StudentID
			if profile, ok := byID[ref.ID]; ok {
				items[i].Submissions[j].StudentID = ref.Expand(profile.Name, profile.Email)
			}
		}
	}
	return nil
}

func (s *assignmentService) publish(ctx context.Context, event events.AssignmentChanged) {
	event.SentAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		observability.EventFailures().Inc()
		s.logger.Warn().Err(err).Str("type", event.Type).Str("assignment_id", event.AssignmentID).Msg("failed to publish assignment event")
	}
}

func validateDocument(input models.Assignment) error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if input.DueDate.IsZero() {
		missing = append(missing, "dueDate")
	}
	if strings.TrimSpace(input.ClassID.ID) == "" {
		missing = append(missing, "classId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidAssignment, strings.Join(missing, ", "))
	}
	if input.Status != "" && !input.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAssignment, input.Status)
	}
	return nil
}

func uniqueIDs(capacity int, collect func(add func(string))) []string {
	seen := make(map[string]struct{}, capacity)
	ids := make([]string, 0, capacity)
	collect(func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids
}
