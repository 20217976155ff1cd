package workflow

import (
	"context"
	"errors"

	"github.com/noah-isme/gema-classroom/internal/client"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
)

// ErrStaleAssignment is shown when a grade is rejected because the assignment changed after
// the grading form was opened.
var ErrStaleAssignment = errors.New("this assignment was changed by someone else; reload it and grade again")

// GradingForm is the editable copy of one submission's grade and teacher comments.
type GradingForm struct {
	Parent          models.Assignment
	SubmissionID    string
	Grade           *float64
	TeacherComments string
}

// Preview returns the parent assignment as it will look once the form is saved.
func (f GradingForm) Preview() (models.Assignment, error) {
	return f.Parent.WithGrade(f.SubmissionID, f.Grade, f.TeacherComments)
}

// OpenGrading copies the submission's current grade and comments into a grading form.
func (b *Board) OpenGrading(parent models.Assignment, submissionID string) error {
	if !b.Viewer().Role.CanGrade() {
		b.report(ErrForbidden)
		return ErrForbidden
	}

	var target *models.Submission
	for i := range parent.Submissions {
		if parent.Submissions[i].ID == submissionID {
			target = &parent.Submissions[i]
			break
		}
	}
	if target == nil {
		b.report(models.ErrSubmissionNotFound)
		return models.ErrSubmissionNotFound
	}

	form := &GradingForm{
		Parent:          parent,
		SubmissionID:    submissionID,
		TeacherComments: target.TeacherComments,
	}
	if target.Grade != nil {
		grade := *target.Grade
		form.Grade = &grade
	}

	b.mu.Lock()
	b.grading = form
	b.mu.Unlock()
	return nil
}

// Grading returns the open grading form.
func (b *Board) Grading() (GradingForm, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grading == nil {
		return GradingForm{}, false
	}
	return *b.grading, true
}

// SetGrade edits the grade in the open form. A nil grade clears it.
func (b *Board) SetGrade(grade *float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grading == nil {
		return
	}
	if grade == nil {
		b.grading.Grade = nil
		return
	}
	value := *grade
	b.grading.Grade = &value
}

// SetTeacherComments edits the comments in the open form.
func (b *Board) SetTeacherComments(comments string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grading != nil {
		b.grading.TeacherComments = comments
	}
}

// CloseGrading discards the grading form.
func (b *Board) CloseGrading() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grading = nil
}

// SaveGrading stores the form's grade and comments on that one submission. The request
// carries the version the form was opened at, so a concurrent change to the assignment is
// rejected instead of overwritten. On success the form and the assignment's "all
// submissions" expansion close and the list reloads; on failure the form stays open.
func (b *Board) SaveGrading(ctx context.Context) error {
	form, ok := b.Grading()
	if !ok {
		return nil
	}

	request := dto.GradeRequest{
		Grade:           form.Grade,
		TeacherComments: form.TeacherComments,
		Version:         form.Parent.Version,
	}
	updated, err := b.api.GradeSubmission(ctx, form.Parent.ID, form.SubmissionID, request)
	if err != nil {
		if client.IsConflict(err) {
			err = ErrStaleAssignment
		}
		b.report(err)
		return err
	}

	b.mu.Lock()
	b.grading = nil
	delete(b.expanded, form.Parent.ID)
	if selected, ok := b.detail.current(); ok && selected.ID == form.Parent.ID {
		if updated.ID == "" {
			updated, _ = form.Preview()
		}
		if updated.ID != "" {
			b.detail.show(updated)
		}
	}
	b.mu.Unlock()

	b.logger.Info().
		Str("assignment_id", form.Parent.ID).
		Str("submission_id", form.SubmissionID).
		Msg("submission graded")
	return b.Load(ctx)
}
