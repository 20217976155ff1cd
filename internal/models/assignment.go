package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ErrSubmissionNotFound indicates no submission with the requested identifier exists on the assignment.
var ErrSubmissionNotFound = errors.New("submission not found")

// AssignmentStatus is the stored publication state of an assignment.
type AssignmentStatus string

const (
	// AssignmentStatusDraft marks an assignment only its authors can see as work in progress.
	AssignmentStatusDraft AssignmentStatus = "draft"
	// AssignmentStatusPublished marks an assignment visible to the class.
	AssignmentStatusPublished AssignmentStatus = "published"
)

// Valid reports whether the status is one of the known values.
func (s AssignmentStatus) Valid() bool {
	return s == AssignmentStatusDraft || s == AssignmentStatusPublished
}

// Assignment is a gradable task published to a class. Submissions live inside the
// assignment document and are rewritten together with it.
type Assignment struct {
	ID             string           `gorm:"primaryKey;size:64" json:"_id"`
	Title          string           `gorm:"size:255;not null" json:"title"`
	Description    string           `gorm:"type:text" json:"description"`
	DueDate        time.Time        `gorm:"not null;index" json:"dueDate"`
	Status         AssignmentStatus `gorm:"size:16;not null;default:draft" json:"status"`
	ClassID        Ref              `gorm:"column:class_id;type:varchar(64);index" json:"classId"`
	TeacherID      string           `gorm:"size:64;index" json:"teacherId,omitempty"`
	Version        int64            `gorm:"not null;default:1" json:"version"`
	SubmissionData datatypes.JSON   `gorm:"column:submissions;type:json" json:"-"`
	Submissions    []Submission     `gorm:"-" json:"submissions"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueDate.Before(reference)
}

// SubmissionBy returns the first submission owned by the given student.
func (a Assignment) SubmissionBy(studentID string) (Submission, bool) {
	for _, submission := range a.Submissions {
		if submission.StudentID.Matches(studentID) {
			return submission, true
		}
	}
	return Submission{}, false
}

// WithGrade returns a copy of the assignment whose submission list has the matching
// submission's grade and teacher comments replaced. Every other submission, and every other
// field of the graded one, is carried over unchanged.
func (a Assignment) WithGrade(submissionID string, grade *float64, teacherComments string) (Assignment, error) {
	updated := make([]Submission, len(a.Submissions))
	found := false
	for i, submission := range a.Submissions {
		if !found && submission.ID == submissionID {
			submission.Grade = cloneGrade(grade)
			submission.TeacherComments = teacherComments
			found = true
		}
		updated[i] = submission
	}
	if !found {
		return Assignment{}, ErrSubmissionNotFound
	}

	a.Submissions = updated
	return a, nil
}

// EncodeSubmissions serialises the submission list into its storage column.
func (a *Assignment) EncodeSubmissions() error {
	submissions := a.Submissions
	if submissions == nil {
		submissions = []Submission{}
	}
	data, err := json.Marshal(submissions)
	if err != nil {
		return err
	}
	a.SubmissionData = datatypes.JSON(data)
	return nil
}

// DecodeSubmissions restores the submission list from its storage column.
func (a *Assignment) DecodeSubmissions() error {
	if len(a.SubmissionData) == 0 {
		a.Submissions = []Submission{}
		return nil
	}

	var submissions []Submission
	if err := json.Unmarshal(a.SubmissionData, &submissions); err != nil {
		return err
	}
	if submissions == nil {
		submissions = []Submission{}
	}
	a.Submissions = submissions
	return nil
}

func cloneGrade(grade *float64) *float64 {
	if grade == nil {
		return nil
	}
	value := *grade
	return &value
}
