package models

import (
	"encoding/json"
	"time"
)

// Submission is a student's response to an assignment: a link plus optional comments,
// optionally graded by a teacher.
type Submission struct {
	ID              string    `json:"_id"`
	StudentID       Ref       `json:"studentId"`
	SubmissionDate  time.Time `json:"submissionDate"`
	Link            string    `json:"link"`
	Comments        string    `json:"comments,omitempty"`
	Grade           *float64  `json:"grade"`
	TeacherComments string    `json:"teacherComments,omitempty"`
}

// IsGraded reports whether the submission has a grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// UnmarshalJSON folds the legacy singular "teacherComment" field into TeacherComments.
func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	var raw struct {
		plain
		TeacherComment string `json:"teacherComment"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Submission(raw.plain)
	if s.TeacherComments == "" && raw.TeacherComment != "" {
		s.TeacherComments = raw.TeacherComment
	}
	return nil
}
