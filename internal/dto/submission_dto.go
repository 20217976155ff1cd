package dto

// SubmissionPayload is the body of POST assignment/:id/submit.
type SubmissionPayload struct {
	Link      string `json:"link" validate:"required,url"`
	Comments  string `json:"comments"`
	StudentID string `json:"studentId"`
}

// GradeRequest updates one submission's grade and teacher comments. Version must match the
// assignment's current version unless it is zero.
type GradeRequest struct {
	Grade           *float64 `json:"grade" validate:"omitempty,gte=0,lte=100"`
	TeacherComments string   `json:"teacherComments"`
	Version         int64    `json:"version" validate:"gte=0"`
}
