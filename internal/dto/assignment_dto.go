package dto

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/gema-classroom/internal/models"
)

// Accepted due date layouts: RFC 3339 and the browser datetime-local form value.
var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate parses a due date in any of the accepted layouts. Layouts without a zone
// are read in loc.
func ParseDueDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dueDateLayouts {
		if parsed, err := time.ParseInLocation(layout, value, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q", value)
}

// AssignmentQuery is the body of POST assignment/get.
type AssignmentQuery struct {
	Action       string   `json:"action" validate:"required,oneof=getByTeacherId getByStudentId getByClassId getByAssignmentId"`
	AuthID       string   `json:"authId,omitempty"`
	ClassID      string   `json:"classId,omitempty"`
	AssignmentID string   `json:"assignmentId,omitempty"`
	SortBy       string   `json:"sortBy,omitempty"`
	SearchTerm   string   `json:"searchTerm,omitempty"`
	Page         int      `json:"page,omitempty" validate:"gte=0"`
	PageSize     int      `json:"pageSize,omitempty" validate:"gte=0,lte=100"`
	Populates    []string `json:"populates,omitempty"`
}

// Populate reports whether the named relation should be expanded.
func (q AssignmentQuery) Populate(name string) bool {
	for _, item := range q.Populates {
		if strings.EqualFold(strings.TrimSpace(item), name) {
			return true
		}
	}
	return false
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes the page count for a listing.
func NewPagination(page, pageSize int, total int64) Pagination {
	if page <= 0 {
		page = 1
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	} else if total > 0 {
		totalPages = 1
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// AssignmentPage is the data envelope returned by POST assignment/get.
type AssignmentPage struct {
	Data       []models.Assignment `json:"data"`
	Pagination Pagination          `json:"pagination"`
}

// AssignmentFields carries the editable assignment attributes.
type AssignmentFields struct {
	Title       string                  `json:"title" validate:"required"`
	Description string                  `json:"description"`
	DueDate     string                  `json:"dueDate" validate:"required"`
	ClassID     string                  `json:"classId" validate:"required"`
	Status      models.AssignmentStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published"`
}

// AssignmentCreateRequest is the body of POST assignment/create. ID names the author.
type AssignmentCreateRequest struct {
	ID   string           `json:"id"`
	Data AssignmentFields `json:"data"`
}
