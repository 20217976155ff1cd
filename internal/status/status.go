// Package status derives the display status of an assignment for a viewer.
package status

import (
	"time"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/models"
)

// Status is the human-facing state of an assignment for one viewer.
type Status string

const (
	Draft     Status = "Draft"
	Published Status = "Published"
	Submitted Status = "Submitted"
	Overdue   Status = "Overdue"
	Pending   Status = "Pending"
)

// Viewer identifies who is looking at an assignment.
type Viewer struct {
	ID   string
	Role authz.Role
}

// Derive computes the status of assignment for viewer at now.
//
// Authors see the stored publication state. Everyone else sees Submitted when one of the
// submissions belongs to them, otherwise Overdue once the due date has passed, otherwise
// Pending.
func Derive(assignment models.Assignment, viewer Viewer, now time.Time) Status {
	if viewer.Role.CanAuthorAssignments() {
		if assignment.Status == models.AssignmentStatusPublished {
			return Published
		}
		return Draft
	}

	if _, ok := assignment.SubmissionBy(viewer.ID); ok {
		return Submitted
	}

	if assignment.IsPastDue(now) {
		return Overdue
	}

	return Pending
}
