package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
)

// GetUserProfile returns the signed-in user's profile.
func (c *Client) GetUserProfile(ctx context.Context) (dto.ProfileResponse, error) {
	var profile dto.ProfileResponse
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/user/profile",
		fallback: "failed to load user profile",
	}, &profile)
	return profile, err
}

// ListAssignments issues POST assignment/get with the query's action.
func (c *Client) ListAssignments(ctx context.Context, query dto.AssignmentQuery) (dto.AssignmentPage, error) {
	var page dto.AssignmentPage
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/assignment/get",
		body:     query,
		fallback: "failed to load assignments",
	}, &page)
	if page.Data == nil {
		page.Data = []models.Assignment{}
	}
	return page, err
}

// GetAssignment fetches a single assignment with its submissions.
func (c *Client) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	page, err := c.ListAssignments(ctx, dto.AssignmentQuery{
		Action:       authz.ActionByAssignment,
		AssignmentID: id,
		Populates:    []string{"studentId"},
	})
	if err != nil {
		return models.Assignment{}, err
	}
	if len(page.Data) == 0 {
		return models.Assignment{}, &APIError{StatusCode: http.StatusNotFound, Message: "assignment not found"}
	}
	return page.Data[0], nil
}

// CreateAssignment issues POST assignment/create.
func (c *Client) CreateAssignment(ctx context.Context, authorID string, fields dto.AssignmentFields) (models.Assignment, error) {
	var created models.Assignment
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/assignment/create",
		body:     dto.AssignmentCreateRequest{ID: authorID, Data: fields},
		fallback: "failed to create assignment",
	}, &created)
	return created, err
}

// UpdateAssignment issues PUT assignment/:id with the full document.
func (c *Client) UpdateAssignment(ctx context.Context, assignment models.Assignment) (models.Assignment, error) {
	var updated models.Assignment
	err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/assignment/" + url.PathEscape(assignment.ID),
		body:     assignment,
		fallback: "failed to update assignment",
	}, &updated)
	return updated, err
}

// DeleteAssignment issues DELETE assignment/:id.
func (c *Client) DeleteAssignment(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/assignment/" + url.PathEscape(id),
		fallback: "failed to delete assignment",
	}, nil)
}

// SubmitAssignment issues POST assignment/:id/submit.
func (c *Client) SubmitAssignment(ctx context.Context, id string, payload dto.SubmissionPayload) (models.Assignment, error) {
	var updated models.Assignment
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/assignment/" + url.PathEscape(id) + "/submit",
		body:     payload,
		fallback: "failed to submit assignment",
	}, &updated)
	return updated, err
}

// GradeSubmission updates one submission's grade and teacher comments. The assignment
// version travels in If-Match; a stale version comes back as a 409 APIError.
func (c *Client) GradeSubmission(ctx context.Context, assignmentID, submissionID string, grade dto.GradeRequest) (models.Assignment, error) {
	headers := map[string]string{}
	if grade.Version > 0 {
		headers["If-Match"] = strconv.FormatInt(grade.Version, 10)
	}

	var updated models.Assignment
	err := c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/assignment/" + url.PathEscape(assignmentID) + "/submissions/" + url.PathEscape(submissionID),
		body:     grade,
		headers:  headers,
		fallback: "failed to save grade",
	}, &updated)
	return updated, err
}
