package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type capturedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	captured := &[]capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = append(*captured, capturedRequest{Method: r.Method, Path: r.URL.Path, Headers: r.Header.Clone(), Body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestListAssignmentsSendsQueryAndToken(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{
		"success": true,
		"message": "assignments retrieved",
		"data": {
			"data": [{"_id": "a1", "title": "Essay", "status": "published", "classId": {"_id": "c1", "classname": "X-1"}, "submissions": []}],
			"pagination": {"page": 2, "pageSize": 5, "totalItems": 6, "totalPages": 2}
		}
	}`)

	c := New(server.URL+"/api/", staticToken("tok-123"), zerolog.Nop())
	page, err := c.ListAssignments(context.Background(), dto.AssignmentQuery{
		Action:     authz.ActionByTeacher,
		AuthID:     "t1",
		SearchTerm: "ess",
		Page:       2,
		PageSize:   5,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, "X-1", page.Data[0].ClassID.Label())
	require.Equal(t, 2, page.Pagination.TotalPages)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/api/assignment/get", req.Path)
	require.Equal(t, "Bearer tok-123", req.Headers.Get("Authorization"))
	require.NotEmpty(t, req.Headers.Get("X-Correlation-ID"))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	require.Equal(t, "getByTeacherId", sent["action"])
	require.Equal(t, "t1", sent["authId"])
	require.Equal(t, "ess", sent["searchTerm"])
}

func TestErrorMessageComesFromBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusForbidden, `{"success": false, "message": "insufficient permissions"}`)
	c := New(server.URL, staticToken(""), zerolog.Nop())

	err := c.DeleteAssignment(context.Background(), "a1")
	require.Error(t, err)
	require.Equal(t, "insufficient permissions", err.Error())
	require.True(t, IsStatus(err, http.StatusForbidden))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestErrorMessageFallsBackWhenBodyUnreadable(t *testing.T) {
	server, _ := newTestServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := New(server.URL, staticToken("t"), zerolog.Nop())

	_, err := c.CreateAssignment(context.Background(), "t1", dto.AssignmentFields{Title: "x"})
	require.EqualError(t, err, "failed to create assignment")
	require.True(t, IsStatus(err, http.StatusBadGateway))
}

func TestMissingTokenIsStillSent(t *testing.T) {
	server, captured := newTestServer(t, http.StatusUnauthorized, `{"success": false, "message": "invalid token"}`)
	c := New(server.URL, nil, zerolog.Nop())

	_, err := c.GetUserProfile(context.Background())
	require.EqualError(t, err, "invalid token")
	require.Len(t, *captured, 1, "request issued without local token validation")
	require.Equal(t, "Bearer ", (*captured)[0].Headers.Get("Authorization"))
}

func TestGradeSubmissionSendsVersion(t *testing.T) {
	server, captured := newTestServer(t, http.StatusConflict, `{"success": false, "message": "assignment was modified by someone else"}`)
	c := New(server.URL, staticToken("t"), zerolog.Nop())

	grade := 85.0
	_, err := c.GradeSubmission(context.Background(), "a1", "s/2", dto.GradeRequest{Grade: &grade, TeacherComments: "Good", Version: 4})
	require.True(t, IsConflict(err))

	req := (*captured)[0]
	require.Equal(t, http.MethodPatch, req.Method)
	require.Equal(t, "/assignment/a1/submissions/s/2", req.Path)
	require.Equal(t, "4", req.Headers.Get("If-Match"))
}

func TestGetAssignmentNotFound(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"success": true, "data": {"data": [], "pagination": {}}}`)
	c := New(server.URL, staticToken("t"), zerolog.Nop())

	_, err := c.GetAssignment(context.Background(), "missing")
	require.True(t, IsStatus(err, http.StatusNotFound))

	var sent dto.AssignmentQuery
	require.NoError(t, json.Unmarshal((*captured)[0].Body, &sent))
	require.Equal(t, authz.ActionByAssignment, sent.Action)
	require.Equal(t, "missing", sent.AssignmentID)
}

func TestUpdateAssignmentSendsFullDocument(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"success": true, "data": {"_id": "a1", "title": "New", "version": 3}}`)
	c := New(server.URL, staticToken("t"), zerolog.Nop())

	updated, err := c.UpdateAssignment(context.Background(), models.Assignment{
		ID:          "a1",
		Title:       "New",
		Version:     2,
		Submissions: []models.Submission{{ID: "s1", StudentID: models.NewRef("u1")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), updated.Version)

	req := (*captured)[0]
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, "/assignment/a1", req.Path)
	require.Contains(t, string(req.Body), `"submissions":[{"_id":"s1"`)
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{}
	c := New("http://api.test", staticToken("tok"), zerolog.Nop(), WithHTTPClient(shared), WithTimeout(5*time.Second))
	require.Zero(t, shared.Timeout)
	require.Equal(t, 5*time.Second, c.http.Timeout)
	require.NotSame(t, shared, c.http)

	c = New("http://api.test", staticToken("tok"), zerolog.Nop(), WithHTTPClient(shared))
	require.Same(t, shared, c.http)
	require.Zero(t, c.http.Timeout)
}
