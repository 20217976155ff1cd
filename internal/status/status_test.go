package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/models"
)

func TestDeriveForAuthors(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	teacher := Viewer{ID: "t1", Role: authz.RoleTeacher}

	draft := models.Assignment{Status: models.AssignmentStatusDraft, DueDate: now.Add(-time.Hour)}
	published := models.Assignment{Status: models.AssignmentStatusPublished, DueDate: now.Add(-time.Hour)}

	require.Equal(t, Draft, Derive(draft, teacher, now))
	require.Equal(t, Published, Derive(published, teacher, now))
	require.Equal(t, Draft, Derive(models.Assignment{}, teacher, now))
}

func TestDeriveSubmittedMatchesNestedReference(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var assignment models.Assignment
	require.NoError(t, json.Unmarshal([]byte(`{
		"_id": "a1",
		"status": "published",
		"dueDate": "2025-03-09T00:00:00Z",
		"submissions": [
			{"_id": "s1", "studentId": "someone-else", "link": "https://x"},
			{"_id": "s2", "studentId": {"_id": "stu-1", "name": "Ana"}, "link": "https://y"}
		]
	}`), &assignment))

	viewer := Viewer{ID: "stu-1", Role: authz.RoleStudent}
	require.Equal(t, Submitted, Derive(assignment, viewer, now))
}

func TestDeriveSubmittedMatchesBareReference(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assignment := models.Assignment{
		DueDate:     now.Add(48 * time.Hour),
		Submissions: []models.Submission{{ID: "s1", StudentID: models.NewRef("stu-1")}},
	}

	require.Equal(t, Submitted, Derive(assignment, Viewer{ID: "stu-1", Role: authz.RoleStudent}, now))
}

func TestDeriveOverdueAndPending(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	viewer := Viewer{ID: "stu-1", Role: authz.RoleStudent}
	other := []models.Submission{{ID: "s1", StudentID: models.NewRef("stu-2")}}

	yesterday := models.Assignment{DueDate: now.Add(-24 * time.Hour), Submissions: other}
	tomorrow := models.Assignment{DueDate: now.Add(24 * time.Hour), Submissions: other}

	require.Equal(t, Overdue, Derive(yesterday, viewer, now))
	require.Equal(t, Pending, Derive(tomorrow, viewer, now))
}

func TestDeriveIsDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assignment := models.Assignment{DueDate: now.Add(-time.Minute)}
	viewer := Viewer{ID: "stu-1", Role: authz.RoleStudent}

	first := Derive(assignment, viewer, now)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Derive(assignment, viewer, now))
	}
}

func TestDeriveIgnoresEmptyViewerID(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assignment := models.Assignment{
		DueDate:     now.Add(time.Hour),
		Submissions: []models.Submission{{ID: "s1"}},
	}

	require.Equal(t, Pending, Derive(assignment, Viewer{Role: authz.RoleStudent}, now))
}
