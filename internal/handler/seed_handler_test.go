package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/handler"
	"github.com/noah-isme/gema-classroom/internal/service"
)

type mockSeedService struct {
	profilesErr  error
	classesErr   error
	lastToken    string
	lastProfiles []dto.ProfileSeed
	lastClasses  []dto.ClassSeed
	affected     int64
}

func (m *mockSeedService) SeedProfiles(_ context.Context, token string, items []dto.ProfileSeed) (int64, error) {
	m.lastToken = token
	m.lastProfiles = items
	if m.profilesErr != nil {
		return 0, m.profilesErr
	}
	return m.affected, nil
}

func (m *mockSeedService) SeedClasses(_ context.Context, token string, items []dto.ClassSeed) (int64, error) {
	m.lastToken = token
	m.lastClasses = items
	if m.classesErr != nil {
		return 0, m.classesErr
	}
	return m.affected, nil
}

func newSeedApp(svc *mockSeedService) *fiber.App {
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/seed"))
	return app
}

func postSeed(t *testing.T, app *fiber.App, path string, body []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/seed/"+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SeedTokenHeader, "secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func seedItems[T any](t *testing.T, items ...T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string][]T{"items": items})
	require.NoError(t, err)
	return body
}

func TestSeedHandler_ProfilesSuccess(t *testing.T) {
	svc := &mockSeedService{affected: 2}
	resp := postSeed(t, newSeedApp(svc), "profiles", seedItems(t,
		dto.ProfileSeed{ID: "t1", Name: "Bu Sari", Email: "sari@example.com", Role: "teacher"},
		dto.ProfileSeed{ID: "s1", Name: "Ana", Email: "ana@example.com", Role: "student"},
	))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Affected int64 `json:"affected"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &response)

	require.True(t, response.Success)
	require.Equal(t, int64(2), response.Data.Affected)
	require.Equal(t, "secret", svc.lastToken)
	require.Len(t, svc.lastProfiles, 2)
}

func TestSeedHandler_ClassesErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err     error
		status  int
		message string
	}{
		"disabled":     {err: service.ErrSeedDisabled, status: fiber.StatusForbidden, message: "seeding disabled"},
		"unauthorized": {err: service.ErrSeedUnauthorized, status: fiber.StatusForbidden, message: "invalid token"},
		"generic":      {err: errors.New("boom"), status: fiber.StatusInternalServerError, message: "seed operation failed"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &mockSeedService{classesErr: tc.err}
			resp := postSeed(t, newSeedApp(svc), "classes", seedItems(t,
				dto.ClassSeed{ID: "c1", ClassName: "XI RPL 1", Students: []string{"s1"}},
			))
			require.Equal(t, tc.status, resp.StatusCode)

			var response struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			decodeResponse(t, resp, &response)
			require.False(t, response.Success)
			require.Equal(t, tc.message, response.Message)
			require.Len(t, svc.lastClasses, 1)
		})
	}
}

func TestSeedHandler_InvalidPayload(t *testing.T) {
	svc := &mockSeedService{}
	resp := postSeed(t, newSeedApp(svc), "profiles", []byte("not json"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Nil(t, svc.lastProfiles)
}
