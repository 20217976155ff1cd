package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/middleware"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/service"
	"github.com/noah-isme/gema-classroom/internal/utils"
)

// AssignmentHandler wires assignment HTTP routes.
type AssignmentHandler struct {
	service    service.AssignmentService
	writeLimit fiber.Handler
	logger     zerolog.Logger
}

// NewAssignmentHandler constructs the handler. writeLimit guards submit and grade; nil
// disables it.
func NewAssignmentHandler(service service.AssignmentService, writeLimit fiber.Handler, logger zerolog.Logger) *AssignmentHandler {
	if writeLimit == nil {
		writeLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AssignmentHandler{
		service:    service,
		writeLimit: writeLimit,
		logger:     logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	author := middleware.RequireCapability(authz.Role.CanAuthorAssignments)

	router.Post("/get", h.query)
	router.Post("/create", author, h.create)
	router.Put("/:id", author, h.update)
	router.Delete("/:id", author, h.delete)
	router.Post("/:id/submit", middleware.RequireCapability(authz.Role.CanSubmitWork), h.writeLimit, h.submit)
	router.Patch("/:id/submissions/:submissionId", middleware.RequireCapability(authz.Role.CanGrade), h.writeLimit, h.grade)
}

func (h *AssignmentHandler) query(c *fiber.Ctx) error {
	var payload dto.AssignmentQuery
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	page, err := h.service.Query(c.UserContext(), callerFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", page)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.service.Create(c.UserContext(), callerFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "assignment created", assignment)
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	var payload models.Assignment
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if version, ok := ifMatchVersion(c); ok {
		payload.Version = version
	}

	assignment, err := h.service.Update(c.UserContext(), callerFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment updated", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(c.UserContext(), callerFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment deleted", fiber.Map{"_id": id})
}

func (h *AssignmentHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionPayload
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.service.Submit(c.UserContext(), callerFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment submitted", assignment)
}

func (h *AssignmentHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if version, ok := ifMatchVersion(c); ok {
		payload.Version = version
	}

	assignment, err := h.service.Grade(c.UserContext(), callerFromContext(c), c.Params("id"), c.Params("submissionId"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderETag, strconv.Quote(strconv.FormatInt(assignment.Version, 10)))
	return utils.SendSuccess(c, "submission graded", assignment)
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "you do not have access to this assignment")
	case errors.Is(err, service.ErrVersionConflict):
		return utils.SendError(c, fiber.StatusConflict, "assignment was changed by someone else")
	case errors.Is(err, service.ErrAssignmentNotPublished):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidQuery), errors.Is(err, service.ErrInvalidAssignment):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(err))
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// ifMatchVersion reads the expected version from an If-Match header such as "3" or W/"3".
func ifMatchVersion(c *fiber.Ctx) (int64, bool) {
	value := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if value == "" {
		return 0, false
	}
	value = strings.Trim(strings.TrimPrefix(value, "W/"), `"`)
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version < 0 {
		return 0, false
	}
	return version, true
}
