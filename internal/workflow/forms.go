package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
)

// ErrValidation marks input rejected before any request is made.
var ErrValidation = errors.New("validation failed")

// CreateForm is the create-assignment form. Only presence of title, due date and class is
// checked locally.
type CreateForm struct {
	Title       string                  `json:"title" validate:"required"`
	Description string                  `json:"description"`
	DueDate     string                  `json:"dueDate" validate:"required"`
	ClassID     string                  `json:"classId" validate:"required"`
	Status      models.AssignmentStatus `json:"status"`
}

func (f CreateForm) trimmed() CreateForm {
	f.Title = strings.TrimSpace(f.Title)
	f.DueDate = strings.TrimSpace(f.DueDate)
	f.ClassID = strings.TrimSpace(f.ClassID)
	return f
}

func (f CreateForm) fields() dto.AssignmentFields {
	status := f.Status
	if status == "" {
		status = models.AssignmentStatusDraft
	}
	return dto.AssignmentFields{
		Title:       f.Title,
		Description: f.Description,
		DueDate:     f.DueDate,
		ClassID:     f.ClassID,
		Status:      status,
	}
}

// SubmitForm is the student's submission form.
type SubmitForm struct {
	Link     string `json:"link" validate:"required"`
	Comments string `json:"comments"`
}

type editCheck struct {
	Title   string    `json:"title" validate:"required"`
	DueDate time.Time `json:"dueDate" validate:"required"`
	ClassID string    `json:"classId" validate:"required"`
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return validate
}

// checkRequired validates v and turns missing fields into one ErrValidation.
func checkRequired(validate *validator.Validate, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	missing := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
}
