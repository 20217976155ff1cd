package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom/internal/models"
)

// ErrVersionConflict indicates the stored assignment changed since the caller read it.
var ErrVersionConflict = errors.New("assignment version conflict")

// AssignmentFilter describes which assignments to list and how to page them.
type AssignmentFilter struct {
	AssignmentID  string
	ClassIDs      []string
	TeacherID     string
	PublishedOnly bool
	Search        string
	Sort          string
	Page          int
	PageSize      int
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	ListWithFilter(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id string) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) ListWithFilter(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{})

	if filter.AssignmentID != "" {
		query = query.Where("id = ?", filter.AssignmentID)
	}

	switch {
	case filter.TeacherID != "" && len(filter.ClassIDs) > 0:
		query = query.Where("teacher_id = ? OR class_id IN ?", filter.TeacherID, filter.ClassIDs)
	case filter.TeacherID != "":
		query = query.Where("teacher_id = ?", filter.TeacherID)
	case filter.ClassIDs != nil:
		if len(filter.ClassIDs) == 0 {
			return []models.Assignment{}, 0, nil
		}
		query = query.Where("class_id IN ?", filter.ClassIDs)
	}

	if filter.PublishedOnly {
		query = query.Where("status = ?", models.AssignmentStatusPublished)
	}

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeAssignmentSort(filter.Sort)).Order("id ASC")

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	for i := range assignments {
		if err := assignments[i].DecodeSubmissions(); err != nil {
			return nil, 0, err
		}
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return models.Assignment{}, err
	}

	if err := assignment.DecodeSubmissions(); err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.Version <= 0 {
		assignment.Version = 1
	}
	if err := assignment.EncodeSubmissions(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

// Update rewrites the whole assignment document when its stored version still equals
// expectedVersion, and bumps the version. A zero expectedVersion skips the check.
func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment, expectedVersion int64) error {
	if err := assignment.EncodeSubmissions(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Assignment
		if err := tx.Select("id", "version", "created_at").Where("id = ?", assignment.ID).First(&current).Error; err != nil {
			return err
		}
		if expectedVersion > 0 && current.Version != expectedVersion {
			return ErrVersionConflict
		}

		next := current.Version + 1
		result := tx.Model(&models.Assignment{}).
			Where("id = ? AND version = ?", assignment.ID, current.Version).
			Updates(map[string]interface{}{
				"title":       assignment.Title,
				"description": assignment.Description,
				"due_date":    assignment.DueDate,
				"status":      assignment.Status,
				"class_id":    assignment.ClassID,
				"teacher_id":  assignment.TeacherID,
				"submissions": assignment.SubmissionData,
				"version":     next,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		assignment.Version = next
		assignment.CreatedAt = current.CreatedAt
		return nil
	})
}

func (r *assignmentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Assignment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "duedate", "due_date", "duedate:asc", "due_date:asc":
		return "due_date ASC"
	case "-duedate", "-due_date", "duedate:desc", "due_date:desc":
		return "due_date DESC"
	case "createdat", "created_at", "createdat:asc", "created_at:asc":
		return "created_at ASC"
	case "-createdat", "-created_at", "createdat:desc", "created_at:desc":
		return "created_at DESC"
	case "updatedat", "updated_at":
		return "updated_at ASC"
	case "-updatedat", "-updated_at":
		return "updated_at DESC"
	case "title", "title:asc":
		return "title ASC"
	case "-title", "title:desc":
		return "title DESC"
	default:
		return "due_date ASC"
	}
}
