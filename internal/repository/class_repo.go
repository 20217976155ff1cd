package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-classroom/internal/models"
)

// ClassRepository provides access to classes and their rosters.
type ClassRepository interface {
	IDsForMember(ctx context.Context, profileID, role string) ([]string, error)
	HasMember(ctx context.Context, classID, profileID, role string) (bool, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Class, error)
	UpsertBatch(ctx context.Context, classes []models.Class) (int64, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs a class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

// IDsForMember returns the classes the profile belongs to with the given member role.
func (r *classRepository) IDsForMember(ctx context.Context, profileID, role string) ([]string, error) {
	ids := make([]string, 0)
	err := r.db.WithContext(ctx).
		Model(&models.ClassMember{}).
		Where("profile_id = ? AND role = ?", profileID, role).
		Distinct().
		Pluck("class_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// HasMember reports whether the profile belongs to the class with the given member role.
func (r *classRepository) HasMember(ctx context.Context, classID, profileID, role string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ClassMember{}).
		Where("class_id = ? AND profile_id = ? AND role = ?", classID, profileID, role).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *classRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Class, error) {
	if len(ids) == 0 {
		return []models.Class{}, nil
	}

	var classes []models.Class
	if err := r.db.WithContext(ctx).Preload("Members").Where("id IN ?", ids).Find(&classes).Error; err != nil {
		return nil, err
	}
	for i := range classes {
		classes[i].SplitMembers()
	}
	return classes, nil
}

// UpsertBatch stores the classes and replaces each roster with the given members.
func (r *classRepository) UpsertBatch(ctx context.Context, classes []models.Class) (int64, error) {
	if len(classes) == 0 {
		return 0, nil
	}

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range classes {
			class := classes[i]
			members := class.Members
			class.Members = nil

			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"classname", "course_id", "quantity", "status", "updated_at"}),
			}).Create(&class)
			if result.Error != nil {
				return result.Error
			}
			affected += result.RowsAffected

			if err := tx.Where("class_id = ?", class.ID).Delete(&models.ClassMember{}).Error; err != nil {
				return err
			}
			for j := range members {
				members[j].ID = 0
				members[j].ClassID = class.ID
			}
			if len(members) > 0 {
				if err := tx.Create(&members).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
