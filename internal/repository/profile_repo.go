package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-classroom/internal/models"
)

// ProfileRepository provides access to user profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (models.Profile, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
	UpsertBatch(ctx context.Context, profiles []models.Profile) (int64, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (r *profileRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}

	var profiles []models.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepository) UpsertBatch(ctx context.Context, profiles []models.Profile) (int64, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "address", "account_id", "role_id", "role_name", "updated_at"}),
	}).Create(&profiles)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
