package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
	"github.com/noah-isme/gema-classroom/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads profiles and class rosters for local development and tests.
type SeedService interface {
	SeedProfiles(ctx context.Context, token string, items []dto.ProfileSeed) (int64, error)
	SeedClasses(ctx context.Context, token string, items []dto.ClassSeed) (int64, error)
}

type seedService struct {
	profiles  repository.ProfileRepository
	classes   repository.ClassRepository
	validator *validator.Validate
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(profiles repository.ProfileRepository, classes repository.ClassRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		profiles:  profiles,
		classes:   classes,
		validator: validate,
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedProfiles(ctx context.Context, token string, items []dto.ProfileSeed) (int64, error) {
	if err := s.guard(token); err != nil {
		return 0, err
	}

	profiles := make([]models.Profile, 0, len(items))
	for _, item := range items {
		if err := s.validator.Struct(item); err != nil {
			return 0, err
		}
		role := authz.ParseRole(item.Role)
		profiles = append(profiles, models.Profile{
			ID:        idOrNew(item.ID),
			Name:      strings.TrimSpace(item.Name),
			Email:     strings.ToLower(strings.TrimSpace(item.Email)),
			Phone:     item.Phone,
			Address:   item.Address,
			AccountID: uuid.NewString(),
			RoleID:    role.String(),
			RoleName:  role.String(),
		})
	}

	affected, err := s.profiles.UpsertBatch(ctx, profiles)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Msg("profiles seeded")
	return affected, nil
}

func (s *seedService) SeedClasses(ctx context.Context, token string, items []dto.ClassSeed) (int64, error) {
	if err := s.guard(token); err != nil {
		return 0, err
	}

	classes := make([]models.Class, 0, len(items))
	for _, item := range items {
		if err := s.validator.Struct(item); err != nil {
			return 0, err
		}
		class := models.Class{
			ID:        idOrNew(item.ID),
			ClassName: strings.TrimSpace(item.ClassName),
			CourseID:  models.NewRef(item.CourseID),
			Quantity:  item.Quantity,
			Status:    item.Status,
		}
		for _, teacher := range item.Teachers {
			class.Members = append(class.Members, models.ClassMember{ProfileID: teacher, Role: models.ClassMemberTeacher})
		}
		for _, student := range item.Students {
			class.Members = append(class.Members, models.ClassMember{ProfileID: student, Role: models.ClassMemberStudent})
		}
		if class.Quantity == 0 {
			class.Quantity = len(item.Students)
		}
		classes = append(classes, class)
	}

	affected, err := s.classes.UpsertBatch(ctx, classes)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Msg("classes seeded")
	return affected, nil
}

func (s *seedService) guard(token string) error {
	if !s.enabled {
		return ErrSeedDisabled
	}
	expected := strings.TrimSpace(s.token)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) != 1 {
		return ErrSeedUnauthorized
	}
	return nil
}

func idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
