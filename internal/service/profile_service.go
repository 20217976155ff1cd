package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/repository"
)

// ErrProfileNotFound indicates the caller has no profile.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileService resolves the signed-in user's profile.
type ProfileService interface {
	Get(ctx context.Context, id string) (dto.ProfileResponse, error)
}

type profileService struct {
	repo     repository.ProfileRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewProfileService constructs a profile service. A nil cache disables caching.
func NewProfileService(repo repository.ProfileRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProfileService {
	return &profileService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "profile_service").Logger(),
	}
}

func (s *profileService) Get(ctx context.Context, id string) (dto.ProfileResponse, error) {
	cacheKey := fmt.Sprintf("profile:%s", id)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ProfileResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("profile_id", id).Msg("profile cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read profile cache")
		}
	}

	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProfileResponse{}, ErrProfileNotFound
		}
		return dto.ProfileResponse{}, err
	}
	response := dto.NewProfileResponse(profile)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store profile cache")
			}
		}
	}

	return response, nil
}
