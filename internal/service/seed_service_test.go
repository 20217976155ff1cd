package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/dto"
	"github.com/noah-isme/gema-classroom/internal/models"
)

func TestSeedServiceTokenGuard(t *testing.T) {
	f := newServiceFixture(t)
	validate := validator.New(validator.WithRequiredStructEnabled())

	disabled := NewSeedService(f.profiles, f.classes, validate, false, "secret", testLogger())
	_, err := disabled.SeedProfiles(context.Background(), "secret", nil)
	require.ErrorIs(t, err, ErrSeedDisabled)

	svc := NewSeedService(f.profiles, f.classes, validate, true, "secret", testLogger())
	_, err = svc.SeedProfiles(context.Background(), "wrong", []dto.ProfileSeed{{Name: "Test", Email: "t@example.com", Role: "student"}})
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	noToken := NewSeedService(f.profiles, f.classes, validate, true, "", testLogger())
	_, err = noToken.SeedProfiles(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrSeedUnauthorized)
}

func TestSeedProfilesAndClasses(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewSeedService(f.profiles, f.classes, validator.New(validator.WithRequiredStructEnabled()), true, "secret", testLogger())

	affected, err := svc.SeedProfiles(context.Background(), "secret", []dto.ProfileSeed{
		{ID: "s9", Name: "Citra", Email: " Citra@Example.com ", Role: "Student"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	profile, err := f.profiles.GetByID(context.Background(), "s9")
	require.NoError(t, err)
	require.Equal(t, "citra@example.com", profile.Email)
	require.Equal(t, "student", profile.RoleName)

	_, err = svc.SeedProfiles(context.Background(), "secret", []dto.ProfileSeed{{Name: "No email", Role: "student"}})
	require.Error(t, err)

	affected, err = svc.SeedClasses(context.Background(), "secret", []dto.ClassSeed{
		{ID: "c9", ClassName: "XII TKJ", Teachers: []string{"t1"}, Students: []string{"s9", "s1"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	ids, err := f.classes.IDsForMember(context.Background(), "s9", models.ClassMemberStudent)
	require.NoError(t, err)
	require.Equal(t, []string{"c9"}, ids)

	classes, err := f.classes.GetByIDs(context.Background(), []string{"c9"})
	require.NoError(t, err)
	require.Equal(t, 2, classes[0].Quantity)
}
