package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/models"
)

func setupProfileService(t *testing.T) (*ProfileService, cache.Store, *models.User) {
	t.Helper()

	db := setupServiceDB(t)
	store := cache.NewMemoryStore()

	users, err := NewUserService(db)
	require.NoError(t, err)
	user, err := users.Create(context.Background(), RegisterInput{
		Email:    "painter@example.com",
		Password: "pw",
		Name:     "Painter",
	})
	require.NoError(t, err)

	svc, err := NewProfileService(db, store)
	require.NoError(t, err)

	return svc, store, user
}

func TestSummaryReadsThroughAndCaches(t *testing.T) {
	ctx := context.Background()
	svc, store, user := setupProfileService(t)

	summary, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "Painter", summary.Name)
	require.False(t, summary.OnboardingStep2Done)

	_, ok, err := store.Get(ctx, cache.ProfileSummaryKey(user.ID))
	require.NoError(t, err)
	require.True(t, ok, "summary must be cached after a read-through")
}

func TestUpdateRefreshesCachedSummaryIdempotently(t *testing.T) {
	ctx := context.Background()
	svc, store, user := setupProfileService(t)

	location := "Lisbon"
	_, err := svc.Update(ctx, user.ID, UpdateProfileInput{Location: &location})
	require.NoError(t, err)

	first, ok, err := store.Get(ctx, cache.ProfileSummaryKey(user.ID))
	require.NoError(t, err)
	require.True(t, ok)

	// Repeating the identical save leaves the cached value unchanged.
	_, err = svc.Update(ctx, user.ID, UpdateProfileInput{Location: &location})
	require.NoError(t, err)

	second, _, err := store.Get(ctx, cache.ProfileSummaryKey(user.ID))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))

	summary, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "Lisbon", summary.Location)
}

func TestCompleteOnboardingRequiresAvatarAndLocation(t *testing.T) {
	ctx := context.Background()
	svc, _, user := setupProfileService(t)

	require.Error(t, svc.CompleteOnboarding(ctx, user.ID))

	require.NoError(t, svc.SetAvatar(ctx, user.ID, "users/"+user.ID+"/avatar.png"))
	require.Error(t, svc.CompleteOnboarding(ctx, user.ID), "location still missing")

	location := "Porto"
	_, err := svc.Update(ctx, user.ID, UpdateProfileInput{Location: &location})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteOnboarding(ctx, user.ID))

	summary, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, summary.OnboardingStep2Done)
}
