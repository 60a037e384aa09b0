package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/artisanhq/atelier/internal/auth"
	testutil "github.com/artisanhq/atelier/internal/database/testutil"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/pkg/crypto"
)

func TestCleanupCacheEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	expired := models.CacheEntry{
		Key:       "products:list",
		Value:     []byte("[]"),
		ExpiresAt: now.Add(-time.Hour),
	}
	active := models.CacheEntry{
		Key:       "profiles:summary:user-1",
		Value:     []byte("{}"),
		ExpiresAt: now.Add(time.Hour),
	}
	eternal := models.CacheEntry{
		Key:   "pinned",
		Value: []byte("1"),
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&eternal).Error)

	removed, err := CleanupCacheEntries(context.Background(), db, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.ElementsMatch(t, []string{"profiles:summary:user-1", "pinned"}, keys)
}

func TestCleanupRecords(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	user := createCleanupUser(t, db, "records")

	staleVerification := models.EmailVerification{
		UserID:    user.ID,
		TokenHash: "stale",
		ExpiresAt: now.Add(-time.Hour),
	}
	liveVerification := models.EmailVerification{
		UserID:    user.ID,
		TokenHash: "live",
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&staleVerification).Error)
	require.NoError(t, db.Create(&liveVerification).Error)

	oldAttempt := models.AttemptedSignup{Email: "old@example.com"}
	require.NoError(t, db.Create(&oldAttempt).Error)
	require.NoError(t, db.Model(&models.AttemptedSignup{}).
		Where("id = ?", oldAttempt.ID).
		Update("created_at", now.AddDate(0, 0, -120)).Error)

	recentAttempt := models.AttemptedSignup{Email: "recent@example.com"}
	require.NoError(t, db.Create(&recentAttempt).Error)
	require.NoError(t, db.Model(&models.AttemptedSignup{}).
		Where("id = ?", recentAttempt.ID).
		Update("created_at", now.AddDate(0, 0, -5)).Error)

	usedAt := now.AddDate(0, 0, -40)
	invites := []models.Invite{
		{Email: "lapsed@example.com", Status: models.InviteStatusPending, ExpiresAt: now.Add(-time.Hour)},
		{Email: "open@example.com", Status: models.InviteStatusPending, ExpiresAt: now.Add(time.Hour)},
		{Email: "eternal@example.com", Status: models.InviteStatusPending},
		{Email: "joined@example.com", Status: models.InviteStatusUsed, UsedAt: &usedAt, ExpiresAt: now.Add(-time.Hour)},
	}
	for i := range invites {
		require.NoError(t, db.Create(&invites[i]).Error)
	}

	removed, err := CleanupRecords(context.Background(), db, now, 90)
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)

	var remaining []models.Invite
	require.NoError(t, db.Order("email").Find(&remaining).Error)
	require.Len(t, remaining, 3)
	require.Equal(t, "eternal@example.com", remaining[0].Email)
	require.Equal(t, "joined@example.com", remaining[1].Email)
	require.Equal(t, "open@example.com", remaining[2].Email)

	var verifications []models.EmailVerification
	require.NoError(t, db.Find(&verifications).Error)
	require.Len(t, verifications, 1)
	require.Equal(t, "live", verifications[0].TokenHash)

	var attempts []models.AttemptedSignup
	require.NoError(t, db.Find(&attempts).Error)
	require.Len(t, attempts, 1)
	require.Equal(t, "recent@example.com", attempts[0].Email)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "maintenance-suite-secret-key-32-bytes!!",
		Issuer:         "atelier-test",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: 24 * time.Hour,
		Clock:           func() time.Time { return now },
	})
	require.NoError(t, err)

	user := createCleanupUser(t, db, "runonce")

	expiredSession := models.Session{
		UserID:       user.ID,
		RefreshToken: "expired-hash",
		ExpiresAt:    now.Add(-time.Hour),
	}
	require.NoError(t, db.Create(&expiredSession).Error)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "products:list",
		Value:     []byte("[]"),
		ExpiresAt: now.Add(-time.Minute),
	}).Error)

	cleaner := NewCleaner(db, sessions,
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithNow(func() time.Time { return now }),
	)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var sessionCount int64
	require.NoError(t, db.Model(&models.Session{}).Count(&sessionCount).Error)
	require.Zero(t, sessionCount)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.Zero(t, cacheCount)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(db, nil, WithCron(scheduler))

	require.NoError(t, cleaner.Start())
	require.Len(t, scheduler.Entries(), 2)
	<-cleaner.Stop().Done()
}

func createCleanupUser(t *testing.T, db *gorm.DB, slug string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password-123")
	require.NoError(t, err)

	user := &models.User{
		Email:    slug + "@example.com",
		Password: hashed,
		Role:     models.RoleUser,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
