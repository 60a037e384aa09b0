package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/pkg/logger"
)

const (
	defaultAttemptRetentionDays = 90
	defaultSessionSpec          = "@hourly"
	defaultCacheSpec            = "@hourly"
	defaultRecordSpec           = "@daily"
)

// Cleaner coordinates background maintenance: purging expired sessions,
// evicting dead cache entries, and pruning stale verification tokens and
// recorded signup attempts.
type Cleaner struct {
	db        *gorm.DB
	sessions  *iauth.SessionService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	sessionSchedule string
	cacheSchedule   string
	recordSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAttemptRetentionDays adjusts how long recorded signup attempts are kept.
func WithAttemptRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache eviction.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithRecordSchedule overrides the cron specification for record pruning.
func WithRecordSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.recordSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil session
// service simply skips the session job.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		sessions:        sessions,
		now:             time.Now,
		retention:       defaultAttemptRetentionDays,
		sessionSchedule: defaultSessionSpec,
		cacheSchedule:   defaultCacheSpec,
		recordSchedule:  defaultRecordSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := CleanupCacheEntries(context.Background(), c.db, c.now()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}

		if _, err := c.cron.AddFunc(c.recordSchedule, func() {
			if _, err := CleanupRecords(context.Background(), c.db, c.now(), c.retention); err != nil {
				c.log.Warn("record cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupCacheEntries(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
		if _, err := CleanupRecords(ctx, c.db, c.now(), c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupCacheEntries removes cache rows whose expiry has passed. Rows with
// a zero expiry never expire and are left alone.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil database handle")
	}

	res := db.WithContext(ctx).
		Where("expires_at > ? AND expires_at <= ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup cache entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CleanupRecords prunes expired email verification tokens, pending invites
// past their expiry, and recorded signup attempts older than the retention
// window.
func CleanupRecords(ctx context.Context, db *gorm.DB, now time.Time, retentionDays int) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil database handle")
	}

	var total int64

	res := db.WithContext(ctx).
		Where("expires_at <= ? AND verified_at IS NULL", now).
		Delete(&models.EmailVerification{})
	if res.Error != nil {
		return total, fmt.Errorf("cleanup email verifications: %w", res.Error)
	}
	total += res.RowsAffected

	// Pending invites with a zero expiry stay open indefinitely.
	res = db.WithContext(ctx).
		Where("status = ? AND expires_at > ? AND expires_at <= ?",
			models.InviteStatusPending, time.Time{}, now).
		Delete(&models.Invite{})
	if res.Error != nil {
		return total, fmt.Errorf("cleanup expired invites: %w", res.Error)
	}
	total += res.RowsAffected

	if retentionDays > 0 {
		cutoff := now.AddDate(0, 0, -retentionDays)
		res = db.WithContext(ctx).
			Where("created_at <= ?", cutoff).
			Delete(&models.AttemptedSignup{})
		if res.Error != nil {
			return total, fmt.Errorf("cleanup attempted signups: %w", res.Error)
		}
		total += res.RowsAffected
	}

	return total, nil
}
