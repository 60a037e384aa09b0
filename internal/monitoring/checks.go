package monitoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/cache"
)

const defaultProbeTimeout = 2 * time.Second

// BucketChecker is the slice of the object store a bucket probe needs.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// DatabaseCheck returns a readiness probe that pings the database handle.
func DatabaseCheck(db *gorm.DB, timeout time.Duration) Check {
	return NewCheck("database", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if db == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		return ResultFromError("database", sqlDB.PingContext(probeCtx), time.Since(start))
	})
}

// CacheCheck returns a readiness probe that round-trips a value through the
// shared cache store.
func CacheCheck(store cache.Store, timeout time.Duration) Check {
	return NewCheck("cache", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if store == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "cache store not configured",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		key := "monitoring:probe"
		if err := store.Set(probeCtx, key, []byte("ok"), time.Minute); err != nil {
			return ResultFromError("cache", err, time.Since(start))
		}
		if _, found, err := store.Get(probeCtx, key); err != nil {
			return ResultFromError("cache", err, time.Since(start))
		} else if !found {
			return ProbeResult{
				Status:   StatusDegraded,
				Details:  "cache store dropped probe key",
				Duration: time.Since(start),
			}
		}
		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

// BucketsCheck returns a readiness probe that verifies the media buckets
// still exist on the object store.
func BucketsCheck(store BucketChecker, timeout time.Duration, buckets ...string) Check {
	return NewCheck("object-storage", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if store == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "object storage not configured",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		var missing []string
		for _, bucket := range buckets {
			exists, err := store.BucketExists(probeCtx, bucket)
			if err != nil {
				return ResultFromError("object-storage", err, time.Since(start))
			}
			if !exists {
				missing = append(missing, bucket)
			}
		}
		if len(missing) > 0 {
			return ProbeResult{
				Status:   StatusDown,
				Details:  fmt.Sprintf("missing buckets: %s", strings.Join(missing, ", ")),
				Duration: time.Since(start),
			}
		}
		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

func chooseTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultProbeTimeout
	}
	return timeout
}
