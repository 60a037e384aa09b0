package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artisanhq/atelier/pkg/logger"
	"github.com/artisanhq/atelier/pkg/metrics"
)

// Default lifetimes for the application's cached read models.
const (
	ProfileSummaryTTL = 5 * time.Minute
	ProductListTTL    = 24 * time.Hour
)

// ProfileSummaryKey returns the cache key holding a user's profile summary.
func ProfileSummaryKey(userID string) string {
	return "profiles:summary:" + userID
}

// ProductListKey is the cache key holding the full product catalogue.
const ProductListKey = "products:list"

// SignedURLKey returns the cache key holding a signed URL for an object.
func SignedURLKey(bucket, objectPath string) string {
	return fmt.Sprintf("storage:signedurl:%s:%s", bucket, objectPath)
}

// KV is a fail-soft JSON layer over a Store. Reads that fail for any reason
// behave as misses and writes that fail are logged and dropped, so callers
// always fall back to the source of truth instead of surfacing cache errors.
type KV struct {
	store Store
	log   *zap.Logger
}

// NewKV wraps a Store with JSON codec and fail-soft semantics.
func NewKV(store Store) *KV {
	return &KV{store: store, log: logger.WithModule("cache")}
}

// ReadJSON loads the value at key into dest. It reports true only when a
// fresh, decodable entry was found.
func (kv *KV) ReadJSON(ctx context.Context, key string, dest any) bool {
	if kv == nil || kv.store == nil {
		return false
	}

	raw, ok, err := kv.store.Get(ctx, key)
	if err != nil {
		kv.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheLookups.WithLabelValues(keyNamespace(key), "error").Inc()
		return false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(keyNamespace(key), "miss").Inc()
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		kv.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		_ = kv.store.Delete(ctx, key)
		metrics.CacheLookups.WithLabelValues(keyNamespace(key), "error").Inc()
		return false
	}

	metrics.CacheLookups.WithLabelValues(keyNamespace(key), "hit").Inc()
	return true
}

// WriteJSON stores value at key for ttl. Failures are logged, never returned.
func (kv *KV) WriteJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if kv == nil || kv.store == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		kv.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	if err := kv.store.Set(ctx, key, raw, ttl); err != nil {
		kv.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Remove drops the given keys, ignoring failures.
func (kv *KV) Remove(ctx context.Context, keys ...string) {
	if kv == nil || kv.store == nil || len(keys) == 0 {
		return
	}

	if err := kv.store.Delete(ctx, keys...); err != nil {
		kv.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func keyNamespace(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
