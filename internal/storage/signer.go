package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/pkg/logger"
	"github.com/artisanhq/atelier/pkg/metrics"
)

// SafetyMargin is how long before its recorded expiry a signed URL is
// treated as stale and re-signed.
const SafetyMargin = 60 * time.Second

// DefaultSignTTL is the lifetime requested for newly signed URLs.
const DefaultSignTTL = time.Hour

// Presigner issues time-limited download URLs for stored objects.
type Presigner interface {
	PresignURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, time.Time, error)
}

// SignedURL is a renewable download URL together with its expiry.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the URL is still safely usable at the given instant.
func (u SignedURL) Fresh(now time.Time) bool {
	return u.URL != "" && now.Add(SafetyMargin).Before(u.ExpiresAt)
}

// URLSigner caches signed URLs per (bucket, path) and guarantees at most one
// outstanding presign request per key: concurrent callers for the same key
// share the result of a single network call.
type URLSigner struct {
	presigner Presigner
	kv        *cache.KV
	signTTL   time.Duration
	group     singleflight.Group
	now       func() time.Time
	log       *zap.Logger
}

// SignerOption customises a URLSigner.
type SignerOption func(*URLSigner)

// WithSignTTL overrides the lifetime requested for new URLs.
func WithSignTTL(ttl time.Duration) SignerOption {
	return func(s *URLSigner) {
		if ttl > 0 {
			s.signTTL = ttl
		}
	}
}

// WithSignerClock overrides the signer's time source.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *URLSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewURLSigner builds a URLSigner over the given presigner and cache store.
func NewURLSigner(presigner Presigner, store cache.Store, opts ...SignerOption) *URLSigner {
	signer := &URLSigner{
		presigner: presigner,
		kv:        cache.NewKV(store),
		signTTL:   DefaultSignTTL,
		now:       time.Now,
		log:       logger.WithModule("storage.signer"),
	}
	for _, opt := range opts {
		opt(signer)
	}
	return signer
}

// Get returns a signed URL for bucket/path, serving from cache while the
// cached URL has more than SafetyMargin left, and re-signing otherwise.
func (s *URLSigner) Get(ctx context.Context, bucket, path string) (SignedURL, error) {
	key := cache.SignedURLKey(bucket, path)

	var cached SignedURL
	if s.kv.ReadJSON(ctx, key, &cached) && cached.Fresh(s.now()) {
		return cached, nil
	}

	return s.sign(ctx, bucket, path, false)
}

// Refresh re-signs bucket/path even when a fresh URL is cached. Concurrent
// refreshes for the same key still collapse to one network call.
func (s *URLSigner) Refresh(ctx context.Context, bucket, path string) (SignedURL, error) {
	return s.sign(ctx, bucket, path, true)
}

func (s *URLSigner) sign(ctx context.Context, bucket, path string, force bool) (SignedURL, error) {
	key := cache.SignedURLKey(bucket, path)

	result, err, _ := s.group.Do(key, func() (any, error) {
		if !force {
			// A concurrent caller may have repopulated the cache while we
			// waited our turn.
			var cached SignedURL
			if s.kv.ReadJSON(ctx, key, &cached) && cached.Fresh(s.now()) {
				return cached, nil
			}
		}

		url, expiresAt, err := s.presigner.PresignURL(ctx, bucket, path, s.signTTL)
		if err != nil {
			metrics.SignedURLRequests.WithLabelValues("failure").Inc()
			return SignedURL{}, err
		}
		metrics.SignedURLRequests.WithLabelValues("success").Inc()

		signed := SignedURL{URL: url, ExpiresAt: expiresAt}
		s.kv.WriteJSON(ctx, key, signed, expiresAt.Sub(s.now()))
		return signed, nil
	})
	if err != nil {
		return SignedURL{}, err
	}

	return result.(SignedURL), nil
}

// Invalidate drops the cached URL for bucket/path, typically after the
// underlying object is deleted or replaced.
func (s *URLSigner) Invalidate(ctx context.Context, bucket, path string) {
	s.kv.Remove(ctx, cache.SignedURLKey(bucket, path))
}
