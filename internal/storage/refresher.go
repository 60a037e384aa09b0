package storage

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/pkg/logger"
)

const (
	// RefreshFloor is the minimum delay before a scheduled refresh fires.
	RefreshFloor = 30 * time.Second

	// RetryBackoff is the base delay between attempts after a failed refresh.
	RetryBackoff = 60 * time.Second

	// jitterFraction spreads scheduled refreshes by ±10% so many watchers of
	// the same object do not re-sign in lockstep.
	jitterFraction = 0.10
)

// Refresher keeps signed URLs fresh by re-signing each watched object
// shortly before its URL expires. A failed refresh keeps the last known URL
// and retries indefinitely.
type Refresher struct {
	signer  *URLSigner
	backoff time.Duration
	floor   time.Duration
	jitter  func() float64 // uniform in [0, 1)
	now     func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	tracked map[string]func()
	closed  bool
}

// RefresherOption customises a Refresher.
type RefresherOption func(*Refresher)

// WithRetryBackoff overrides the delay between failed refresh attempts.
func WithRetryBackoff(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// WithRefreshFloor overrides the minimum scheduling delay.
func WithRefreshFloor(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.floor = d
		}
	}
}

// WithJitterSource overrides the randomness source used for jitter.
func WithJitterSource(jitter func() float64) RefresherOption {
	return func(r *Refresher) {
		if jitter != nil {
			r.jitter = jitter
		}
	}
}

// WithRefresherClock overrides the refresher's time source.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRefresher builds a Refresher over the given signer.
func NewRefresher(signer *URLSigner, opts ...RefresherOption) *Refresher {
	refresher := &Refresher{
		signer:  signer,
		backoff: RetryBackoff,
		floor:   RefreshFloor,
		jitter:  rand.Float64,
		now:     time.Now,
		log:     logger.WithModule("storage.refresher"),
		tracked: make(map[string]func()),
	}
	for _, opt := range opts {
		opt(refresher)
	}
	return refresher
}

type watch struct {
	mu       sync.Mutex
	stopped  bool
	onUpdate func(SignedURL)
}

func (w *watch) notify(url SignedURL) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped && w.onUpdate != nil {
		w.onUpdate(url)
	}
}

func (w *watch) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

// Watch resolves a signed URL for bucket/path, delivers it (and every
// subsequent renewal) to onUpdate, and keeps it fresh until the returned
// stop function is called. After stop returns, onUpdate is never invoked
// again and no timers remain.
func (r *Refresher) Watch(bucket, path string, onUpdate func(SignedURL)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{onUpdate: onUpdate}

	go r.run(ctx, bucket, path, w)

	return func() {
		w.stop()
		cancel()
	}
}

// Track keeps the signed URL for bucket/path warm: renewals land in the
// shared cache, so readers keep hitting fresh URLs without re-signing on
// the request path. Tracking an already-tracked object is a no-op.
func (r *Refresher) Track(bucket, path string) {
	if path == "" {
		return
	}
	key := cache.SignedURLKey(bucket, path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.tracked[key]; ok {
		return
	}
	r.tracked[key] = r.Watch(bucket, path, nil)
}

// Untrack stops keeping bucket/path warm. Call it when the object is
// removed so a watch cannot re-cache a URL for a dead path.
func (r *Refresher) Untrack(bucket, path string) {
	key := cache.SignedURLKey(bucket, path)

	r.mu.Lock()
	stop := r.tracked[key]
	delete(r.tracked, key)
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Tracking reports whether bucket/path is currently kept warm.
func (r *Refresher) Tracking(bucket, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[cache.SignedURLKey(bucket, path)]
	return ok
}

// Close stops every tracked watch. The refresher accepts no new tracks
// afterwards.
func (r *Refresher) Close() {
	r.mu.Lock()
	stops := make([]func(), 0, len(r.tracked))
	for _, stop := range r.tracked {
		stops = append(stops, stop)
	}
	r.tracked = make(map[string]func())
	r.closed = true
	r.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (r *Refresher) run(ctx context.Context, bucket, path string, w *watch) {
	var last SignedURL

	attempt := func(force bool) time.Duration {
		var (
			url SignedURL
			err error
		)
		if force {
			url, err = r.signer.Refresh(ctx, bucket, path)
		} else {
			url, err = r.signer.Get(ctx, bucket, path)
		}
		if err != nil {
			// Keep serving the last known URL and try again later.
			r.log.Warn("signed url refresh failed",
				zap.String("bucket", bucket),
				zap.String("path", path),
				zap.Error(err))
			return r.applyJitter(r.backoff)
		}

		if url != last {
			last = url
			w.notify(url)
		}
		return r.nextDelay(url.ExpiresAt)
	}

	timer := time.NewTimer(attempt(false))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(attempt(true))
		}
	}
}

// nextDelay schedules the refresh at SafetyMargin before expiry, jittered.
func (r *Refresher) nextDelay(expiresAt time.Time) time.Duration {
	return r.applyJitter(expiresAt.Sub(r.now()) - SafetyMargin)
}

func (r *Refresher) applyJitter(base time.Duration) time.Duration {
	spread := 1 - jitterFraction + 2*jitterFraction*r.jitter()
	jittered := time.Duration(float64(base) * spread)
	if jittered < r.floor {
		return r.floor
	}
	return jittered
}
