package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

// KeyedLimiter enforces a minimum delay between requests that share a key,
// typically the backend a source talks to ("greenhouse", "remoteok").
type KeyedLimiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // key: backend, value: earliest next slot
	minDelay time.Duration
}

// NewKeyedLimiter creates a limiter that spaces requests with the same key
// at least minDelay apart.
func NewKeyedLimiter(minDelay time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until the caller's slot for key arrives. Slots are reserved
// under the lock, so concurrent callers queue up instead of bursting.
func (r *KeyedLimiter) Wait(ctx context.Context, key string) error {
	r.mu.Lock()
	now := time.Now()
	slot := now
	if next, ok := r.next[key]; ok && next.After(now) {
		slot = next
	}
	r.next[key] = slot.Add(r.minDelay)
	r.mu.Unlock()

	remaining := time.Until(slot)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RateLimitedSource is a decorator that waits on a shared limiter before
// delegating to the wrapped source.
type RateLimitedSource struct {
	inner   model.Source
	limiter *KeyedLimiter
	key     string
}

// NewRateLimitedSource wraps a Source. All sources that hit the same backend
// should share the same limiter and key.
func NewRateLimitedSource(inner model.Source, limiter *KeyedLimiter, key string) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
		key:     key,
	}
}

// Name returns the wrapped source's name.
func (s *RateLimitedSource) Name() string { return s.inner.Name() }

// FetchJobs waits for the limiter, then delegates to the wrapped source.
// A cancelled wait is reported as the source being unavailable.
func (s *RateLimitedSource) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	if err := s.limiter.Wait(ctx, s.key); err != nil {
		return nil, model.NewSourceUnavailable(s.inner.Name(), err)
	}
	return s.inner.FetchJobs(ctx)
}
