package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

func TestWait_SameKey_EnforcesMinDelay(t *testing.T) {
	limiter := NewKeyedLimiter(100 * time.Millisecond)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Allow 80ms for timer jitter.
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentKeys_NoCrossBlocking(t *testing.T) {
	limiter := NewKeyedLimiter(200 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("greenhouse wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "remoteok"); err != nil {
		t.Fatalf("remoteok wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected remoteok wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_ConcurrentCallersQueue(t *testing.T) {
	limiter := NewKeyedLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx, "lever"); err != nil {
				t.Errorf("wait: %v", err)
			}
		}()
	}
	wg.Wait()

	// Three callers need two full gaps.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected >= 90ms for three queued callers, got %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewKeyedLimiter(5 * time.Second)

	if err := limiter.Wait(context.Background(), "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Wait(ctx, "greenhouse")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type recordingSource struct {
	called bool
}

func (s *recordingSource) Name() string { return "greenhouse-acme" }

func (s *recordingSource) FetchJobs(_ context.Context) ([]model.RawJob, error) {
	s.called = true
	return nil, nil
}

func TestRateLimitedSource_WaitsBeforeDelegating(t *testing.T) {
	limiter := NewKeyedLimiter(100 * time.Millisecond)
	inner := &recordingSource{}
	src := NewRateLimitedSource(inner, limiter, "greenhouse")
	ctx := context.Background()

	if src.Name() != "greenhouse-acme" {
		t.Errorf("Name() = %q, want greenhouse-acme", src.Name())
	}

	if _, err := src.FetchJobs(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner source was not called on first fetch")
	}
	inner.called = false

	start := time.Now()
	if _, err := src.FetchJobs(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner source was not called on second fetch")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait on second fetch, got %v", elapsed)
	}
}

func TestRateLimitedSource_CancelledWaitIsSourceUnavailable(t *testing.T) {
	limiter := NewKeyedLimiter(5 * time.Second)
	inner := &recordingSource{}
	src := NewRateLimitedSource(inner, limiter, "greenhouse")

	if _, err := src.FetchJobs(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	inner.called = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.FetchJobs(ctx)
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if inner.called {
		t.Error("inner source should not be called after a cancelled wait")
	}
}
