package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// GateConfig bounds calls to a quota-limited external service.
type GateConfig struct {
	MaxConcurrent int           // in-flight calls, default 1
	MinInterval   time.Duration // minimum spacing between call starts
	PerWindow     int           // max call starts in any Window, 0 disables
	Window        time.Duration // rolling window, default one minute
}

// CallGate admits calls in request order, at most MaxConcurrent at a time,
// with starts spaced by MinInterval and never more than PerWindow starts in
// any rolling Window. Every attempt, retries included, must pass the gate.
type CallGate struct {
	sem *semaphore.Weighted // FIFO admission

	mu          sync.Mutex
	minInterval time.Duration
	perWindow   int
	window      time.Duration
	starts      []time.Time // reserved start times, ascending
	now         func() time.Time
}

// NewCallGate creates a gate from cfg.
func NewCallGate(cfg GateConfig) *CallGate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &CallGate{
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		minInterval: cfg.MinInterval,
		perWindow:   cfg.PerWindow,
		window:      cfg.Window,
		now:         time.Now,
	}
}

// Acquire blocks until the caller may start a call. The returned release
// must be called when the call finishes. A cancelled caller keeps its
// reserved slot, so cancellations never let later calls start sooner.
func (g *CallGate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("call gate: %w", err)
	}

	wait := g.reserve()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			g.sem.Release(1)
			return nil, fmt.Errorf("call gate: %w", ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, nil
}

// reserve books the next start slot and returns how long to wait for it.
func (g *CallGate) reserve() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	slot := now
	if n := len(g.starts); n > 0 {
		if next := g.starts[n-1].Add(g.minInterval); next.After(slot) {
			slot = next
		}
	}
	if g.perWindow > 0 && len(g.starts) >= g.perWindow {
		// The perWindow-th most recent start must have left the window.
		if free := g.starts[len(g.starts)-g.perWindow].Add(g.window); free.After(slot) {
			slot = free
		}
	}

	g.starts = append(g.starts, slot)
	g.prune(slot)
	return slot.Sub(now)
}

// prune drops starts that can no longer affect a slot at or after t.
func (g *CallGate) prune(t time.Time) {
	cutoff := t.Add(-g.window)
	i := 0
	for i < len(g.starts)-1 && !g.starts[i].After(cutoff) {
		i++
	}
	g.starts = g.starts[i:]
}
