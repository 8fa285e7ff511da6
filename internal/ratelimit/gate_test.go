package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// frozenGate returns a gate whose clock never moves, so reserve's returned
// waits are the slot offsets from the start.
func frozenGate(cfg GateConfig) *CallGate {
	g := NewCallGate(cfg)
	t0 := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return t0 }
	return g
}

func TestReserve_SpacingAndWindow(t *testing.T) {
	g := frozenGate(GateConfig{MinInterval: 20 * time.Second, PerWindow: 3, Window: time.Minute})

	want := []time.Duration{0, 20 * time.Second, 40 * time.Second, 60 * time.Second, 80 * time.Second}
	for i, w := range want {
		if got := g.reserve(); got != w {
			t.Errorf("slot %d: wait = %v, want %v", i, got, w)
		}
	}
}

func TestReserve_WindowCapWithoutSpacing(t *testing.T) {
	g := frozenGate(GateConfig{PerWindow: 3, Window: time.Minute})

	want := []time.Duration{0, 0, 0, time.Minute, time.Minute, time.Minute, 2 * time.Minute}
	var slots []time.Duration
	for i, w := range want {
		got := g.reserve()
		slots = append(slots, got)
		if got != w {
			t.Errorf("slot %d: wait = %v, want %v", i, got, w)
		}
	}
	assertRollingWindow(t, slots, 3, time.Minute)
}

func TestReserve_NeverExceedsQuota(t *testing.T) {
	g := frozenGate(GateConfig{MinInterval: 5 * time.Second, PerWindow: 3, Window: time.Minute})
	var slots []time.Duration
	for i := 0; i < 20; i++ {
		slots = append(slots, g.reserve())
	}
	assertRollingWindow(t, slots, 3, time.Minute)
	for i := 1; i < len(slots); i++ {
		if gap := slots[i] - slots[i-1]; gap < 5*time.Second {
			t.Errorf("slots %d and %d only %v apart", i-1, i, gap)
		}
	}
}

// assertRollingWindow checks that no half-open window of length w holds
// more than n starts.
func assertRollingWindow(t *testing.T, slots []time.Duration, n int, w time.Duration) {
	t.Helper()
	for i := n; i < len(slots); i++ {
		if slots[i]-slots[i-n] < w {
			t.Errorf("starts %v..%v: %d calls within %v", slots[i-n], slots[i], n+1, w)
		}
	}
}

func TestAcquire_LimitsConcurrency(t *testing.T) {
	g := NewCallGate(GateConfig{MaxConcurrent: 2})

	var mu sync.Mutex
	inFlight, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestAcquire_SpacesStarts(t *testing.T) {
	g := NewCallGate(GateConfig{MaxConcurrent: 3, MinInterval: 40 * time.Millisecond})

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	// Two gaps of 40ms; allow timer slack.
	if spread := last.Sub(first); spread < 70*time.Millisecond {
		t.Errorf("expected starts spread >= 70ms, got %v", spread)
	}
}

func TestAcquire_FIFOAdmission(t *testing.T) {
	g := NewCallGate(GateConfig{MaxConcurrent: 1})

	hold, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			release()
		}(i)
		// Let each waiter queue before the next one arrives.
		time.Sleep(10 * time.Millisecond)
	}
	hold()
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("admission order = %v, want [0 1 2 3]", order)
		}
	}
}

func TestAcquire_Cancelled(t *testing.T) {
	g := NewCallGate(GateConfig{MinInterval: time.Hour})

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	release()
	release() // second call is a no-op

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	// The cancelled waiter gave back its semaphore slot.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, err := g.Acquire(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected spacing wait to time out, got %v", err)
	}
	if !g.sem.TryAcquire(1) {
		t.Error("semaphore slot leaked by cancelled acquire")
	}
}
