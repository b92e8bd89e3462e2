package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHostLimiterPoliteness(t *testing.T) {
	t.Parallel()

	t.Run("second dispatch to a host waits for the delay", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(LimiterOptions{PerHost: 1, Global: 2, Delay: 80 * time.Millisecond})
		ctx := context.Background()

		release, err := l.Acquire(ctx, "ex.com")
		if err != nil {
			t.Fatal(err)
		}
		first := time.Now()
		release()

		release, err = l.Acquire(ctx, "ex.com")
		if err != nil {
			t.Fatal(err)
		}
		release()

		if elapsed := time.Since(first); elapsed < 70*time.Millisecond {
			t.Errorf("expected at least ~80ms between dispatches, got %v", elapsed)
		}
	})

	t.Run("different hosts do not wait for each other", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(LimiterOptions{PerHost: 1, Global: 2, Delay: time.Second})
		ctx := context.Background()

		start := time.Now()
		for _, host := range []string{"a.example", "b.example"} {
			release, err := l.Acquire(ctx, host)
			if err != nil {
				t.Fatal(err)
			}
			release()
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("expected no delay across hosts, got %v", elapsed)
		}
	})

	t.Run("jitter scales the delay into [0.5, 1.5)", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(LimiterOptions{Delay: time.Second, Jitter: true})
		for _, r := range []float64{0, 0.25, 0.999} {
			l.random = func() float64 { return r }
			got := l.nextDelay()
			want := time.Duration(float64(time.Second) * (0.5 + r))
			if got != want {
				t.Errorf("random %v: expected %v, got %v", r, want, got)
			}
			if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
				t.Errorf("delay %v outside [0.5s, 1.5s)", got)
			}
		}
	})

	t.Run("cancelled context aborts the wait and frees the slots", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(LimiterOptions{PerHost: 1, Global: 1, Delay: time.Hour})
		release, err := l.Acquire(context.Background(), "ex.com")
		if err != nil {
			t.Fatal(err)
		}
		release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := l.Acquire(ctx, "ex.com"); err == nil {
			t.Fatal("expected context error")
		}

		// The global slot must be free again for another host.
		release, err = l.Acquire(context.Background(), "other.example")
		if err != nil {
			t.Fatalf("expected global slot to be released, got %v", err)
		}
		release()
	})
}

func TestHostLimiterConcurrency(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(LimiterOptions{PerHost: 2, Global: 3})

	var active, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "ex.com")
			if err != nil {
				t.Error(err)
				return
			}
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("per-host limit of 2 exceeded: peak %d", peak.Load())
	}
}
