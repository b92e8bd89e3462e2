package crawler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// LimiterOptions configures a HostLimiter.
type LimiterOptions struct {
	// PerHost is the maximum number of concurrent fetches to one host.
	PerHost int

	// Global is the maximum number of concurrent fetches overall.
	Global int

	// Delay is the politeness delay between dispatches to the same host.
	Delay time.Duration

	// Jitter multiplies each delay by a random factor in [0.5, 1.5).
	Jitter bool

	// RatePerSecond additionally caps dispatches per host with a token
	// bucket. Zero disables it.
	RatePerSecond float64
}

// HostLimiter enforces per-host and global concurrency and per-host politeness.
//
// The politeness delay is a per-host reservation of the next allowed
// dispatch time. A dispatch reserves its slot under the lock and waits
// outside it, so the delay separates dispatches even when per-host
// concurrency is above one.
type HostLimiter struct {
	perHost int64
	global  *semaphore.Weighted
	delay   time.Duration
	jitter  bool
	rps     float64
	random  func() float64

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	sem     *semaphore.Weighted
	next    time.Time
	limiter *rate.Limiter
}

// NewHostLimiter creates a limiter. Non-positive concurrency values are
// raised to one.
func NewHostLimiter(opts LimiterOptions) *HostLimiter {
	perHost := max(opts.PerHost, 1)
	global := max(opts.Global, 1)
	return &HostLimiter{
		perHost: int64(perHost),
		global:  semaphore.NewWeighted(int64(global)),
		delay:   opts.Delay,
		jitter:  opts.Jitter,
		rps:     opts.RatePerSecond,
		random:  rand.Float64,
		hosts:   make(map[string]*hostSlot),
	}
}

// Acquire blocks until a fetch to host may be dispatched. It takes the
// host slot, then the global slot, then waits out the politeness delay.
// The returned release function frees both slots and must be called once.
func (l *HostLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	slot := l.slot(host)

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.global.Acquire(ctx, 1); err != nil {
		slot.sem.Release(1)
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.global.Release(1)
			slot.sem.Release(1)
		})
	}

	if err := l.wait(ctx, slot); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// slot returns the state for host, creating it on first use.
func (l *HostLimiter) slot(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.hosts[host]
	if !ok {
		s = &hostSlot{sem: semaphore.NewWeighted(l.perHost)}
		if l.rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(l.rps), 1)
		}
		l.hosts[host] = s
	}
	return s
}

// wait reserves the next dispatch time for the host and sleeps until it.
func (l *HostLimiter) wait(ctx context.Context, slot *hostSlot) error {
	l.mu.Lock()
	now := time.Now()
	start := slot.next
	if start.Before(now) {
		start = now
	}
	slot.next = start.Add(l.nextDelay())
	l.mu.Unlock()

	if err := sleepContext(ctx, time.Until(start)); err != nil {
		return err
	}
	if slot.limiter != nil {
		return slot.limiter.Wait(ctx)
	}
	return nil
}

// nextDelay returns the delay to leave after a dispatch. Must hold l.mu.
func (l *HostLimiter) nextDelay() time.Duration {
	if l.delay <= 0 {
		return 0
	}
	if !l.jitter {
		return l.delay
	}
	factor := 0.5 + l.random()
	return time.Duration(float64(l.delay) * factor)
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
