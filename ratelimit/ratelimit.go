// Package ratelimit implements the sliding-window request limiter that
// paces every outbound fetch.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limits holds the request ceilings per window. A zero ceiling disables
// that window.
type Limits struct {
	PerSecond int
	PerMinute int
	PerHour   int
}

// DefaultLimits returns conservative ceilings suitable for a hobby blog.
func DefaultLimits() Limits {
	return Limits{
		PerSecond: 1,
		PerMinute: 30,
		PerHour:   500,
	}
}

// Limiter counts recent request timestamps against per-second, per-minute,
// and per-hour ceilings. Wait blocks the caller until issuing one more
// request stays under every ceiling, then records the request.
//
// When a window is at capacity the limiter sleeps until the start of the
// next window boundary rather than until one slot frees. The pacing is
// deliberately coarse: bursts are allowed up to a ceiling, then the caller
// parks until the window rolls over.
type Limiter struct {
	limits Limits
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu         sync.Mutex
	timestamps []time.Time
}

// New builds a limiter with the given ceilings.
func New(limits Limits) *Limiter {
	return &Limiter{
		limits: limits,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

type window struct {
	size  time.Duration
	limit int
}

// Wait blocks until a request may be issued, then records its timestamp.
// It returns early only when ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		delay := l.nextDelay(now)
		if delay <= 0 {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// nextDelay returns how long the caller must park before any window has
// room, or zero when all ceilings have headroom. Caller holds l.mu.
func (l *Limiter) nextDelay(now time.Time) time.Duration {
	windows := []window{
		{time.Second, l.limits.PerSecond},
		{time.Minute, l.limits.PerMinute},
		{time.Hour, l.limits.PerHour},
	}

	var delay time.Duration
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		if l.countSince(now.Add(-w.size)) < w.limit {
			continue
		}
		// Sleep to the start of the next boundary-aligned window.
		wait := w.size - now.Sub(now.Truncate(w.size))
		if wait > delay {
			delay = wait
		}
	}
	return delay
}

func (l *Limiter) countSince(cutoff time.Time) int {
	n := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// prune drops timestamps older than the largest window so the log stays
// bounded. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	idx := 0
	for idx < len(l.timestamps) && !l.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[idx:]...)
	}
}

// Recorded returns the number of timestamps currently tracked.
func (l *Limiter) Recorded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timestamps)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
