package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces requests so that consecutive slots are separated by a
// random interval drawn from [min, max]. Slots are reserved under a lock,
// so concurrent callers queue behind each other instead of bursting.
type Pacer struct {
	mu    sync.Mutex
	min   time.Duration
	max   time.Duration
	last  time.Time
	rnd   *rand.Rand
	nowFn func() time.Time
}

func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{
		min:   min,
		max:   max,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn: time.Now,
	}
}

// Jitter returns a random duration in [min, max].
func Jitter(r *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.Int63n(int64(max-min)+1))
}

// Reserve books the next request slot and returns how long to wait for it.
func (p *Pacer) Reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFn()
	next := now
	if !p.last.IsZero() {
		if slot := p.last.Add(Jitter(p.rnd, p.min, p.max)); slot.After(now) {
			next = slot
		}
	}
	p.last = next
	return next.Sub(now)
}

// Wait reserves a slot and sleeps until it arrives.
func (p *Pacer) Wait(ctx context.Context) error {
	return Sleep(ctx, p.Reserve())
}

// Last reports the most recently reserved request time.
func (p *Pacer) Last() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
