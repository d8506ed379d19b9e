package ratelimit

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestLimiterPerKey(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0.001) {
		t.Fatalf("first call must pass")
	}
	if l.Allow("a", 1, 0.001) {
		t.Fatalf("second call must be throttled")
	}
	if !l.Allow("b", 1, 0.001) {
		t.Fatalf("other keys have their own bucket")
	}
}

func TestJitterBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		d := Jitter(r, time.Second, 3*time.Second)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
	if Jitter(r, 2*time.Second, time.Second) != 2*time.Second {
		t.Fatalf("inverted window returns min")
	}
}

func TestPacerSpacesConcurrentReservations(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPacer(time.Second, 2*time.Second)
	p.nowFn = func() time.Time { return base }

	var (
		mu    sync.Mutex
		waits []time.Duration
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := p.Reserve()
			mu.Lock()
			waits = append(waits, w)
			mu.Unlock()
		}()
	}
	wg.Wait()

	zero := 0
	for _, w := range waits {
		if w == 0 {
			zero++
		}
	}
	if zero != 1 {
		t.Fatalf("exactly one caller may go immediately, got %d", zero)
	}
	if got := p.Last().Sub(base); got < 4*time.Second || got > 8*time.Second {
		t.Fatalf("last slot should be 4 gaps ahead, got %v", got)
	}
}
