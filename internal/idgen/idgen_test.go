package idgen

import (
	"sync"
	"testing"
	"time"
)

func TestNext_strictlyIncreasing(t *testing.T) {
	g := New()
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestNext_frozenClock(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := &Generator{now: func() time.Time { return fixed }}
	a, b := g.Next(), g.Next()
	if b <= a {
		t.Errorf("ids must increase with a frozen clock: %d then %d", a, b)
	}
	if got := a >> randomBits; got != fixed.UnixMilli() {
		t.Errorf("id %d encodes %d ms, want %d", a, got, fixed.UnixMilli())
	}
}

func TestNext_clockGoesBackwards(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g := &Generator{now: func() time.Time { return now }}
	a := g.Next()
	now = now.Add(-time.Hour)
	b := g.Next()
	if b <= a {
		t.Errorf("ids must increase when the clock goes backwards: %d then %d", a, b)
	}
}

func TestNext_positiveAndConcurrentUnique(t *testing.T) {
	const workers, perWorker = 8, 500
	seen := make(map[int64]struct{}, workers*perWorker)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := Next()
				if id <= 0 {
					t.Errorf("id must be positive, got %d", id)
				}
				mu.Lock()
				if _, dup := seen[id]; dup {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
