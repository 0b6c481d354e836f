package codegen

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/linkforge/shortlink/internal/model"
)

func TestGenerator_FixedWidthAndDistinct(t *testing.T) {
	g := New(Config{ShardBits: 10}, nil)

	a, err := g.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	b, err := g.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(a) != codeLen || len(b) != codeLen {
		t.Fatalf("want %d-byte codes, got %q (%d) and %q (%d)", codeLen, a, len(a), b, len(b))
	}
	if a == b {
		t.Fatalf("two successful Next() calls produced the same code: %q", a)
	}
}

// Concurrent callers racing the same shard counter must never collide.
func TestGenerator_ConcurrentUnique(t *testing.T) {
	g := New(Config{ShardBits: 8}, nil)

	const goroutines = 16
	const perGoroutine = 2000

	var mu sync.Mutex
	seen := make(map[string]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			local := make([]string, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				c, err := g.Next()
				if err != nil {
					errs <- err
					return
				}
				local = append(local, c)
			}
			mu.Lock()
			for _, c := range local {
				if _, dup := seen[c]; dup {
					errs <- errInternal("duplicate code " + c)
				}
				seen[c] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("want %d distinct codes, got %d", goroutines*perGoroutine, len(seen))
	}
}

func TestGenerator_Overflow(t *testing.T) {
	g := New(Config{ShardBits: 8, MaxAttempts: 3}, nil)
	for i := range g.counters {
		g.counters[i].Store(math.MaxUint64)
	}
	for i := 0; i < 5; i++ {
		if _, err := g.Next(); !errors.Is(err, model.ErrOverflow) {
			t.Fatalf("want ErrOverflow, got %v", err)
		}
	}
}

func TestGenerator_MonotonicPerShard(t *testing.T) {
	g := New(Config{ShardBits: 8}, nil)
	shard := 3
	var last uint64
	for i := 0; i < 1000; i++ {
		v := g.counters[shard].Add(1) - 1
		if i > 0 && v <= last {
			t.Fatalf("counter not strictly increasing: prev=%d cur=%d", last, v)
		}
		last = v
	}
}

type errInternal string

func (e errInternal) Error() string { return string(e) }
