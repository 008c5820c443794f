package sequence_test

import (
	"sync"
	"testing"

	"github.com/uhyunpark/spotdex/pkg/sequence"
)

func TestNextIsMonotonic(t *testing.T) {
	s := sequence.New(0)
	for want := uint64(1); want <= 10; want++ {
		if got := s.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
	if got := s.Current(); got != 10 {
		t.Errorf("Current() = %d, want 10", got)
	}
}

func TestNewStartsAfterSeed(t *testing.T) {
	s := sequence.New(100)
	if got := s.Next(); got != 101 {
		t.Errorf("Next() after seed 100 = %d, want 101", got)
	}
}

func TestNextIsUniqueUnderConcurrency(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 1000

	s := sequence.New(0)
	ids := make(chan uint64, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ids <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, goroutines*perGoroutine)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != goroutines*perGoroutine {
		t.Errorf("issued %d ids, want %d", len(seen), goroutines*perGoroutine)
	}
}
