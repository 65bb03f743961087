package queue

import (
	"sync"
	"testing"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	cases := []int{0, 1, 3, 5, 100}
	for _, c := range cases {
		if _, err := New[int](c); err == nil {
			t.Errorf("New(%d): expected error, got nil", c)
		}
	}
}

func TestNewAcceptsPowerOfTwo(t *testing.T) {
	cases := []int{2, 4, 8, 1024, 65536}
	for _, c := range cases {
		q, err := New[int](c)
		if err != nil {
			t.Errorf("New(%d): unexpected error: %v", c, err)
		}
		if q.Cap() != c {
			t.Errorf("Cap() = %d, want %d", q.Cap(), c)
		}
	}
}

func TestPushPopFIFO(t *testing.T) {
	q, _ := New[int](8)
	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) unexpectedly failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() %d: ok=false", i)
		}
		if v != i {
			t.Errorf("Pop() = %d, want %d (order violated)", v, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue: expected ok=false")
	}
}

func TestPushFullDropsAndCounts(t *testing.T) {
	q, _ := New[int](4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) should have succeeded", i)
		}
	}
	if q.Push(99) {
		t.Error("Push on full queue should return false")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
}

func TestLenTracksOccupancy(t *testing.T) {
	q, _ := New[int](8)
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	q.Push(1)
	q.Push(2)
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestWrapAround(t *testing.T) {
	q, _ := New[int](4)
	// Fill, drain, fill again past the physical end of the buffer to
	// exercise the mask wrap.
	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			v := round*4 + i
			if !q.Push(v) {
				t.Fatalf("round %d: Push(%d) failed", round, v)
			}
		}
		for i := 0; i < 4; i++ {
			want := round*4 + i
			got, ok := q.Pop()
			if !ok || got != want {
				t.Fatalf("round %d: Pop() = (%d, %v), want (%d, true)", round, got, ok, want)
			}
		}
	}
}

// TestConcurrentSPSC exercises the single-producer/single-consumer contract
// under the race detector: one goroutine pushes a monotonic sequence, one
// goroutine drains it, and we assert no value is lost, duplicated, or
// reordered.
func TestConcurrentSPSC(t *testing.T) {
	const n = 200_000
	q, _ := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !q.Push(i) {
				// spin until the consumer drains a slot
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			received = append(received, v)
		}
	}()

	wg.Wait()

	for i, v := range received {
		if v != i {
			t.Fatalf("order violated at index %d: got %d", i, v)
		}
	}
}
