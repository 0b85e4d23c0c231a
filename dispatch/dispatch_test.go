package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSynchronous(t *testing.T) {
	d := NewSynchronous()
	ran := false
	d.Dispatch(func() {
		ran = true
	})
	if !ran {
		t.Fatal("task should run inline")
	}
}

func TestGo(t *testing.T) {
	d := NewGo()
	var wg sync.WaitGroup
	var n int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		d.Dispatch(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	if n != 10 {
		t.Fatalf("got %d tasks", n)
	}
}

func TestWorkQueue(t *testing.T) {
	d := NewWorkQueue(4)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		d.Dispatch(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 20 {
		t.Fatalf("got %d tasks", len(order))
	}
	for i, x := range order {
		if i != x {
			t.Fatalf("task %d ran at position %d", x, i)
		}
	}

	// After Close, a dispatch is dropped, not run.
	d.Dispatch(func() {
		t.Fatal("task ran after Close")
	})
	time.Sleep(10 * time.Millisecond)
}

func TestRingBuffer(t *testing.T) {
	// Small ring so producers block and wrap.
	d := NewRingBuffer(4)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		d.Dispatch(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 50 {
		t.Fatalf("got %d tasks", len(order))
	}
	for i, x := range order {
		if i != x {
			t.Fatalf("task %d ran at position %d", x, i)
		}
	}

	d.Dispatch(func() {
		t.Fatal("task ran after Close")
	})
	time.Sleep(10 * time.Millisecond)
}
