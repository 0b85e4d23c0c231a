package dispatch

import (
	"sync"

	"github.com/Comcast/flume/util"
)

// RingBuffer runs tasks from a fixed number of slots consumed by a
// single goroutine.
//
// Producers claim the next slot, blocking while the ring is full.
// The slot count is rounded up to a power of two.
type RingBuffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	slots []func()
	mask  int64
	head  int64 // next slot to consume
	tail  int64 // next slot to fill

	closed bool
	done   chan struct{}
}

// NewRingBuffer creates a RingBuffer with at least the given number
// of slots and starts its consumer.
func NewRingBuffer(size int) *RingBuffer {
	n := 1
	for n < size {
		n <<= 1
	}
	if n < 2 {
		n = 2
	}
	d := &RingBuffer{
		slots: make([]func(), n),
		mask:  int64(n - 1),
		done:  make(chan struct{}),
	}
	d.notFull = sync.NewCond(&d.mu)
	d.notEmpty = sync.NewCond(&d.mu)
	go d.consume()
	return d
}

func (d *RingBuffer) Dispatch(task func()) {
	d.mu.Lock()
	for !d.closed && d.tail-d.head > d.mask {
		d.notFull.Wait()
	}
	if d.closed {
		d.mu.Unlock()
		util.Logf("RingBuffer.Dispatch dropped a task after Close")
		return
	}
	d.slots[d.tail&d.mask] = task
	d.tail++
	d.notEmpty.Signal()
	d.mu.Unlock()
}

func (d *RingBuffer) consume() {
	for {
		d.mu.Lock()
		for d.head == d.tail && !d.closed {
			d.notEmpty.Wait()
		}
		if d.head == d.tail && d.closed {
			d.mu.Unlock()
			close(d.done)
			return
		}
		task := d.slots[d.head&d.mask]
		d.slots[d.head&d.mask] = nil
		d.head++
		d.notFull.Signal()
		d.mu.Unlock()

		task()
	}
}

// Close stops the consumer after the claimed slots drain.
func (d *RingBuffer) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.notEmpty.Broadcast()
		d.notFull.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
	return nil
}
