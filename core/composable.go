package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/flume/dispatch"
	"github.com/Comcast/flume/env"
	"github.com/Comcast/flume/selector"
)

// A Composable represents a present or future value (or sequence)
// onto which transformation, filtering, reduction, and consumption
// stages can be chained.
//
// Values given to Accept propagate through the composable's
// Observable to consumers and derived stages.  Await blocks until the
// composable is complete: either an error is latched, or a value is
// latched and the accepted count has reached the expected count.  An
// expected count of -1 means unbounded (streaming), so a streaming
// composable never completes; Await on one returns the latched value
// when the timeout expires.
type Composable struct {
	observable Observable

	// Three private channels on the observable.  Derived stages
	// subscribe to these.
	accept *selector.ObjectSelector
	first  *selector.ObjectSelector
	last   *selector.ObjectSelector

	acceptedCount       int64
	expectedAcceptCount int64

	mu          sync.Mutex
	wake        chan struct{}
	hasBlockers bool
	value       interface{}
	err         error

	dispatcher dispatch.Dispatcher

	// Non-nil for delayed sources and their derived stages.
	delayed *delayedAccept
}

// New creates a Composable with a fresh Reactor.
func New() *Composable {
	return NewWith(nil)
}

// NewWith creates a Composable bound to the given Observable.  A nil
// Observable gets a fresh Reactor.
func NewWith(obs Observable) *Composable {
	if obs == nil {
		obs = NewReactor()
	}
	return &Composable{
		observable:          obs,
		accept:              selector.Anonymous(),
		first:               selector.Anonymous(),
		last:                selector.Anonymous(),
		expectedAcceptCount: -1,
		wake:                make(chan struct{}),
	}
}

// From creates a delayed Composable whose sole pre-bound value is
// emitted on the first terminal operation (Await or Get).  The
// expected accept count is 1.
//
// From(nil) pre-binds nothing: the emitter checks for a value before
// emitting, so Await on it runs to its timeout.
func From(value interface{}) *Composable {
	var values []interface{}
	if value != nil {
		values = []interface{}{value}
	}
	return newDelayed(NewReactor(), values, 1)
}

// FromSlice creates a delayed Composable that emits the given values
// in order on the first terminal operation.  The expected accept
// count is the slice length.
func FromSlice(values []interface{}) *Composable {
	vs := make([]interface{}, len(values))
	copy(vs, values)
	return newDelayed(NewReactor(), vs, int64(len(vs)))
}

// FromComposable creates a Composable that live-forwards every value
// accepted by src.  The two share src's Observable.
func FromComposable(src *Composable) *Composable {
	c := NewWith(src.observable)
	src.Consume(func(v interface{}) {
		c.Accept(v)
	})
	return c
}

// FromEvent creates a one-shot delayed Composable that, when
// triggered by a terminal operation, notifies obs with the event
// under the selector's key.
func FromEvent(sel selector.Selector, ev *Event, obs Observable) *Composable {
	return From(ev).Consume(func(v interface{}) {
		obs.Notify(sel.Key(), ensureEvent(v))
	})
}

// Observable returns the bus this composable publishes on.
func (c *Composable) Observable() Observable {
	return c.observable
}

// Dispatcher returns the dispatcher set on this composable, if any.
func (c *Composable) Dispatcher() dispatch.Dispatcher {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()
	return d
}

// SetDispatcher stores the dispatcher and, if the backing observable
// is dispatcher-aware, propagates it there.
func (c *Composable) SetDispatcher(d dispatch.Dispatcher) *Composable {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
	if da, is := c.observable.(DispatcherAware); is {
		da.SetDispatcher(d)
	}
	return c
}

// SetExpectedAcceptCount sets the number of Accept calls after which
// this composable is complete.  If that many accepts have already
// happened, the last channel fires now and waiters wake.
//
// Existing derived stages are not affected; they snapshot the
// expected count when they are created.
func (c *Composable) SetExpectedAcceptCount(n int64) *Composable {
	atomic.StoreInt64(&c.expectedAcceptCount, n)
	if atomic.LoadInt64(&c.acceptedCount) >= n {
		c.mu.Lock()
		v := c.value
		c.mu.Unlock()
		c.observable.Notify(c.last.Key(), NewEvent(v))
		c.mu.Lock()
		c.wakeAllLocked()
		c.mu.Unlock()
	}
	return c
}

// ExpectedAcceptCount returns the current expected accept count (-1
// means unbounded).
func (c *Composable) ExpectedAcceptCount() int64 {
	return atomic.LoadInt64(&c.expectedAcceptCount)
}

// AcceptedCount returns the number of successful Accept calls so far.
func (c *Composable) AcceptedCount() int64 {
	return atomic.LoadInt64(&c.acceptedCount)
}

// Accept triggers the composition with a value: the value is latched,
// blocked waiters wake, the accept channel fires, and the accepted
// count increments.
func (c *Composable) Accept(v interface{}) {
	if c.delayed != nil {
		c.acceptDelayed(v)
		return
	}
	c.mu.Lock()
	c.value = v
	if c.hasBlockers {
		c.wakeAllLocked()
	}
	c.mu.Unlock()
	c.observable.Notify(c.accept.Key(), NewEvent(v))
	atomic.AddInt64(&c.acceptedCount, 1)
}

// AcceptError triggers the composition with an error.  The error is
// latched, blocked waiters wake, and the error routes through the
// bus by type so When registrations fire.
func (c *Composable) AcceptError(err error) {
	c.mu.Lock()
	c.err = err
	if c.hasBlockers {
		c.wakeAllLocked()
	}
	c.mu.Unlock()
	c.observable.Notify(err, NewEvent(err))
}

// Consume registers a consumer invoked with every accepted value.
//
// If a value is already latched, the consumer is instead scheduled
// once, immediately, with that value, and is not registered for later
// accepts.
func (c *Composable) Consume(f func(interface{})) *Composable {
	c.when(c.accept, f)
	return c
}

// ConsumeOn re-publishes every accepted value as an event on obs
// under the selector's key.  A value that already is an event is
// forwarded as-is; anything else is wrapped.
func (c *Composable) ConsumeOn(sel selector.Selector, obs Observable) *Composable {
	c.when(c.accept, func(v interface{}) {
		obs.Notify(sel.Key(), ensureEvent(v))
	})
	return c
}

// When registers a handler for errors whose type is assignable to
// errType (a sample value, typed nil pointer, or reflect.Type).
// Wrapped errors match through their Unwrap chain.
func (c *Composable) When(errType interface{}, onError func(error)) *Composable {
	c.observable.On(selector.Type(errType), func(ev *Event) {
		if err, is := ev.Data.(error); is {
			onError(err)
		}
	})
	return c
}

// Map creates a derived Composable accepting fn(v) for every value v
// accepted here.  An error from fn is reported on the derived stage
// (routed by type through its bus, and its expected count shrinks by
// one); the parent is unaffected.
func (c *Composable) Map(fn func(interface{}) (interface{}, error)) *Composable {
	child := c.createComposable(c.createObservable(c.observable))
	c.when(c.accept, func(v interface{}) {
		x, err := fn(v)
		if err != nil {
			child.observable.Notify(err, NewEvent(err))
			child.decreaseAcceptLength()
			return
		}
		child.Accept(x)
	})
	return child
}

// MapTo creates a derived Composable stitched across the bus: every
// value accepted here is wrapped as an event, given a fresh reply-to
// key, and published to obs under sel.  A consumer answers with
// Reply, and the answer feeds the derived stage.
//
// The derived stage is unbounded, so Await on it returns the latest
// reply when its timeout expires.
func (c *Composable) MapTo(sel selector.Selector, obs Observable) *Composable {
	child := newDelayed(obs, nil, -1)
	if c.delayed != nil {
		child.delayed.root = c.root()
	}
	replyTo := selector.Anonymous()

	obs.On(replyTo, func(ev *Event) {
		child.Accept(ev.Data)
	})

	c.when(c.accept, func(v interface{}) {
		ev := ensureEvent(v)
		ev.ReplyTo = replyTo.Key()
		obs.Notify(sel.Key(), ev)
	})
	return child
}

// Filter creates a derived Composable accepting only values for
// which fn returns true.  A rejected value shrinks the derived
// stage's expected count by one, so blocking completion stays
// consistent.  Errors follow the Map policy.
func (c *Composable) Filter(fn func(interface{}) (bool, error)) *Composable {
	child := c.createComposable(c.createObservable(c.observable))
	c.when(c.accept, func(v interface{}) {
		ok, err := fn(v)
		if err != nil {
			child.observable.Notify(err, NewEvent(err))
			child.decreaseAcceptLength()
			return
		}
		if ok {
			child.Accept(v)
		} else {
			child.decreaseAcceptLength()
		}
	})
	return child
}

// A Reduce pairs the accumulated value with the next accepted value
// for a reduction function.
type Reduce struct {
	LastValue interface{}
	NextValue interface{}
}

// Reduce accumulates a result over accepted values.  The initial
// value may be nil.
//
// If this composable is bounded, the final accumulated value is
// emitted on the derived stage when the last channel fires.  If it is
// unbounded, every intermediate accumulation is emitted.  The derived
// stage's expected count is 1.
func (c *Composable) Reduce(fn func(Reduce) (interface{}, error), initial interface{}) *Composable {
	child := c.createComposable(c.createObservable(c.observable))
	child.SetExpectedAcceptCount(1)

	var accMu sync.Mutex
	acc := initial

	c.when(c.accept, func(v interface{}) {
		accMu.Lock()
		x, err := fn(Reduce{LastValue: acc, NextValue: v})
		if err != nil {
			accMu.Unlock()
			child.observable.Notify(err, NewEvent(err))
			child.decreaseAcceptLength()
			return
		}
		acc = x
		accMu.Unlock()
		if atomic.LoadInt64(&c.expectedAcceptCount) < 0 {
			child.Accept(x)
		}
	})
	c.when(c.last, func(interface{}) {
		accMu.Lock()
		x := acc
		accMu.Unlock()
		child.Accept(x)
	})
	return child
}

// First creates a derived Composable triggered once, by the first
// value a delayed source emits.  Its expected count is 1.
func (c *Composable) First() *Composable {
	child := c.createComposable(c.observable)
	atomic.StoreInt64(&child.expectedAcceptCount, 1)
	c.when(c.first, func(v interface{}) {
		child.Accept(v)
	})
	return child
}

// Last creates a derived Composable triggered once, by the value
// that brings a delayed source to its expected count.  Its expected
// count is 1.
//
// On an unbounded source the last channel never fires.
func (c *Composable) Last() *Composable {
	child := c.createComposable(c.observable)
	atomic.StoreInt64(&child.expectedAcceptCount, 1)
	c.when(c.last, func(v interface{}) {
		child.Accept(v)
	})
	return child
}

// Await blocks until this composable is complete or the default
// timeout (env.MaxAwaitTimeout) expires, then returns Get.  On a
// delayed source, Await triggers emission of the pre-bound values
// first.  Cancelling the context returns ctx.Err.
func (c *Composable) Await(ctx context.Context) (interface{}, error) {
	return c.AwaitFor(ctx, env.MaxAwaitTimeout())
}

// AwaitFor is Await with an explicit timeout.  A negative timeout
// waits forever; zero polls once.  When the deadline expires the
// result is whatever Get returns at that moment: possibly a partial
// value, possibly a latched error.
func (c *Composable) AwaitFor(ctx context.Context, timeout time.Duration) (interface{}, error) {
	if c.delayed != nil {
		if err := c.delayedAccept(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.completeLocked() || timeout == 0 {
		c.mu.Unlock()
		return c.Get()
	}

	c.hasBlockers = true
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for !c.completeLocked() {
		wake := c.wake
		c.mu.Unlock()
		select {
		case <-wake:
			c.mu.Lock()
		case <-expired:
			c.mu.Lock()
			c.hasBlockers = false
			c.mu.Unlock()
			return c.Get()
		case <-ctx.Done():
			c.mu.Lock()
			c.hasBlockers = false
			c.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	c.hasBlockers = false
	c.mu.Unlock()
	return c.Get()
}

// Get returns the latched value without blocking for completion.  If
// an error is latched, Get fails with a wrapping error.  On a
// delayed source, Get triggers emission of the pre-bound values
// first.
func (c *Composable) Get() (interface{}, error) {
	if c.delayed != nil {
		if err := c.delayedAccept(context.Background()); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, fmt.Errorf("composition failed: %w", c.err)
	}
	return c.value, nil
}

// completeLocked reports completion.  Caller holds c.mu.
func (c *Composable) completeLocked() bool {
	expected := atomic.LoadInt64(&c.expectedAcceptCount)
	return c.err != nil ||
		(c.value != nil && expected >= 0 && atomic.LoadInt64(&c.acceptedCount) >= expected)
}

// wakeAllLocked wakes every waiter.  Caller holds c.mu.
func (c *Composable) wakeAllLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// when registers a consumer of raw values on one of the private
// channels.  Late subscription on the accept channel with a value
// already latched schedules the consumer once, immediately, with
// that value instead of registering it.
func (c *Composable) when(sel selector.Selector, f func(interface{})) {
	if sel == selector.Selector(c.accept) {
		c.mu.Lock()
		v := c.value
		c.mu.Unlock()
		if v != nil {
			c.schedule(f, v)
			return
		}
	}
	c.observable.On(sel, func(ev *Event) {
		f(ev.Data)
	})
}

// schedule runs f(v) through the observable's dispatcher, or inline
// if the observable has none.
func (c *Composable) schedule(f func(interface{}), v interface{}) {
	if da, is := c.observable.(DispatcherAware); is {
		if d := da.Dispatcher(); d != nil {
			d.Dispatch(func() {
				f(v)
			})
			return
		}
	}
	f(v)
}

// decreaseAcceptLength accounts for an input that produced no
// output: a filter rejection or a per-item failure.  If the shrunken
// expected count is now covered by the accepted count, waiters wake.
func (c *Composable) decreaseAcceptLength() {
	if atomic.AddInt64(&c.expectedAcceptCount, -1) <= atomic.LoadInt64(&c.acceptedCount) {
		c.mu.Lock()
		c.wakeAllLocked()
		c.mu.Unlock()
	}
}

// createObservable builds the bus for a derived stage.  A Reactor
// parent yields a child reactor sharing its registry with a
// synchronous dispatcher; another dispatcher-aware observable passes
// its dispatcher to a fresh reactor; anything else yields a default
// reactor.
func (c *Composable) createObservable(src Observable) Observable {
	if src == nil {
		return NewReactor()
	}
	if r, is := src.(*Reactor); is {
		return r.NewChild()
	}
	if da, is := src.(DispatcherAware); is {
		r := NewReactor()
		if d := da.Dispatcher(); d != nil {
			r.SetDispatcher(d)
		}
		return r
	}
	return NewReactor()
}

// createComposable builds a derived stage on the given bus.  The
// stage snapshots this composable's expected count.  A stage derived
// from a delayed source is itself delayed, and triggering it
// delegates to the root emitter.
func (c *Composable) createComposable(obs Observable) *Composable {
	child := NewWith(obs)
	atomic.StoreInt64(&child.expectedAcceptCount, atomic.LoadInt64(&c.expectedAcceptCount))
	if c.delayed != nil {
		child.delayed = &delayedAccept{
			root:    c.root(),
			emitted: make(chan struct{}),
		}
	}
	return child
}
