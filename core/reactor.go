package core

import (
	"sync"

	"github.com/Comcast/flume/dispatch"
	"github.com/Comcast/flume/selector"
)

// A Consumer receives events from an Observable.
type Consumer func(*Event)

// An Observable is a selector-indexed registry of consumers plus a
// dispatch mechanism.
type Observable interface {
	// On registers a consumer under a selector.  Multiple
	// registrations per selector are permitted; dispatch order for
	// one selector is registration order.
	On(sel selector.Selector, consumer Consumer)

	// Notify schedules the consumer of every registered selector
	// matching the key.  Each consumer is invoked at most once per
	// notification.  With a synchronous dispatcher, consumers run
	// inline on the caller's goroutine.
	Notify(key interface{}, ev *Event)
}

// DispatcherAware is implemented by observables whose dispatcher can
// be inspected and replaced.
type DispatcherAware interface {
	Dispatcher() dispatch.Dispatcher
	SetDispatcher(d dispatch.Dispatcher)
}

// A Reactor is the standard Observable: a Registry of consumers and a
// Dispatcher that runs them.
type Reactor struct {
	registry *selector.Registry

	mu         sync.Mutex
	dispatcher dispatch.Dispatcher
}

// NewReactor creates a Reactor with its own registry and a
// synchronous dispatcher.
func NewReactor() *Reactor {
	return &Reactor{
		registry:   selector.NewRegistry(),
		dispatcher: dispatch.NewSynchronous(),
	}
}

// NewChild creates a Reactor that shares this Reactor's registry but
// dispatches synchronously.  Composables use this for the buses of
// derived stages, so a child's fan-out executes on the goroutine that
// is already delivering the parent's event.
func (r *Reactor) NewChild() *Reactor {
	return &Reactor{
		registry:   r.registry,
		dispatcher: dispatch.NewSynchronous(),
	}
}

// Dispatcher returns the current dispatcher.
func (r *Reactor) Dispatcher() dispatch.Dispatcher {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	return d
}

// SetDispatcher replaces the dispatcher used for subsequent
// notifications.
func (r *Reactor) SetDispatcher(d dispatch.Dispatcher) {
	r.mu.Lock()
	r.dispatcher = d
	r.mu.Unlock()
}

// On implements Observable.
func (r *Reactor) On(sel selector.Selector, consumer Consumer) {
	r.registry.Register(sel, consumer)
}

// Notify implements Observable.
//
// Selectors that resolve headers from the key (URI templates)
// contribute those headers to the event each of their consumers sees.
func (r *Reactor) Notify(key interface{}, ev *Event) {
	d := r.Dispatcher()
	for _, reg := range r.registry.Select(key) {
		consumer, is := reg.Consumer.(Consumer)
		if !is {
			continue
		}
		delivered := ev
		if hr, is := reg.Selector.(selector.HeaderResolver); is {
			delivered = ev.withHeaders(hr.ResolveHeaders(key))
		}
		d.Dispatch(func() {
			consumer(delivered)
		})
	}
}

// Reply notifies the observable under the event's reply-to key.  It
// does nothing if the event has no reply-to.
func Reply(obs Observable, ev *Event, reply *Event) {
	if ev.ReplyTo == nil {
		return
	}
	obs.Notify(ev.ReplyTo, reply)
}
