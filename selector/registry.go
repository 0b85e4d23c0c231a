package selector

import (
	"reflect"
	"sync"
)

// A Registration pairs a Selector with an opaque consumer.
type Registration struct {
	Selector Selector
	Consumer interface{}
}

// A Registry holds ordered (selector, consumer) registrations and
// finds the ones addressed by a notification key.
//
// Registrations for a given key are returned in insertion order,
// which is the order the bus dispatches them in.  A Registry is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	regs  []*Registration
	cache map[interface{}][]*Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[interface{}][]*Registration),
	}
}

// Register appends a registration.  Multiple registrations per
// selector are permitted.
func (r *Registry) Register(sel Selector, consumer interface{}) *Registration {
	reg := &Registration{
		Selector: sel,
		Consumer: consumer,
	}

	r.mu.Lock()
	r.regs = append(r.regs, reg)
	// A new selector can match keys already cached.
	r.cache = make(map[interface{}][]*Registration)
	r.mu.Unlock()

	return reg
}

// Select returns the registrations whose selectors match the given
// key, in insertion order.
//
// Results for hashable keys are cached until the next Register.
func (r *Registry) Select(key interface{}) []*Registration {
	cacheable := key != nil && reflect.TypeOf(key).Comparable()

	if cacheable {
		r.mu.RLock()
		found, have := r.cache[key]
		r.mu.RUnlock()
		if have {
			return found
		}
	}

	r.mu.RLock()
	var found []*Registration
	for _, reg := range r.regs {
		if reg.Selector.Matches(key) {
			found = append(found, reg)
		}
	}
	r.mu.RUnlock()

	if cacheable {
		r.mu.Lock()
		r.cache[key] = found
		r.mu.Unlock()
	}

	return found
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.regs)
	r.mu.RUnlock()
	return n
}
