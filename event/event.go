// Package event provides the minimal typed pub/sub primitive every
// emitter in this module is built on: a slice of listeners per event
// kind, Unsubscribe by slot identity. This replaces the source's
// dynamic subscribe/emit bag with one generic, detachable mechanism
// (spec §9's REDESIGN FLAG on event emission).
package event

import "sync"

// Unsubscribe detaches a previously registered listener. Calling it
// more than once is a no-op.
type Unsubscribe func()

// Emitter fires listeners of a single event kind carrying a payload
// of type T. Zero value is ready to use.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []func(T)
}

// On registers a listener and returns a handle to detach it.
func (e *Emitter[T]) On(f func(T)) Unsubscribe {
	e.mu.Lock()
	e.listeners = append(e.listeners, f)
	idx := len(e.listeners) - 1
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.listeners) {
			e.listeners[idx] = nil
		}
	}
}

// Fire invokes every still-attached listener with payload, in
// registration order. Listeners detached concurrently with Fire may
// or may not be called, but Fire never races on the listener slice
// (it snapshots under lock before calling out).
func (e *Emitter[T]) Fire(payload T) {
	e.mu.Lock()
	snapshot := make([]func(T), len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()
	for _, f := range snapshot {
		if f != nil {
			f(payload)
		}
	}
}

// Len reports how many listeners are currently attached, excluding
// slots emptied by Unsubscribe; mainly useful for tests.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, f := range e.listeners {
		if f != nil {
			n++
		}
	}
	return n
}
