package bindrt

import (
	"fmt"
	"sync"
)

// AdapterID is the context value passed to native code in a callback's user-data slot.
// AdapterID 0 is reserved and always invalid.
type AdapterID uint32

// AdapterRegistry maps adapter IDs to Go callbacks for the duration of their lifetime.
type AdapterRegistry struct {
	name     string
	mu       sync.RWMutex
	entries  []adapterEntry
	freeList []AdapterID
	live     int
	closed   bool
}

type adapterEntry struct {
	fn    any
	valid bool
}

// NewAdapterRegistry creates an empty registry.
func NewAdapterRegistry(name string) *AdapterRegistry {
	return &AdapterRegistry{name: name}
}

var processAdapters = sync.OnceValue(func() *AdapterRegistry {
	return NewAdapterRegistry("process")
})

// ProcessAdapters returns the registry for adapters with process lifetime. It is never
// closed by the runtime.
func ProcessAdapters() *AdapterRegistry {
	return processAdapters()
}

// Register stores fn and returns its ID.
func (r *AdapterRegistry) Register(fn any) (AdapterID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, fmt.Errorf("%s: %w", r.name, ErrRegistryClosed)
	}

	e := adapterEntry{fn: fn, valid: true}
	r.live++
	if len(r.freeList) > 0 {
		id := r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
		r.entries[id-1] = e
		return id, nil
	}
	r.entries = append(r.entries, e)
	return AdapterID(len(r.entries)), nil
}

// Lookup returns the callback registered under id.
func (r *AdapterRegistry) Lookup(id AdapterID) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == 0 || int(id) > len(r.entries) || !r.entries[id-1].valid {
		return nil, fmt.Errorf("%s: adapter %d: %w", r.name, id, ErrAdapterInvalid)
	}
	return r.entries[id-1].fn, nil
}

// LookupAs returns the callback registered under id as an F.
func LookupAs[F any](r *AdapterRegistry, id AdapterID) (F, error) {
	var zero F
	fn, err := r.Lookup(id)
	if err != nil {
		return zero, err
	}
	typed, ok := fn.(F)
	if !ok {
		return zero, fmt.Errorf("%s: adapter %d has type %T", r.name, id, fn)
	}
	return typed, nil
}

// Invalidate removes one adapter. It reports whether id was live.
func (r *AdapterRegistry) Invalidate(id AdapterID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == 0 || int(id) > len(r.entries) || !r.entries[id-1].valid {
		return false
	}
	r.entries[id-1] = adapterEntry{}
	r.freeList = append(r.freeList, id)
	r.live--
	return true
}

// Len returns the number of live adapters.
func (r *AdapterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Close invalidates every adapter and rejects further registrations.
func (r *AdapterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.entries = nil
	r.freeList = nil
	r.live = 0
	return nil
}

// Dispose closes the registry so it can be owned by a Scope.
func (r *AdapterRegistry) Dispose() error { return r.Close() }

// Disposed reports whether the registry is closed.
func (r *AdapterRegistry) Disposed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
