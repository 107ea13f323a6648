package bindrt

import (
	"errors"
	"fmt"
	"sync"
)

// Disposer is anything an owner can release.
type Disposer interface {
	Dispose() error
	Disposed() bool
}

// Handle owns one native handle. The zero value is not usable; use NewHandle or Borrow.
type Handle[T any] struct {
	mu       sync.Mutex
	name     string
	native   T
	release  func(T) error
	borrowed bool
	disposed bool
	children Scope
	adapters []*AdapterRegistry
}

// NewHandle wraps an owned native handle. release is called exactly once, on the first
// Dispose.
func NewHandle[T any](name string, native T, release func(T) error) *Handle[T] {
	return &Handle[T]{name: name, native: native, release: release}
}

// Borrow wraps a native handle owned elsewhere. Dispose only invalidates the wrapper.
func Borrow[T any](name string, native T) *Handle[T] {
	return &Handle[T]{name: name, native: native, borrowed: true}
}

func (h *Handle[T]) Name() string { return h.name }

// Borrowed reports whether the handle was created by Borrow.
func (h *Handle[T]) Borrowed() bool { return h.borrowed }

// Native returns the wrapped handle, or ErrDisposed.
func (h *Handle[T]) Native() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		var zero T
		return zero, fmt.Errorf("%s: %w", h.name, ErrDisposed)
	}
	return h.native, nil
}

// Disposed reports whether Dispose has been called.
func (h *Handle[T]) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Adopt makes child owned by h. Children are disposed before h, last adopted first.
func (h *Handle[T]) Adopt(child Disposer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return fmt.Errorf("%s: %w", h.name, ErrDisposed)
	}
	return h.children.Own(child)
}

// Tie closes reg when h is disposed, before the native destroy call.
func (h *Handle[T]) Tie(reg *AdapterRegistry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return fmt.Errorf("%s: %w", h.name, ErrDisposed)
	}
	h.adapters = append(h.adapters, reg)
	return nil
}

// Dispose releases children, invalidates tied adapters and calls the destroy function.
// Only the first call does any work; later calls return nil.
func (h *Handle[T]) Dispose() error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return nil
	}
	h.disposed = true
	native := h.native
	var zero T
	h.native = zero
	adapters := h.adapters
	h.adapters = nil
	h.mu.Unlock()

	var errs []error
	if err := h.children.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, reg := range adapters {
		if err := reg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if !h.borrowed && h.release != nil {
		if err := h.release(native); err != nil {
			errs = append(errs, fmt.Errorf("%s: release: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// Scope disposes what it owns in reverse order of ownership. The zero value is ready to use.
type Scope struct {
	mu     sync.Mutex
	items  []Disposer
	closed bool
}

// Own adds d to the scope.
func (s *Scope) Own(d Disposer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisposed
	}
	s.items = append(s.items, d)
	return nil
}

// Len returns the number of owned items not yet disposed.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.items {
		if !d.Disposed() {
			n++
		}
	}
	return n
}

// Close disposes every owned item, last owned first, and joins their errors. Closing an
// already closed scope is a no-op.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	items := s.items
	s.items = nil
	s.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
