// Package resource owns values allocated by the processing engine.
//
// A Handle has exactly one owner. Ownership moves by passing the pointer and
// clearing the previous holder; releasing is explicit and happens once.
package resource

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ErrAlreadyReleased is returned by Release on a handle that was released
// before. The underlying value is never closed twice.
var ErrAlreadyReleased = errors.New("resource already released")

var nextID atomic.Uint64

// Handle is an explicitly releasable reference to an engine-owned value.
type Handle struct {
	id       uint64
	label    string
	value    io.Closer
	released atomic.Bool
}

// NewHandle wraps value. The label only shows up in logs and errors.
func NewHandle(label string, value io.Closer) *Handle {
	return &Handle{
		id:    nextID.Add(1),
		label: label,
		value: value,
	}
}

// ID is unique per process and stable for the life of the handle.
func (h *Handle) ID() uint64 {
	return h.id
}

func (h *Handle) Label() string {
	return h.label
}

// Value returns the wrapped value, or nil once released.
func (h *Handle) Value() io.Closer {
	if h == nil || h.released.Load() {
		return nil
	}
	return h.value
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	return h == nil || h.released.Load()
}

// Release closes the wrapped value. A second call is a no-op that reports
// ErrAlreadyReleased.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if !h.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	if h.value == nil {
		return nil
	}
	if err := h.value.Close(); err != nil {
		return fmt.Errorf("release %s#%d: %w", h.label, h.id, err)
	}
	return nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s#%d", h.label, h.id)
}

// As returns the handle's value as T.
func As[T any](h *Handle) (T, bool) {
	var zero T
	v := h.Value()
	if v == nil {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
