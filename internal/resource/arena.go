package resource

import (
	"errors"
	"io"
)

// Arena tracks handles allocated during one unit of work and releases them,
// newest first, unless the work commits. Use it as a scope-exit guard:
//
//	arena := resource.NewArena()
//	defer arena.Close()
//	...
//	arena.Commit()
type Arena struct {
	handles   []*Handle
	committed bool
}

func NewArena() *Arena {
	return &Arena{}
}

// Track wraps value in a handle owned by the arena until Commit.
func (a *Arena) Track(label string, value io.Closer) *Handle {
	h := NewHandle(label, value)
	a.handles = append(a.handles, h)
	return h
}

// Len is the number of handles allocated through the arena.
func (a *Arena) Len() int {
	return len(a.handles)
}

// Commit hands every tracked handle over to whoever holds them now.
func (a *Arena) Commit() {
	a.committed = true
	a.handles = nil
}

// Close releases all tracked handles in reverse allocation order. After
// Commit it does nothing.
func (a *Arena) Close() error {
	if a.committed {
		return nil
	}
	var errs []error
	for i := len(a.handles) - 1; i >= 0; i-- {
		if err := a.handles[i].Release(); err != nil && !errors.Is(err, ErrAlreadyReleased) {
			errs = append(errs, err)
		}
	}
	a.handles = nil
	return errors.Join(errs...)
}
