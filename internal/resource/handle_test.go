package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	name   string
	closed int
	log    *[]string
	err    error
}

func (c *closer) Close() error {
	c.closed++
	if c.log != nil {
		*c.log = append(*c.log, c.name)
	}
	return c.err
}

func TestHandleRelease(t *testing.T) {
	t.Parallel()

	t.Run("closes exactly once", func(t *testing.T) {
		t.Parallel()
		c := &closer{}
		h := NewHandle("blur", c)

		require.NoError(t, h.Release())
		assert.ErrorIs(t, h.Release(), ErrAlreadyReleased)
		assert.Equal(t, 1, c.closed)
		assert.True(t, h.Released())
		assert.Nil(t, h.Value())
	})

	t.Run("nil handle is a no-op", func(t *testing.T) {
		t.Parallel()
		var h *Handle
		assert.NoError(t, h.Release())
		assert.True(t, h.Released())
	})

	t.Run("wraps close errors", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		h := NewHandle("gradient", &closer{err: boom})
		err := h.Release()
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "gradient#")
	})

	t.Run("ids are unique", func(t *testing.T) {
		t.Parallel()
		a := NewHandle("a", &closer{})
		b := NewHandle("b", &closer{})
		assert.NotEqual(t, a.ID(), b.ID())
	})
}

func TestAs(t *testing.T) {
	t.Parallel()
	c := &closer{name: "x"}
	h := NewHandle("x", c)

	got, ok := As[*closer](h)
	require.True(t, ok)
	assert.Same(t, c, got)

	require.NoError(t, h.Release())
	_, ok = As[*closer](h)
	assert.False(t, ok)
}

func TestArena(t *testing.T) {
	t.Parallel()

	t.Run("releases in reverse order", func(t *testing.T) {
		t.Parallel()
		var order []string
		a := NewArena()
		a.Track("first", &closer{name: "first", log: &order})
		a.Track("second", &closer{name: "second", log: &order})
		a.Track("third", &closer{name: "third", log: &order})

		require.NoError(t, a.Close())
		assert.Equal(t, []string{"third", "second", "first"}, order)
	})

	t.Run("commit disarms", func(t *testing.T) {
		t.Parallel()
		c := &closer{}
		a := NewArena()
		h := a.Track("kept", c)
		a.Commit()

		require.NoError(t, a.Close())
		assert.Zero(t, c.closed)
		assert.False(t, h.Released())
	})

	t.Run("skips handles released elsewhere", func(t *testing.T) {
		t.Parallel()
		c := &closer{}
		a := NewArena()
		h := a.Track("early", c)
		require.NoError(t, h.Release())

		assert.NoError(t, a.Close())
		assert.Equal(t, 1, c.closed)
	})
}
