package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/wderror"
)

func TestElementManager(t *testing.T) {
	t.Parallel()

	app := newFakeApp("Firefox", listener.NewBus(log.NewNullLogger()))
	win := app.newWindow("navigator:browser")
	other := app.newWindow("navigator:browser")
	a := win.addElement("a", nil, "")
	b := win.addElement("b", nil, "")
	c := other.addElement("c", nil, "")

	t.Run("add", func(t *testing.T) {
		t.Parallel()

		m := NewElementManager()
		idA := m.Add(a)
		assert.Equal(t, idA, m.Add(a))
		assert.NotEqual(t, idA, m.Add(b))
		assert.Equal(t, 2, m.Len())

		el, err := m.Get(idA, win)
		require.NoError(t, err)
		assert.Same(t, a, el)
	})
	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		_, err := NewElementManager().Get("42", win)
		assert.True(t, wderror.IsKind(err, wderror.KindNoSuchElement))
	})
	t.Run("other_window", func(t *testing.T) {
		t.Parallel()

		m := NewElementManager()
		id := m.Add(c)
		_, err := m.Get(id, win)
		assert.True(t, wderror.IsKind(err, wderror.KindStaleElementReference))
		_, err = m.Get(id, nil)
		assert.NoError(t, err)
	})
	t.Run("invalidate", func(t *testing.T) {
		t.Parallel()

		m := NewElementManager()
		idA, idC := m.Add(a), m.Add(c)
		m.Invalidate(win.ID())

		_, err := m.Get(idA, win)
		assert.True(t, wderror.IsKind(err, wderror.KindStaleElementReference))
		_, err = m.Get(idC, other)
		assert.NoError(t, err)

		fresh := m.Add(a)
		assert.NotEqual(t, idA, fresh, "stale handles are not reused")
		_, err = m.Get(fresh, win)
		assert.NoError(t, err)

		m.InvalidateAll()
		_, err = m.Get(idC, other)
		assert.True(t, wderror.IsKind(err, wderror.KindStaleElementReference))
		assert.Equal(t, 0, m.Len())
	})
}

func TestElementManagerWrap(t *testing.T) {
	t.Parallel()

	app := newFakeApp("Firefox", listener.NewBus(log.NewNullLogger()))
	win := app.newWindow("navigator:browser")
	a := win.addElement("a", nil, "")

	m := NewElementManager()
	wrapped := m.Wrap(map[string]any{
		"el":   a,
		"list": []any{a, 1.0},
		"n":    "x",
	})
	ref := map[string]any{ElementKey: m.Add(a)}
	assert.Equal(t, map[string]any{
		"el":   ref,
		"list": []any{ref, 1.0},
		"n":    "x",
	}, wrapped)

	unwrapped, err := m.Unwrap(wrapped, win)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"el":   a,
		"list": []any{a, 1.0},
		"n":    "x",
	}, unwrapped)

	// objects with more keys are plain objects.
	v, err := m.Unwrap(map[string]any{ElementKey: "1", "other": true}, win)
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, v)

	_, err = m.Unwrap([]any{map[string]any{ElementKey: "404"}}, win)
	assert.True(t, wderror.IsKind(err, wderror.KindNoSuchElement))
}
