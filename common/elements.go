package common

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/wderror"
)

// ElementKey is the key of the object wrapping an element handle on the
// wire.
const ElementKey = "ELEMENT"

type elementEntry struct {
	el     api.Element
	window string
	gen    uint64
}

// ElementManager is the registry of known elements. Handles are opaque
// strings; an element's handle goes stale once the generation of its
// window moves on, e.g. when the window is torn down.
type ElementManager struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string]*elementEntry
	handles map[api.Element]string
	gens    map[string]uint64
}

// NewElementManager returns an empty registry.
func NewElementManager() *ElementManager {
	return &ElementManager{
		entries: make(map[string]*elementEntry),
		handles: make(map[api.Element]string),
		gens:    make(map[string]uint64),
	}
}

// staler is implemented by elements that know when their document was
// replaced.
type staler interface {
	Stale() bool
}

func windowOf(el api.Element) string {
	if w := el.Owner(); w != nil {
		return w.ID()
	}
	return ""
}

func isComparable(el api.Element) bool {
	return reflect.TypeOf(el).Comparable()
}

// Add registers el and returns its handle. An element that is already
// known keeps its handle while it is not stale.
func (m *ElementManager) Add(el api.Element) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	win := windowOf(el)
	if isComparable(el) {
		if id, ok := m.handles[el]; ok {
			if e := m.entries[id]; e != nil && e.gen == m.gens[e.window] {
				return id
			}
		}
	}

	m.nextID++
	id := strconv.FormatUint(m.nextID, 10)
	m.entries[id] = &elementEntry{el: el, window: win, gen: m.gens[win]}
	if isComparable(el) {
		m.handles[el] = id
	}
	return id
}

// Get returns the element with handle id. It fails with a no such element
// error for unknown handles and a stale element reference error when the
// element's window was torn down or win is not the window holding it.
func (m *ElementManager) Get(id string, win api.Window) (api.Element, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	stale := ok && e.gen != m.gens[e.window]
	m.mu.Unlock()

	if !ok {
		return nil, wderror.Newf(wderror.KindNoSuchElement,
			"Element has not been seen before. Id given was %s", id)
	}
	owner := e.el.Owner()
	if s, ok := e.el.(staler); ok && s.Stale() {
		stale = true
	}
	if stale || (owner != nil && owner.Closed()) || (win != nil && e.window != "" && win.ID() != e.window) {
		return nil, wderror.New(wderror.KindStaleElementReference,
			"The element reference is stale. Either the element is no longer attached to the DOM or the page has been refreshed.")
	}
	return e.el, nil
}

// Invalidate makes every handle of elements held by the window stale.
func (m *ElementManager) Invalidate(windowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[windowID]++
	m.prune()
}

// InvalidateAll makes every handle stale.
func (m *ElementManager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	windows := make(map[string]struct{})
	for _, e := range m.entries {
		windows[e.window] = struct{}{}
	}
	for w := range windows {
		m.gens[w]++
	}
	m.prune()
}

// prune drops the element references of stale entries, keeping the
// entries so lookups still report staleness.
func (m *ElementManager) prune() {
	for el, id := range m.handles {
		if e := m.entries[id]; e != nil && e.gen != m.gens[e.window] {
			delete(m.handles, el)
		}
	}
}

// Len returns the number of handles ever issued and not pruned.
func (m *ElementManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Wrap replaces the elements in v with their wire representation.
func (m *ElementManager) Wrap(v any) any {
	switch t := v.(type) {
	case api.Element:
		return map[string]any{ElementKey: m.Add(t)}
	case []api.Element:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = m.Wrap(el)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = m.Wrap(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = m.Wrap(e)
		}
		return out
	}
	return v
}

// Unwrap replaces the wire representations of elements in v with the
// elements, looked up in win.
func (m *ElementManager) Unwrap(v any, win api.Window) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			u, err := m.Unwrap(e, win)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	case map[string]any:
		if id, ok := t[ElementKey].(string); ok && len(t) == 1 {
			return m.Get(id, win)
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			u, err := m.Unwrap(e, win)
			if err != nil {
				return nil, err
			}
			out[k] = u
		}
		return out, nil
	}
	return v, nil
}
