package keyboard

import (
	"fmt"
	"sync"
)

//nolint:gochecknoglobals
var (
	layouts = make(map[string]Layout)
	mu      sync.RWMutex
)

// LayoutFor returns the keyboard layout registered with name.
func LayoutFor(name string) Layout {
	mu.RLock()
	defer mu.RUnlock()
	return layouts[name]
}

// Register the given keyboard layout.
// This function panics if a keyboard layout with the same name is already registered.
func register(name string, keys map[rune]Definition) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := layouts[name]; ok {
		panic(fmt.Sprintf("keyboard layout already registered: %s", name))
	}
	layouts[name] = Layout{
		Name: name,
		Keys: keys,
	}
}
