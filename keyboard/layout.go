package keyboard

// ModifierKey is a key modifier like ALT, CTRL, or Shift.
type ModifierKey int64

const (
	// ModifierKeyAlt is the ALT key modifier.
	ModifierKeyAlt ModifierKey = 1 << iota
	// ModifierKeyControl is the CTRL key modifier.
	ModifierKeyControl
	// ModifierKeyMeta is the meta key modifier.
	ModifierKeyMeta
	// ModifierKeyShift is the Shift key modifier.
	ModifierKeyShift
)

// Key is a keyboard key name, e.g. Enter.
type Key string

// Definition represents information about a special key sent as a private
// use code point.
type Definition struct {
	Key      Key
	Code     rune
	Text     string
	Modifier ModifierKey
	// Location is 1 for left and 2 for right duplicates of a key.
	Location int64
}

// Layout maps code points to key definitions.
type Layout struct {
	Name string
	Keys map[rune]Definition
}

// KeyDefinition returns the definition of the key sent as r.
func (l Layout) KeyDefinition(r rune) (Definition, bool) {
	d, ok := l.Keys[r]
	return d, ok
}

// CodeFor returns the code point of the named key.
func (l Layout) CodeFor(key Key) (rune, bool) {
	for r, d := range l.Keys {
		if d.Key == key && d.Location < 2 {
			return r, true
		}
	}
	return 0, false
}

// ModifierBitFromKey returns the modifier key value from string.
func (l Layout) ModifierBitFromKey(key Key) ModifierKey {
	switch key {
	case "Alt":
		return ModifierKeyAlt
	case "Control":
		return ModifierKeyControl
	case "Meta":
		return ModifierKeyMeta
	case "Shift":
		return ModifierKeyShift
	}

	return 0
}

// IsValidKey returns true if r is a special key of the layout.
func (l Layout) IsValidKey(r rune) bool {
	_, ok := l.Keys[r]
	return ok
}
