package keyboard

import (
	"strings"
	"unicode"
)

// Typist applies a sequence of typed keys to the value of a text field.
type Typist struct {
	layout    Layout
	modifiers ModifierKey
}

// NewTypist returns a typist using the WebDriver key layout.
func NewTypist() *Typist {
	return &Typist{layout: LayoutFor(LayoutWebDriver)}
}

// Modifiers returns the modifiers currently held down.
func (t *Typist) Modifiers() ModifierKey { return t.modifiers }

// Type applies keys to value. It reports whether Enter or Return was
// pressed, which submits the owning form.
func (t *Typist) Type(value, keys string) (string, bool) {
	var (
		b      strings.Builder
		submit bool
	)
	b.WriteString(value)

	for _, r := range keys {
		def, special := t.layout.KeyDefinition(r)
		if !special {
			t.insert(&b, string(r))
			continue
		}
		switch {
		case def.Key == "Unidentified":
			// NULL releases all modifiers.
			t.modifiers = 0
		case def.Modifier != 0:
			t.modifiers ^= def.Modifier
		case def.Key == "Backspace" || def.Key == "Delete":
			rs := []rune(b.String())
			if len(rs) > 0 {
				b.Reset()
				b.WriteString(string(rs[:len(rs)-1]))
			}
		case def.Key == "Enter" || def.Key == "Return":
			submit = true
		case def.Text != "":
			t.insert(&b, def.Text)
		}
	}

	return b.String(), submit
}

func (t *Typist) insert(b *strings.Builder, text string) {
	// If any modifiers besides shift are pressed, no text should be sent
	if t.modifiers&^ModifierKeyShift != 0 {
		return
	}
	if t.modifiers&ModifierKeyShift != 0 {
		text = strings.Map(unicode.ToUpper, text)
	}
	b.WriteString(text)
}
