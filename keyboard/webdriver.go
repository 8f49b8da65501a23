package keyboard

// LayoutWebDriver is the name of the layout of keys sent by clients as
// unicode private use code points.
const LayoutWebDriver = "webdriver"

//nolint:gochecknoinits
func init() {
	register(LayoutWebDriver, map[rune]Definition{
		'': {Key: "Unidentified"},
		'': {Key: "Cancel"},
		'': {Key: "Help"},
		'': {Key: "Backspace"},
		'': {Key: "Tab", Text: "\t"},
		'': {Key: "Clear"},
		'': {Key: "Return"},
		'': {Key: "Enter"},
		'': {Key: "Shift", Modifier: ModifierKeyShift, Location: 1},
		'': {Key: "Control", Modifier: ModifierKeyControl, Location: 1},
		'': {Key: "Alt", Modifier: ModifierKeyAlt, Location: 1},
		'': {Key: "Pause"},
		'': {Key: "Escape"},
		'': {Key: " ", Text: " "},
		'': {Key: "PageUp"},
		'': {Key: "PageDown"},
		'': {Key: "End"},
		'': {Key: "Home"},
		'': {Key: "ArrowLeft"},
		'': {Key: "ArrowUp"},
		'': {Key: "ArrowRight"},
		'': {Key: "ArrowDown"},
		'': {Key: "Insert"},
		'': {Key: "Delete"},
		'': {Key: ";", Text: ";"},
		'': {Key: "=", Text: "="},
		'': {Key: "0", Text: "0"},
		'': {Key: "1", Text: "1"},
		'': {Key: "2", Text: "2"},
		'': {Key: "3", Text: "3"},
		'': {Key: "4", Text: "4"},
		'': {Key: "5", Text: "5"},
		'': {Key: "6", Text: "6"},
		'': {Key: "7", Text: "7"},
		'': {Key: "8", Text: "8"},
		'': {Key: "9", Text: "9"},
		'': {Key: "*", Text: "*"},
		'': {Key: "+", Text: "+"},
		'': {Key: ",", Text: ","},
		'': {Key: "-", Text: "-"},
		'': {Key: ".", Text: "."},
		'': {Key: "/", Text: "/"},
		'': {Key: "F1"},
		'': {Key: "F2"},
		'': {Key: "F3"},
		'': {Key: "F4"},
		'': {Key: "F5"},
		'': {Key: "F6"},
		'': {Key: "F7"},
		'': {Key: "F8"},
		'': {Key: "F9"},
		'': {Key: "F10"},
		'': {Key: "F11"},
		'': {Key: "F12"},
		'': {Key: "Meta", Modifier: ModifierKeyMeta, Location: 1},
		'': {Key: "Shift", Modifier: ModifierKeyShift, Location: 2},
		'': {Key: "Control", Modifier: ModifierKeyControl, Location: 2},
		'': {Key: "Alt", Modifier: ModifierKeyAlt, Location: 2},
		'': {Key: "Meta", Modifier: ModifierKeyMeta, Location: 2},
	})
}
