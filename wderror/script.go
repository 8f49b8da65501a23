package wderror

import (
	"fmt"
	"strings"
)

// ScriptOrigin identifies where an executed script came from.
type ScriptOrigin struct {
	Function string
	File     string
	Line     int
}

// ScriptError wraps an exception raised inside executed script. The stack
// points at the calling test and at the offending line of the script.
func ScriptError(msg string, origin ScriptOrigin, script string, scriptLine int) *Error {
	return &Error{
		kind:  KindJavaScript,
		msg:   msg,
		stack: StackMessage(origin, script, scriptLine),
	}
}

// StackMessage renders the stack text attached to script errors.
func StackMessage(origin ScriptOrigin, script string, scriptLine int) string {
	src := ""
	lines := strings.Split(script, "\n")
	if scriptLine > 0 && scriptLine <= len(lines) {
		src = strings.TrimSpace(lines[scriptLine-1])
	}
	return fmt.Sprintf("%s @%s, line %d\ninline javascript, line %d\nsrc: %q",
		origin.Function, origin.File, origin.Line, scriptLine, src)
}
