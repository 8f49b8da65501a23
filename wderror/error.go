// Package wderror implements the closed set of protocol errors returned to
// clients, each with a fixed status code.
package wderror

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind is a protocol error kind.
type Kind int

// Error kinds. The zero value is the generic WebDriver error.
const (
	KindWebDriver Kind = iota
	KindNoSuchElement
	KindNoSuchFrame
	KindUnknownCommand
	KindStaleElementReference
	KindElementNotVisible
	KindInvalidElementState
	KindUnknown
	KindJavaScript
	KindTimeout
	KindNoSuchWindow
	KindScriptTimeout
	KindInvalidSelector
	KindSessionNotCreated
	KindFrameSendNotInitialized
	KindFrameSendFailure
	KindUnsupportedOperation

	kindCount
)

// StatusUnknown is the status used for errors outside the taxonomy.
const StatusUnknown = 13

type kindInfo struct {
	name string
	code int
}

//nolint:gochecknoglobals
var kinds = [kindCount]kindInfo{
	KindWebDriver:               {"WebDriverError", 500},
	KindNoSuchElement:           {"NoSuchElementError", 7},
	KindNoSuchFrame:             {"NoSuchFrameError", 8},
	KindUnknownCommand:          {"UnknownCommandError", 9},
	KindStaleElementReference:   {"StaleElementReferenceError", 10},
	KindElementNotVisible:       {"ElementNotVisibleError", 11},
	KindInvalidElementState:     {"InvalidElementStateError", 12},
	KindUnknown:                 {"UnknownError", StatusUnknown},
	KindJavaScript:              {"JavaScriptError", 17},
	KindTimeout:                 {"TimeoutError", 21},
	KindNoSuchWindow:            {"NoSuchWindowError", 23},
	KindScriptTimeout:           {"ScriptTimeoutError", 28},
	KindInvalidSelector:         {"InvalidSelectorError", 32},
	KindSessionNotCreated:       {"SessionNotCreatedError", 33},
	KindFrameSendNotInitialized: {"FrameSendNotInitializedError", 54},
	KindFrameSendFailure:        {"FrameSendFailureError", 55},
	KindUnsupportedOperation:    {"UnsupportedOperationError", 405},
}

// Kinds returns every error kind.
func Kinds() []Kind {
	ks := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		ks = append(ks, k)
	}
	return ks
}

func (k Kind) valid() bool { return k >= 0 && k < kindCount }

// String returns the kind's name, e.g. ScriptTimeoutError.
func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// Code returns the kind's status code.
func (k Kind) Code() int {
	if !k.valid() {
		return kinds[KindWebDriver].code
	}
	return kinds[k].code
}

// KindForCode returns the kind with the given status code. Unknown codes
// map to KindWebDriver.
func KindForCode(code int) Kind {
	for k := Kind(0); k < kindCount; k++ {
		if kinds[k].code == code {
			return k
		}
	}
	return KindWebDriver
}

// Error is a protocol error.
type Error struct {
	kind  Kind
	msg   string
	stack string
	extra map[string]any
}

// New returns an error of the given kind with a stack captured at the
// caller.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg, stack: captureStack(3)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), stack: captureStack(3)}
}

// Error implements error.
func (e *Error) Error() string {
	if e.msg == "" {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.msg
}

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the status code.
func (e *Error) Code() int { return e.kind.Code() }

// Message returns the human message.
func (e *Error) Message() string { return e.msg }

// Stack returns the stack trace text, one frame per line.
func (e *Error) Stack() string { return e.stack }

// Extra returns a copy of the additional fields.
func (e *Error) Extra() map[string]any {
	if len(e.extra) == 0 {
		return nil
	}
	m := make(map[string]any, len(e.extra))
	for k, v := range e.extra {
		m[k] = v
	}
	return m
}

// WithStack replaces the stack trace text.
func (e *Error) WithStack(stack string) *Error {
	e.stack = stack
	return e
}

// WithField adds an additional field that is carried in the JSON form.
func (e *Error) WithField(key string, value any) *Error {
	if e.extra == nil {
		e.extra = make(map[string]any)
	}
	e.extra[key] = value
	return e
}

// Is reports whether target is an *Error of the same kind. It lets callers
// compare against kind sentinels like wderror.New(wderror.KindNoSuchFrame, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.kind == e.kind
}

// As returns err as a protocol error when it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a protocol error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.kind == kind
}

// Code returns the status code for any error. Errors outside the taxonomy
// have StatusUnknown.
func Code(err error) int {
	if e, ok := As(err); ok {
		return e.Code()
	}
	return StatusUnknown
}

// Translate converts err into a protocol error. Errors outside the taxonomy
// become KindUnknown and keep their stack when they carry one.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	e := &Error{kind: KindUnknown, msg: err.Error()}
	var st stackTracer
	if errors.As(err, &st) {
		e.stack = formatStack(st.StackTrace())
	} else {
		e.stack = captureStack(3)
	}
	return e
}

// (*Driver).get is rendered as Driver.get so frames stay parseable.
var receiverReplacer = strings.NewReplacer("(", "", ")", "", "*", "") //nolint:gochecknoglobals

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// captureStack returns the current stack, skipping skip frames including
// itself.
func captureStack(skip int) string {
	var st stackTracer
	if !errors.As(pkgerrors.New(""), &st) {
		return ""
	}
	frames := st.StackTrace()
	// pkgerrors.New records from its caller, which is captureStack.
	skip--
	if skip > len(frames) {
		skip = len(frames)
	}
	return formatStack(frames[skip:])
}

func formatStack(frames pkgerrors.StackTrace) string {
	lines := make([]string, 0, len(frames))
	for _, f := range frames {
		fn := receiverReplacer.Replace(fmt.Sprintf("%n", f))
		lines = append(lines, fmt.Sprintf("%s@%s:%d", fn, f, f))
	}
	return strings.Join(lines, "\n")
}

// NotANumber is returned when a numeric parameter has a non numeric value.
func NotANumber() *Error {
	return &Error{kind: KindWebDriver, msg: "Not a Number", stack: captureStack(3)}
}

// NotAvailableInChrome is returned for content only commands issued in chrome
// context.
func NotAvailableInChrome(command string) *Error {
	return &Error{
		kind:  KindWebDriver,
		msg:   fmt.Sprintf("Command '%s' is not available in chrome context", command),
		stack: captureStack(3),
	}
}

// UnknownCommand is returned for command names without a handler.
func UnknownCommand(name string) *Error {
	return &Error{kind: KindUnknownCommand, msg: name, stack: captureStack(3)}
}
