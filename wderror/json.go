package wderror

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Frame is a single stack frame in the JSON form of an error.
type Frame struct {
	MethodName string `json:"methodName"`
	FileName   string `json:"fileName"`
	LineNumber int    `json:"lineNumber"`
}

//nolint:gochecknoglobals
var (
	// fn(args)@file:line, as produced by script engines and our own stacks.
	reAtFrame = regexp.MustCompile(`^([a-zA-Z_$][\w./<]*)?(?:\(.*\))?@(.+)?:(\d*)$`)
	// at fn (file:line:col(pc)), as produced by goja.
	reGojaFrame = regexp.MustCompile(`^at (?:(\S+) \()?(.+?):(\d+):\d+(?:\(\d+\))?\)?$`)
	// fn @file, line N and inline javascript, line N, as produced by
	// ScriptError.
	reScriptFrame = regexp.MustCompile(`^(?:(.*?) ?@(.*)|(inline javascript)), line (\d+)$`)
)

// ParseStack decomposes stack trace text into frames. Lines that match no
// known frame format are kept as frames carrying only the method name.
func ParseStack(stack string) []Frame {
	frames := []Frame{}
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		frames = append(frames, parseFrame(line))
	}
	return frames
}

func parseFrame(line string) Frame {
	if m := reScriptFrame.FindStringSubmatch(line); m != nil {
		f := Frame{MethodName: m[1], FileName: m[2], LineNumber: atoi(m[4])}
		if m[3] != "" {
			f.MethodName = m[3]
		}
		return f
	}
	if m := reAtFrame.FindStringSubmatch(line); m != nil {
		return Frame{MethodName: m[1], FileName: m[2], LineNumber: atoi(m[3])}
	}
	if m := reGojaFrame.FindStringSubmatch(line); m != nil {
		return Frame{MethodName: m[1], FileName: m[2], LineNumber: atoi(m[3])}
	}
	return Frame{MethodName: line}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func formatFrames(frames []Frame) string {
	lines := make([]string, 0, len(frames))
	for _, f := range frames {
		if f.FileName == "" && f.LineNumber == 0 {
			lines = append(lines, f.MethodName)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s@%s:%d", f.MethodName, f.FileName, f.LineNumber))
	}
	return strings.Join(lines, "\n")
}

// ToJSON returns the wire form of err:
// {message, stacktrace: [{methodName, fileName, lineNumber}], status}, plus
// any additional fields. Errors outside the taxonomy are translated first.
func ToJSON(err error) map[string]any {
	e := Translate(err)
	m := make(map[string]any, 3+len(e.extra))
	for k, v := range e.extra {
		m[k] = v
	}
	m["message"] = e.msg
	m["stacktrace"] = ParseStack(e.stack)
	m["status"] = e.Code()
	return m
}

// FromJSON reconstructs a protocol error from its wire form. The kind is
// looked up by status code, defaulting to KindWebDriver.
func FromJSON(m map[string]any) *Error {
	e := &Error{kind: KindWebDriver}
	if m == nil {
		return e
	}
	for k, v := range m {
		switch k {
		case "message":
			e.msg = toString(v)
		case "status":
			if code, ok := toInt(v); ok {
				e.kind = KindForCode(code)
			}
		case "stacktrace":
			e.stack = stackFromJSON(v)
		default:
			if e.extra == nil {
				e.extra = make(map[string]any)
			}
			e.extra[k] = v
		}
	}
	return e
}

// Decode reconstructs a protocol error from JSON bytes.
func Decode(data []byte) (*Error, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding error: %w", err)
	}
	return FromJSON(m), nil
}

func stackFromJSON(v any) string {
	switch st := v.(type) {
	case string:
		return st
	case []Frame:
		return formatFrames(st)
	case []any:
		frames := make([]Frame, 0, len(st))
		for _, raw := range st {
			fm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			line, _ := toInt(fm["lineNumber"])
			frames = append(frames, Frame{
				MethodName: toString(fm["methodName"]),
				FileName:   toString(fm["fileName"]),
				LineNumber: line,
			})
		}
		return formatFrames(frames)
	}
	return ""
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}
