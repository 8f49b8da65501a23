// Package protocol implements the client facing wire format: framed JSON
// command packets in and reply packets out.
package protocol

import (
	"math"
	"strconv"
	"strings"

	"github.com/grafana/xk6-marionette/wderror"
)

// ActorID is the actor replies are sent from.
const ActorID = "0"

// Command is a single decoded client request.
type Command struct {
	Name       string
	Parameters Params
	// ID is assigned by the dispatcher and correlates the eventual reply.
	ID string
}

// Params are command parameters.
type Params map[string]any

// Has reports whether key is present and not null.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the string parameter key.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// StringOr returns the string parameter key or def.
func (p Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Bool returns the boolean parameter key, false when absent.
func (p Params) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Map returns the object parameter key.
func (p Params) Map(key string) (map[string]any, bool) {
	m, ok := p[key].(map[string]any)
	return m, ok
}

// Slice returns the array parameter key.
func (p Params) Slice(key string) ([]any, bool) {
	s, ok := p[key].([]any)
	return s, ok
}

// Int returns the integer parameter key. Numeric strings are accepted and
// truncated like parseInt, anything else is not a number.
func (p Params) Int(key string) (int64, error) {
	return ToInt(p[key])
}

// ToInt converts a decoded JSON value to an integer.
func ToInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, wderror.NotANumber()
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		s := strings.TrimSpace(n)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
			end++
		}
		i, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return 0, wderror.NotANumber()
		}
		return i, nil
	}
	return 0, wderror.NotANumber()
}

// Reply is a response packet.
//
// Successful replies carry value, with ok set when value is null. Failed
// replies carry error instead of value.
type Reply struct {
	From      string
	SessionID string
	Value     any
	Error     map[string]any
	OK        bool
}

// NewReply builds the reply packet for a command outcome.
func NewReply(sessionID string, status int, value any) *Reply {
	r := &Reply{From: ActorID, SessionID: sessionID}
	if status > 0 {
		m, ok := value.(map[string]any)
		if !ok {
			m = map[string]any{"message": value, "status": status}
		}
		r.Error = m
		return r
	}
	if value == nil {
		r.OK = true
		return r
	}
	r.Value = value
	return r
}

// Hello is the packet written when a client connects.
type Hello struct {
	From            string
	ApplicationType string
	Traits          []string
}

// NewHello returns the greeting packet.
func NewHello() *Hello {
	return &Hello{From: "root", ApplicationType: "gecko", Traits: []string{}}
}

// Emulator is an out of band request for the client to run an emulator
// command or shell line.
type Emulator struct {
	From  string
	ID    int
	Cmd   string
	Shell string
}
