package common

import (
	"time"

	"gopkg.in/guregu/null.v3"
)

// DefaultScriptTimeout is the script timeout of a new session in ms.
const DefaultScriptTimeout = 10000

// Timeouts are the session timeouts in milliseconds. An invalid value means
// no timeout.
type Timeouts struct {
	Script null.Int
	Search null.Int
	Page   null.Int
}

// NewTimeouts returns the timeouts of a new session.
func NewTimeouts(script int64) Timeouts {
	if script <= 0 {
		script = DefaultScriptTimeout
	}
	return Timeouts{
		Script: null.IntFrom(script),
		Search: null.IntFrom(0),
	}
}

func duration(v null.Int) time.Duration {
	if !v.Valid || v.Int64 <= 0 {
		return 0
	}
	return time.Duration(v.Int64) * time.Millisecond
}

// SearchDuration is the implicit wait of element searches.
func (t Timeouts) SearchDuration() time.Duration { return duration(t.Search) }

// PageDuration is the page load timeout, zero when unbounded.
func (t Timeouts) PageDuration() time.Duration { return duration(t.Page) }
