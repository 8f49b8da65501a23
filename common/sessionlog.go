package common

import (
	"sync"
	"time"
)

// DefaultLogLevel is the level of log entries given without one.
const DefaultLogLevel = "INFO"

// SessionLog is the log clients write to with log and read with getLogs.
// Reading it clears it.
type SessionLog struct {
	now func() time.Time

	mu      sync.Mutex
	entries [][]any
}

// NewSessionLog returns an empty log.
func NewSessionLog() *SessionLog {
	return &SessionLog{now: time.Now}
}

// Log appends msg at level, or at the default level when level is empty.
func (l *SessionLog) Log(msg any, level string) {
	if level == "" {
		level = DefaultLogLevel
	}
	entry := []any{level, msg, l.now().Format(time.UnixDate)}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// AddLogs appends entries logged by a listener.
func (l *SessionLog) AddLogs(entries []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if entry, ok := e.([]any); ok {
			l.entries = append(l.entries, entry)
		}
	}
}

// Drain returns the entries and clears the log.
func (l *SessionLog) Drain() [][]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries
	l.entries = nil
	if entries == nil {
		entries = [][]any{}
	}
	return entries
}
