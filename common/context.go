package common

import (
	"context"
	"strings"
)

type ctxKey int

const (
	ctxKeyTestName ctxKey = iota
)

// WithTestName adds the name of the running test to the context.
func WithTestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyTestName, name)
}

// GetTestName returns the test name attached to the context.
func GetTestName(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyTestName).(string)
	return s
}

// contextWithDoneChan returns a new context that is canceled either
// when the done channel is closed or ctx is canceled.
func contextWithDoneChan(ctx context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Context is the execution context commands target.
type Context string

// Execution contexts.
const (
	ContextChrome  Context = "chrome"
	ContextContent Context = "content"
)

// ParseContext matches s case-insensitively against the context names.
func ParseContext(s string) (Context, bool) {
	switch strings.ToLower(s) {
	case string(ContextChrome):
		return ContextChrome, true
	case string(ContextContent):
		return ContextContent, true
	}
	return "", false
}

func (c Context) String() string { return string(c) }
