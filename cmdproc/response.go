// Package cmdproc executes decoded commands against a command resolver and
// funnels their outcome into a single reply.
package cmdproc

import (
	"sync"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/wderror"
)

// Result is the serialised outcome of a command.
type Result struct {
	SessionID string
	Status    int
	Value     any
}

// ResponseHandler receives the result of the command with the given id.
type ResponseHandler func(result Result, commandID string)

// Response is the outcome of a single command. It is sent at most once.
type Response struct {
	logger    *log.Logger
	handler   ResponseHandler
	commandID string

	mu        sync.Mutex
	sessionID string
	status    int
	value     any
	sent      bool
}

// NewResponse returns a response for the command with the given id.
func NewResponse(logger *log.Logger, commandID string, handler ResponseHandler) *Response {
	return &Response{
		logger:    logger,
		handler:   handler,
		commandID: commandID,
	}
}

// CommandID returns the id of the command being answered.
func (r *Response) CommandID() string { return r.commandID }

// SetSessionID sets the session id carried by the reply.
func (r *Response) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// SetValue sets the reply value.
func (r *Response) SetValue(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = v
}

// Value returns the reply value.
func (r *Response) Value() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Status returns the reply status.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Sent reports whether the response was sent.
func (r *Response) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Send hands the response to the handler. Later calls only log a warning.
func (r *Response) Send() {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		r.logger.Warnf("Response:Send", "cid:%q skipping sending response: response has already been sent", r.commandID)
		return
	}
	r.sent = true
	res := Result{SessionID: r.sessionID, Status: r.status, Value: r.value}
	r.mu.Unlock()

	r.handler(res, r.commandID)
}

// SendError sends err as the response. Errors outside the protocol error
// taxonomy are sent as unknown errors and returned, so the caller can report
// them as faults. A response that was already sent is left as it was.
func (r *Response) SendError(err error) error {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		r.logger.Warnf("Response:SendError", "cid:%q skipping sending error %q: response has already been sent", r.commandID, err)
	} else {
		r.status = wderror.Code(err)
		r.value = wderror.ToJSON(err)
		r.mu.Unlock()
		r.Send()
	}

	if _, ok := wderror.As(err); !ok {
		return err
	}
	return nil
}
