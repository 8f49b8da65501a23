package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/wderror"
)

type callResult struct {
	value any
	err   error
}

// pendingCall is a call awaiting one of the three reply messages. The
// first reply settles it and removes all three listeners.
type pendingCall struct {
	commandID string
	result    chan callResult

	mu       sync.Mutex
	settled  bool
	removers []func()
}

func (c *pendingCall) settle(r callResult) bool {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return false
	}
	c.settled = true
	removers := c.removers
	c.removers = nil
	c.mu.Unlock()

	for _, rm := range removers {
		rm()
	}
	c.result <- r
	return true
}

// Proxy turns messages to the listener of the focused frame into blocking
// calls.
type Proxy struct {
	logger *log.Logger
	frames *FrameManager
	// curFrame returns the frame id targeted on the global channel.
	curFrame func() string
}

// NewProxy returns a proxy sending through frames. curFrame returns the
// frame targeted while no remote frame owns focus.
func NewProxy(frames *FrameManager, curFrame func() string, logger *log.Logger) *Proxy {
	return &Proxy{frames: frames, curFrame: curFrame, logger: logger}
}

// Frames returns the proxy's frame manager.
func (p *Proxy) Frames() *FrameManager { return p.frames }

// SwitchToGlobalMessageManager makes the global bus the current channel.
func (p *Proxy) SwitchToGlobalMessageManager() {
	p.frames.SwitchToGlobalMessageManager()
}

// Call sends Marionette:<name> with args and the command id to the focused
// listener and waits for its reply. Done replies return their value, ok
// replies return nil and error replies are returned as protocol errors.
func (p *Proxy) Call(ctx context.Context, name, commandID string, args map[string]any) (any, error) {
	cur := ""
	if p.curFrame != nil {
		cur = p.curFrame()
	}
	mm, target := p.frames.Channel(cur)

	data := make(map[string]any, len(args)+1)
	for k, v := range args {
		data[k] = v
	}
	data["command_id"] = commandID
	msg, err := NewMessage(Prefix+name, target, data)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{commandID: commandID, result: make(chan callResult, 1)}
	call.mu.Lock()
	call.removers = []func(){
		mm.AddMessageListener(MsgOK, p.onReply(call, func(Message) callResult {
			return callResult{}
		})),
		mm.AddMessageListener(MsgDone, p.onReply(call, func(m Message) callResult {
			var v struct {
				Value any `json:"value"`
			}
			if err := m.Decode(&v); err != nil {
				return callResult{err: err}
			}
			return callResult{value: v.Value}
		})),
		mm.AddMessageListener(MsgError, p.onReply(call, func(m Message) callResult {
			return callResult{err: decodeError(m)}
		})),
	}
	call.mu.Unlock()

	p.logger.Debugf("Proxy:Call", "name:%q frame:%q cid:%q", name, target, commandID)

	if err := mm.Send(msg); err != nil {
		call.settle(callResult{err: err})
	}

	select {
	case r := <-call.result:
		return r.value, r.err
	case <-ctx.Done():
		if call.settle(callResult{err: ctx.Err()}) {
			<-call.result
		} else {
			r := <-call.result
			return r.value, r.err
		}
		return nil, fmt.Errorf("calling %q: %w", name, ctx.Err())
	}
}

func (p *Proxy) onReply(call *pendingCall, build func(Message) callResult) Handler {
	return func(m Message) {
		if m.CommandID() != call.commandID {
			return
		}
		if !call.settle(build(m)) {
			p.logger.Debugf("Proxy:onReply", "ignoring late %q for cid:%q", m.Name, call.commandID)
		}
	}
}

// Send sends a fire-and-forget message to the focused listener.
func (p *Proxy) Send(name string, args map[string]any) error {
	cur := ""
	if p.curFrame != nil {
		cur = p.curFrame()
	}
	mm, target := p.frames.Channel(cur)
	msg, err := NewMessage(Prefix+name, target, args)
	if err != nil {
		return err
	}
	return mm.Send(msg)
}

func decodeError(m Message) error {
	var v struct {
		Error map[string]any `json:"error"`
	}
	if err := m.Decode(&v); err != nil {
		return err
	}
	if v.Error == nil {
		// older listeners put the error fields at the top level.
		v.Error = m.Fields()
		delete(v.Error, "command_id")
	}
	return wderror.FromJSON(v.Error)
}

// ReplyOK builds an ok reply for commandID.
func ReplyOK(sender, commandID string) Message {
	m, _ := NewMessage(MsgOK, "", map[string]any{"command_id": commandID})
	m.Sender = sender
	return m
}

// ReplyDone builds a done reply carrying value.
func ReplyDone(sender, commandID string, value any) (Message, error) {
	m, err := NewMessage(MsgDone, "", map[string]any{"command_id": commandID, "value": value})
	m.Sender = sender
	return m, err
}

// ReplyError builds an error reply for err.
func ReplyError(sender, commandID string, err error) Message {
	m, _ := NewMessage(MsgError, "", map[string]any{
		"command_id": commandID,
		"error":      wderror.ToJSON(err),
	})
	m.Sender = sender
	return m
}
