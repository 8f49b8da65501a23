package listener

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grafana/xk6-marionette/log"
)

// Agent is the client side of an out of process listener. It registers a
// frame with a hub and dispatches the messages addressed to that frame.
type Agent struct {
	conn    *websocket.Conn
	frameID string
	logger  *log.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	wmu sync.Mutex
}

// Dial connects to the hub at serverURL and registers reg.
func Dial(ctx context.Context, serverURL string, reg Registration, logger *log.Logger) (*Agent, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("agent: parsing websocket server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("agent: dialing server: %w", err)
	}

	a := &Agent{
		conn:     conn,
		frameID:  reg.FrameID(),
		logger:   logger,
		handlers: make(map[string]Handler),
	}
	msg, err := NewMessage(MsgRegister, "", reg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := a.Send(msg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return a, nil
}

// FrameID returns the frame the agent registered.
func (a *Agent) FrameID() string { return a.frameID }

// Handle registers fn for messages named name. Handlers must be registered
// before Listen is called.
func (a *Agent) Handle(name string, fn Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = fn
}

// Listen reads messages until the connection closes. Messages targeted at
// other frames are ignored.
func (a *Agent) Listen() error {
	for {
		var msg Message
		err := a.conn.ReadJSON(&msg)
		if websocket.IsCloseError(err,
			websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
		) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("agent: reading websocket message: %w", err)
		}
		if msg.Target != "" && msg.Target != a.frameID {
			continue
		}

		a.mu.RLock()
		fn, ok := a.handlers[msg.Name]
		a.mu.RUnlock()
		if !ok {
			a.logger.Debugf("Agent:Listen", "frame:%q unhandled message %q", a.frameID, msg.Name)
			continue
		}
		fn(msg)
	}
}

// Send writes msg to the hub.
func (a *Agent) Send(msg Message) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	if err := a.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("agent: sending %q: %w", msg.Name, err)
	}
	return nil
}

// ReplyOK acknowledges commandID.
func (a *Agent) ReplyOK(commandID string) error {
	return a.Send(ReplyOK(a.frameID, commandID))
}

// ReplyDone answers commandID with value.
func (a *Agent) ReplyDone(commandID string, value any) error {
	m, err := ReplyDone(a.frameID, commandID, value)
	if err != nil {
		return err
	}
	return a.Send(m)
}

// ReplyError answers commandID with err.
func (a *Agent) ReplyError(commandID string, err error) error {
	return a.Send(ReplyError(a.frameID, commandID, err))
}

// Close closes the connection gracefully.
func (a *Agent) Close() error {
	a.wmu.Lock()
	defer a.wmu.Unlock()

	if err := a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		return fmt.Errorf("agent: sending websocket close message: %w", err)
	}
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("agent: closing websocket connection: %w", err)
	}
	return nil
}
