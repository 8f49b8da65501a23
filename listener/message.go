// Package listener routes messages between the driver and the remote
// listeners running inside content frames, and turns request/reply
// exchanges with them into blocking calls.
package listener

import (
	"encoding/json"
	"fmt"
)

// Message names exchanged with listeners.
const (
	Prefix = "Marionette:"

	MsgOK    = Prefix + "ok"
	MsgDone  = Prefix + "done"
	MsgError = Prefix + "error"

	MsgRegister            = Prefix + "register"
	MsgLog                 = Prefix + "log"
	MsgShareData           = Prefix + "shareData"
	MsgSwitchToFrame       = Prefix + "switchToFrame"
	MsgSwitchedToFrame     = Prefix + "switchedToFrame"
	MsgSwitchToModalOrigin = Prefix + "switchToModalOrigin"
	MsgRunEmulatorCmd      = Prefix + "runEmulatorCmd"
	MsgRunEmulatorShell    = Prefix + "runEmulatorShell"

	MsgNewSession    = Prefix + "newSession"
	MsgSleepSession  = Prefix + "sleepSession"
	MsgDeleteSession = Prefix + "deleteSession"
)

// Message is a single message to or from a listener.
type Message struct {
	Name string `json:"name"`
	// Target is the frame the message is meant for.
	Target string `json:"target,omitempty"`
	// Sender is the frame the message came from. It is set by the endpoint
	// that received it.
	Sender string          `json:"sender,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a message.
func NewMessage(name, target string, data any) (Message, error) {
	m := Message{Name: name, Target: target}
	if data == nil {
		return m, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return m, fmt.Errorf("encoding %q message: %w", name, err)
	}
	m.Data = b
	return m, nil
}

// Decode decodes the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decoding %q message: %w", m.Name, err)
	}
	return nil
}

// Fields decodes the message data as an object.
func (m Message) Fields() map[string]any {
	var f map[string]any
	_ = m.Decode(&f)
	return f
}

// CommandID returns the command id carried by the message, if any.
func (m Message) CommandID() string {
	var hdr struct {
		CommandID json.RawMessage `json:"command_id"`
	}
	if err := m.Decode(&hdr); err != nil || len(hdr.CommandID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(hdr.CommandID, &s); err == nil {
		return s
	}
	// emulator callbacks carry numeric ids.
	return string(hdr.CommandID)
}

// B2GSuffix is appended to the window ids of frames in B2G to form their
// frame ids.
const B2GSuffix = "-b2g"

// Registration is the data of a register message.
type Registration struct {
	// Value is the outer window id of the listener's frame.
	Value string `json:"value"`
	Href  string `json:"href"`
	// B2G reports whether the listener runs in a B2G app frame.
	B2G bool `json:"b2g,omitempty"`
}

// FrameID returns the id messages to the registering frame are targeted at.
func (r Registration) FrameID() string {
	if r.B2G {
		return r.Value + B2GSuffix
	}
	return r.Value
}
