package listener

import (
	"sync"

	"github.com/grafana/xk6-marionette/log"
)

// RemoteFrame is an out of process frame that currently owns focus.
type RemoteFrame struct {
	// TargetFrameID is the frame id the remote listener registered with.
	TargetFrameID string
	sender        *FrameSender
	// pendingCommandID is the switchToFrame command waiting for the remote
	// listener to register.
	pendingCommandID string
}

// FrameManager tracks which message channel is current: the global bus, or
// the sender of a focused remote frame.
type FrameManager struct {
	logger *log.Logger
	bus    *Bus

	mu       sync.Mutex
	current  *RemoteFrame
	previous *RemoteFrame
}

// NewFrameManager returns a frame manager starting on the global channel.
func NewFrameManager(bus *Bus, logger *log.Logger) *FrameManager {
	return &FrameManager{bus: bus, logger: logger}
}

// Channel returns the current message manager and the frame messages sent
// through it are targeted at. curFrameID is used on the global channel.
func (f *FrameManager) Channel(curFrameID string) (MessageManager, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		return f.current.sender, f.current.TargetFrameID
	}
	return f.bus, curFrameID
}

// CurrentRemoteFrame returns the focused remote frame, or nil.
func (f *FrameManager) CurrentRemoteFrame() *RemoteFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// SwitchToFrame focuses the remote frame frameID. commandID is the command
// acknowledged once the frame's listener registers.
func (f *FrameManager) SwitchToFrame(frameID, commandID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.previous = f.current
	f.current = &RemoteFrame{
		TargetFrameID:    frameID,
		sender:           f.bus.Sender(frameID),
		pendingCommandID: commandID,
	}
	f.logger.Debugf("FrameManager:SwitchToFrame", "frame:%q cid:%q", frameID, commandID)
}

// SwitchToModalOrigin focuses the remote frame that was focused before the
// current one.
func (f *FrameManager) SwitchToModalOrigin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.previous
}

// Registered is called when a listener registers. It returns the id of the
// switchToFrame command waiting for frameID, if any.
func (f *FrameManager) Registered(frameID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.pendingCommandID == "" {
		return "", false
	}
	if f.current.TargetFrameID != "" && f.current.TargetFrameID != frameID {
		return "", false
	}
	f.current.TargetFrameID = frameID
	f.current.sender = f.bus.Sender(frameID)
	cid := f.current.pendingCommandID
	f.current.pendingCommandID = ""
	return cid, true
}

// SwitchToGlobalMessageManager makes the global bus the current channel. It
// is a no-op when already on it; otherwise the focused remote frame is told
// to sleep and its listeners are removed first.
func (f *FrameManager) SwitchToGlobalMessageManager() {
	f.mu.Lock()
	rf := f.current
	f.current = nil
	f.mu.Unlock()

	if rf == nil {
		return
	}
	if err := rf.sender.Send(Message{Name: MsgSleepSession}); err != nil {
		f.logger.Debugf("FrameManager:SwitchToGlobalMessageManager", "sleeping frame:%q: %v", rf.TargetFrameID, err)
	}
	rf.sender.RemoveListeners()
}
