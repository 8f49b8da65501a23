package common

import (
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/protocol"
)

// onRegister accepts a listener's registration. The first listener of a
// browser becomes its current frame and gets the session started.
func (d *Driver) onRegister(msg listener.Message) {
	var reg listener.Registration
	if err := msg.Decode(&reg); err != nil {
		d.logger.Warnf("Driver:onRegister", "%v", err)
		return
	}
	uid := d.frameID(reg.Value)

	b := d.currentBrowser()
	if b == nil {
		d.logger.Debugf("Driver:onRegister", "no browser to register frame:%q href:%q", uid, reg.Href)
		return
	}

	// a remote frame that was switched to acknowledges the switch.
	if cid, ok := b.Frames().Registered(uid); ok {
		d.bus.Receive(listener.ReplyOK(uid, cid))
	}

	nullPrevious := b.CurFrameID() == ""
	b.Register(uid)

	if !nullPrevious || b.CurFrameID() == "" {
		return
	}
	if err := b.Proxy().Send("newSession", map[string]any{"B2G": d.info.IsB2G()}); err != nil {
		d.logger.Warnf("Driver:onRegister", "starting session in frame:%q: %v", uid, err)
		return
	}
	if b.NewSession() {
		d.mu.Lock()
		if d.registered != nil {
			close(d.registered)
			d.registered = nil
		}
		d.mu.Unlock()
	}
}

func (d *Driver) onLog(msg listener.Message) {
	d.logger.Infof("Listener:log", "%v", msg.Fields()["message"])
}

func (d *Driver) onShareData(msg listener.Message) {
	if entries, ok := msg.Fields()["log"].([]any); ok {
		d.log.AddLogs(entries)
	}
}

// onSwitchToFrame moves the focus to an out of process frame. The frame's
// listener acknowledges the pending command when it registers.
func (d *Driver) onSwitchToFrame(msg listener.Message) {
	b := d.currentBrowser()
	if b == nil {
		return
	}
	frame, _ := msg.Fields()["frame"].(string)
	b.Frames().SwitchToFrame(d.frameID(frame), msg.CommandID())
}

func (d *Driver) onSwitchToModalOrigin(listener.Message) {
	if b := d.currentBrowser(); b != nil {
		b.Frames().SwitchToModalOrigin()
	}
}

func (d *Driver) onSwitchedToFrame(msg listener.Message) {
	f := msg.Fields()
	d.logger.Infof("Driver:onSwitchedToFrame", "switched to frame: %v", f)

	d.mu.Lock()
	defer d.mu.Unlock()
	if restore, _ := f["restorePrevious"].(bool); restore {
		d.currentFrameElement = d.previousFrameElement
		return
	}
	if store, _ := f["storePrevious"].(bool); store {
		d.previousFrameElement = d.currentFrameElement
	}
	d.currentFrameElement = f["frameValue"]
}

// onRunEmulator passes an emulator request of a listener to the client.
// The listener keeps the callback, so the id is its own.
func (d *Driver) onRunEmulator(msg listener.Message) {
	f := msg.Fields()
	id, err := protocol.ToInt(f["id"])
	if err != nil {
		d.logger.Warnf("Driver:onRunEmulator", "invalid emulator request id %v", f["id"])
		return
	}
	pkt := &protocol.Emulator{From: protocol.ActorID, ID: int(id)}
	pkt.Cmd, _ = f["emulator_cmd"].(string)
	pkt.Shell, _ = f["emulator_shell"].(string)
	d.sendEmulator(pkt)
}
