package common

import (
	"context"
	"fmt"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/wderror"
)

func (d *Driver) getMarionetteID(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	resp.SetValue(protocol.ActorID)
	return nil
}

func (d *Driver) sayHello(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	hello := protocol.NewHello()
	resp.SetValue(map[string]any{
		"applicationType": hello.ApplicationType,
		"traits":          hello.Traits,
	})
	return nil
}

// newSession starts a session on the most recent window. It returns once
// the listener of the session's content registered.
func (d *Driver) newSession(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	d.mu.Lock()
	if d.session != nil || d.starting {
		d.mu.Unlock()
		return wderror.New(wderror.KindWebDriver, "Session already running")
	}
	d.starting = true
	registered := make(chan struct{})
	d.registered = registered
	d.timeouts = NewTimeouts(d.scriptTimeout)
	d.mu.Unlock()

	started := false
	defer func() {
		d.mu.Lock()
		d.starting = false
		d.registered = nil
		d.mu.Unlock()
		if !started {
			d.abortSession()
		}
	}()

	caps, ok := cmd.Parameters.Map("capabilities")
	if !ok {
		caps, _ = cmd.Parameters.Map("desiredCapabilities")
	}
	caps = MergeCapabilities(DefaultCapabilities(d.info), caps)

	ctx, cancel := context.WithTimeout(ctx, d.newSessionTimeout)
	defer cancel()

	win, err := d.waitForWindow(ctx)
	if err != nil {
		return sessionNotCreated(err)
	}
	if err := win.WaitLoad(ctx); err != nil {
		return sessionNotCreated(err)
	}
	b, err := d.startBrowser(ctx, win, true)
	if err != nil {
		return sessionNotCreated(err)
	}
	b.Proxy().SwitchToGlobalMessageManager()

	select {
	case <-registered:
	case <-ctx.Done():
		return sessionNotCreated(fmt.Errorf("waiting for the content listener: %w", ctx.Err()))
	}

	s := NewSession(caps)
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
	started = true
	d.tracer.TraceSession(ctx, s.ID())

	d.logger.Infof("Driver:newSession", "sid:%q handle:%q frame:%q", s.ID(), b.Handle(), b.CurFrameID())

	resp.SetSessionID(s.ID())
	resp.SetValue(d.capabilities(s))
	return nil
}

func sessionNotCreated(err error) error {
	return wderror.Newf(wderror.KindSessionNotCreated, "Session not created: %v", err)
}

// waitForWindow polls for a window to start the session on.
func (d *Driver) waitForWindow(ctx context.Context) (api.Window, error) {
	for {
		if win := d.currentWindow(); win != nil && !win.Closed() {
			return win, nil
		}
		if err := d.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// abortSession forgets the browsers of a session that failed to start.
func (d *Driver) abortSession() {
	d.mu.Lock()
	b := d.curBrowser
	d.curBrowser = nil
	d.curFrame = nil
	d.browsers = make(map[string]*Browser)
	d.mu.Unlock()

	if b != nil {
		b.CloseTab()
		b.Proxy().SwitchToGlobalMessageManager()
	}
}

// capabilities returns the capabilities of s as reported to clients.
func (d *Driver) capabilities(s *Session) map[string]any {
	caps := s.Capabilities()
	if d.info.IsB2G() {
		caps["b2g"] = true
	}
	return caps
}

func (d *Driver) getSessionCapabilities(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()

	if s == nil {
		s = &Session{caps: DefaultCapabilities(d.info)}
	}
	resp.SetValue(d.capabilities(s))
	return nil
}

func (d *Driver) logCmd(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	d.log.Log(cmd.Parameters["value"], cmd.Parameters.StringOr("level", ""))
	return nil
}

func (d *Driver) getLogs(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	resp.SetValue(d.log.Drain())
	return nil
}

func (d *Driver) setContext(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	val := cmd.Parameters["value"]
	s, _ := val.(string)
	c, ok := ParseContext(s)
	if !ok {
		return wderror.Newf(wderror.KindWebDriver, "Invalid context: %v", val)
	}

	d.mu.Lock()
	d.context = c
	d.mu.Unlock()
	return nil
}

func (d *Driver) getContext(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	resp.SetValue(d.Context().String())
	return nil
}

func (d *Driver) setTestName(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	name := cmd.Parameters.StringOr("value", "")
	d.mu.Lock()
	d.testName = name
	d.mu.Unlock()

	if d.currentBrowser() == nil {
		return nil
	}
	_, err := d.listenerCall(ctx, cmd, "setTestName", map[string]any{"value": name})
	return err
}

func (d *Driver) deleteSession(_ context.Context, _ *protocol.Command, _ *cmdproc.Response) error {
	if err := d.sessionTearDown(); err != nil {
		return wderror.Newf(wderror.KindWebDriver, "Could not delete session: %v", err)
	}
	return nil
}

func (d *Driver) quitApplication(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	var flags []string
	if fs, ok := cmd.Parameters.Slice("flags"); ok {
		for _, f := range fs {
			if s, ok := f.(string); ok {
				flags = append(flags, s)
			}
		}
	}
	if err := d.sessionTearDown(); err != nil {
		return wderror.Newf(wderror.KindWebDriver, "Could not delete session: %v", err)
	}
	if err := d.app.Quit(ctx, flags); err != nil {
		return fmt.Errorf("quitting application: %w", err)
	}
	return nil
}

// sessionTearDown ends the session. Listeners are told to delete their
// session and every element handle goes stale.
func (d *Driver) sessionTearDown() error {
	d.mu.Lock()
	b := d.curBrowser
	browsers := make([]*Browser, 0, len(d.browsers))
	for _, br := range d.browsers {
		browsers = append(browsers, br)
	}
	mainFrame := d.mainFrame
	d.mu.Unlock()

	if b != nil {
		if d.info.IsB2G() {
			main := b.MainContentID()
			if err := d.bus.Send(listener.Message{Name: listener.MsgSleepSession, Target: main}); err != nil {
				d.logger.Debugf("Driver:sessionTearDown", "sleeping frame:%q: %v", main, err)
			}
			b.RemoveKnownFrame(main)
		}
		b.Proxy().SwitchToGlobalMessageManager()
		for _, br := range browsers {
			for _, f := range br.KnownFrames() {
				if err := d.bus.Send(listener.Message{Name: listener.MsgDeleteSession, Target: f}); err != nil {
					d.logger.Debugf("Driver:sessionTearDown", "deleting session of frame:%q: %v", f, err)
				}
			}
			br.Elements().InvalidateAll()
		}
		b.CloseTab()
	}

	d.mu.Lock()
	sid := ""
	if d.session != nil {
		sid = d.session.ID()
	}
	d.session = nil
	d.context = ContextContent
	d.browsers = make(map[string]*Browser)
	d.curBrowser = nil
	d.curFrame = nil
	d.curFrameElement = nil
	d.currentFrameElement = nil
	d.previousFrameElement = nil
	d.mu.Unlock()

	if sid != "" {
		d.tracer.EndSession(sid)
	}
	d.emu.reset()
	if mainFrame != nil && !mainFrame.Closed() {
		mainFrame.Focus()
	}
	d.logger.Infof("Driver:sessionTearDown", "sid:%q", sid)

	return d.scripts.ClearAll()
}
