package common

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/wderror"
)

func (d *Driver) get(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	url := cmd.Parameters.StringOr("url", "")
	page := d.currentTimeouts().Page

	if d.Context() == ContextContent {
		args := map[string]any{"url": url, "pageTimeout": nil}
		if page.Valid {
			args["pageTimeout"] = page.Int64
		}
		_, err := d.listenerCall(ctx, cmd, "get", args)
		return err
	}

	win, err := d.window()
	if err != nil {
		return err
	}
	if err := win.Navigate(ctx, url); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Error loading page: %v", err)
	}
	if t := d.currentTimeouts().PageDuration(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return d.waitLoad(ctx, win)
}

func (d *Driver) getCurrentURL(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextChrome {
		win, err := d.window()
		if err != nil {
			return err
		}
		resp.SetValue(win.URL())
		return nil
	}
	if b := d.currentBrowser(); b != nil && !d.info.IsB2G() {
		if tab := b.Tab(); tab != nil && !tab.Closed() {
			resp.SetValue(tab.URL())
			return nil
		}
	}
	return d.executeContent(ctx, cmd, resp, "getCurrentUrl", nil)
}

func (d *Driver) getTitle(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "getTitle", nil)
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	resp.SetValue(win.Title())
	return nil
}

func (d *Driver) getWindowType(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	win, err := d.window()
	if err != nil {
		return err
	}
	resp.SetValue(win.Type())
	return nil
}

func (d *Driver) getPageSource(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "getPageSource", nil)
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	resp.SetValue(win.PageSource())
	return nil
}

func (d *Driver) getWindowHandle(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	if b := d.currentBrowser(); b != nil {
		resp.SetValue(b.Handle())
		return nil
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	resp.SetValue(d.handleFor(win))
	return nil
}

func (d *Driver) getWindowHandles(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	wins := d.windows()
	handles := make([]string, 0, len(wins))
	for _, w := range wins {
		handles = append(handles, d.handleFor(w))
	}
	resp.SetValue(handles)
	return nil
}

func (d *Driver) getWindowPosition(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	win, err := d.window()
	if err != nil {
		return err
	}
	x, y := win.Position()
	resp.SetValue(map[string]any{"x": x, "y": y})
	return nil
}

func (d *Driver) setWindowPosition(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	if d.info.Name != "Firefox" {
		return wderror.New(wderror.KindUnsupportedOperation, "Unable to set the window position on mobile")
	}
	x, errX := cmd.Parameters.Int("x")
	y, errY := cmd.Parameters.Int("y")
	if errX != nil || errY != nil {
		return wderror.New(wderror.KindUnknown, "x and y arguments should be integers")
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	if err := win.MoveTo(int(x), int(y)); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to set the window position: %v", err)
	}
	return nil
}

func (d *Driver) getWindowSize(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	win, err := d.window()
	if err != nil {
		return err
	}
	w, h := win.Size()
	resp.SetValue(map[string]any{"width": w, "height": h})
	return nil
}

// setWindowSize resizes the window. Sizes of at least the available screen
// size are refused since they would maximize the window.
func (d *Driver) setWindowSize(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	if d.info.Name != "Firefox" {
		return wderror.New(wderror.KindUnsupportedOperation, "Not supported on mobile")
	}
	width, err := cmd.Parameters.Int("width")
	if err != nil {
		return err
	}
	height, err := cmd.Parameters.Int("height")
	if err != nil {
		return err
	}
	availW, availH := d.app.Screen().AvailSize()
	if width >= int64(availW) && height >= int64(availH) {
		return wderror.New(wderror.KindUnsupportedOperation, "Invalid requested size, cannot maximize")
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	if err := win.ResizeTo(int(width), int(height)); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to resize window: %v", err)
	}
	return nil
}

func (d *Driver) maximizeWindow(_ context.Context, _ *protocol.Command, _ *cmdproc.Response) error {
	if d.info.Name != "Firefox" {
		return wderror.New(wderror.KindUnsupportedOperation, "Not supported for mobile")
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	if err := win.MoveTo(0, 0); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to maximize window: %v", err)
	}
	w, h := d.app.Screen().AvailSize()
	if err := win.ResizeTo(w, h); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to maximize window: %v", err)
	}
	return nil
}

// switchToWindow focuses the window with the given name or handle. A
// window seen for the first time gets a browser and a listener.
func (d *Driver) switchToWindow(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	name := cmd.Parameters.StringOr("name", "")

	var found api.Window
	for _, w := range d.windows() {
		if w.Name() == name || d.handleFor(w) == name {
			found = w
			break
		}
	}
	if found == nil {
		return wderror.Newf(wderror.KindNoSuchWindow, "Unable to locate window: %s", name)
	}

	handle := d.handleFor(found)
	d.mu.Lock()
	b, ok := d.browsers[handle]
	if ok {
		d.curBrowser = b
		d.curFrame = nil
		d.curFrameElement = nil
		d.mainFrame = found
	}
	d.mu.Unlock()

	if ok {
		found.Focus()
		return nil
	}
	if _, err := d.startBrowser(ctx, found, false); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to switch to window %s: %v", name, err)
	}
	found.Focus()
	return nil
}

// close closes the current window, ending the session when it is the last
// browser window.
func (d *Driver) close(_ context.Context, _ *protocol.Command, _ *cmdproc.Response) error {
	return d.closeWindow(len(d.windows()))
}

// closeChromeWindow closes the current window, ending the session when it
// is the last window of any type.
func (d *Driver) closeChromeWindow(_ context.Context, _ *protocol.Command, _ *cmdproc.Response) error {
	return d.closeWindow(len(d.app.Windows()))
}

func (d *Driver) closeWindow(open int) error {
	if d.info.IsB2G() {
		return nil
	}
	if open == 1 {
		if err := d.sessionTearDown(); err != nil {
			return wderror.Newf(wderror.KindWebDriver, "Could not delete session: %v", err)
		}
		return nil
	}

	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	win := b.Window()
	if err := win.Close(); err != nil {
		return wderror.Newf(wderror.KindUnknown, "Could not close window: %v", err)
	}
	b.Elements().InvalidateAll()
	b.Proxy().SwitchToGlobalMessageManager()

	d.mu.Lock()
	delete(d.browsers, b.Handle())
	if d.curBrowser == b {
		d.curBrowser = nil
		d.curFrame = nil
		d.curFrameElement = nil
	}
	d.mu.Unlock()
	return nil
}

func (d *Driver) getActiveFrame(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	d.mu.Lock()
	el, content := d.curFrameElement, d.currentFrameElement
	d.mu.Unlock()

	if d.Context() == ContextContent {
		resp.SetValue(content)
		return nil
	}
	if el == nil {
		return nil
	}
	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	resp.SetValue(map[string]any{ElementKey: b.Elements().Add(el)})
	return nil
}

func (d *Driver) switchToFrame(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextChrome {
		return d.switchToChromeFrame(ctx, cmd)
	}

	p := cmd.Parameters
	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	if !p.Has("id") && !p.Has("element") && b.Frames().CurrentRemoteFrame() != nil {
		b.Proxy().SwitchToGlobalMessageManager()
	}
	return d.executeContent(ctx, cmd, resp, "switchToFrame", p)
}

func (d *Driver) switchToChromeFrame(ctx context.Context, cmd *protocol.Command) error {
	p := cmd.Parameters
	focus := p.Bool("focus")

	d.mu.Lock()
	main := d.mainFrame
	d.mu.Unlock()

	if !p.Has("id") && !p.Has("element") {
		d.mu.Lock()
		d.curFrame = nil
		d.curFrameElement = nil
		d.mu.Unlock()
		if main == nil {
			return nil
		}
		if focus {
			main.Focus()
		}
		return d.waitLoad(ctx, main)
	}

	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	win, err := d.window()
	if err != nil {
		return err
	}

	frame, frameEl, err := d.findChromeFrame(b, win, p)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.curFrame = frame
	d.curFrameElement = frameEl
	d.mu.Unlock()

	if focus {
		frame.Focus()
	}
	return d.waitLoad(ctx, frame)
}

// findChromeFrame looks up the frame given by the element or id parameter.
// A string id matches the frame's name before its id attribute, a number
// indexes the frames in document order.
func (d *Driver) findChromeFrame(b *Browser, win api.Window, p protocol.Params) (api.Window, api.Element, error) {
	frames := win.Frames()

	if id, ok := p.String("element"); ok {
		el, err := b.Elements().Get(id, win)
		if err != nil {
			return nil, nil, err
		}
		if tag := el.TagName(); tag == "browser" || tag == "xul:browser" {
			if fw, ok := win.FrameWindow(el); ok {
				return fw, el, nil
			}
		}
		for _, f := range frames {
			if sameElement(f, el) {
				if fw, ok := win.FrameWindow(f); ok {
					return fw, f, nil
				}
			}
		}
		return nil, nil, wderror.Newf(wderror.KindNoSuchFrame, "Unable to locate frame: %s", id)
	}

	id := p["id"]
	switch v := id.(type) {
	case string:
		for _, attr := range []string{"name", "id"} {
			for _, f := range frames {
				if a, ok := f.Attribute(attr); ok && a == v {
					if fw, ok := win.FrameWindow(f); ok {
						return fw, f, nil
					}
				}
			}
		}
	default:
		if i, err := protocol.ToInt(v); err == nil && i >= 0 && i < int64(len(frames)) {
			f := frames[i]
			if fw, ok := win.FrameWindow(f); ok {
				return fw, f, nil
			}
		}
	}
	return nil, nil, wderror.Newf(wderror.KindNoSuchFrame, "Unable to locate frame: %v", id)
}

func sameElement(a, b api.Element) bool {
	return isComparable(a) && isComparable(b) && a == b
}

func (d *Driver) takeScreenshot(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	p := cmd.Parameters
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "takeScreenshot", map[string]any{
			"id":         p["id"],
			"highlights": p["highlights"],
		})
	}

	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	var el api.Element
	if id, ok := p.String("id"); ok {
		if el, err = b.Elements().Get(id, win); err != nil {
			return err
		}
	}
	var highlights []api.Element
	hs, _ := p.Slice("highlights")
	for _, h := range hs {
		id, ok := h.(string)
		if !ok {
			continue
		}
		hl, err := b.Elements().Get(id, win)
		if err != nil {
			return err
		}
		highlights = append(highlights, hl)
	}

	png, err := win.Screenshot(ctx, el, highlights)
	if err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to take screenshot: %v", err)
	}
	resp.SetValue(base64.StdEncoding.EncodeToString(png))
	return nil
}

func (d *Driver) getScreenOrientation(_ context.Context, _ *protocol.Command, resp *cmdproc.Response) error {
	resp.SetValue(d.app.Screen().Orientation())
	return nil
}

var screenOrientations = map[string]bool{ //nolint:gochecknoglobals
	"portrait":            true,
	"landscape":           true,
	"portrait-primary":    true,
	"landscape-primary":   true,
	"portrait-secondary":  true,
	"landscape-secondary": true,
}

func (d *Driver) setScreenOrientation(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	raw := cmd.Parameters.StringOr("orientation", "")
	o := strings.ToLower(raw)
	if !screenOrientations[o] {
		return wderror.Newf(wderror.KindWebDriver, "Unknown screen orientation: %s", raw)
	}
	if !d.app.Screen().LockOrientation(o) {
		return wderror.Newf(wderror.KindWebDriver, "Unable to set screen orientation: %s", raw)
	}
	return nil
}
