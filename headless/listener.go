package headless

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/common"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/sandbox"
	"github.com/grafana/xk6-marionette/wderror"
)

const searchPollInterval = 50 * time.Millisecond

var (
	errListenerClosed = errors.New("listener closed")
	// errNoReply is returned by handlers whose command is acknowledged by
	// someone else.
	errNoReply = errors.New("no reply")
)

type contentHandler func(ctx context.Context, cid string, p protocol.Params) (any, error)

// contentListener executes the commands the driver sends to a window's
// content. It is connected to the bus in process, or to a hub through an
// agent.
type contentListener struct {
	win     *Window
	frameID string
	reg     listener.Registration
	logger  *log.Logger
	sandbox *sandbox.Sandbox

	ctx    context.Context
	cancel context.CancelFunc

	// send delivers a message to the driver.
	send    func(listener.Message) error
	closeFn func() error

	qmu    sync.Mutex
	queue  []listener.Message
	wake   chan struct{}
	closed bool

	mu       sync.Mutex
	elements *common.ElementManager
	curFrame *Window
	scripts  []string
	testName string
	awake    bool
	emuNext  int
	emuCbs   map[int]func(any)
}

var _ listener.Endpoint = &contentListener{}

func newContentListener(win *Window) *contentListener {
	reg := listener.Registration{
		Value: win.ID(),
		Href:  win.URL(),
		B2G:   win.app.info.IsB2G(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &contentListener{
		win:      win,
		frameID:  reg.FrameID(),
		reg:      reg,
		logger:   win.app.logger,
		sandbox:  sandbox.New(win.app.logger),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		elements: common.NewElementManager(),
		emuCbs:   make(map[int]func(any)),
	}
}

// start connects the listener and registers its frame.
func (l *contentListener) start(ctx context.Context) error {
	go l.loop()

	if hub := l.win.app.hubURL; hub != "" {
		agent, err := listener.Dial(ctx, hub, l.reg, l.logger)
		if err != nil {
			l.cancel()
			return err
		}
		for _, name := range l.messageNames() {
			agent.Handle(name, func(msg listener.Message) { _ = l.Deliver(msg) })
		}
		l.send = agent.Send
		l.closeFn = agent.Close
		go func() {
			if err := agent.Listen(); err != nil {
				l.logger.Debugf("Listener:start", "frame:%q: %v", l.frameID, err)
			}
		}()
		return nil
	}

	bus := l.win.app.bus
	l.send = func(msg listener.Message) error {
		msg.Sender = l.frameID
		bus.Receive(msg)
		return nil
	}
	l.closeFn = func() error {
		bus.Detach(l)
		return nil
	}
	bus.Attach(l)
	return l.register()
}

// register announces the listener's frame.
func (l *contentListener) register() error {
	reg := l.reg
	reg.Href = l.win.URL()
	msg, err := listener.NewMessage(listener.MsgRegister, "", reg)
	if err != nil {
		return err
	}
	return l.send(msg)
}

func (l *contentListener) ID() string { return l.frameID }

// Deliver queues msg. Messages are taken in order; commands then run
// concurrently with the messages that follow them.
func (l *contentListener) Deliver(msg listener.Message) error {
	l.qmu.Lock()
	if l.closed {
		l.qmu.Unlock()
		return errListenerClosed
	}
	l.queue = append(l.queue, msg)
	l.qmu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *contentListener) Close() error {
	l.qmu.Lock()
	if l.closed {
		l.qmu.Unlock()
		return nil
	}
	l.closed = true
	l.qmu.Unlock()

	l.cancel()
	if l.closeFn != nil {
		return l.closeFn()
	}
	return nil
}

func (l *contentListener) loop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}
		for {
			l.qmu.Lock()
			if len(l.queue) == 0 {
				l.qmu.Unlock()
				break
			}
			msg := l.queue[0]
			l.queue = l.queue[1:]
			l.qmu.Unlock()

			l.handle(msg)
		}
	}
}

func (l *contentListener) handle(msg listener.Message) {
	name := strings.TrimPrefix(msg.Name, listener.Prefix)
	p := protocol.Params(msg.Fields())

	switch name {
	case "newSession":
		l.mu.Lock()
		l.awake = true
		l.mu.Unlock()
		return
	case "sleepSession":
		l.mu.Lock()
		l.awake = false
		l.mu.Unlock()
		return
	case "deleteSession":
		l.deleteSession()
		return
	case "emulatorCmdResult":
		l.emulatorCmdResult(p)
		return
	}

	cid := msg.CommandID()
	l.mu.Lock()
	awake := l.awake
	l.mu.Unlock()
	if !awake {
		l.logger.Debugf("Listener:handle", "frame:%q %q outside a session", l.frameID, name)
	}
	h, ok := l.handlers()[name]
	if !ok {
		l.reply(cid, nil, wderror.UnknownCommand(name))
		return
	}
	go func() {
		v, err := h(l.ctx, cid, p)
		if errors.Is(err, errNoReply) {
			return
		}
		l.reply(cid, v, err)
	}()
}

func (l *contentListener) reply(cid string, v any, err error) {
	if cid == "" {
		return
	}
	var msg listener.Message
	switch {
	case err != nil:
		msg = listener.ReplyError(l.frameID, cid, wderror.Translate(err))
	case v == nil:
		msg = listener.ReplyOK(l.frameID, cid)
	default:
		if msg, err = listener.ReplyDone(l.frameID, cid, v); err != nil {
			msg = listener.ReplyError(l.frameID, cid, wderror.Translate(err))
		}
	}
	if err := l.send(msg); err != nil {
		l.logger.Debugf("Listener:reply", "frame:%q cid:%q: %v", l.frameID, cid, err)
	}
}

func (l *contentListener) notify(name string, data map[string]any) {
	msg, err := listener.NewMessage(name, "", data)
	if err == nil {
		err = l.send(msg)
	}
	if err != nil {
		l.logger.Debugf("Listener:notify", "frame:%q %q: %v", l.frameID, name, err)
	}
}

func (l *contentListener) deleteSession() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elements = common.NewElementManager()
	l.curFrame = nil
	l.scripts = nil
	l.testName = ""
	l.awake = false
	l.emuCbs = make(map[int]func(any))
	l.sandbox.Reset()
}

// frame returns the window commands act on.
func (l *contentListener) frame() *Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.curFrame != nil && !l.curFrame.Closed() {
		return l.curFrame
	}
	return l.win
}

func (l *contentListener) registry() *common.ElementManager {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elements
}

func (l *contentListener) element(p protocol.Params) (api.Element, error) {
	return l.registry().Get(p.StringOr("id", ""), l.frame())
}

func (l *contentListener) messageNames() []string {
	names := []string{"newSession", "sleepSession", "deleteSession", "emulatorCmdResult"}
	for name := range l.handlers() {
		names = append(names, name)
	}
	for i, n := range names {
		names[i] = listener.Prefix + n
	}
	return names
}

//nolint:funlen
func (l *contentListener) handlers() map[string]contentHandler {
	return map[string]contentHandler{
		"executeScript":        l.execute(false, false),
		"executeAsyncScript":   l.execute(true, false),
		"executeJSScript":      l.execute(false, true),
		"findElementContent":   l.find(false),
		"findElementsContent":  l.find(true),
		"getTitle":             l.query(func(w *Window) any { return w.Title() }),
		"getCurrentUrl":        l.query(func(w *Window) any { return w.URL() }),
		"getPageSource":        l.query(func(w *Window) any { return w.PageSource() }),
		"getActiveElement":     l.getActiveElement,
		"getAppCacheStatus":    func(context.Context, string, protocol.Params) (any, error) { return 0, nil },
		"get":                  l.get,
		"goBack":               l.history((*Window).Back),
		"goForward":            l.history((*Window).Forward),
		"refresh":              l.history((*Window).Refresh),
		"clickElement":         l.clickElement,
		"singleTap":            l.clickElement,
		"actionChain":          l.actionChain,
		"multiAction":          l.multiAction,
		"getElementAttribute":  l.getElementAttribute,
		"getElementText":       l.elementQuery(func(el api.Element) any { return el.Text() }),
		"getElementTagName":    l.elementQuery(func(el api.Element) any { return strings.ToLower(el.TagName()) }),
		"isElementDisplayed":   l.elementQuery(func(el api.Element) any { return el.Displayed() }),
		"isElementEnabled":     l.elementQuery(func(el api.Element) any { return el.Enabled() }),
		"isElementSelected":    l.elementQuery(func(el api.Element) any { return el.Selected() }),
		"getElementSize":       l.elementQuery(elementSize),
		"getElementRect":       l.elementQuery(func(el api.Element) any { return el.Rect() }),
		"getElementLocation":   l.elementQuery(elementLocation),
		"submitElement":        l.submitElement,
		"sendKeysToElement":    l.sendKeysToElement,
		"clearElement":         l.clearElement,
		"switchToFrame":        l.switchToFrame,
		"setTestName":          l.setTestName,
		"importScript":         l.importScript,
		"clearImportedScripts": l.clearImportedScripts,
		"takeScreenshot":       l.takeScreenshot,
		"addCookie":            l.addCookie,
		"getCookies":           l.getCookies,
		"deleteCookie":         l.deleteCookie,
		"deleteAllCookies":     l.deleteAllCookies,

		"getElementValueOfCssProperty": l.getElementValueOfCSSProperty,
	}
}

func elementSize(el api.Element) any {
	r := el.Rect()
	return map[string]any{"width": r.Width, "height": r.Height}
}

func elementLocation(el api.Element) any {
	r := el.Rect()
	return map[string]any{"x": r.X, "y": r.Y}
}

func (l *contentListener) query(fn func(*Window) any) contentHandler {
	return func(context.Context, string, protocol.Params) (any, error) {
		return fn(l.frame()), nil
	}
}

func (l *contentListener) elementQuery(fn func(api.Element) any) contentHandler {
	return func(_ context.Context, _ string, p protocol.Params) (any, error) {
		el, err := l.element(p)
		if err != nil {
			return nil, err
		}
		return fn(el), nil
	}
}

func (l *contentListener) get(ctx context.Context, _ string, p protocol.Params) (any, error) {
	if t, err := p.Int("pageTimeout"); err == nil && t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Millisecond)
		defer cancel()
	}
	l.mu.Lock()
	l.curFrame = nil
	l.mu.Unlock()

	if err := l.win.Navigate(ctx, p.StringOr("url", "")); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, wderror.New(wderror.KindTimeout, "Error loading page, timed out")
		}
		return nil, wderror.Newf(wderror.KindUnknown, "Error loading page: %v", err)
	}
	return nil, nil
}

func (l *contentListener) history(fn func(*Window, context.Context) error) contentHandler {
	return func(ctx context.Context, _ string, _ protocol.Params) (any, error) {
		l.mu.Lock()
		l.curFrame = nil
		l.mu.Unlock()
		if err := fn(l.win, ctx); err != nil {
			return nil, wderror.Newf(wderror.KindUnknown, "Error loading page: %v", err)
		}
		return nil, nil
	}
}

func (l *contentListener) getActiveElement(context.Context, string, protocol.Params) (any, error) {
	el := l.frame().ActiveElement()
	if el == nil {
		return nil, nil
	}
	return l.registry().Wrap(el), nil
}

func (l *contentListener) prelude() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.scripts, "\n")
}

// execute runs a script in the current frame. Direct scripts run as is;
// synchronous direct scripts must call finish.
func (l *contentListener) execute(async, direct bool) contentHandler {
	return func(ctx context.Context, _ string, p protocol.Params) (any, error) {
		r := common.ParseScriptRequest(p, "timeout")
		r.Async = async
		if direct {
			r.Async = p.Bool("async")
		}
		r.Direct = direct

		var (
			logMu   sync.Mutex
			entries []any
		)
		v, err := common.RunScript(ctx, common.ScriptEnv{
			Sandbox:  l.sandbox,
			Window:   l.frame(),
			Elements: l.registry(),
			Prelude:  l.prelude(),
			TestName: l.currentTestName(),
			Emulator: l.runEmulator,
			Log: func(level, msg string) {
				logMu.Lock()
				defer logMu.Unlock()
				entries = append(entries, []any{level, msg, time.Now().Format(time.UnixDate)})
			},
		}, r)

		logMu.Lock()
		if len(entries) > 0 {
			l.notify(listener.MsgShareData, map[string]any{"log": entries})
		}
		logMu.Unlock()

		return v, err
	}
}

// find polls for elements until some are found or the search timeout
// passed.
func (l *contentListener) find(all bool) contentHandler {
	return func(ctx context.Context, _ string, p protocol.Params) (any, error) {
		using := p.StringOr("using", "")
		value := p.StringOr("value", "")
		if err := common.ValidateStrategy(using); err != nil {
			return nil, err
		}
		win := l.frame()
		reg := l.registry()

		var root api.Element
		if id, ok := p.String("element"); ok && id != "" {
			el, err := reg.Get(id, win)
			if err != nil {
				return nil, err
			}
			root = el
		}
		timeout, _ := p.Int("searchTimeout")
		deadline := time.Now().Add(time.Duration(timeout) * time.Millisecond)

		for {
			els, err := win.Find(ctx, using, value, root)
			if err != nil {
				return nil, wderror.Newf(wderror.KindInvalidSelector, "Invalid selector %q: %v", value, err)
			}
			if len(els) > 0 {
				if all {
					return reg.Wrap(els), nil
				}
				return reg.Wrap(els[0]), nil
			}
			if !time.Now().Before(deadline) {
				break
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("searching elements: %w", ctx.Err())
			case <-time.After(searchPollInterval):
			}
		}
		if all {
			return []any{}, nil
		}
		return nil, wderror.Newf(wderror.KindNoSuchElement, "Unable to locate element: %s", value)
	}
}

func (l *contentListener) clickElement(ctx context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	if !el.Displayed() {
		return nil, wderror.New(wderror.KindElementNotVisible,
			"Element is not currently visible and may not be manipulated")
	}
	if err := el.Click(ctx); err != nil {
		return nil, common.ElementError(err, "click")
	}
	return nil, nil
}

// actionChain plays a touch action chain. Presses are completed by a
// release on the same element; waits sleep.
func (l *contentListener) actionChain(ctx context.Context, _ string, p protocol.Params) (any, error) {
	chain, _ := p.Slice("chain")
	reg := l.registry()
	win := l.frame()

	var pressed api.Element
	for _, raw := range chain {
		action, ok := raw.([]any)
		if !ok || len(action) == 0 {
			return nil, wderror.New(wderror.KindWebDriver, "Invalid action chain")
		}
		name, _ := action[0].(string)
		target := func() (api.Element, error) {
			if len(action) < 2 {
				return nil, wderror.Newf(wderror.KindWebDriver, "Missing element for %s", name)
			}
			id, _ := action[1].(string)
			return reg.Get(id, win)
		}
		switch name {
		case "press", "move":
			el, err := target()
			if err != nil {
				return nil, err
			}
			if name == "press" || pressed != nil {
				pressed = el
			}
		case "click":
			el, err := target()
			if err != nil {
				return nil, err
			}
			if err := el.Click(ctx); err != nil {
				return nil, common.ElementError(err, "click")
			}
		case "release":
			if pressed == nil {
				return nil, wderror.New(wderror.KindWebDriver, "Element has not been pressed")
			}
			if err := pressed.Click(ctx); err != nil {
				return nil, common.ElementError(err, "tap")
			}
			pressed = nil
		case "cancel":
			pressed = nil
		case "wait":
			if len(action) > 1 {
				secs, _ := action[1].(float64)
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("waiting in action chain: %w", ctx.Err())
				case <-time.After(time.Duration(secs * float64(time.Second))):
				}
			}
		case "moveByOffset":
		default:
			return nil, wderror.Newf(wderror.KindWebDriver, "Unknown action: %s", name)
		}
	}
	return p["nextId"], nil
}

func (l *contentListener) multiAction(context.Context, string, protocol.Params) (any, error) {
	return nil, wderror.New(wderror.KindUnsupportedOperation, "Multi touch actions are not supported")
}

func (l *contentListener) getElementAttribute(_ context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	if v, ok := el.Attribute(p.StringOr("name", "")); ok {
		return v, nil
	}
	return nil, nil
}

func (l *contentListener) getElementValueOfCSSProperty(_ context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	return el.CSSValue(p.StringOr("propertyName", "")), nil
}

func (l *contentListener) submitElement(ctx context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	if err := el.Submit(ctx); err != nil {
		return nil, common.ElementError(err, "submit")
	}
	return nil, nil
}

func (l *contentListener) sendKeysToElement(_ context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	if err := el.SendKeys(common.JoinKeys(p["value"])); err != nil {
		return nil, common.ElementError(err, "send keys to")
	}
	return nil, nil
}

func (l *contentListener) clearElement(_ context.Context, _ string, p protocol.Params) (any, error) {
	el, err := l.element(p)
	if err != nil {
		return nil, err
	}
	if err := el.Clear(); err != nil {
		return nil, common.ElementError(err, "clear")
	}
	return nil, nil
}

// switchToFrame focuses a frame of the current frame, or the top-level
// content without id and element. Out of process frames get their own
// listener, whose registration acknowledges the command.
func (l *contentListener) switchToFrame(ctx context.Context, cid string, p protocol.Params) (any, error) {
	win := l.frame()
	reg := l.registry()

	if !p.Has("id") && !p.Has("element") {
		l.mu.Lock()
		l.curFrame = nil
		l.mu.Unlock()
		l.notify(listener.MsgSwitchedToFrame, map[string]any{"frameValue": nil})
		return nil, nil
	}

	frameEl, err := l.findFrame(win, reg, p)
	if err != nil {
		return nil, err
	}
	fwin, ok := win.FrameWindow(frameEl)
	if !ok {
		return nil, wderror.Newf(wderror.KindNoSuchFrame, "Unable to locate frame: %v", p["id"])
	}
	fw, _ := fwin.(*Window)
	if p.Bool("focus") {
		fw.Focus()
	}

	if fw.Remote() {
		l.notify(listener.MsgSwitchToFrame, map[string]any{"frame": fw.ID(), "command_id": cid})
		if err := fw.LoadListener(ctx); err != nil {
			return nil, wderror.Newf(wderror.KindFrameSendFailure, "Unable to load listener into frame: %v", err)
		}
		return nil, errNoReply
	}

	l.mu.Lock()
	l.curFrame = fw
	l.mu.Unlock()
	l.notify(listener.MsgSwitchedToFrame, map[string]any{"frameValue": reg.Wrap(frameEl)})
	return nil, nil
}

// findFrame looks a frame up by element, by name or id, or by index.
func (l *contentListener) findFrame(win *Window, reg *common.ElementManager, p protocol.Params) (api.Element, error) {
	ref := p["id"]
	if v, ok := p["element"]; ok && v != nil {
		ref = v
	}

	handle, isHandle := p["element"].(string)
	if m, ok := ref.(map[string]any); ok {
		handle, isHandle = m[common.ElementKey].(string)
	}
	if isHandle {
		el, err := reg.Get(handle, win)
		if err != nil {
			return nil, err
		}
		if tag := strings.ToLower(el.TagName()); tag != "iframe" && tag != "frame" {
			return nil, wderror.Newf(wderror.KindNoSuchFrame, "Unable to locate frame: %v", handle)
		}
		return el, nil
	}

	frames := win.Frames()
	if name, ok := ref.(string); ok {
		for _, key := range []string{"name", "id"} {
			for _, f := range frames {
				if v, ok := f.Attribute(key); ok && v == name {
					return f, nil
				}
			}
		}
	} else if i, err := protocol.ToInt(ref); err == nil && i >= 0 && int(i) < len(frames) {
		return frames[i], nil
	}
	return nil, wderror.Newf(wderror.KindNoSuchFrame, "Unable to locate frame: %v", ref)
}

func (l *contentListener) setTestName(_ context.Context, _ string, p protocol.Params) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.testName = p.StringOr("value", "")
	return nil, nil
}

func (l *contentListener) currentTestName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.testName
}

func (l *contentListener) importScript(_ context.Context, _ string, p protocol.Params) (any, error) {
	script := p.StringOr("script", "")
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.scripts {
		if s == script {
			return nil, nil
		}
	}
	l.scripts = append(l.scripts, script)
	return nil, nil
}

func (l *contentListener) clearImportedScripts(context.Context, string, protocol.Params) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts = nil
	return nil, nil
}

func (l *contentListener) takeScreenshot(ctx context.Context, _ string, p protocol.Params) (any, error) {
	win := l.frame()
	reg := l.registry()

	var el api.Element
	if id, ok := p.String("id"); ok && id != "" {
		var err error
		if el, err = reg.Get(id, win); err != nil {
			return nil, err
		}
	}
	var highlights []api.Element
	hs, _ := p.Slice("highlights")
	for _, h := range hs {
		id, ok := h.(string)
		if !ok {
			continue
		}
		hl, err := reg.Get(id, win)
		if err != nil {
			return nil, err
		}
		highlights = append(highlights, hl)
	}
	png, err := win.Screenshot(ctx, el, highlights)
	if err != nil {
		return nil, wderror.Newf(wderror.KindUnknown, "Unable to take screenshot: %v", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// runEmulator asks the client to run an emulator command for a script. The
// driver passes the request on with the listener's id.
func (l *contentListener) runEmulator(cmd, shell string, done func(any)) {
	l.mu.Lock()
	id := l.emuNext
	l.emuNext++
	if done != nil {
		l.emuCbs[id] = done
	}
	l.mu.Unlock()

	if shell != "" {
		l.notify(listener.MsgRunEmulatorShell, map[string]any{"emulator_shell": shell, "id": id})
		return
	}
	l.notify(listener.MsgRunEmulatorCmd, map[string]any{"emulator_cmd": cmd, "id": id})
}

func (l *contentListener) emulatorCmdResult(p protocol.Params) {
	id, err := p.Int("id")
	if err != nil {
		l.logger.Debugf("Listener:emulatorCmdResult", "frame:%q invalid id %v", l.frameID, p["id"])
		return
	}
	l.mu.Lock()
	cb, ok := l.emuCbs[int(id)]
	delete(l.emuCbs, int(id))
	l.mu.Unlock()
	if !ok {
		l.logger.Debugf("Listener:emulatorCmdResult", "frame:%q no callback for id:%d", l.frameID, id)
		return
	}
	cb(p["result"])
}

// cookieURL returns the address of the current document. Cookie commands
// need an http page.
func (l *contentListener) cookieURL() (*url.URL, error) {
	u := l.frame().document().url
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, wderror.Newf(wderror.KindWebDriver, "Cookies are not available for %s", u)
	}
	return u, nil
}

func (l *contentListener) addCookie(_ context.Context, _ string, p protocol.Params) (any, error) {
	u, err := l.cookieURL()
	if err != nil {
		return nil, err
	}
	raw, ok := p.Map("cookie")
	if !ok {
		return nil, wderror.New(wderror.KindWebDriver, "Missing cookie")
	}
	cp := protocol.Params(raw)
	c := &http.Cookie{
		Name:     cp.StringOr("name", ""),
		Value:    cp.StringOr("value", ""),
		Path:     cp.StringOr("path", "/"),
		Domain:   cp.StringOr("domain", ""),
		Secure:   cp.Bool("secure"),
		HttpOnly: cp.Bool("httpOnly"),
	}
	if c.Domain != "" && !strings.HasSuffix(u.Hostname(), strings.TrimPrefix(c.Domain, ".")) {
		return nil, wderror.Newf(wderror.KindWebDriver, "You may only set cookies for the current domain")
	}
	if expiry, err := cp.Int("expiry"); err == nil {
		c.Expires = time.Unix(expiry, 0)
	}
	l.win.app.client.Jar.SetCookies(u, []*http.Cookie{c})
	return nil, nil
}

func (l *contentListener) getCookies(context.Context, string, protocol.Params) (any, error) {
	u, err := l.cookieURL()
	if err != nil {
		return nil, err
	}
	cookies := l.win.app.client.Jar.Cookies(u)
	out := make([]any, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, map[string]any{
			"name":   c.Name,
			"value":  c.Value,
			"path":   "/",
			"domain": u.Hostname(),
			"secure": u.Scheme == "https",
			"expiry": nil,
		})
	}
	return out, nil
}

func (l *contentListener) deleteCookie(_ context.Context, _ string, p protocol.Params) (any, error) {
	u, err := l.cookieURL()
	if err != nil {
		return nil, err
	}
	l.expire(u, p.StringOr("name", ""))
	return nil, nil
}

func (l *contentListener) deleteAllCookies(context.Context, string, protocol.Params) (any, error) {
	u, err := l.cookieURL()
	if err != nil {
		return nil, err
	}
	for _, c := range l.win.app.client.Jar.Cookies(u) {
		l.expire(u, c.Name)
	}
	return nil, nil
}

func (l *contentListener) expire(u *url.URL, name string) {
	l.win.app.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1}})
}
