package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/sandbox"
	"github.com/grafana/xk6-marionette/storage"
	"github.com/grafana/xk6-marionette/trace"
	"github.com/grafana/xk6-marionette/wderror"
)

const (
	b2gSuffix = listener.B2GSuffix

	// DefaultPollInterval is the interval of the waits for windows, page
	// loads and elements.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultNewSessionTimeout bounds the wait for the first listener.
	DefaultNewSessionTimeout = 60 * time.Second
)

// Options configure a Driver.
type Options struct {
	App     api.Application
	Bus     *listener.Bus
	Logger  *log.Logger
	Scripts *storage.ScriptStore
	// Tracer records a span per session, nil records nothing.
	Tracer *trace.Tracer
	// NewSessionTimeout bounds newSession, zero means the default.
	NewSessionTimeout time.Duration
	// ScriptTimeout is the script timeout of new sessions in ms.
	ScriptTimeout int64
	// PollInterval is the interval of waits, zero means the default.
	PollInterval time.Duration
}

// Driver executes commands against the application. It holds the state of
// the session, of which there is at most one at a time.
type Driver struct {
	app     api.Application
	info    api.AppInfo
	bus     *listener.Bus
	logger  *log.Logger
	tracer  *trace.Tracer
	sandbox *sandbox.Sandbox
	scripts *ImportedScripts
	log     *SessionLog
	emu     *emulatorCallbacks

	newSessionTimeout time.Duration
	scriptTimeout     int64
	poll              time.Duration
	removers          []func()

	mu         sync.Mutex
	session    *Session
	starting   bool
	context    Context
	timeouts   Timeouts
	browsers   map[string]*Browser
	curBrowser *Browser
	mainFrame  api.Window
	// curFrame is the frame chrome commands target, nil for top-level.
	curFrame        api.Window
	curFrameElement api.Element
	// frame elements reported by content listeners.
	currentFrameElement  any
	previousFrameElement any
	testName             string
	// registered is closed when the first listener of a starting session
	// registered.
	registered   chan struct{}
	emulatorSink EmulatorSink
}

var _ cmdproc.Resolver = &Driver{}

// NewDriver returns a driver for opts.App listening to listener messages on
// opts.Bus.
func NewDriver(opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}
	d := &Driver{
		app:               opts.App,
		info:              opts.App.Info(),
		bus:               opts.Bus,
		logger:            logger,
		tracer:            tracer,
		sandbox:           sandbox.New(logger),
		scripts:           NewImportedScripts(opts.Scripts),
		log:               NewSessionLog(),
		emu:               newEmulatorCallbacks(),
		newSessionTimeout: opts.NewSessionTimeout,
		scriptTimeout:     opts.ScriptTimeout,
		poll:              opts.PollInterval,
		context:           ContextContent,
		timeouts:          NewTimeouts(opts.ScriptTimeout),
		browsers:          make(map[string]*Browser),
	}
	if d.newSessionTimeout <= 0 {
		d.newSessionTimeout = DefaultNewSessionTimeout
	}
	if d.poll <= 0 {
		d.poll = DefaultPollInterval
	}
	d.subscribe()
	return d
}

func (d *Driver) subscribe() {
	handlers := map[string]listener.Handler{
		listener.MsgRegister:            d.onRegister,
		listener.MsgLog:                 d.onLog,
		listener.MsgShareData:           d.onShareData,
		listener.MsgSwitchToFrame:       d.onSwitchToFrame,
		listener.MsgSwitchedToFrame:     d.onSwitchedToFrame,
		listener.MsgSwitchToModalOrigin: d.onSwitchToModalOrigin,
		listener.MsgRunEmulatorCmd:      d.onRunEmulator,
		listener.MsgRunEmulatorShell:    d.onRunEmulator,
	}
	for name, fn := range handlers {
		d.removers = append(d.removers, d.bus.AddMessageListener(name, fn))
	}
}

// Close stops listening to listener messages.
func (d *Driver) Close() error {
	for _, rm := range d.removers {
		rm()
	}
	d.removers = nil
	return nil
}

// SessionID returns the id of the current session, or an empty string.
func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return ""
	}
	return d.session.ID()
}

// Context returns the current execution context.
func (d *Driver) Context() Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.context
}

// SetEmulatorSink sets where emulator requests are sent.
func (d *Driver) SetEmulatorSink(sink EmulatorSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emulatorSink = sink
}

// Resolve returns the handler of the command named name.
func (d *Driver) Resolve(name string) (cmdproc.HandlerFunc, bool) {
	k, ok := ResolveCommand(name)
	if !ok {
		return nil, false
	}
	h := d.handler(k)
	if h == nil {
		return nil, false
	}
	if k.ContentOnly() {
		h = d.contentOnly(k, h)
	}
	return d.withTestName(h), true
}

// withTestName attaches the name set by setTestName to the handler context.
func (d *Driver) withTestName(h cmdproc.HandlerFunc) cmdproc.HandlerFunc {
	return func(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
		d.mu.Lock()
		name := d.testName
		d.mu.Unlock()
		return h(WithTestName(ctx, name), cmd, resp)
	}
}

//nolint:funlen,cyclop
func (d *Driver) handler(k CommandKind) cmdproc.HandlerFunc {
	switch k {
	case CmdGetMarionetteID:
		return d.getMarionetteID
	case CmdSayHello:
		return d.sayHello
	case CmdNewSession:
		return d.newSession
	case CmdGetSessionCapabilities:
		return d.getSessionCapabilities
	case CmdLog:
		return d.logCmd
	case CmdGetLogs:
		return d.getLogs
	case CmdSetContext:
		return d.setContext
	case CmdGetContext:
		return d.getContext
	case CmdSetTestName:
		return d.setTestName
	case CmdDeleteSession:
		return d.deleteSession
	case CmdQuitApplication:
		return d.quitApplication
	case CmdExecuteScript:
		return d.executeScript
	case CmdExecuteAsyncScript:
		return d.executeAsyncScript
	case CmdExecuteJSScript:
		return d.executeJSScript
	case CmdSetScriptTimeout:
		return d.setScriptTimeout
	case CmdSetSearchTimeout:
		return d.setSearchTimeout
	case CmdTimeouts:
		return d.setTimeouts
	case CmdImportScript:
		return d.importScript
	case CmdClearImportedScripts:
		return d.clearImportedScripts
	case CmdEmulatorCmdResult:
		return d.emulatorCmdResult
	case CmdGet:
		return d.get
	case CmdGetCurrentURL:
		return d.getCurrentURL
	case CmdGetTitle:
		return d.getTitle
	case CmdGetWindowType:
		return d.getWindowType
	case CmdGetPageSource:
		return d.getPageSource
	case CmdGoBack:
		return d.forward("goBack")
	case CmdGoForward:
		return d.forward("goForward")
	case CmdRefresh:
		return d.forward("refresh")
	case CmdGetWindowHandle:
		return d.getWindowHandle
	case CmdGetWindowHandles:
		return d.getWindowHandles
	case CmdGetWindowPosition:
		return d.getWindowPosition
	case CmdSetWindowPosition:
		return d.setWindowPosition
	case CmdGetWindowSize:
		return d.getWindowSize
	case CmdSetWindowSize:
		return d.setWindowSize
	case CmdMaximizeWindow:
		return d.maximizeWindow
	case CmdSwitchToWindow:
		return d.switchToWindow
	case CmdClose:
		return d.close
	case CmdCloseChromeWindow:
		return d.closeChromeWindow
	case CmdGetActiveFrame:
		return d.getActiveFrame
	case CmdSwitchToFrame:
		return d.switchToFrame
	case CmdTakeScreenshot:
		return d.takeScreenshot
	case CmdGetScreenOrientation:
		return d.getScreenOrientation
	case CmdSetScreenOrientation:
		return d.setScreenOrientation
	case CmdGetAppCacheStatus:
		return d.forward("getAppCacheStatus")
	case CmdFindElement:
		return d.findElement
	case CmdFindElements:
		return d.findElements
	case CmdFindChildElement:
		return d.findChild("findElementContent")
	case CmdFindChildElements:
		return d.findChild("findElementsContent")
	case CmdGetActiveElement:
		return d.forward("getActiveElement")
	case CmdClickElement:
		return d.clickElement
	case CmdSingleTap:
		return d.singleTap
	case CmdActionChain:
		return d.actionChain
	case CmdMultiAction:
		return d.multiAction
	case CmdGetElementAttribute:
		return d.getElementAttribute
	case CmdGetElementText:
		return d.getElementText
	case CmdGetElementTagName:
		return d.getElementTagName
	case CmdIsElementDisplayed:
		return d.isElementDisplayed
	case CmdGetElementValueOfCSSProperty:
		return d.forwardParams("getElementValueOfCssProperty", "id", "propertyName")
	case CmdSubmitElement:
		return d.forwardParams("submitElement", "id")
	case CmdGetElementSize:
		return d.getElementSize
	case CmdGetElementRect:
		return d.getElementRect
	case CmdGetElementLocation:
		return d.forwardParams("getElementLocation", "id")
	case CmdIsElementEnabled:
		return d.isElementEnabled
	case CmdIsElementSelected:
		return d.isElementSelected
	case CmdSendKeysToElement:
		return d.sendKeysToElement
	case CmdClearElement:
		return d.clearElement
	case CmdAddCookie:
		return d.forwardParams("addCookie", "cookie")
	case CmdGetCookies:
		return d.forward("getCookies")
	case CmdDeleteCookie:
		return d.forwardParams("deleteCookie", "name")
	case CmdDeleteAllCookies:
		return d.forward("deleteAllCookies")
	case cmdCount:
	}
	return nil
}

func (d *Driver) contentOnly(k CommandKind, h cmdproc.HandlerFunc) cmdproc.HandlerFunc {
	return func(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
		if d.Context() == ContextChrome {
			return wderror.NotAvailableInChrome(k.String())
		}
		return h(ctx, cmd, resp)
	}
}

// frameID returns the frame id of a listener window id.
func (d *Driver) frameID(value string) string {
	if d.info.IsB2G() {
		return value + b2gSuffix
	}
	return value
}

// handleFor returns the window handle of win.
func (d *Driver) handleFor(win api.Window) string {
	return d.frameID(win.ID())
}

func (d *Driver) currentBrowser() *Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.curBrowser
}

func (d *Driver) requireBrowser() (*Browser, error) {
	if b := d.currentBrowser(); b != nil {
		return b, nil
	}
	return nil, wderror.New(wderror.KindWebDriver, "Please start a session")
}

// currentWindow returns the window chrome commands target: the current
// frame, the current browser's window or the most recent window.
func (d *Driver) currentWindow() api.Window {
	d.mu.Lock()
	cur, b := d.curFrame, d.curBrowser
	d.mu.Unlock()

	switch {
	case cur != nil:
		return cur
	case b != nil:
		return b.Window()
	}
	return d.app.MostRecentWindow()
}

// window returns the current window, failing when there is none or it was
// closed.
func (d *Driver) window() (api.Window, error) {
	win := d.currentWindow()
	if win == nil || win.Closed() {
		return nil, wderror.New(wderror.KindNoSuchWindow, "Unable to locate window")
	}
	return win, nil
}

// windows returns the windows commands may switch to. In content context
// on desktop those are browser windows only.
func (d *Driver) windows() []api.Window {
	all := d.app.Windows()
	if d.info.IsB2G() || d.Context() != ContextContent {
		return all
	}
	wins := make([]api.Window, 0, len(all))
	for _, w := range all {
		if w.Type() == "navigator:browser" {
			wins = append(wins, w)
		}
	}
	return wins
}

func (d *Driver) currentTimeouts() Timeouts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeouts
}

// listenerCall calls name on the listener of the focused frame. A send
// failure while a remote frame owns focus moves back to the global channel.
func (d *Driver) listenerCall(ctx context.Context, cmd *protocol.Command, name string, args map[string]any) (any, error) {
	b, err := d.requireBrowser()
	if err != nil {
		return nil, err
	}
	v, err := b.Proxy().Call(ctx, name, cmd.ID, args)
	if err != nil && b.Frames().CurrentRemoteFrame() != nil &&
		(wderror.IsKind(err, wderror.KindFrameSendNotInitialized) || wderror.IsKind(err, wderror.KindFrameSendFailure)) {
		d.logger.Debugf("Driver:listenerCall", "remote frame unreachable, switching to global message manager: %v", err)
		b.Proxy().SwitchToGlobalMessageManager()
	}
	return v, err
}

// guardedCall is listenerCall for actions that may close the focused remote
// frame. The call fails when the frame closes before replying.
func (d *Driver) guardedCall(
	ctx context.Context, cmd *protocol.Command, name, action string, args map[string]any,
) (any, error) {
	b, err := d.requireBrowser()
	if err != nil {
		return nil, err
	}
	rf := b.Frames().CurrentRemoteFrame()
	if rf == nil {
		return d.listenerCall(ctx, cmd, name, args)
	}

	closed := make(chan struct{})
	var once sync.Once
	remove := d.bus.OnDetach(func(id string) {
		if id == rf.TargetFrameID {
			once.Do(func() { close(closed) })
		}
	})
	defer remove()

	callCtx, cancel := contextWithDoneChan(ctx, closed)
	defer cancel()

	v, err := d.listenerCall(callCtx, cmd, name, args)
	if err == nil {
		return v, nil
	}
	select {
	case <-closed:
		b.Proxy().SwitchToGlobalMessageManager()
		return nil, wderror.Newf(wderror.KindFrameSendFailure,
			"The frame closed during the %s, recovering to allow further communications", action)
	default:
	}
	return nil, err
}

// forward returns a handler calling name on the listener without arguments.
func (d *Driver) forward(name string) cmdproc.HandlerFunc {
	return d.forwardParams(name)
}

// forwardParams returns a handler calling name on the listener with the
// given command parameters.
func (d *Driver) forwardParams(name string, keys ...string) cmdproc.HandlerFunc {
	return func(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
		args := make(map[string]any, len(keys))
		for _, k := range keys {
			args[k] = cmd.Parameters[k]
		}
		v, err := d.listenerCall(ctx, cmd, name, args)
		if err != nil {
			return err
		}
		resp.SetValue(v)
		return nil
	}
}

// sendEmulator sends an emulator request to the client.
func (d *Driver) sendEmulator(pkt *protocol.Emulator) {
	d.mu.Lock()
	sink := d.emulatorSink
	d.mu.Unlock()

	if sink == nil {
		d.logger.Warnf("Driver:sendEmulator", "no client to run emulator request id:%d", pkt.ID)
		return
	}
	if err := sink(pkt); err != nil {
		d.logger.Warnf("Driver:sendEmulator", "sending emulator request id:%d: %v", pkt.ID, err)
	}
}

// runEmulator runs an emulator command or shell line on the client on
// behalf of a chrome script.
func (d *Driver) runEmulator(cmd, shell string, done func(any)) {
	id := d.emu.register(done)
	d.sendEmulator(&protocol.Emulator{From: protocol.ActorID, ID: id, Cmd: cmd, Shell: shell})
}

// startBrowser makes win the current browser. A new session waits for the
// listener of a new tab.
func (d *Driver) startBrowser(ctx context.Context, win api.Window, newSession bool) (*Browser, error) {
	handle := d.handleFor(win)
	b := NewBrowser(win, handle, d.info, d.bus, d.logger)
	b.SetNewSession(newSession)

	d.mu.Lock()
	d.mainFrame = win
	d.curFrame = nil
	d.curFrameElement = nil
	d.browsers[handle] = b
	d.curBrowser = b
	d.mu.Unlock()

	if err := b.StartSession(ctx, newSession); err != nil {
		return nil, err
	}
	if err := b.LoadListener(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// waitLoad polls win until its document completed loading.
func (d *Driver) waitLoad(ctx context.Context, win api.Window) error {
	if err := win.WaitLoad(ctx); err != nil {
		return wderror.New(wderror.KindUnknown, "Error loading page")
	}
	return nil
}

func (d *Driver) sleep(ctx context.Context) error {
	t := time.NewTimer(d.poll)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting: %w", ctx.Err())
	}
}
