package common

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/storage"
)

var windowIDs int64 //nolint:gochecknoglobals

type fakeApp struct {
	info   api.AppInfo
	bus    *listener.Bus
	screen *fakeScreen

	mu    sync.Mutex
	wins  []*fakeWindow
	quits [][]string
}

func newFakeApp(name string, bus *listener.Bus) *fakeApp {
	return &fakeApp{
		info:   api.AppInfo{Name: name, Version: "1.0", Platform: "linux", Device: "desktop"},
		bus:    bus,
		screen: &fakeScreen{w: 1920, h: 1080, orientation: "landscape-primary"},
	}
}

func (a *fakeApp) newWindow(typ string) *fakeWindow {
	w := &fakeWindow{
		app:   a,
		id:    strconv.FormatInt(atomic.AddInt64(&windowIDs, 1), 10),
		typ:   typ,
		url:   StartPage,
		title: "fake",
		w:     800,
		h:     600,
	}
	a.mu.Lock()
	a.wins = append(a.wins, w)
	a.mu.Unlock()
	return w
}

func (a *fakeApp) Info() api.AppInfo { return a.info }

func (a *fakeApp) Windows() []api.Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	var wins []api.Window
	for _, w := range a.wins {
		if !w.Closed() && w.typ != "" {
			wins = append(wins, w)
		}
	}
	return wins
}

func (a *fakeApp) MostRecentWindow() api.Window {
	wins := a.Windows()
	if len(wins) == 0 {
		return nil
	}
	return wins[len(wins)-1]
}

func (a *fakeApp) Screen() api.Screen { return a.screen }

func (a *fakeApp) Quit(_ context.Context, flags []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quits = append(a.quits, flags)
	return nil
}

type fakeScreen struct {
	w, h        int
	orientation string
}

func (s *fakeScreen) AvailSize() (int, int) { return s.w, s.h }
func (s *fakeScreen) Orientation() string { return s.orientation }

func (s *fakeScreen) LockOrientation(o string) bool {
	s.orientation = o
	return true
}

type fakeWindow struct {
	app   *fakeApp
	id    string
	name  string
	typ   string
	url   string
	title string

	mu       sync.Mutex
	x, y     int
	w, h     int
	closed   bool
	focused  int
	elements []*fakeElement
	frames   map[*fakeElement]*fakeWindow
	listener *fakeListener
}

func (w *fakeWindow) ID() string { return w.id }
func (w *fakeWindow) Name() string { return w.name }
func (w *fakeWindow) Title() string { return w.title }
func (w *fakeWindow) Type() string { return w.typ }
func (w *fakeWindow) URL() string { return w.url }
func (w *fakeWindow) ReadyState() string { return "complete" }
func (w *fakeWindow) WaitLoad(context.Context) error { return nil }
func (w *fakeWindow) Back(context.Context) error { return nil }
func (w *fakeWindow) Forward(context.Context) error { return nil }
func (w *fakeWindow) Refresh(context.Context) error { return nil }
func (w *fakeWindow) ActiveElement() api.Element { return nil }
func (w *fakeWindow) PageSource() string { return "<html></html>" }
func (w *fakeWindow) HasListener() bool { return w.listener != nil }
func (w *fakeWindow) Position() (int, int) { return w.x, w.y }
func (w *fakeWindow) Size() (int, int) { return w.w, w.h }
func (w *fakeWindow) Focus() { w.focused++ }
func (w *fakeWindow) Navigate(_ context.Context, u string) error {
	w.url = u
	return nil
}

func (w *fakeWindow) addElement(tag string, attrs map[string]string, text string) *fakeElement {
	el := &fakeElement{tag: tag, attrs: attrs, text: text, owner: w}
	w.mu.Lock()
	w.elements = append(w.elements, el)
	w.mu.Unlock()
	return el
}

// addFrame adds an iframe whose content is a new window.
func (w *fakeWindow) addFrame(attrs map[string]string) (*fakeElement, *fakeWindow) {
	el := w.addElement("iframe", attrs, "")
	fw := &fakeWindow{app: w.app, id: w.id + "." + strconv.Itoa(len(w.frames)), w: 100, h: 100}
	w.mu.Lock()
	if w.frames == nil {
		w.frames = make(map[*fakeElement]*fakeWindow)
	}
	w.frames[el] = fw
	w.mu.Unlock()
	return el, fw
}

func (w *fakeWindow) Frames() []api.Element {
	w.mu.Lock()
	defer w.mu.Unlock()
	var frames []api.Element
	for _, el := range w.elements {
		if _, ok := w.frames[el]; ok {
			frames = append(frames, el)
		}
	}
	return frames
}

func (w *fakeWindow) FrameWindow(frame api.Element) (api.Window, bool) {
	el, ok := frame.(*fakeElement)
	if !ok {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fw, ok := w.frames[el]
	return fw, ok
}

// Find matches tag names for css selectors and the id attribute for ids.
func (w *fakeWindow) Find(_ context.Context, strategy, value string, _ api.Element) ([]api.Element, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var els []api.Element
	for _, el := range w.elements {
		switch strategy {
		case "css selector", "tag name":
			if el.tag == value {
				els = append(els, el)
			}
		case "id":
			if el.attrs["id"] == value {
				els = append(els, el)
			}
		default:
			return nil, errors.New("unsupported strategy")
		}
	}
	return els, nil
}

func (w *fakeWindow) MoveTo(x, y int) error {
	w.x, w.y = x, y
	return nil
}

func (w *fakeWindow) ResizeTo(width, height int) error {
	w.w, w.h = width, height
	return nil
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	w.closed = true
	l := w.listener
	w.mu.Unlock()
	if l != nil {
		w.app.bus.Detach(l)
	}
	return nil
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Screenshot(context.Context, api.Element, []api.Element) ([]byte, error) {
	return []byte("png"), nil
}

func (w *fakeWindow) NewTab(context.Context, string) (api.Window, error) {
	return w.app.newWindow(""), nil
}

// LoadListener attaches a fake listener and registers it.
func (w *fakeWindow) LoadListener(context.Context) error {
	id := w.id
	if w.app.info.IsB2G() {
		id += b2gSuffix
	}
	l := &fakeListener{id: id, bus: w.app.bus, replies: map[string]any{
		listener.Prefix + "getTitle": "content title",
	}}
	w.mu.Lock()
	w.listener = l
	w.mu.Unlock()

	w.app.bus.Attach(l)
	msg, err := listener.NewMessage(listener.MsgRegister, "", listener.Registration{Value: w.id, Href: w.url})
	if err != nil {
		return err
	}
	msg.Sender = id
	w.app.bus.Receive(msg)
	return nil
}

// fakeListener records the messages sent to it and answers calls with the
// configured replies, or ok.
type fakeListener struct {
	id      string
	bus     *listener.Bus
	replies map[string]any

	mu       sync.Mutex
	received []listener.Message
}

func (l *fakeListener) ID() string { return l.id }
func (l *fakeListener) Close() error { return nil }

func (l *fakeListener) Deliver(msg listener.Message) error {
	l.mu.Lock()
	l.received = append(l.received, msg)
	l.mu.Unlock()

	cid := msg.CommandID()
	if cid == "" {
		return nil
	}
	go func() {
		if v, ok := l.replies[msg.Name]; ok {
			reply, _ := listener.ReplyDone(l.id, cid, v)
			l.bus.Receive(reply)
			return
		}
		l.bus.Receive(listener.ReplyOK(l.id, cid))
	}()
	return nil
}

func (l *fakeListener) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.received))
	for _, m := range l.received {
		names = append(names, strings.TrimPrefix(m.Name, listener.Prefix))
	}
	return names
}

type fakeElement struct {
	tag   string
	attrs map[string]string
	text  string
	owner *fakeWindow

	mu      sync.Mutex
	clicks  int
	keys    string
	cleared bool
}

func (e *fakeElement) TagName() string { return e.tag }

func (e *fakeElement) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Text() string { return e.text }
func (e *fakeElement) Displayed() bool { return true }
func (e *fakeElement) Enabled() bool { return true }
func (e *fakeElement) Selected() bool { return false }
func (e *fakeElement) CSSValue(string) string { return "" }
func (e *fakeElement) Rect() api.Rect { return api.Rect{X: 1, Y: 2, Width: 3, Height: 4} }
func (e *fakeElement) Submit(context.Context) error { return nil }
func (e *fakeElement) Owner() api.Window { return e.owner }

func (e *fakeElement) Click(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks++
	return nil
}

func (e *fakeElement) SendKeys(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys += text
	return nil
}

func (e *fakeElement) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared = true
	return nil
}

type driverTest struct {
	t    *testing.T
	app  *fakeApp
	bus  *listener.Bus
	win  *fakeWindow
	d    *Driver
	next int
}

func newDriverTest(t *testing.T, appName string, opts ...func(*Options)) *driverTest {
	t.Helper()

	logger := log.NewNullLogger()
	bus := listener.NewBus(logger)
	app := newFakeApp(appName, bus)
	win := app.newWindow("navigator:browser")
	store, err := storage.NewScriptStore(t.TempDir())
	require.NoError(t, err)

	o := Options{App: app, Bus: bus, Logger: logger, Scripts: store}
	for _, fn := range opts {
		fn(&o)
	}
	d := NewDriver(o)
	t.Cleanup(func() { _ = d.Close() })

	return &driverTest{t: t, app: app, bus: bus, win: win, d: d}
}

// run executes the command name and returns its reply value.
func (dt *driverTest) run(name string, params map[string]any) (any, error) {
	dt.t.Helper()

	h, ok := dt.d.Resolve(name)
	require.Truef(dt.t, ok, "command %q", name)

	dt.next++
	cid := strconv.Itoa(dt.next)
	resp := cmdproc.NewResponse(log.NewNullLogger(), cid, func(cmdproc.Result, string) {})
	err := h(context.Background(), &protocol.Command{Name: name, Parameters: params, ID: cid}, resp)
	return resp.Value(), err
}

func (dt *driverTest) mustRun(name string, params map[string]any) any {
	dt.t.Helper()
	v, err := dt.run(name, params)
	require.NoError(dt.t, err)
	return v
}

// tab returns the window the session's listener runs in.
func (dt *driverTest) tab() *fakeWindow {
	dt.t.Helper()
	b := dt.d.currentBrowser()
	require.NotNil(dt.t, b)
	if tab := b.Tab(); tab != nil {
		return tab.(*fakeWindow) //nolint:forcetypeassert
	}
	return b.Window().(*fakeWindow) //nolint:forcetypeassert
}
