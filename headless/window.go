package headless

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/oxtoacart/bpool"
	"golang.org/x/net/html"

	"github.com/grafana/xk6-marionette/api"
)

// maxFrameDepth bounds the nesting of frames loaded with a document.
const maxFrameDepth = 8

var (
	errWindowClosed      = errors.New("window is closed")
	errUnsupportedScheme = errors.New("unsupported scheme")
	errForeignElement    = errors.New("element belongs to another window")
	errInvalidSize       = errors.New("invalid window size")
)

var screenshotPool = bpool.NewBufferPool(8) //nolint:gochecknoglobals

// Window is a top-level window, a tab or the content window of a frame.
type Window struct {
	app    *App
	id     string
	typ    string
	parent *Window
	// remote frames run their listener out of process.
	remote bool

	mu       sync.RWMutex
	name     string
	doc      *Document
	history  []string
	index    int
	x, y     int
	w, h     int
	closed   bool
	tabs     []*Window
	frames   map[*html.Node]*Window
	elements map[*html.Node]*Element
	active   *html.Node
	listener *contentListener
}

var _ api.Window = &Window{}

func newWindow(app *App, typ string, parent *Window) *Window {
	return &Window{
		app:      app,
		id:       app.newID(),
		typ:      typ,
		parent:   parent,
		doc:      blankDocument(),
		index:    -1,
		w:        defaultWindowWidth,
		h:        defaultWindowHeight,
		frames:   make(map[*html.Node]*Window),
		elements: make(map[*html.Node]*Element),
	}
}

// ID returns the outer window id.
func (w *Window) ID() string { return w.id }

// Name returns the window name, for frames their name attribute.
func (w *Window) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Type returns the window type, empty for tabs and frames.
func (w *Window) Type() string { return w.typ }

// Remote reports whether the window is an out of process frame.
func (w *Window) Remote() bool { return w.remote }

func (w *Window) document() *Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.doc
}

func (w *Window) Title() string { return w.document().Title() }

func (w *Window) URL() string { return w.document().URL() }

// ReadyState is always complete: documents are shown once loaded.
func (w *Window) ReadyState() string { return "complete" }

// WaitLoad fails when the window was closed.
func (w *Window) WaitLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for window:%s: %w", w.id, err)
	}
	if w.Closed() {
		return errWindowClosed
	}
	return nil
}

func (w *Window) depth() int {
	d := 0
	for p := w.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// top returns the top-level window holding w.
func (w *Window) top() *Window {
	t := w
	for t.parent != nil {
		t = t.parent
	}
	return t
}

// Navigate loads ref, resolved against the current document.
func (w *Window) Navigate(ctx context.Context, ref string) error {
	u, err := w.document().Resolve(ref)
	if err != nil {
		return err
	}
	doc, err := w.fetch(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return w.show(ctx, doc, true)
}

func (w *Window) post(ctx context.Context, target *url.URL, values url.Values) error {
	doc, err := w.fetch(ctx, http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	return w.show(ctx, doc, true)
}

func (w *Window) Back(ctx context.Context) error { return w.traverse(ctx, -1) }

func (w *Window) Forward(ctx context.Context) error { return w.traverse(ctx, 1) }

func (w *Window) Refresh(ctx context.Context) error { return w.traverse(ctx, 0) }

// traverse loads the history entry delta steps away from the current one.
// Moving past either end is a no-op.
func (w *Window) traverse(ctx context.Context, delta int) error {
	w.mu.RLock()
	i := w.index + delta
	if i < 0 || i >= len(w.history) {
		w.mu.RUnlock()
		return nil
	}
	target := w.history[i]
	w.mu.RUnlock()

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parsing history entry %q: %w", target, err)
	}
	doc, err := w.fetch(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.index = i
	w.mu.Unlock()
	return w.show(ctx, doc, false)
}

func (w *Window) fetch(ctx context.Context, method string, u *url.URL, body io.Reader) (*Document, error) {
	switch u.Scheme {
	case "about":
		if u.Opaque != "blank" {
			return nil, fmt.Errorf("%w: %s", errUnsupportedScheme, u)
		}
		return blankDocument(), nil
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := w.app.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", u, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	w.app.logger.Debugf("Window:fetch", "window:%q %s %s status:%d", w.id, method, u, resp.StatusCode)
	return parseDocument(resp.Body, resp.Request.URL)
}

// show makes doc the current document, optionally adding it to the
// history, and loads its frames. Elements of the previous document go
// stale.
func (w *Window) show(ctx context.Context, doc *Document, push bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWindowClosed
	}
	old := w.frames
	w.doc = doc
	w.active = nil
	w.frames = make(map[*html.Node]*Window)
	w.elements = make(map[*html.Node]*Element)
	if push {
		w.history = append(w.history[:w.index+1], doc.URL())
		w.index = len(w.history) - 1
	}
	w.mu.Unlock()

	for _, f := range old {
		_ = f.Close()
	}
	w.loadFrames(ctx, doc)
	return nil
}

func (w *Window) loadFrames(ctx context.Context, doc *Document) {
	if w.depth() >= maxFrameDepth {
		return
	}
	for _, n := range doc.Frames() {
		fw := newWindow(w.app, "", w)
		fw.name, _ = attr(n, "name")
		remote, _ := attr(n, "remote")
		fw.remote = remote == "true"

		if src, ok := attr(n, "src"); ok && src != "" {
			if err := fw.load(ctx, doc, src); err != nil {
				w.app.logger.Debugf("Window:loadFrames", "window:%q frame src:%q: %v", w.id, src, err)
			}
		}

		w.mu.Lock()
		if w.doc != doc {
			w.mu.Unlock()
			_ = fw.Close()
			return
		}
		w.frames[n] = fw
		w.mu.Unlock()
	}
}

// load shows src, resolved against the document of the parent frame.
func (w *Window) load(ctx context.Context, parent *Document, src string) error {
	u, err := parent.Resolve(src)
	if err != nil {
		return err
	}
	doc, err := w.fetch(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return w.show(ctx, doc, true)
}

// wrap returns the element of n, creating it on first use.
func (w *Window) wrap(doc *Document, n *html.Node) *Element {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == doc {
		if el, ok := w.elements[n]; ok {
			return el
		}
	}
	el := &Element{win: w, doc: doc, node: n}
	if w.doc == doc {
		w.elements[n] = el
	}
	return el
}

func (w *Window) wrapAll(doc *Document, nodes []*html.Node) []api.Element {
	els := make([]api.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, w.wrap(doc, n))
	}
	return els
}

// Frames returns the frame elements of the document.
func (w *Window) Frames() []api.Element {
	doc := w.document()
	return w.wrapAll(doc, doc.Frames())
}

// FrameWindow returns the content window of frame.
func (w *Window) FrameWindow(frame api.Element) (api.Window, bool) {
	el, ok := frame.(*Element)
	if !ok || el.win != w {
		return nil, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	fw, ok := w.frames[el.node]
	if !ok {
		return nil, false
	}
	return fw, true
}

// Find returns the elements matching value with strategy below root.
func (w *Window) Find(_ context.Context, strategy, value string, root api.Element) ([]api.Element, error) {
	doc := w.document()
	var rootNode *html.Node
	if root != nil {
		el, ok := root.(*Element)
		if !ok || el.win != w {
			return nil, errForeignElement
		}
		rootNode = el.node
	}

	w.mu.RLock()
	nodes, err := doc.Find(strategy, value, rootNode)
	w.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return w.wrapAll(doc, nodes), nil
}

// ActiveElement returns the element clicked or typed into last, or the
// body.
func (w *Window) ActiveElement() api.Element {
	doc := w.document()
	w.mu.RLock()
	n := w.active
	w.mu.RUnlock()
	if n == nil {
		n = doc.Body()
	}
	if n == nil {
		return nil
	}
	return w.wrap(doc, n)
}

// PageSource serializes the document.
func (w *Window) PageSource() string {
	doc := w.document()
	w.mu.RLock()
	defer w.mu.RUnlock()
	return doc.Render()
}

func (w *Window) Position() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.x, w.y
}

func (w *Window) MoveTo(x, y int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.x, w.y = x, y
	return nil
}

func (w *Window) Size() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.w, w.h
}

func (w *Window) ResizeTo(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", errInvalidSize, width, height)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w, w.h = width, height
	return nil
}

// Focus makes the top-level window holding w the most recent one.
func (w *Window) Focus() { w.app.focus(w.top()) }

// Close closes the window with its tabs and frames. Their listeners are
// disconnected.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	l := w.listener
	w.listener = nil
	children := append([]*Window(nil), w.tabs...)
	for _, f := range w.frames {
		children = append(children, f)
	}
	w.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	for _, c := range children {
		_ = c.Close()
	}
	return nil
}

func (w *Window) Closed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

var highlightColor = color.RGBA{R: 0xff, A: 0xff} //nolint:gochecknoglobals

// Screenshot renders a blank canvas of the window or element size with the
// outlines of the highlighted elements.
func (w *Window) Screenshot(_ context.Context, el api.Element, highlights []api.Element) ([]byte, error) {
	width, height := w.Size()
	if el != nil {
		r := el.Rect()
		width, height = int(r.Width), int(r.Height)
	}
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for _, hl := range highlights {
		r := hl.Rect()
		outline(img, image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height)))
	}

	buf := screenshotPool.Get()
	defer screenshotPool.Put(buf)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encoding screenshot: %w", err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

func outline(img *image.RGBA, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, highlightColor)
		img.Set(x, r.Max.Y-1, highlightColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, highlightColor)
		img.Set(r.Max.X-1, y, highlightColor)
	}
}

// NewTab opens url in a new tab of the window.
func (w *Window) NewTab(ctx context.Context, url string) (api.Window, error) {
	tab := newWindow(w.app, "", w)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, errWindowClosed
	}
	w.tabs = append(w.tabs, tab)
	w.mu.Unlock()

	if err := tab.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return tab, nil
}

// HasListener reports whether a listener runs in the window.
func (w *Window) HasListener() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.listener != nil
}

// LoadListener starts a listener in the window's content, or makes the
// running one register again. Chrome windows other than browser windows
// have no content.
func (w *Window) LoadListener(ctx context.Context) error {
	if w.typ != "" && w.typ != BrowserWindowType {
		return api.ErrNoContentProcess
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWindowClosed
	}
	l := w.listener
	fresh := l == nil
	if fresh {
		l = newContentListener(w)
		w.listener = l
	}
	w.mu.Unlock()

	if !fresh {
		return l.register()
	}
	if err := l.start(ctx); err != nil {
		w.mu.Lock()
		w.listener = nil
		w.mu.Unlock()
		return err
	}
	return nil
}
