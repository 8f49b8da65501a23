package headless

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/common"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/storage"
	"github.com/grafana/xk6-marionette/wderror"
)

// contentTest drives a headless application through a driver session.
type contentTest struct {
	t    *testing.T
	app  *App
	d    *common.Driver
	next int
}

func newContentTest(t *testing.T, opts Options) *contentTest {
	t.Helper()

	logger := log.NewNullLogger()
	if opts.Bus == nil {
		opts.Bus = listener.NewBus(logger)
	}
	opts.Logger = logger
	app, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Quit(context.Background(), nil) })
	openWindow(t, app, "")

	store, err := storage.NewScriptStore(t.TempDir())
	require.NoError(t, err)
	d := common.NewDriver(common.Options{App: app, Bus: opts.Bus, Logger: logger, Scripts: store})
	t.Cleanup(func() { _ = d.Close() })

	ct := &contentTest{t: t, app: app, d: d}
	ct.mustRun("newSession", nil)
	return ct
}

func (ct *contentTest) run(name string, params map[string]any) (any, error) {
	ct.t.Helper()

	h, ok := ct.d.Resolve(name)
	require.Truef(ct.t, ok, "command %q", name)

	ct.next++
	cid := strconv.Itoa(ct.next)
	resp := cmdproc.NewResponse(log.NewNullLogger(), cid, func(cmdproc.Result, string) {})
	err := h(context.Background(), &protocol.Command{Name: name, Parameters: params, ID: cid}, resp)
	return resp.Value(), err
}

func (ct *contentTest) mustRun(name string, params map[string]any) any {
	ct.t.Helper()
	v, err := ct.run(name, params)
	require.NoError(ct.t, err, name)
	return v
}

// find returns the id of the element matched in the current frame.
func (ct *contentTest) find(using, value string) string {
	ct.t.Helper()
	ref, ok := ct.mustRun("findElement", map[string]any{"using": using, "value": value}).(map[string]any)
	require.True(ct.t, ok)
	id, ok := ref[common.ElementKey].(string)
	require.True(ct.t, ok)
	return id
}

func requireKind(t *testing.T, err error, kind wderror.Kind) {
	t.Helper()

	require.Error(t, err)
	e, ok := wderror.As(err)
	require.Truef(t, ok, "not a protocol error: %v", err)
	assert.Equal(t, kind, e.Kind(), e.Message())
}

func TestContentNavigation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})

	assert.Equal(t, "", ct.mustRun("getTitle", nil), "sessions start on a blank tab")
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))
	assert.Equal(t, srv.URL+"/index", ct.mustRun("getCurrentUrl", nil))
	assert.Contains(t, ct.mustRun("getPageSource", nil), `id="head"`)

	ct.mustRun("clickElement", map[string]any{"id": ct.find("link text", "Second page")})
	assert.Equal(t, "Second", ct.mustRun("getTitle", nil))
	ct.mustRun("goBack", nil)
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))
	ct.mustRun("goForward", nil)
	assert.Equal(t, "Second", ct.mustRun("getTitle", nil))
	ct.mustRun("refresh", nil)
	assert.Equal(t, "Second", ct.mustRun("getTitle", nil))

	_, err := ct.run("get", map[string]any{"url": "ftp://example.com/"})
	requireKind(t, err, wderror.KindUnknown)
}

func TestContentElements(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})

	head := ct.find("id", "head")
	assert.Equal(t, head, ct.find("css selector", "h1"), "elements keep their id")
	assert.Equal(t, "Hello world", ct.mustRun("getElementText", map[string]any{"id": head}))
	assert.Equal(t, "h1", ct.mustRun("getElementTagName", map[string]any{"id": head}))
	assert.Equal(t, true, ct.mustRun("isElementDisplayed", map[string]any{"id": head}))
	assert.Equal(t, "big title", ct.mustRun("getElementAttribute", map[string]any{"id": head, "name": "class"}))
	assert.Nil(t, ct.mustRun("getElementAttribute", map[string]any{"id": head, "name": "title"}))

	els, ok := ct.mustRun("findElements", map[string]any{"using": "tag name", "value": "a"}).([]any)
	require.True(t, ok)
	assert.Len(t, els, 2)
	els, ok = ct.mustRun("findElements", map[string]any{"using": "tag name", "value": "video"}).([]any)
	require.True(t, ok)
	assert.Empty(t, els)

	_, err := ct.run("findElement", map[string]any{"using": "id", "value": "missing"})
	requireKind(t, err, wderror.KindNoSuchElement)
	_, err = ct.run("findElement", map[string]any{"using": "css selector", "value": "h1["})
	requireKind(t, err, wderror.KindInvalidSelector)

	secret := ct.find("class name", "secret")
	_, err = ct.run("clickElement", map[string]any{"id": secret})
	requireKind(t, err, wderror.KindElementNotVisible)

	ct.mustRun("refresh", nil)
	_, err = ct.run("getElementText", map[string]any{"id": head})
	requireKind(t, err, wderror.KindStaleElementReference)
	_, err = ct.run("getElementText", map[string]any{"id": "nope"})
	requireKind(t, err, wderror.KindNoSuchElement)
}

func TestContentForms(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/form"})

	q := ct.find("id", "q")
	ct.mustRun("sendKeysToElement", map[string]any{"id": q, "value": []any{"go", "pher"}})
	assert.Equal(t, "gopher", ct.mustRun("getElementAttribute", map[string]any{"id": q, "name": "value"}))
	ct.mustRun("clearElement", map[string]any{"id": q})
	assert.Equal(t, "", ct.mustRun("getElementAttribute", map[string]any{"id": q, "name": "value"}))
	ct.mustRun("sendKeysToElement", map[string]any{"id": q, "value": []any{"x"}})

	c := ct.find("id", "c")
	assert.Equal(t, false, ct.mustRun("isElementSelected", map[string]any{"id": c}))
	ct.mustRun("clickElement", map[string]any{"id": c})
	assert.Equal(t, true, ct.mustRun("isElementSelected", map[string]any{"id": c}))
	assert.Equal(t, false, ct.mustRun("isElementEnabled", map[string]any{"id": ct.find("id", "off")}))

	ct.mustRun("submitElement", map[string]any{"id": q})
	assert.Equal(t, "Echo GET", ct.mustRun("getTitle", nil))
	assert.Equal(t, "c=yes;q=x;r=one;ro=fixed;s=a;t=some text;",
		ct.mustRun("getElementText", map[string]any{"id": ct.find("id", "form")}))
}

func TestContentExecuteScript(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})

	assert.Equal(t, float64(3), ct.mustRun("executeScript", map[string]any{
		"script": "return arguments[0] + arguments[1];",
		"args":   []any{1.0, 2.0},
	}))
	assert.Equal(t, "Index", ct.mustRun("executeScript", map[string]any{"script": "return document.title();"}))

	head := map[string]any{common.ElementKey: ct.find("id", "head")}
	assert.Equal(t, head, ct.mustRun("executeScript", map[string]any{
		"script": "return arguments[0];",
		"args":   []any{head},
	}), "elements pass through scripts")

	assert.Equal(t, "later", ct.mustRun("executeAsyncScript", map[string]any{
		"script": "var cb = arguments[arguments.length - 1]; setTimeout(function() { cb('later'); }, 5);",
	}))

	_, err := ct.run("executeScript", map[string]any{"script": "undefinedFunction();"})
	requireKind(t, err, wderror.KindJavaScript)

	ct.mustRun("executeScript", map[string]any{"script": "marionetteLog('from content'); return 1;"})
	logs, ok := ct.mustRun("getLogs", nil).([][]any)
	require.True(t, ok)
	require.Len(t, logs, 1)
	assert.Equal(t, "from content", logs[0][1])
}

func TestContentScriptTimeoutZero(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	ct.mustRun("setScriptTimeout", map[string]any{"ms": 0.0})

	_, err := ct.run("executeAsyncScript", map[string]any{"script": "var never = true;"})
	requireKind(t, err, wderror.KindScriptTimeout)

	ct.mustRun("setScriptTimeout", map[string]any{"ms": 10000.0})
	assert.Equal(t, "Index", ct.mustRun("executeScript", map[string]any{"script": "return document.title();"}))
}

func TestContentFrames(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})

	ct.mustRun("switchToFrame", map[string]any{"id": "inner"})
	assert.Equal(t, "Frame", ct.mustRun("getTitle", nil))
	assert.Equal(t, "framed", ct.mustRun("getElementText", map[string]any{"id": ct.find("id", "in-frame")}))

	ct.mustRun("switchToFrame", nil)
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))

	ct.mustRun("switchToFrame", map[string]any{"id": float64(0)})
	assert.Equal(t, "Frame", ct.mustRun("getTitle", nil), "frames switch by index")
	ct.mustRun("switchToFrame", nil)

	ct.mustRun("switchToFrame", map[string]any{"element": ct.find("id", "innerid")})
	assert.Equal(t, "Frame", ct.mustRun("getTitle", nil), "frames switch by element")
	ct.mustRun("switchToFrame", nil)

	_, err := ct.run("switchToFrame", map[string]any{"id": float64(5)})
	requireKind(t, err, wderror.KindNoSuchFrame)
	_, err = ct.run("switchToFrame", map[string]any{"element": ct.find("id", "head")})
	requireKind(t, err, wderror.KindNoSuchFrame)
}

func TestContentRemoteFrame(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})

	ct.mustRun("switchToFrame", map[string]any{"id": "remote"})
	assert.Equal(t, "Frame", ct.mustRun("getTitle", nil), "commands go to the frame's own listener")
	assert.Equal(t, "framed", ct.mustRun("getElementText", map[string]any{"id": ct.find("id", "in-frame")}))

	ct.mustRun("switchToFrame", nil)
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))
}

func TestContentCookies(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})

	_, err := ct.run("getCookies", nil)
	require.Error(t, err, "about:blank has no cookies")

	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	ct.mustRun("addCookie", map[string]any{"cookie": map[string]any{"name": "flavor", "value": "oatmeal"}})
	ct.mustRun("addCookie", map[string]any{"cookie": map[string]any{"name": "size", "value": "large"}})

	names := func() []string {
		cookies, ok := ct.mustRun("getCookies", nil).([]any)
		require.True(t, ok)
		var out []string
		for _, c := range cookies {
			out = append(out, c.(map[string]any)["name"].(string))
		}
		return out
	}
	assert.ElementsMatch(t, []string{"flavor", "size"}, names())

	ct.mustRun("deleteCookie", map[string]any{"name": "flavor"})
	assert.Equal(t, []string{"size"}, names())
	ct.mustRun("deleteAllCookies", nil)
	assert.Empty(t, names())

	_, err = ct.run("addCookie", map[string]any{"cookie": map[string]any{"name": "a", "value": "b", "domain": "example.com"}})
	require.Error(t, err)
}

func TestContentUnsupported(t *testing.T) {
	t.Parallel()

	ct := newContentTest(t, Options{})

	_, err := ct.run("multiAction", map[string]any{"value": []any{}, "max_length": 1.0})
	requireKind(t, err, wderror.KindUnsupportedOperation)
	assert.Equal(t, float64(0), ct.mustRun("getAppCacheStatus", nil))
}

func TestContentSessionRestart(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	head := ct.find("id", "head")

	ct.mustRun("deleteSession", nil)
	ct.mustRun("newSession", nil)

	assert.Equal(t, "", ct.mustRun("getTitle", nil))
	_, err := ct.run("getElementText", map[string]any{"id": head})
	require.Error(t, err)
}

func TestChromeContextOnHeadlessWindow(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ct := newContentTest(t, Options{})
	ct.mustRun("setContext", map[string]any{"value": "chrome"})

	assert.Equal(t, BrowserWindowType, ct.mustRun("getWindowType", nil))
	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))

	ref, ok := ct.mustRun("findElement", map[string]any{"using": "id", "value": "head"}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello world", ct.mustRun("getElementText", map[string]any{"id": ref[common.ElementKey]}))
	assert.Equal(t, "Index", ct.mustRun("executeScript", map[string]any{"script": "return document.title();"}))

	_, err := ct.run("getCookies", nil)
	requireKind(t, err, wderror.KindWebDriver)
}

func TestContentListenerOverHub(t *testing.T) {
	t.Parallel()

	logger := log.NewNullLogger()
	bus := listener.NewBus(logger)
	hub := httptest.NewServer(listener.NewHub(bus, logger, metrics.NewUnregistered()))
	t.Cleanup(hub.Close)

	srv := newTestServer(t)
	ct := newContentTest(t, Options{
		Bus:    bus,
		HubURL: "ws" + strings.TrimPrefix(hub.URL, "http"),
		Info:   api.AppInfo{Name: "Firefox"},
	})

	ct.mustRun("get", map[string]any{"url": srv.URL + "/index"})
	assert.Equal(t, "Index", ct.mustRun("getTitle", nil))
	assert.Equal(t, "Hello world", ct.mustRun("getElementText", map[string]any{"id": ct.find("id", "head")}))
}
