package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/wderror"
)

func requireKind(t *testing.T, err error, kind wderror.Kind, msg string) {
	t.Helper()

	require.Error(t, err)
	e, ok := wderror.As(err)
	require.Truef(t, ok, "not a protocol error: %v", err)
	assert.Equal(t, kind, e.Kind())
	if msg != "" {
		assert.Equal(t, msg, e.Message())
	}
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	v := dt.mustRun("newSession", map[string]any{
		"capabilities": map[string]any{"browserName": "custom", "extra": 1.0},
	})

	caps, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "custom", caps["browserName"])
	assert.Equal(t, 1.0, caps["extra"])
	assert.Equal(t, true, caps["javascriptEnabled"])
	assert.NotContains(t, caps, "b2g")
	assert.NotEmpty(t, dt.d.SessionID())

	b := dt.d.currentBrowser()
	require.NotNil(t, b)
	require.NotNil(t, b.Tab())
	assert.Equal(t, b.Tab().ID(), b.CurFrameID())
	assert.Contains(t, dt.tab().listener.names(), "newSession")

	_, err := dt.run("newSession", nil)
	requireKind(t, err, wderror.KindWebDriver, "Session already running")

	got := dt.mustRun("getSessionCapabilities", nil)
	assert.Equal(t, caps, got)
}

func TestNewSessionB2G(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "B2G")
	v := dt.mustRun("newSession", nil)

	caps, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, caps["b2g"])
	assert.Equal(t, true, caps["rotatable"])

	b := dt.d.currentBrowser()
	assert.Nil(t, b.Tab())
	assert.Equal(t, dt.win.ID()+b2gSuffix, b.Handle())
}

func TestSayHello(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	assert.Equal(t, protocol.ActorID, dt.mustRun("getMarionetteID", nil))
	assert.Equal(t, map[string]any{
		"applicationType": "gecko",
		"traits":          []string{},
	}, dt.mustRun("sayHello", nil))
}

func TestSetContext(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	assert.Equal(t, "content", dt.mustRun("getContext", nil))

	dt.mustRun("setContext", map[string]any{"value": "CHROME"})
	assert.Equal(t, "chrome", dt.mustRun("getContext", nil))

	_, err := dt.run("setContext", map[string]any{"value": "foo"})
	requireKind(t, err, wderror.KindWebDriver, "Invalid context: foo")
	assert.Equal(t, ContextChrome, dt.d.Context())
}

func TestContentOnlyCommandsInChrome(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})

	for _, name := range []string{"submitElement", "goBack", "getCookies", "singleTap"} {
		_, err := dt.run(name, map[string]any{"id": "1"})
		requireKind(t, err, wderror.KindWebDriver, "Command '"+name+"' is not available in chrome context")
	}
	for _, name := range dt.tab().listener.names() {
		assert.NotContains(t, []string{"submitElement", "goBack", "getCookies", "singleTap"}, name)
	}
}

func TestContentCommandsCallListener(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)

	assert.Equal(t, "content title", dt.mustRun("getTitle", nil))
	dt.mustRun("submitElement", map[string]any{"id": "1"})
	assert.Contains(t, dt.tab().listener.names(), "getTitle")
	assert.Contains(t, dt.tab().listener.names(), "submitElement")
}

func TestCommandsWithoutSession(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	_, err := dt.run("getTitle", nil)
	requireKind(t, err, wderror.KindWebDriver, "Please start a session")
}

func TestTimeouts(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")

	_, err := dt.run("setScriptTimeout", map[string]any{"ms": "abc"})
	requireKind(t, err, wderror.KindWebDriver, "Not a Number")
	_, err = dt.run("setSearchTimeout", map[string]any{"ms": nil})
	requireKind(t, err, wderror.KindWebDriver, "Not a Number")

	dt.mustRun("setScriptTimeout", map[string]any{"ms": 500.0})
	dt.mustRun("timeouts", map[string]any{"type": "implicit", "ms": "250"})
	dt.mustRun("timeouts", map[string]any{"type": "page load", "ms": 1000.0})

	to := dt.d.currentTimeouts()
	assert.Equal(t, int64(500), to.Script.Int64)
	assert.Equal(t, int64(250), to.Search.Int64)
	assert.Equal(t, int64(1000), to.Page.Int64)
}

func TestLogs(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("log", map[string]any{"value": "first"})
	dt.mustRun("log", map[string]any{"value": "second", "level": "ERROR"})

	entries, ok := dt.mustRun("getLogs", nil).([][]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, []any{"INFO", "first"}, entries[0][:2])
	assert.Equal(t, []any{"ERROR", "second"}, entries[1][:2])

	assert.Empty(t, dt.mustRun("getLogs", nil))
}

func TestChromeElements(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	btn := dt.win.addElement("button", map[string]string{"id": "go", "class": "x"}, "Go")
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})

	v := dt.mustRun("findElement", map[string]any{"using": "id", "value": "go"})
	ref, ok := v.(map[string]any)
	require.True(t, ok)
	id, ok := ref[ElementKey].(string)
	require.True(t, ok)

	again := dt.mustRun("findElement", map[string]any{"using": "css selector", "value": "button"})
	assert.Equal(t, v, again, "known elements keep their handle")

	assert.Equal(t, "Go", dt.mustRun("getElementText", map[string]any{"id": id}))
	assert.Equal(t, "button", dt.mustRun("getElementTagName", map[string]any{"id": id}))
	assert.Equal(t, "x", dt.mustRun("getElementAttribute", map[string]any{"id": id, "name": "class"}))
	assert.Nil(t, dt.mustRun("getElementAttribute", map[string]any{"id": id, "name": "href"}))
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0},
		dt.mustRun("getElementRect", map[string]any{"id": id}))

	dt.mustRun("clickElement", map[string]any{"id": id})
	dt.mustRun("sendKeysToElement", map[string]any{"id": id, "value": []any{"a", "b"}})
	assert.Equal(t, 1, btn.clicks)
	assert.Equal(t, "ab", btn.keys)

	_, err := dt.run("findElement", map[string]any{"using": "id", "value": "missing"})
	requireKind(t, err, wderror.KindNoSuchElement, "Unable to locate element: missing")
	assert.Equal(t, []any{}, dt.mustRun("findElements", map[string]any{"using": "id", "value": "missing"}))

	_, err = dt.run("findElement", map[string]any{"using": "bogus", "value": "x"})
	requireKind(t, err, wderror.KindInvalidSelector, "No such strategy: bogus")

	_, err = dt.run("getElementText", map[string]any{"id": "nope"})
	requireKind(t, err, wderror.KindNoSuchElement, "Element has not been seen before. Id given was nope")

	require.NoError(t, dt.win.Close())
	_, err = dt.run("getElementText", map[string]any{"id": id})
	requireKind(t, err, wderror.KindStaleElementReference, "")
}

func TestSwitchToChromeFrame(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	_, byID := dt.win.addFrame(map[string]string{"id": "target"})
	_, byName := dt.win.addFrame(map[string]string{"name": "target"})
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})

	dt.mustRun("switchToFrame", map[string]any{"id": "target"})
	assert.Same(t, byName, dt.d.currentWindow(), "name takes precedence over id")

	dt.mustRun("switchToFrame", nil)
	assert.Same(t, dt.win, dt.d.currentWindow())

	dt.mustRun("switchToFrame", map[string]any{"id": 0.0, "focus": true})
	assert.Same(t, byID, dt.d.currentWindow())
	assert.Equal(t, 1, byID.focused)

	dt.mustRun("switchToFrame", nil)
	_, err := dt.run("switchToFrame", map[string]any{"id": "nothing"})
	requireKind(t, err, wderror.KindNoSuchFrame, "Unable to locate frame: nothing")
	_, err = dt.run("switchToFrame", map[string]any{"id": 5.0})
	requireKind(t, err, wderror.KindNoSuchFrame, "Unable to locate frame: 5")
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	tab := dt.tab()
	dt.mustRun("setContext", map[string]any{"value": "chrome"})
	dt.mustRun("importScript", map[string]any{"script": "var a = 1;"})

	dt.mustRun("deleteSession", nil)

	assert.Empty(t, dt.d.SessionID())
	assert.Equal(t, ContextContent, dt.d.Context())
	assert.Nil(t, dt.d.currentBrowser())
	assert.True(t, tab.Closed())
	assert.Contains(t, tab.listener.names(), "deleteSession")
	src, err := dt.d.scripts.Chrome()
	require.NoError(t, err)
	assert.Empty(t, src)

	// a new session can start after the previous one ended.
	dt.mustRun("newSession", nil)
	assert.NotEmpty(t, dt.d.SessionID())
}

func TestQuitApplication(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	dt.mustRun("quitApplication", map[string]any{"flags": []any{"eForceQuit"}})

	assert.Empty(t, dt.d.SessionID())
	assert.Equal(t, [][]string{{"eForceQuit"}}, dt.app.quits)
}

func TestWindowGeometry(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)

	dt.mustRun("setWindowPosition", map[string]any{"x": 10.0, "y": 20.0})
	assert.Equal(t, map[string]any{"x": 10, "y": 20}, dt.mustRun("getWindowPosition", nil))

	_, err := dt.run("setWindowPosition", map[string]any{"x": "a", "y": 1.0})
	requireKind(t, err, wderror.KindUnknown, "x and y arguments should be integers")

	dt.mustRun("setWindowSize", map[string]any{"width": 640.0, "height": 480.0})
	assert.Equal(t, map[string]any{"width": 640, "height": 480}, dt.mustRun("getWindowSize", nil))

	_, err = dt.run("setWindowSize", map[string]any{"width": 1920.0, "height": 1080.0})
	requireKind(t, err, wderror.KindUnsupportedOperation, "Invalid requested size, cannot maximize")

	dt.mustRun("maximizeWindow", nil)
	assert.Equal(t, map[string]any{"width": 1920, "height": 1080}, dt.mustRun("getWindowSize", nil))
	assert.Equal(t, map[string]any{"x": 0, "y": 0}, dt.mustRun("getWindowPosition", nil))
}

func TestWindowGeometryOnMobile(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Fennec")
	dt.mustRun("newSession", nil)

	_, err := dt.run("setWindowSize", map[string]any{"width": 1.0, "height": 1.0})
	requireKind(t, err, wderror.KindUnsupportedOperation, "Not supported on mobile")
	_, err = dt.run("maximizeWindow", nil)
	requireKind(t, err, wderror.KindUnsupportedOperation, "Not supported for mobile")
	_, err = dt.run("setWindowPosition", map[string]any{"x": 1.0, "y": 1.0})
	requireKind(t, err, wderror.KindUnsupportedOperation, "Unable to set the window position on mobile")
}

func TestSwitchToWindow(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	first := dt.d.currentBrowser()

	other := dt.app.newWindow("navigator:browser")
	other.name = "other"

	handles, ok := dt.mustRun("getWindowHandles", nil).([]string)
	require.True(t, ok)
	assert.Equal(t, []string{dt.win.ID(), other.ID()}, handles)

	dt.mustRun("switchToWindow", map[string]any{"name": "other"})
	assert.Equal(t, other.ID(), dt.mustRun("getWindowHandle", nil))
	assert.Equal(t, 1, other.focused)

	dt.mustRun("switchToWindow", map[string]any{"name": dt.win.ID()})
	assert.Same(t, first, dt.d.currentBrowser())

	_, err := dt.run("switchToWindow", map[string]any{"name": "nope"})
	requireKind(t, err, wderror.KindNoSuchWindow, "Unable to locate window: nope")
}

func TestCloseWindow(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	other := dt.app.newWindow("navigator:browser")
	dt.mustRun("switchToWindow", map[string]any{"name": other.ID()})

	dt.mustRun("close", nil)
	assert.True(t, other.Closed())
	assert.NotEmpty(t, dt.d.SessionID())

	dt.mustRun("switchToWindow", map[string]any{"name": dt.win.ID()})
	dt.mustRun("close", nil)
	assert.Empty(t, dt.d.SessionID(), "closing the last window ends the session")
}

func TestScreenOrientation(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "B2G")
	dt.mustRun("setScreenOrientation", map[string]any{"orientation": "Portrait-Secondary"})
	assert.Equal(t, "portrait-secondary", dt.mustRun("getScreenOrientation", nil))

	_, err := dt.run("setScreenOrientation", map[string]any{"orientation": "sideways"})
	requireKind(t, err, wderror.KindWebDriver, "Unknown screen orientation: sideways")
}

func TestChromeExecuteScript(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	el := dt.win.addElement("div", map[string]string{"id": "d"}, "text")
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})

	assert.Equal(t, int64(3), dt.mustRun("executeScript", map[string]any{
		"script": "return arguments[0] + arguments[1];",
		"args":   []any{1.0, 2.0},
	}))

	ref := map[string]any{ElementKey: dt.d.currentBrowser().Elements().Add(el)}
	v := dt.mustRun("executeScript", map[string]any{
		"script": "return arguments[0];",
		"args":   []any{ref},
	})
	assert.Equal(t, ref, v, "elements round trip through scripts")

	dt.mustRun("importScript", map[string]any{"script": "function imported() { return 'yes'; }"})
	assert.Equal(t, "yes", dt.mustRun("executeScript", map[string]any{"script": "return imported();"}))

	_, err := dt.run("executeJSScript", map[string]any{"script": "1 + 1;"})
	requireKind(t, err, wderror.KindWebDriver, "finish() not called")

	_, err = dt.run("executeJSScript", map[string]any{"script": "1 + 1;", "async": true, "scriptTimeout": -1.0})
	requireKind(t, err, wderror.KindTimeout, "Please set a timeout")
}

func TestChromeScriptTimeoutZero(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})
	dt.mustRun("setScriptTimeout", map[string]any{"ms": 0.0})

	start := time.Now()
	_, err := dt.run("executeAsyncScript", map[string]any{"script": "var never = true;"})
	requireKind(t, err, wderror.KindScriptTimeout, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)

	dt.mustRun("setScriptTimeout", map[string]any{"ms": 10000.0})
	assert.Equal(t, "still serving", dt.mustRun("executeScript", map[string]any{"script": "return 'still serving';"}))
}

func TestChromeScriptWhileAsyncScriptIsSuspended(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "Firefox")
	dt.mustRun("newSession", nil)
	dt.mustRun("setContext", map[string]any{"value": "chrome"})
	dt.mustRun("setScriptTimeout", map[string]any{"ms": 60000.0})

	h, ok := dt.d.Resolve("executeAsyncScript")
	require.True(t, ok)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pending := make(chan error, 1)
	go func() {
		resp := cmdproc.NewResponse(log.NewNullLogger(), "suspended", func(cmdproc.Result, string) {})
		pending <- h(ctx, &protocol.Command{
			Name:       "executeAsyncScript",
			Parameters: map[string]any{"script": "var never = true;"},
			ID:         "suspended",
		}, resp)
	}()

	done := make(chan any, 1)
	go func() {
		v, _ := dt.d.Resolve("executeScript")
		resp := cmdproc.NewResponse(log.NewNullLogger(), "next", func(cmdproc.Result, string) {})
		_ = v(context.Background(), &protocol.Command{
			Name:       "executeScript",
			Parameters: map[string]any{"script": "return 'answered';", "newSandbox": false},
			ID:         "next",
		}, resp)
		done <- resp.Value()
	}()
	select {
	case v := <-done:
		assert.Equal(t, "answered", v)
	case <-time.After(5 * time.Second):
		t.Fatal("the suspended script blocks the next command")
	}

	cancel()
	select {
	case err := <-pending:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("the suspended script did not end")
	}
}

func TestEmulatorCmdResult(t *testing.T) {
	t.Parallel()

	dt := newDriverTest(t, "B2G")
	dt.mustRun("setContext", map[string]any{"value": "chrome"})

	var got any
	id := dt.d.emu.register(func(v any) { got = v })
	dt.mustRun("emulatorCmdResult", map[string]any{"id": float64(id), "result": "ok"})
	assert.Equal(t, "ok", got)

	_, ok := dt.d.emu.resolve(id)
	assert.False(t, ok, "callbacks run once")
}
