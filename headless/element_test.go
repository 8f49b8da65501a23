package headless

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-marionette/api"
)

func findOne(t *testing.T, win *Window, strategy, value string) api.Element {
	t.Helper()
	els, err := win.Find(context.Background(), strategy, value, nil)
	require.NoError(t, err)
	require.Len(t, els, 1, "%s=%s", strategy, value)
	return els[0]
}

func TestElementProperties(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/index")

	h1 := findOne(t, win, "id", "head")
	assert.Equal(t, "h1", h1.TagName())
	assert.Equal(t, "Hello world", h1.Text())
	assert.True(t, h1.Displayed())
	v, ok := h1.Attribute("CLASS")
	assert.True(t, ok)
	assert.Equal(t, "big title", v)
	_, ok = h1.Attribute("title")
	assert.False(t, ok)

	assert.False(t, findOne(t, win, "class name", "secret").Displayed(), "hidden ancestor")
	assert.False(t, findOne(t, win, "tag name", "span").Displayed(), "display none")
	assert.False(t, findOne(t, win, "tag name", "script").Displayed())
	assert.Equal(t, "none", findOne(t, win, "tag name", "span").CSSValue("Display"))

	logo := findOne(t, win, "id", "logo")
	assert.Equal(t, api.Rect{Width: 120, Height: 40}, logo.Rect())
}

func TestElementFormState(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/form")
	ctx := context.Background()

	r1, r2 := findOne(t, win, "id", "r1"), findOne(t, win, "id", "r2")
	v, ok := r1.Attribute("checked")
	assert.True(t, ok)
	assert.Equal(t, "true", v, "boolean attributes")
	assert.True(t, r1.Selected())

	require.NoError(t, r2.Click(ctx))
	assert.True(t, r2.Selected())
	assert.False(t, r1.Selected(), "radio buttons of a group exclude each other")

	c := findOne(t, win, "id", "c")
	require.NoError(t, c.Click(ctx))
	assert.True(t, c.Selected())
	require.NoError(t, c.Click(ctx))
	assert.False(t, c.Selected())

	b := findOne(t, win, "id", "b")
	require.NoError(t, b.Click(ctx))
	assert.True(t, b.Selected())

	off := findOne(t, win, "id", "off")
	assert.False(t, off.Enabled())
	require.ErrorIs(t, off.Click(ctx), errDisabled)
	require.ErrorIs(t, off.SendKeys("x"), errDisabled)
	require.ErrorIs(t, findOne(t, win, "id", "ro").Clear(), errDisabled)
	require.ErrorIs(t, findOne(t, win, "id", "c").SendKeys("x"), errNotEditable)
}

func TestElementTyping(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/form")

	q := findOne(t, win, "id", "q")
	require.NoError(t, q.SendKeys("gopher"))
	require.NoError(t, q.SendKeys("\ue003"))
	v, _ := q.Attribute("value")
	assert.Equal(t, "gophe", v)
	assert.Equal(t, q, win.ActiveElement())

	ta := findOne(t, win, "id", "t")
	v, _ = ta.Attribute("value")
	assert.Equal(t, "some text", v)
	require.NoError(t, ta.Clear())
	require.NoError(t, ta.SendKeys("new"))
	assert.Equal(t, "new", ta.Text())
}

func TestElementSubmit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/form")
	ctx := context.Background()

	require.NoError(t, findOne(t, win, "id", "q").SendKeys("hi there"))
	require.NoError(t, findOne(t, win, "id", "c").Click(ctx))
	require.NoError(t, findOne(t, win, "id", "go").Click(ctx))

	assert.Equal(t, "Echo GET", win.Title())
	assert.Equal(t, "c=yes;q=hi there;r=one;ro=fixed;s=a;t=some text;", findOne(t, win, "id", "form").Text())
}

func TestElementEnterSubmits(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/form")

	q := findOne(t, win, "id", "q")
	require.NoError(t, q.SendKeys("go\ue007"))
	assert.Equal(t, "Echo GET", win.Title())
	assert.True(t, q.(*Element).Stale())
}

func TestElementLinkClick(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/index")

	require.NoError(t, findOne(t, win, "link text", "Second page").Click(context.Background()))
	assert.Equal(t, "Second", win.Title())
	require.ErrorIs(t, findOne(t, win, "id", "p").Submit(context.Background()), errNoForm)
}

func TestElementPostForm(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	app, _ := newTestApp(t, api.AppInfo{})
	win := openWindow(t, app, srv.URL+"/forms/post")

	name := findOne(t, win, "css selector", `input[name="custname"]`)
	require.NoError(t, name.SendKeys("Ishmael"))
	require.NoError(t, name.Submit(context.Background()))

	assert.Equal(t, srv.URL+"/post", win.URL())
	assert.Contains(t, win.PageSource(), "Ishmael")
}
