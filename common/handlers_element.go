package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/wderror"
)

var strategies = map[string]bool{ //nolint:gochecknoglobals
	"class name":        true,
	"css selector":      true,
	"id":                true,
	"name":              true,
	"link text":         true,
	"partial link text": true,
	"tag name":          true,
	"xpath":             true,
	"anon":              true,
	"anon attribute":    true,
}

// ValidateStrategy fails with an invalid selector error for unknown
// locator strategies.
func ValidateStrategy(using string) error {
	if !strategies[using] {
		return wderror.Newf(wderror.KindInvalidSelector, "No such strategy: %s", using)
	}
	return nil
}

func (d *Driver) findElement(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.find(ctx, cmd, resp, false)
}

func (d *Driver) findElements(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.find(ctx, cmd, resp, true)
}

func (d *Driver) find(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response, all bool) error {
	p := cmd.Parameters
	if d.Context() == ContextContent {
		name := "findElementContent"
		if all {
			name = "findElementsContent"
		}
		return d.executeContent(ctx, cmd, resp, name, map[string]any{
			"value":         p["value"],
			"using":         p["using"],
			"element":       p["element"],
			"searchTimeout": d.currentTimeouts().Search.ValueOrZero(),
		})
	}

	using := p.StringOr("using", "")
	value := p.StringOr("value", "")
	if err := ValidateStrategy(using); err != nil {
		return err
	}
	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	win, err := d.window()
	if err != nil {
		return err
	}
	var root api.Element
	if id, ok := p.String("element"); ok {
		if root, err = b.Elements().Get(id, win); err != nil {
			return err
		}
	}

	els, err := d.pollFind(ctx, win, using, value, root)
	if err != nil {
		return err
	}
	if all {
		resp.SetValue(b.Elements().Wrap(els))
		return nil
	}
	if len(els) == 0 {
		return wderror.Newf(wderror.KindNoSuchElement, "Unable to locate element: %s", value)
	}
	resp.SetValue(b.Elements().Wrap(els[0]))
	return nil
}

// pollFind searches until an element matches or the search timeout passed.
// Without a search timeout the document is searched once.
func (d *Driver) pollFind(ctx context.Context, win api.Window, using, value string, root api.Element) ([]api.Element, error) {
	t := d.currentTimeouts().SearchDuration()
	if t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	for {
		els, err := win.Find(ctx, using, value, root)
		if err != nil {
			return nil, wderror.Newf(wderror.KindInvalidSelector, "Invalid selector %q: %v", value, err)
		}
		if len(els) > 0 || t <= 0 {
			return els, nil
		}
		if d.sleep(ctx) != nil {
			return []api.Element{}, nil
		}
	}
}

// findChild returns a handler searching below the element given by id.
// Child searches always run in the listener.
func (d *Driver) findChild(name string) cmdproc.HandlerFunc {
	return func(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
		p := cmd.Parameters
		return d.executeContent(ctx, cmd, resp, name, map[string]any{
			"value":         p["value"],
			"using":         p["using"],
			"element":       p["id"],
			"searchTimeout": d.currentTimeouts().Search.ValueOrZero(),
		})
	}
}

// knownElement looks up the element given by the id parameter in the
// current window.
func (d *Driver) knownElement(cmd *protocol.Command) (api.Element, error) {
	b, err := d.requireBrowser()
	if err != nil {
		return nil, err
	}
	return b.Elements().Get(cmd.Parameters.StringOr("id", ""), d.currentWindow())
}

// elementQuery returns a handler reading a property of an element. Content
// queries are answered by the listener command name.
func (d *Driver) elementQuery(name string, query func(api.Element) any) cmdproc.HandlerFunc {
	return func(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
		if d.Context() == ContextContent {
			return d.executeContent(ctx, cmd, resp, name, map[string]any{"id": cmd.Parameters["id"]})
		}
		el, err := d.knownElement(cmd)
		if err != nil {
			return err
		}
		resp.SetValue(query(el))
		return nil
	}
}

func (d *Driver) getElementAttribute(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	attr := cmd.Parameters.StringOr("name", "")
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "getElementAttribute", map[string]any{
			"id":   cmd.Parameters["id"],
			"name": attr,
		})
	}
	el, err := d.knownElement(cmd)
	if err != nil {
		return err
	}
	if v, ok := el.Attribute(attr); ok {
		resp.SetValue(v)
	}
	return nil
}

func (d *Driver) getElementText(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("getElementText", func(el api.Element) any {
		return el.Text()
	})(ctx, cmd, resp)
}

func (d *Driver) getElementTagName(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("getElementTagName", func(el api.Element) any {
		return strings.ToLower(el.TagName())
	})(ctx, cmd, resp)
}

func (d *Driver) isElementDisplayed(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("isElementDisplayed", func(el api.Element) any {
		return el.Displayed()
	})(ctx, cmd, resp)
}

func (d *Driver) getElementSize(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("getElementSize", func(el api.Element) any {
		r := el.Rect()
		return map[string]any{"width": r.Width, "height": r.Height}
	})(ctx, cmd, resp)
}

func (d *Driver) getElementRect(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("getElementRect", func(el api.Element) any {
		r := el.Rect()
		return map[string]any{"x": r.X, "y": r.Y, "width": r.Width, "height": r.Height}
	})(ctx, cmd, resp)
}

func (d *Driver) isElementEnabled(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("isElementEnabled", func(el api.Element) any {
		return el.Enabled()
	})(ctx, cmd, resp)
}

func (d *Driver) isElementSelected(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	return d.elementQuery("isElementSelected", func(el api.Element) any {
		return el.Selected()
	})(ctx, cmd, resp)
}

func (d *Driver) clickElement(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextContent {
		v, err := d.guardedCall(ctx, cmd, "clickElement", "click", map[string]any{"id": cmd.Parameters["id"]})
		if err != nil {
			return err
		}
		resp.SetValue(v)
		return nil
	}
	el, err := d.knownElement(cmd)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return ElementError(err, "click")
	}
	return nil
}

func (d *Driver) singleTap(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	p := cmd.Parameters
	v, err := d.guardedCall(ctx, cmd, "singleTap", "tap", map[string]any{
		"id":   p["id"],
		"corx": p["x"],
		"cory": p["y"],
	})
	if err != nil {
		return err
	}
	resp.SetValue(v)
	return nil
}

func (d *Driver) actionChain(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	p := cmd.Parameters
	v, err := d.guardedCall(ctx, cmd, "actionChain", "action chain", map[string]any{
		"chain":  p["chain"],
		"nextId": p["nextId"],
	})
	if err != nil {
		return err
	}
	resp.SetValue(v)
	return nil
}

func (d *Driver) multiAction(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	p := cmd.Parameters
	v, err := d.guardedCall(ctx, cmd, "multiAction", "multi action chain", map[string]any{
		"value":  p["value"],
		"maxlen": p["max_length"],
	})
	if err != nil {
		return err
	}
	resp.SetValue(v)
	return nil
}

func (d *Driver) sendKeysToElement(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	p := cmd.Parameters
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "sendKeysToElement", map[string]any{
			"id":    p["id"],
			"value": p["value"],
		})
	}
	el, err := d.knownElement(cmd)
	if err != nil {
		return err
	}
	keys := JoinKeys(p["value"])
	if err := el.SendKeys(keys); err != nil {
		return ElementError(err, "send keys to")
	}
	return nil
}

// JoinKeys concatenates the key sequence sent by clients.
func JoinKeys(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var b strings.Builder
		for _, k := range t {
			fmt.Fprint(&b, k)
		}
		return b.String()
	}
	return ""
}

func (d *Driver) clearElement(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "clearElement", map[string]any{"id": cmd.Parameters["id"]})
	}
	el, err := d.knownElement(cmd)
	if err != nil {
		return err
	}
	if err := el.Clear(); err != nil {
		return ElementError(err, "clear")
	}
	return nil
}

// ElementError keeps taxonomy errors of element actions and reports any
// other failure as an invalid element state.
func ElementError(err error, action string) error {
	if _, ok := wderror.As(err); ok {
		return err
	}
	return wderror.Newf(wderror.KindInvalidElementState, "Unable to %s element: %v", action, err)
}
