package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/keyboard"
)

var (
	errNotEditable = errors.New("element is not editable")
	errDisabled    = errors.New("element is disabled")
	errNoForm      = errors.New("element is not in a form")
)

// booleanAttrs read as "true" when present.
var booleanAttrs = map[string]bool{ //nolint:gochecknoglobals
	"checked":  true,
	"disabled": true,
	"hidden":   true,
	"multiple": true,
	"readonly": true,
	"required": true,
	"selected": true,
}

// Element is an element of a window's document.
type Element struct {
	win  *Window
	doc  *Document
	node *html.Node
}

var _ api.Element = &Element{}

// Stale reports whether the element's document was replaced.
func (e *Element) Stale() bool {
	return e.win.document() != e.doc
}

// TagName returns the tag name.
func (e *Element) TagName() string { return e.node.Data }

// Attribute returns the attribute name. Present boolean attributes read as
// "true", the value of a textarea is its text.
func (e *Element) Attribute(name string) (string, bool) {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()

	name = strings.ToLower(name)
	if name == "value" && e.node.DataAtom == atom.Textarea {
		return textOf(e.node), true
	}
	v, ok := attr(e.node, name)
	if ok && booleanAttrs[name] {
		return "true", true
	}
	return v, ok
}

// Text returns the text content with collapsed whitespace.
func (e *Element) Text() string {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()
	return textOf(e.node)
}

// Displayed reports whether neither the element nor an ancestor is hidden.
func (e *Element) Displayed() bool {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()

	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom { //nolint:exhaustive
		case atom.Head, atom.Script, atom.Style, atom.Title, atom.Meta, atom.Template:
			return false
		case atom.Input:
			if t, _ := attr(n, "type"); strings.EqualFold(t, "hidden") {
				return false
			}
		}
		if hasAttr(n, "hidden") {
			return false
		}
		style := parseStyle(n)
		if style["display"] == "none" || style["visibility"] == "hidden" {
			return false
		}
	}
	return true
}

// Enabled reports whether the element and its fieldsets are not disabled.
func (e *Element) Enabled() bool {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()
	return enabled(e.node)
}

func enabled(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return false
	}
	fs := ancestor(n.Parent, atom.Fieldset)
	return fs == nil || !hasAttr(fs, "disabled")
}

// Selected reports whether a checkbox, radio button or option is selected.
func (e *Element) Selected() bool {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()
	return hasAttr(e.node, "checked") || hasAttr(e.node, "selected")
}

// CSSValue returns an inline style property.
func (e *Element) CSSValue(property string) string {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()
	return parseStyle(e.node)[strings.ToLower(property)]
}

func parseStyle(n *html.Node) map[string]string {
	style := make(map[string]string)
	s, _ := attr(n, "style")
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		style[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return style
}

// Rect returns the size given by the width and height attributes. Without
// layout elements sit at the origin.
func (e *Element) Rect() api.Rect {
	e.win.mu.RLock()
	defer e.win.mu.RUnlock()

	size := func(key string) float64 {
		v, _ := attr(e.node, key)
		f, _ := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
		return f
	}
	return api.Rect{Width: size("width"), Height: size("height")}
}

// Owner returns the window holding the element.
func (e *Element) Owner() api.Window { return e.win }

// Click activates the element: links navigate, checkboxes and radio
// buttons toggle, options get selected and submit buttons submit their
// form.
func (e *Element) Click(ctx context.Context) error {
	e.win.mu.Lock()
	n := e.node
	if !enabled(n) {
		e.win.mu.Unlock()
		return errDisabled
	}
	e.win.active = n

	var (
		href   string
		submit bool
	)
	typ, _ := attr(n, "type")
	typ = strings.ToLower(typ)
	switch n.DataAtom { //nolint:exhaustive
	case atom.A:
		href, _ = attr(n, "href")
	case atom.Input:
		switch typ {
		case "checkbox":
			toggle(n, "checked")
		case "radio":
			check(n)
		case "submit", "image":
			submit = true
		}
	case atom.Button:
		submit = typ == "" || typ == "submit"
	case atom.Option:
		selectOption(n)
	}
	e.win.mu.Unlock()

	switch {
	case href != "":
		return e.win.Navigate(ctx, href)
	case submit && ancestor(n, atom.Form) != nil:
		return e.Submit(ctx)
	}
	return nil
}

func toggle(n *html.Node, key string) {
	if hasAttr(n, key) {
		removeAttr(n, key)
		return
	}
	setAttr(n, key, "")
}

// check checks a radio button and unchecks the others of its group.
func check(n *html.Node) {
	name, _ := attr(n, "name")
	scope := ancestor(n, atom.Form)
	if scope == nil {
		scope = root(n)
	}
	for _, r := range descendants(scope, attrEquals("name", name)) {
		if t, _ := attr(r, "type"); strings.EqualFold(t, "radio") {
			removeAttr(r, "checked")
		}
	}
	setAttr(n, "checked", "")
}

func selectOption(n *html.Node) {
	sel := ancestor(n, atom.Select)
	if sel != nil && !hasAttr(sel, "multiple") {
		for _, o := range descendants(sel, func(o *html.Node) bool { return o.DataAtom == atom.Option }) {
			removeAttr(o, "selected")
		}
	}
	toggle(n, "selected")
}

func root(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func editable(n *html.Node) bool {
	switch n.DataAtom { //nolint:exhaustive
	case atom.Textarea:
		return true
	case atom.Input:
		t, _ := attr(n, "type")
		switch strings.ToLower(t) {
		case "", "text", "search", "email", "password", "url", "tel", "number":
			return true
		}
	}
	return false
}

func value(n *html.Node) string {
	if n.DataAtom == atom.Textarea {
		return textOf(n)
	}
	v, _ := attr(n, "value")
	return v
}

func setValue(n *html.Node, v string) {
	if n.DataAtom != atom.Textarea {
		setAttr(n, "value", v)
		return
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
}

// SendKeys types text into an editable element. WebDriver key codepoints
// are applied as keys; Enter submits the form.
func (e *Element) SendKeys(text string) error {
	e.win.mu.Lock()
	n := e.node
	if !editable(n) {
		e.win.mu.Unlock()
		return errNotEditable
	}
	if !enabled(n) || hasAttr(n, "readonly") {
		e.win.mu.Unlock()
		return errDisabled
	}
	typed, submit := keyboard.NewTypist().Type(value(n), text)
	setValue(n, typed)
	e.win.active = n
	e.win.mu.Unlock()

	if submit && ancestor(n, atom.Form) != nil {
		return e.Submit(context.Background())
	}
	return nil
}

// Clear empties an editable element.
func (e *Element) Clear() error {
	e.win.mu.Lock()
	defer e.win.mu.Unlock()

	if !editable(e.node) {
		return errNotEditable
	}
	if !enabled(e.node) || hasAttr(e.node, "readonly") {
		return errDisabled
	}
	setValue(e.node, "")
	return nil
}

// Submit submits the form holding the element.
func (e *Element) Submit(ctx context.Context) error {
	e.win.mu.RLock()
	form := ancestor(e.node, atom.Form)
	if form == nil {
		e.win.mu.RUnlock()
		return errNoForm
	}
	values := formValues(form)
	action, _ := attr(form, "action")
	method, _ := attr(form, "method")
	e.win.mu.RUnlock()

	target, err := e.doc.Resolve(action)
	if err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	if strings.EqualFold(method, "post") {
		return e.win.post(ctx, target, values)
	}
	target.RawQuery = values.Encode()
	return e.win.Navigate(ctx, target.String())
}

// formValues returns the values of the successful controls of form.
func formValues(form *html.Node) url.Values {
	values := url.Values{}
	walk(form, func(n *html.Node) bool {
		name, ok := attr(n, "name")
		if !ok || name == "" || !enabled(n) {
			return true
		}
		switch n.DataAtom { //nolint:exhaustive
		case atom.Input:
			t, _ := attr(n, "type")
			switch strings.ToLower(t) {
			case "submit", "button", "image", "reset", "file":
				return true
			case "checkbox", "radio":
				if !hasAttr(n, "checked") {
					return true
				}
				v, ok := attr(n, "value")
				if !ok {
					v = "on"
				}
				values.Add(name, v)
				return true
			}
			values.Add(name, value(n))
		case atom.Textarea:
			values.Add(name, value(n))
		case atom.Select:
			options := descendants(n, func(o *html.Node) bool { return o.DataAtom == atom.Option })
			selected := 0
			for _, o := range options {
				if hasAttr(o, "selected") {
					values.Add(name, optionValue(o))
					selected++
				}
			}
			// a single select without a selected option submits its first.
			if selected == 0 && len(options) > 0 && !hasAttr(n, "multiple") {
				values.Add(name, optionValue(options[0]))
			}
		}
		return true
	})
	return values
}

func optionValue(o *html.Node) string {
	if v, ok := attr(o, "value"); ok {
		return v
	}
	return textOf(o)
}
