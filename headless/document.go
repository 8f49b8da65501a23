// Package headless is an application without a renderer. Its windows load
// documents over HTTP and keep them as parsed HTML; scripts, clicks and
// typed keys act on that tree.
package headless

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blankPage = "about:blank"

var errUnknownStrategy = errors.New("unknown locator strategy")

// Document is a loaded HTML document.
type Document struct {
	root *html.Node
	url  *url.URL
}

func parseDocument(r io.Reader, u *url.URL) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return &Document{root: root, url: u}, nil
}

func blankDocument() *Document {
	doc, _ := parseDocument(strings.NewReader(""), &url.URL{Scheme: "about", Opaque: "blank"})
	return doc
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string { return d.url.String() }

// Resolve resolves ref against the document address.
func (d *Document) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", ref, err)
	}
	return d.url.ResolveReference(u), nil
}

// Title returns the text of the title element.
func (d *Document) Title() string {
	return collapse(goquery.NewDocumentFromNode(d.root).Find("title").First().Text())
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	var body *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return body
}

// Render serializes the document.
func (d *Document) Render() string {
	var b strings.Builder
	if err := html.Render(&b, d.root); err != nil {
		return ""
	}
	return b.String()
}

// Frames returns the frame and iframe elements in document order.
func (d *Document) Frames() []*html.Node {
	var frames []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.DataAtom == atom.Iframe || n.DataAtom == atom.Frame {
			frames = append(frames, n)
		}
		return true
	})
	return frames
}

// Find returns the elements below root matching value with a WebDriver
// locator strategy. A nil root searches the whole document.
func (d *Document) Find(strategy, value string, root *html.Node) ([]*html.Node, error) {
	if root == nil {
		root = d.root
	}
	switch strategy {
	case "css selector":
		sel, err := cascadia.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("compiling css selector: %w", err)
		}
		return goquery.NewDocumentFromNode(root).FindMatcher(sel).Nodes, nil
	case "xpath":
		nodes, err := htmlquery.QueryAll(root, value)
		if err != nil {
			return nil, fmt.Errorf("evaluating xpath: %w", err)
		}
		return elementsOnly(nodes), nil
	case "id":
		return descendants(root, attrEquals("id", value)), nil
	case "name":
		return descendants(root, attrEquals("name", value)), nil
	case "tag name":
		return descendants(root, func(n *html.Node) bool {
			return strings.EqualFold(n.Data, value)
		}), nil
	case "class name":
		return descendants(root, func(n *html.Node) bool {
			cls, _ := attr(n, "class")
			for _, c := range strings.Fields(cls) {
				if c == value {
					return true
				}
			}
			return false
		}), nil
	case "link text", "partial link text":
		partial := strategy == "partial link text"
		return descendants(root, func(n *html.Node) bool {
			if n.DataAtom != atom.A {
				return false
			}
			text := textOf(n)
			if partial {
				return strings.Contains(text, value)
			}
			return text == value
		}), nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownStrategy, strategy)
}

func elementsOnly(nodes []*html.Node) []*html.Node {
	els := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			els = append(els, n)
		}
	}
	return els
}

// descendants returns the element descendants of root matching match.
func descendants(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if match(n) {
				found = append(found, n)
			}
			return true
		})
	}
	return found
}

// walk calls fn for n and its element descendants in document order until
// fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attrEquals(key, value string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, ok := attr(n, key)
		return ok && v == value
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// textOf returns the text content of n with whitespace collapsed.
func textOf(n *html.Node) string {
	return collapse(goquery.NewDocumentFromNode(n).Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ancestor returns the closest ancestor of n, n included, with the given
// tag.
func ancestor(n *html.Node, a atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}
