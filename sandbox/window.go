package sandbox

import (
	"context"

	"github.com/grafana/xk6-marionette/api"
)

// WindowGlobals exposes win to chrome scripts as window and document.
func WindowGlobals(ctx context.Context, win api.Window) map[string]any {
	if win == nil {
		return nil
	}
	first := func(strategy, value string) (api.Element, error) {
		els, err := win.Find(ctx, strategy, value, nil)
		if err != nil || len(els) == 0 {
			return nil, err
		}
		return els[0], nil
	}
	document := mapping{
		"title": func() string { return win.Title() },
		"querySelector": func(sel string) (api.Element, error) {
			return first("css selector", sel)
		},
		"querySelectorAll": func(sel string) ([]api.Element, error) {
			return win.Find(ctx, "css selector", sel, nil)
		},
		"getElementById": func(id string) (api.Element, error) {
			return first("id", id)
		},
		"readyState": func() string { return win.ReadyState() },
	}
	window := mapping{
		"id":       win.ID(),
		"title":    func() string { return win.Title() },
		"location": func() string { return win.URL() },
		"type":     func() string { return win.Type() },
		"document": document,
	}
	return map[string]any{"window": window, "document": document}
}
