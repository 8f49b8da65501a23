package api

import "context"

// Rect is an element's position and size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is a DOM element.
type Element interface {
	TagName() string
	Attribute(name string) (string, bool)
	Text() string
	Displayed() bool
	Enabled() bool
	Selected() bool
	CSSValue(property string) string
	Rect() Rect
	Click(ctx context.Context) error
	SendKeys(text string) error
	Clear() error
	Submit(ctx context.Context) error
	// Owner is the window whose document holds the element.
	Owner() Window
}
