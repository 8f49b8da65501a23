package api

import "context"

// Window is a top-level window or a frame's content window.
type Window interface {
	// ID is the outer window id.
	ID() string
	Name() string
	Title() string
	// Type is the window type, e.g. navigator:browser.
	Type() string
	URL() string
	ReadyState() string
	// WaitLoad blocks until the window finished loading.
	WaitLoad(ctx context.Context) error

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Refresh(ctx context.Context) error

	// Frames returns the frame and iframe elements of the document in
	// document order.
	Frames() []Element
	// FrameWindow returns the content window of a frame element.
	FrameWindow(frame Element) (Window, bool)
	// Find returns the elements matching value with the locator strategy,
	// searching below root or the whole document when root is nil.
	Find(ctx context.Context, strategy, value string, root Element) ([]Element, error)
	ActiveElement() Element
	PageSource() string

	Position() (x, y int)
	MoveTo(x, y int) error
	Size() (width, height int)
	ResizeTo(width, height int) error
	Focus()
	Close() error
	Closed() bool
	Screenshot(ctx context.Context, el Element, highlights []Element) ([]byte, error)
	// NewTab opens url in a new tab of the window and returns its content
	// window.
	NewTab(ctx context.Context, url string) (Window, error)

	// HasListener reports whether the listener script is loaded.
	HasListener() bool
	// LoadListener loads the listener script into the window's content.
	LoadListener(ctx context.Context) error
}
