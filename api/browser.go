// Package api defines the interfaces of the application the driver
// controls: its windows, their documents and elements.
package api

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by operations the application cannot perform.
var ErrUnsupported = errors.New("operation not supported")

// ErrNoContentProcess is returned by LoadListener when the window has no
// content that could host a listener.
var ErrNoContentProcess = errors.New("no content process")

// AppInfo describes the application.
type AppInfo struct {
	Name            string
	Version         string
	BuildID         string
	AppID           string
	Platform        string
	PlatformVersion string
	// Device is the device type, e.g. desktop or qemu.
	Device string
}

// IsB2G reports whether the application is B2G.
func (i AppInfo) IsB2G() bool { return i.Name == "B2G" }

// IsDesktop reports whether the application runs on a desktop device.
func (i AppInfo) IsDesktop() bool { return i.Device == "" || i.Device == "desktop" }

// Application is the browser application the driver controls.
type Application interface {
	Info() AppInfo
	// Windows returns the open top-level windows in creation order.
	Windows() []Window
	// MostRecentWindow returns the most recently focused window, or nil
	// when none exists yet.
	MostRecentWindow() Window
	Screen() Screen
	Quit(ctx context.Context, flags []string) error
}

// Screen is the screen the application is displayed on.
type Screen interface {
	// AvailSize is the screen size available to windows.
	AvailSize() (width, height int)
	Orientation() string
	// LockOrientation locks the screen to an orientation and reports
	// whether it succeeded.
	LockOrientation(orientation string) bool
}
