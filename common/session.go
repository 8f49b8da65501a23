package common

import (
	"github.com/google/uuid"

	"github.com/grafana/xk6-marionette/api"
)

// Session is a client's control over the application, from newSession to
// its teardown.
type Session struct {
	id   string
	caps map[string]any
}

// NewSession returns a session with the given capabilities. The map is
// copied and never changes afterwards.
func NewSession(caps map[string]any) *Session {
	return &Session{id: uuid.NewString(), caps: copyMap(caps)}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Capabilities returns a copy of the session capabilities.
func (s *Session) Capabilities() map[string]any {
	return copyMap(s.caps)
}

// DefaultCapabilities returns the capabilities a session of app gets unless
// the client overrides them.
func DefaultCapabilities(info api.AppInfo) map[string]any {
	return map[string]any{
		"browserName":            info.Name,
		"browserVersion":         info.Version,
		"platformName":           info.Platform,
		"platformVersion":        info.PlatformVersion,
		"specificationLevel":     "1",
		"handlesAlerts":          false,
		"nativeEvents":           false,
		"rotatable":              info.IsB2G(),
		"secureSsl":              false,
		"takesElementScreenshot": true,
		"takesScreenshot":        true,

		// Selenium 2 compat
		"platform": info.Platform,

		"XULappId":            info.AppID,
		"appBuildId":          info.BuildID,
		"device":              info.Device,
		"version":             info.Version,
		"cssSelectorsEnabled": true,
		"javascriptEnabled":   true,
		"acceptSslCerts":      false,
		"proxy":               map[string]any{},
	}
}

// MergeCapabilities merges the client capabilities over the defaults key by
// key. Client values win.
func MergeCapabilities(defaults, client map[string]any) map[string]any {
	caps := copyMap(defaults)
	for k, v := range client {
		caps[k] = v
	}
	return caps
}

func copyMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
