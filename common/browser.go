/*
 *
 * xk6-marionette - a remote control server for browser automation
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
)

// StartPage is the page new tabs open.
const StartPage = "about:blank"

// Browser is the state kept for a top-level window.
type Browser struct {
	info   api.AppInfo
	window api.Window
	// handle is the server assigned window handle.
	handle   string
	elements *ElementManager
	frames   *listener.FrameManager
	proxy    *listener.Proxy
	logger   *log.Logger

	mu          sync.RWMutex
	tab         api.Window
	knownFrames []string
	curFrameID  string
	// mainContentID identifies the homescreen content frame on B2G.
	mainContentID string
	newSession    bool
}

// NewBrowser returns the browser of win. Messages to its listeners go
// through bus.
func NewBrowser(win api.Window, handle string, info api.AppInfo, bus *listener.Bus, logger *log.Logger) *Browser {
	b := &Browser{
		info:       info,
		window:     win,
		handle:     handle,
		elements:   NewElementManager(),
		frames:     listener.NewFrameManager(bus, logger),
		logger:     logger,
		newSession: true,
	}
	b.proxy = listener.NewProxy(b.frames, b.CurFrameID, logger)
	return b
}

// Window returns the top-level window.
func (b *Browser) Window() api.Window { return b.window }

// Handle returns the window handle.
func (b *Browser) Handle() string { return b.handle }

// Elements returns the registry of elements found in chrome context.
func (b *Browser) Elements() *ElementManager { return b.elements }

// Frames returns the frame manager of the browser.
func (b *Browser) Frames() *listener.FrameManager { return b.frames }

// Proxy returns the proxy calling the browser's listeners.
func (b *Browser) Proxy() *listener.Proxy { return b.proxy }

// Tab returns the tab opened for the session, if any.
func (b *Browser) Tab() api.Window {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tab
}

// CurFrameID returns the id of the frame content commands target.
func (b *Browser) CurFrameID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.curFrameID
}

// MainContentID returns the id of the main content frame.
func (b *Browser) MainContentID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mainContentID
}

// KnownFrames returns the ids of the frames registered with the browser.
func (b *Browser) KnownFrames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.knownFrames...)
}

// SetNewSession marks the browser as starting a new session, in which case
// only the listener of its new tab may become the current frame.
func (b *Browser) SetNewSession(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newSession = v
}

// NewSession reports whether the browser is starting a new session.
func (b *Browser) NewSession() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.newSession
}

func (b *Browser) isFirefox() bool { return b.info.Name == "Firefox" }

// StartSession prepares the browser for a session. On Firefox a new tab is
// opened and selected when newTab is set.
func (b *Browser) StartSession(ctx context.Context, newTab bool) error {
	if !b.isFirefox() || !newTab {
		return nil
	}
	tab, err := b.window.NewTab(ctx, StartPage)
	if err != nil {
		return fmt.Errorf("opening new tab: %w", err)
	}
	if err := tab.WaitLoad(ctx); err != nil {
		return fmt.Errorf("loading new tab: %w", err)
	}

	b.mu.Lock()
	b.tab = tab
	b.mu.Unlock()

	b.logger.Debugf("Browser:StartSession", "handle:%q tab:%q", b.handle, tab.ID())
	return nil
}

// LoadListener loads the listener into the browser's content. Windows
// without content are logged and skipped.
func (b *Browser) LoadListener(ctx context.Context) error {
	target := b.Tab()
	if target == nil {
		target = b.window
	}
	err := target.LoadListener(ctx)
	if errors.Is(err, api.ErrNoContentProcess) {
		b.logger.Infof("Browser:LoadListener", "could not load listener into content for page: %s", target.URL())
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading listener: %w", err)
	}
	return nil
}

// CloseTab closes the tab opened for the session.
func (b *Browser) CloseTab() {
	b.mu.Lock()
	tab := b.tab
	b.tab = nil
	b.mu.Unlock()

	if tab == nil || b.info.IsB2G() {
		return
	}
	if err := tab.Close(); err != nil {
		b.logger.Debugf("Browser:CloseTab", "closing tab:%q: %v", tab.ID(), err)
	}
	b.elements.Invalidate(tab.ID())
}

// Register records the frame uid. It becomes the current and main content
// frame unless a frame already is, or a new session is starting and uid is
// not the session's tab.
func (b *Browser) Register(uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		b.logger.Debugf("Browser:Register", "handle:%q frame:%q current:%q", b.handle, uid, b.curFrameID)
	}()

	if b.curFrameID == "" {
		if !b.newSession || !b.isFirefox() || b.tab == nil || b.frameOfTab(uid) {
			b.curFrameID = uid
			b.mainContentID = uid
		}
	}
	for _, f := range b.knownFrames {
		if f == uid {
			return
		}
	}
	b.knownFrames = append(b.knownFrames, uid)
}

func (b *Browser) frameOfTab(uid string) bool {
	id := b.tab.ID()
	return uid == id || uid == id+b2gSuffix
}

// RemoveKnownFrame forgets the frame uid.
func (b *Browser) RemoveKnownFrame(uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.knownFrames {
		if f == uid {
			b.knownFrames = append(b.knownFrames[:i:i], b.knownFrames[i+1:]...)
			return
		}
	}
}
