package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
)

const (
	// BrowserWindowType is the type of top-level browser windows.
	BrowserWindowType = "navigator:browser"

	defaultScreenWidth  = 1366
	defaultScreenHeight = 768
	defaultWindowWidth  = 1024
	defaultWindowHeight = 768
	defaultLoadTimeout  = 30 * time.Second
)

// Options configure an App.
type Options struct {
	Info api.AppInfo
	// Bus connects the listeners of the app's content to the driver.
	Bus    *listener.Bus
	Logger *log.Logger
	// Client loads documents. A client with a cookie jar is created when
	// nil.
	Client *http.Client
	// HubURL is the websocket address listeners register at. Listeners
	// attach to Bus in process when empty.
	HubURL string

	ScreenWidth  int
	ScreenHeight int
	// OnQuit is called with the quit flags once the app quit.
	OnQuit func(flags []string)
}

// App is a headless application.
type App struct {
	info   api.AppInfo
	bus    *listener.Bus
	logger *log.Logger
	client *http.Client
	hubURL string
	screen *screen
	onQuit func([]string)

	mu      sync.Mutex
	nextID  int64
	windows []*Window
	recent  *Window
}

var _ api.Application = &App{}

// New returns an app without windows.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}
	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: defaultLoadTimeout}
	}
	w, h := opts.ScreenWidth, opts.ScreenHeight
	if w <= 0 || h <= 0 {
		w, h = defaultScreenWidth, defaultScreenHeight
	}
	info := opts.Info
	if info.Name == "" {
		info.Name = "Firefox"
	}

	return &App{
		info:   info,
		bus:    opts.Bus,
		logger: logger,
		client: client,
		hubURL: opts.HubURL,
		screen: newScreen(w, h),
		onQuit: opts.OnQuit,
	}, nil
}

// Info describes the app.
func (a *App) Info() api.AppInfo { return a.info }

// Client returns the client documents are loaded with.
func (a *App) Client() *http.Client { return a.client }

func (a *App) newID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	return strconv.FormatInt(a.nextID, 10)
}

// OpenWindow opens a top-level window of type typ showing url.
func (a *App) OpenWindow(ctx context.Context, url, typ string) (*Window, error) {
	win := newWindow(a, typ, nil)
	a.mu.Lock()
	a.windows = append(a.windows, win)
	a.recent = win
	a.mu.Unlock()

	if url == "" {
		url = blankPage
	}
	if err := win.Navigate(ctx, url); err != nil {
		return nil, err
	}
	a.logger.Debugf("App:OpenWindow", "id:%q type:%q url:%q", win.ID(), typ, url)
	return win, nil
}

// Windows returns the open top-level windows in creation order.
func (a *App) Windows() []api.Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	wins := make([]api.Window, 0, len(a.windows))
	for _, w := range a.windows {
		if !w.Closed() {
			wins = append(wins, w)
		}
	}
	return wins
}

// MostRecentWindow returns the window focused last.
func (a *App) MostRecentWindow() api.Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recent != nil && !a.recent.Closed() {
		return a.recent
	}
	for i := len(a.windows) - 1; i >= 0; i-- {
		if !a.windows[i].Closed() {
			return a.windows[i]
		}
	}
	return nil
}

func (a *App) focus(w *Window) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = w
}

// Screen returns the screen of the app.
func (a *App) Screen() api.Screen { return a.screen }

// Quit closes every window.
func (a *App) Quit(_ context.Context, flags []string) error {
	a.mu.Lock()
	wins := a.windows
	a.windows = nil
	a.recent = nil
	a.mu.Unlock()

	for _, w := range wins {
		if err := w.Close(); err != nil {
			a.logger.Debugf("App:Quit", "closing window:%q: %v", w.ID(), err)
		}
	}
	a.logger.Infof("App:Quit", "flags:%v", flags)
	if a.onQuit != nil {
		a.onQuit(flags)
	}
	return nil
}

// screen is a virtual screen. Locking it to a portrait orientation swaps
// its sides.
type screen struct {
	mu          sync.Mutex
	w, h        int
	orientation string
}

func newScreen(w, h int) *screen {
	s := &screen{w: w, h: h, orientation: "landscape-primary"}
	if h > w {
		s.orientation = "portrait-primary"
	}
	return s
}

func (s *screen) AvailSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *screen) Orientation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orientation
}

func (s *screen) LockOrientation(o string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	portrait := strings.HasPrefix(o, "portrait")
	if !portrait && !strings.HasPrefix(o, "landscape") {
		return false
	}
	if portrait != (s.h > s.w) {
		s.w, s.h = s.h, s.w
	}
	s.orientation = o
	return true
}
