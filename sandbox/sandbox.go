// Package sandbox executes scripts in the privileged chrome context.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"gopkg.in/guregu/null.v3"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/wderror"
)

const (
	paramsName   = "__marionetteParams"
	scriptSource = "inline javascript"
)

var errStopped = errors.New("script execution stopped")

// Emulator runs an emulator command or shell line on the client and calls
// done with its result.
type Emulator func(cmd, shell string, done func(result any))

// Options configure a single execution.
type Options struct {
	Args []any
	// Async scripts complete by calling marionetteScriptFinished, which is
	// also passed as the last argument.
	Async bool
	// Direct runs the script as is instead of as a function body.
	Direct bool
	// Timeout bounds the whole execution in milliseconds. Null means no
	// bound, negative values count as zero.
	Timeout null.Int
	// InactivityTimeout bounds the time between heartbeats, zero means no
	// bound.
	InactivityTimeout time.Duration
	// Prelude is run before the script, e.g. imported scripts.
	Prelude string
	// Origin is reported in the stack of script errors.
	Origin wderror.ScriptOrigin
	// TestName labels failed simpletest assertions in the debug log.
	TestName string
	// Globals are set on the global object for the execution.
	Globals  map[string]any
	Emulator Emulator
	Log      func(level, msg string)
}

// Sandbox is a script runtime reused across executions. Code of one
// execution runs at a time, but a suspended async execution does not keep
// others from running.
type Sandbox struct {
	logger *log.Logger

	mu  sync.Mutex
	eng *engine
}

// New returns a fresh sandbox.
func New(logger *log.Logger) *Sandbox {
	return &Sandbox{logger: logger, eng: newEngine()}
}

// Reset discards the runtime state. Executions in progress keep the runtime
// they started on.
func (s *Sandbox) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eng = newEngine()
}

func (s *Sandbox) engine() *engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng
}

// completion settles an execution exactly once.
type completion struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

func (c *completion) finish(v any, err error) bool {
	settled := false
	c.once.Do(func() {
		c.value, c.err = v, err
		close(c.done)
		settled = true
	})
	return settled
}

type execution struct {
	eng       *engine
	rt        *goja.Runtime
	bound     []string
	opts      Options
	c         *completion
	jobs      chan func() error
	stop      chan struct{}
	heartbeat chan struct{}
	tests     *simpleTest

	// emulator callbacks not yet run.
	pendingEmu int32
}

// schedule runs fn on the execution goroutine unless the execution is over.
func (ex *execution) schedule(fn func() error) {
	go func() {
		select {
		case ex.jobs <- fn:
		case <-ex.stop:
		}
	}()
}

// Execute runs script with opts. Synchronous scripts complete with their
// return value, asynchronous ones with the value passed to
// marionetteScriptFinished. Timeouts complete the execution with a script
// timeout error; a completion arriving afterwards is discarded.
func (s *Sandbox) Execute(ctx context.Context, script string, opts Options) (any, error) {
	eng := s.engine()
	ex := &execution{
		eng:       eng,
		rt:        eng.rt,
		opts:      opts,
		c:         newCompletion(),
		jobs:      make(chan func() error),
		stop:      make(chan struct{}),
		heartbeat: make(chan struct{}, 1),
		tests:     &simpleTest{testName: opts.TestName, logger: s.logger},
	}

	jsDone := make(chan struct{})
	go func() {
		defer close(jsDone)
		ex.run(s.bindings(ex), script)
	}()

	var overall, inactivity <-chan time.Time
	if opts.Timeout.Valid {
		t := time.NewTimer(time.Duration(max(opts.Timeout.Int64, 0)) * time.Millisecond)
		defer t.Stop()
		overall = t.C
	}
	var inactivityTimer *time.Timer
	if opts.InactivityTimeout > 0 {
		inactivityTimer = time.NewTimer(opts.InactivityTimeout)
		defer inactivityTimer.Stop()
		inactivity = inactivityTimer.C
	}

	for settled := false; !settled; {
		select {
		case <-ex.c.done:
			settled = true
		case <-overall:
			ex.c.finish(nil, wderror.New(wderror.KindScriptTimeout, "timed out"))
		case <-inactivity:
			ex.c.finish(nil, wderror.New(wderror.KindScriptTimeout, "timed out due to inactivity"))
		case <-ex.heartbeat:
			if inactivityTimer != nil {
				if !inactivityTimer.Stop() {
					select {
					case <-inactivityTimer.C:
					default:
					}
				}
				inactivityTimer.Reset(opts.InactivityTimeout)
			}
		case <-ctx.Done():
			ex.c.finish(nil, fmt.Errorf("executing script: %w", ctx.Err()))
		}
	}

	close(ex.stop)
	eng.interrupt(ex)
	<-jsDone
	go eng.unbind(ex)

	s.logger.Debugf("Sandbox:Execute", "async:%t err:%v", opts.Async, ex.c.err)

	return ex.c.value, ex.c.err
}

func (ex *execution) run(globals mapping, script string) {
	if !ex.eng.enter(ex) {
		return
	}
	if !ex.start(globals, script) || !ex.opts.Async {
		ex.eng.leave()
		return
	}
	ex.eng.leave()

	for {
		select {
		case job := <-ex.jobs:
			if !ex.eng.enter(ex) {
				return
			}
			err := job()
			ex.eng.leave()
			if err != nil {
				ex.c.finish(nil, ex.scriptError(err, script))
			}
		case <-ex.stop:
			return
		}
	}
}

// start binds the globals and runs the script body. It reports whether the
// execution continues.
func (ex *execution) start(globals mapping, script string) bool {
	if err := ex.eng.bind(ex, globals); err != nil {
		ex.c.finish(nil, err)
		return false
	}
	if ex.opts.Prelude != "" {
		if _, err := ex.rt.RunScript("imported scripts", ex.opts.Prelude); err != nil {
			ex.c.finish(nil, ex.scriptError(err, ex.opts.Prelude))
			return false
		}
	}

	src := script
	if !ex.opts.Direct {
		src = "(function(){" + script + "\n}).apply(this, " + paramsName + ");"
	}
	v, err := ex.rt.RunScript(scriptSource, src)
	if err != nil {
		ex.c.finish(nil, ex.scriptError(err, script))
		return false
	}
	if !ex.opts.Async {
		ex.c.finish(export(v), nil)
	}
	return true
}

// done completes an async execution, failing it while emulator callbacks
// are outstanding.
func (ex *execution) done(v any) {
	if atomic.LoadInt32(&ex.pendingEmu) > 0 {
		ex.c.finish(nil, wderror.New(wderror.KindWebDriver, "Emulator callback still pending when finish() called"))
		return
	}
	ex.c.finish(v, nil)
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// reLine finds the position of a frame in the inline script.
var reLine = regexp.MustCompile(regexp.QuoteMeta(scriptSource) + `:(\d+):\d+`) //nolint:gochecknoglobals

func (ex *execution) scriptError(err error, script string) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if e, ok := interrupted.Value().(error); ok && !errors.Is(e, errStopped) {
			return e
		}
		return wderror.New(wderror.KindScriptTimeout, "timed out")
	}

	if e, ok := wderror.As(err); ok {
		return e
	}

	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return wderror.New(wderror.KindJavaScript, err.Error())
	}
	if e, ok := exc.Value().Export().(error); ok {
		if _, ok := wderror.As(e); ok {
			return e
		}
	}

	line := 0
	if m := reLine.FindStringSubmatch(exc.String()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return wderror.ScriptError(exc.Value().String(), ex.opts.Origin, script, line)
}
