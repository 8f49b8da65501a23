package common

import (
	"context"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/sandbox"
	"github.com/grafana/xk6-marionette/wderror"
)

const namedArgsKey = "__marionetteArgs"

// ScriptRequest is an execute command after defaults were applied.
type ScriptRequest struct {
	Script     string
	Args       []any
	NewSandbox bool
	// Timeout in milliseconds, null for no timeout.
	Timeout           null.Int
	InactivityTimeout int64
	Filename          string
	Line              int64
	SpecialPowers     bool
	Async             bool
	Direct            bool
}

// ParseScriptRequest reads the parameters the execute commands share. The
// timeout is read from timeoutKey and stays null when it is not a number.
func ParseScriptRequest(p protocol.Params, timeoutKey string) ScriptRequest {
	r := ScriptRequest{
		Script:        p.StringOr("script", ""),
		NewSandbox:    true,
		Filename:      p.StringOr("filename", ""),
		SpecialPowers: p.Bool("specialPowers"),
	}
	r.Args, _ = p.Slice("args")
	if r.Args == nil {
		r.Args = []any{}
	}
	if v, ok := p["newSandbox"].(bool); ok {
		r.NewSandbox = v
	}
	if t, err := p.Int(timeoutKey); err == nil {
		r.Timeout = null.IntFrom(t)
	}
	if t, err := p.Int("inactivityTimeout"); err == nil {
		r.InactivityTimeout = t
	}
	if l, err := p.Int("line"); err == nil {
		r.Line = l
	}
	return r
}

// listenerArgs returns the arguments of the listener call running r.
func (r ScriptRequest) listenerArgs() map[string]any {
	var timeout any
	if r.Timeout.Valid {
		timeout = r.Timeout.Int64
	}
	return map[string]any{
		"script":            r.Script,
		"args":              r.Args,
		"newSandbox":        r.NewSandbox,
		"async":             r.Async,
		"timeout":           timeout,
		"inactivityTimeout": r.InactivityTimeout,
		"specialPowers":     r.SpecialPowers,
		"filename":          r.Filename,
		"line":              r.Line,
	}
}

// ScriptEnv is the context a script runs in.
type ScriptEnv struct {
	Sandbox  *sandbox.Sandbox
	Window   api.Window
	Elements *ElementManager
	Prelude  string
	TestName string
	Emulator sandbox.Emulator
	Log      func(level, msg string)
}

// RunScript executes r in env. Element references in the arguments and the
// result go through env.Elements.
func RunScript(ctx context.Context, env ScriptEnv, r ScriptRequest) (any, error) {
	if r.Direct && r.Async && (!r.Timeout.Valid || r.Timeout.Int64 <= 0) {
		return nil, wderror.New(wderror.KindTimeout, "Please set a timeout")
	}
	args, err := env.Elements.Unwrap(r.Args, env.Window)
	if err != nil {
		return nil, err
	}
	if r.NewSandbox {
		env.Sandbox.Reset()
	}

	function := "execute_script"
	if r.Async {
		function = "execute_async_script"
	}
	globals := sandbox.WindowGlobals(ctx, env.Window)
	if globals == nil {
		globals = make(map[string]any)
	}
	globals["__namedArgs"] = NamedArgs(args.([]any))

	v, err := env.Sandbox.Execute(ctx, r.Script, sandbox.Options{
		Args:              args.([]any),
		Async:             r.Async,
		Direct:            r.Direct,
		Timeout:           r.Timeout,
		InactivityTimeout: time.Duration(r.InactivityTimeout) * time.Millisecond,
		Prelude:           env.Prelude,
		Origin: wderror.ScriptOrigin{
			Function: function,
			File:     r.Filename,
			Line:     int(r.Line),
		},
		TestName: env.TestName,
		Globals:  globals,
		Emulator: env.Emulator,
		Log:      env.Log,
	})
	if err != nil {
		return nil, err
	}
	if r.Direct && !r.Async && !finished(v) {
		return nil, wderror.New(wderror.KindWebDriver, "finish() not called")
	}
	return env.Elements.Wrap(v), nil
}

// finished reports whether v holds the results handed over by finish().
func finished(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m["passed"] != nil
}

// parseScriptRequest applies the session script timeout unless the command
// carries its own.
func (d *Driver) parseScriptRequest(cmd *protocol.Command) ScriptRequest {
	r := ParseScriptRequest(cmd.Parameters, "scriptTimeout")
	if !r.Timeout.Valid || r.Timeout.Int64 == 0 {
		r.Timeout = d.currentTimeouts().Script
	}
	return r
}

func (d *Driver) executeScript(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	r := d.parseScriptRequest(cmd)
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "executeScript", r.listenerArgs())
	}
	return d.executeChrome(ctx, resp, r)
}

func (d *Driver) executeAsyncScript(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	r := d.parseScriptRequest(cmd)
	r.Async = true
	if d.Context() == ContextContent {
		args := r.listenerArgs()
		args["id"] = cmd.ID
		return d.executeContent(ctx, cmd, resp, "executeAsyncScript", args)
	}
	return d.executeChrome(ctx, resp, r)
}

// executeJSScript runs a script as is. Synchronous direct scripts report
// through the simple test harness and must call finish.
func (d *Driver) executeJSScript(ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response) error {
	r := d.parseScriptRequest(cmd)
	r.Async = cmd.Parameters.Bool("async")
	r.Direct = true
	if d.Context() == ContextContent {
		return d.executeContent(ctx, cmd, resp, "executeJSScript", r.listenerArgs())
	}
	return d.executeChrome(ctx, resp, r)
}

func (d *Driver) executeContent(
	ctx context.Context, cmd *protocol.Command, resp *cmdproc.Response, name string, args map[string]any,
) error {
	v, err := d.listenerCall(ctx, cmd, name, args)
	if err != nil {
		return err
	}
	resp.SetValue(v)
	return nil
}

func (d *Driver) executeChrome(ctx context.Context, resp *cmdproc.Response, r ScriptRequest) error {
	b, err := d.requireBrowser()
	if err != nil {
		return err
	}
	prelude, err := d.scripts.Chrome()
	if err != nil {
		return err
	}
	v, err := RunScript(ctx, ScriptEnv{
		Sandbox:  d.sandbox,
		Window:   d.currentWindow(),
		Elements: b.Elements(),
		Prelude:  prelude,
		TestName: GetTestName(ctx),
		Emulator: d.runEmulator,
		Log: func(level, msg string) {
			d.log.Log(msg, level)
		},
	}, r)
	if err != nil {
		return err
	}
	resp.SetValue(v)
	return nil
}

// NamedArgs merges the named argument objects passed among args.
func NamedArgs(args []any) map[string]any {
	named := make(map[string]any)
	for _, a := range args {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := m[namedArgsKey].(map[string]any); ok {
			for k, v := range n {
				named[k] = v
			}
		}
	}
	return named
}

func (d *Driver) setScriptTimeout(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	ms, err := cmd.Parameters.Int("ms")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.timeouts.Script = null.IntFrom(ms)
	d.mu.Unlock()
	return nil
}

func (d *Driver) setSearchTimeout(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	ms, err := cmd.Parameters.Int("ms")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.timeouts.Search = null.IntFrom(ms)
	d.mu.Unlock()
	return nil
}

// setTimeouts sets the timeout named by type: implicit for element
// searches, script for scripts and any other type for page loads.
func (d *Driver) setTimeouts(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	ms, err := cmd.Parameters.Int("ms")
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch cmd.Parameters.StringOr("type", "") {
	case "implicit":
		d.timeouts.Search = null.IntFrom(ms)
	case "script":
		d.timeouts.Script = null.IntFrom(ms)
	default:
		d.timeouts.Page = null.IntFrom(ms)
	}
	return nil
}

func (d *Driver) importScript(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	script := cmd.Parameters.StringOr("script", "")
	c := d.Context()
	fresh, err := d.scripts.Import(ctx, c, script)
	if err != nil {
		return wderror.Newf(wderror.KindUnknown, "Unable to import script: %v", err)
	}
	if !fresh || c == ContextChrome {
		return nil
	}
	_, err = d.listenerCall(ctx, cmd, "importScript", map[string]any{"script": script})
	return err
}

func (d *Driver) clearImportedScripts(ctx context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	c := d.Context()
	if err := d.scripts.Clear(c); err != nil {
		return wderror.Newf(wderror.KindWebDriver, "Could not clear imported scripts: %v", err)
	}
	if c == ContextChrome {
		return nil
	}
	_, err := d.listenerCall(ctx, cmd, "clearImportedScripts", nil)
	return err
}

// emulatorCmdResult delivers the client's result of an emulator request to
// the script that made it.
func (d *Driver) emulatorCmdResult(_ context.Context, cmd *protocol.Command, _ *cmdproc.Response) error {
	if d.Context() == ContextContent {
		b, err := d.requireBrowser()
		if err != nil {
			return err
		}
		return b.Proxy().Send("emulatorCmdResult", cmd.Parameters)
	}

	id, err := cmd.Parameters.Int("id")
	if err != nil {
		return err
	}
	cb, ok := d.emu.resolve(int(id))
	if !ok {
		d.logger.Debugf("Driver:emulatorCmdResult", "no callback for emulator request id:%d", id)
		return nil
	}
	cb(cmd.Parameters["result"])
	return nil
}
