package sandbox

import (
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// mapping is a set of values exposed to scripts.
type mapping = map[string]any

func (s *Sandbox) bindings(ex *execution) mapping {
	rt := ex.rt
	opts := ex.opts

	finished := func(call goja.FunctionCall) goja.Value {
		ex.done(export(call.Argument(0)))
		return goja.Undefined()
	}
	params := append([]any{}, opts.Args...)
	if opts.Async {
		params = append(params, finished)
	}

	m := mapping{
		paramsName:                 params,
		"marionetteScriptFinished": finished,
		"marionetteHeartbeat": func(goja.FunctionCall) goja.Value {
			select {
			case ex.heartbeat <- struct{}{}:
			default:
			}
			return goja.Undefined()
		},
		"marionetteLog": func(call goja.FunctionCall) goja.Value {
			if opts.Log != nil {
				level := "INFO"
				if lv := call.Argument(1); !goja.IsUndefined(lv) && !goja.IsNull(lv) {
					level = lv.String()
				}
				opts.Log(level, call.Argument(0).String())
			}
			return goja.Undefined()
		},
		"setTimeout": func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(rt.NewTypeError("setTimeout: callback is not a function"))
			}
			delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
			time.AfterFunc(delay, func() {
				ex.schedule(func() error {
					_, err := fn(goja.Undefined())
					return err
				})
			})
			return goja.Undefined()
		},
		"runEmulatorCmd":   s.emulatorBinding(ex, false),
		"runEmulatorShell": s.emulatorBinding(ex, true),
	}
	for k, v := range ex.tests.mapping(ex) {
		m[k] = v
	}
	for k, v := range opts.Globals {
		m[k] = v
	}
	return m
}

func (s *Sandbox) emulatorBinding(ex *execution, shell bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if ex.opts.Emulator == nil {
			panic(ex.rt.NewTypeError("emulator commands are not available"))
		}
		cb, _ := goja.AssertFunction(call.Argument(1))
		if cb != nil {
			atomic.AddInt32(&ex.pendingEmu, 1)
		}
		arg := call.Argument(0).String()
		cmd, sh := arg, ""
		if shell {
			cmd, sh = "", arg
		}
		ex.opts.Emulator(cmd, sh, func(result any) {
			ex.schedule(func() error {
				if cb == nil {
					return nil
				}
				atomic.AddInt32(&ex.pendingEmu, -1)
				_, err := cb(goja.Undefined(), ex.rt.ToValue(result))
				return err
			})
		})
		return goja.Undefined()
	}
}
