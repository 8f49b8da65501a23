package sandbox

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dop251/goja"

	"github.com/grafana/xk6-marionette/log"
)

// simpleTest collects the assertions made by test scripts.
type simpleTest struct {
	testName string
	logger   *log.Logger

	mu       sync.Mutex
	passed   int
	failures []map[string]any
}

func (t *simpleTest) record(pass bool, name, diag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pass {
		t.passed++
		return
	}
	t.logger.Debugf("Sandbox:simpletest", "TEST-UNEXPECTED-FAIL | %s | %s - %s", t.testName, name, diag)
	t.failures = append(t.failures, map[string]any{"name": name, "diag": diag})
}

func (t *simpleTest) results() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	failures := make([]any, 0, len(t.failures))
	for _, f := range t.failures {
		failures = append(failures, f)
	}
	return map[string]any{
		"passed":   t.passed,
		"failed":   len(t.failures),
		"failures": failures,
	}
}

func (t *simpleTest) mapping(ex *execution) mapping {
	str := func(v goja.Value) string {
		if v == nil || goja.IsUndefined(v) {
			return ""
		}
		return v.String()
	}
	return mapping{
		"ok": func(call goja.FunctionCall) goja.Value {
			t.record(call.Argument(0).ToBoolean(), str(call.Argument(1)), str(call.Argument(2)))
			return goja.Undefined()
		},
		"is": func(call goja.FunctionCall) goja.Value {
			a, b := export(call.Argument(0)), export(call.Argument(1))
			t.record(reflect.DeepEqual(a, b), str(call.Argument(2)),
				fmt.Sprintf("got %v, expected %v", a, b))
			return goja.Undefined()
		},
		"isnot": func(call goja.FunctionCall) goja.Value {
			a, b := export(call.Argument(0)), export(call.Argument(1))
			t.record(!reflect.DeepEqual(a, b), str(call.Argument(2)),
				fmt.Sprintf("didn't expect %v, but got it", a))
			return goja.Undefined()
		},
		"generate_results": func(goja.FunctionCall) goja.Value {
			return ex.rt.ToValue(t.results())
		},
		"finish": func(goja.FunctionCall) goja.Value {
			ex.done(t.results())
			return goja.Undefined()
		},
	}
}
