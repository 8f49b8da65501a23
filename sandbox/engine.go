package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// engine is a goja runtime shared by the executions of a sandbox. Only one
// execution runs code on it at a time; suspended async executions do not
// hold it.
type engine struct {
	rt   *goja.Runtime
	slot chan struct{}

	mu     sync.Mutex
	owner  *execution
	binder *execution
}

func newEngine() *engine {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &engine{rt: rt, slot: make(chan struct{}, 1)}
}

// enter waits until ex may run code. It fails once ex is stopped.
func (e *engine) enter(ex *execution) bool {
	select {
	case e.slot <- struct{}{}:
	case <-ex.stop:
		return false
	}
	e.mu.Lock()
	e.owner = ex
	e.mu.Unlock()

	select {
	case <-ex.stop:
		e.leave()
		return false
	default:
		return true
	}
}

func (e *engine) leave() {
	e.mu.Lock()
	e.owner = nil
	e.rt.ClearInterrupt()
	e.mu.Unlock()
	<-e.slot
}

// interrupt aborts the code ex is running, if any.
func (e *engine) interrupt(ex *execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == ex {
		e.rt.Interrupt(errStopped)
	}
}

// bind sets the globals of ex. The caller runs code for ex.
func (e *engine) bind(ex *execution, globals mapping) error {
	e.mu.Lock()
	e.binder = ex
	e.mu.Unlock()
	for k, v := range globals {
		if err := e.rt.Set(k, v); err != nil {
			return err //nolint:wrapcheck
		}
		ex.bound = append(ex.bound, k)
	}
	return nil
}

// unbind removes the globals of ex unless another execution bound its own
// since.
func (e *engine) unbind(ex *execution) {
	e.slot <- struct{}{}
	defer func() { <-e.slot }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binder != ex {
		return
	}
	e.binder = nil
	global := e.rt.GlobalObject()
	for _, k := range ex.bound {
		_ = global.Delete(k)
	}
}
