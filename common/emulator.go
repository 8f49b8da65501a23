package common

import (
	"sync"

	"github.com/grafana/xk6-marionette/protocol"
)

// EmulatorSink sends an emulator request to the client out of band.
type EmulatorSink func(*protocol.Emulator) error

// emulatorCallbacks are the callbacks waiting for emulatorCmdResult.
type emulatorCallbacks struct {
	mu     sync.Mutex
	nextID int
	cbs    map[int]func(any)
}

func newEmulatorCallbacks() *emulatorCallbacks {
	return &emulatorCallbacks{cbs: make(map[int]func(any))}
}

// register returns the id of the next request, storing cb under it.
func (e *emulatorCallbacks) register(cb func(any)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	if cb != nil {
		e.cbs[id] = cb
	}
	return id
}

// resolve removes and returns the callback of id.
func (e *emulatorCallbacks) resolve(id int) (func(any), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.cbs[id]
	delete(e.cbs, id)
	return cb, ok
}

func (e *emulatorCallbacks) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cbs = make(map[int]func(any))
}
