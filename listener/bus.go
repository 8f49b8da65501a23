package listener

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/wderror"
)

// Handler handles a message received from a listener.
type Handler func(Message)

// MessageManager sends messages to listeners and subscribes to messages
// from them.
type MessageManager interface {
	Send(msg Message) error
	AddMessageListener(name string, fn Handler) (remove func())
}

// Endpoint is a connected listener.
type Endpoint interface {
	// ID is the frame id the listener registered with.
	ID() string
	// Deliver sends msg to the listener. It must not block on the listener
	// handling msg.
	Deliver(msg Message) error
	Close() error
}

type handlerEntry struct {
	id uint64
	fn Handler
	// sender restricts the handler to messages from one frame.
	sender string
}

// Bus is the global message manager. It delivers messages to connected
// endpoints by target frame and dispatches messages received from them to
// registered handlers.
type Bus struct {
	logger *log.Logger

	mu        sync.RWMutex
	endpoints map[string]Endpoint
	handlers  map[string][]*handlerEntry
	nextID    uint64
	attachFn  []func(id string)
	detachFn  map[uint64]func(id string)
}

var _ MessageManager = &Bus{}

// NewBus returns an empty bus.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		logger:    logger,
		endpoints: make(map[string]Endpoint),
		handlers:  make(map[string][]*handlerEntry),
		detachFn:  make(map[uint64]func(string)),
	}
}

// Attach connects an endpoint, replacing any endpoint with the same id.
func (b *Bus) Attach(ep Endpoint) {
	b.mu.Lock()
	old := b.endpoints[ep.ID()]
	b.endpoints[ep.ID()] = ep
	fns := append([]func(string){}, b.attachFn...)
	b.mu.Unlock()

	if old != nil && old != ep {
		_ = old.Close()
	}
	b.logger.Debugf("Bus:Attach", "frame:%q", ep.ID())
	for _, fn := range fns {
		fn(ep.ID())
	}
}

// OnAttach registers fn to be called for every attached endpoint.
func (b *Bus) OnAttach(fn func(id string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachFn = append(b.attachFn, fn)
}

// OnDetach registers fn to be called for every detached endpoint until the
// returned function is called.
func (b *Bus) OnDetach(fn func(id string)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.detachFn[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.detachFn, id)
	}
}

// Detach disconnects the endpoint with the given id if it is ep.
func (b *Bus) Detach(ep Endpoint) {
	b.mu.Lock()
	cur, ok := b.endpoints[ep.ID()]
	if !ok || cur != ep {
		b.mu.Unlock()
		return
	}
	delete(b.endpoints, ep.ID())
	fns := make([]func(string), 0, len(b.detachFn))
	for _, fn := range b.detachFn {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	b.logger.Debugf("Bus:Detach", "frame:%q", ep.ID())
	for _, fn := range fns {
		fn(ep.ID())
	}
}

// Endpoints returns the ids of the connected endpoints.
func (b *Bus) Endpoints() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.endpoints))
	for id := range b.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bus) endpoint(id string) (Endpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ep, ok := b.endpoints[id]
	return ep, ok
}

// Send delivers msg to the endpoint of its target frame, or to every
// endpoint when it has no target.
func (b *Bus) Send(msg Message) error {
	if msg.Target == "" {
		b.mu.RLock()
		eps := make([]Endpoint, 0, len(b.endpoints))
		for _, ep := range b.endpoints {
			eps = append(eps, ep)
		}
		b.mu.RUnlock()
		for _, ep := range eps {
			if err := ep.Deliver(msg); err != nil {
				b.logger.Debugf("Bus:Send", "broadcasting %q to frame:%q: %v", msg.Name, ep.ID(), err)
			}
		}
		return nil
	}

	ep, ok := b.endpoint(msg.Target)
	if !ok {
		return wderror.Newf(wderror.KindFrameSendNotInitialized,
			"no listener registered for frame %q", msg.Target)
	}
	if err := ep.Deliver(msg); err != nil {
		return wderror.Newf(wderror.KindFrameSendFailure,
			"sending %q to frame %q: %v", msg.Name, msg.Target, err)
	}
	return nil
}

// AddMessageListener registers fn for messages named name from any frame.
func (b *Bus) AddMessageListener(name string, fn Handler) func() {
	return b.addListener(name, "", fn)
}

func (b *Bus) addListener(name, sender string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	h := &handlerEntry{id: b.nextID, fn: fn, sender: sender}
	b.handlers[name] = append(b.handlers[name], h)

	var once sync.Once
	return func() {
		once.Do(func() { b.removeListener(name, h.id) })
	}
}

func (b *Bus) removeListener(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[name]
	for i, h := range hs {
		if h.id == id {
			b.handlers[name] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(b.handlers[name]) == 0 {
		delete(b.handlers, name)
	}
}

// Receive dispatches a message from a listener to the registered handlers.
// Handlers run on the caller's goroutine.
func (b *Bus) Receive(msg Message) {
	b.mu.RLock()
	hs := append([]*handlerEntry(nil), b.handlers[msg.Name]...)
	b.mu.RUnlock()

	if len(hs) == 0 {
		b.logger.Debugf("Bus:Receive", "no handler for %q from frame:%q", msg.Name, msg.Sender)
		return
	}
	for _, h := range hs {
		if h.sender != "" && h.sender != msg.Sender {
			continue
		}
		h.fn(msg)
	}
}

// HandlerCount returns the number of handlers registered for name.
func (b *Bus) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Sender returns a message manager bound to a single frame.
func (b *Bus) Sender(frameID string) *FrameSender {
	return &FrameSender{bus: b, frameID: frameID}
}

// FrameSender is the message manager of a single, usually out of process,
// frame. Its listeners only see messages sent by that frame.
type FrameSender struct {
	bus     *Bus
	frameID string

	mu       sync.Mutex
	removers []func()
}

var _ MessageManager = &FrameSender{}

// FrameID returns the frame the sender is bound to.
func (s *FrameSender) FrameID() string { return s.frameID }

// Send delivers msg to the sender's frame.
func (s *FrameSender) Send(msg Message) error {
	msg.Target = s.frameID
	if err := s.bus.Send(msg); err != nil {
		return fmt.Errorf("frame sender: %w", err)
	}
	return nil
}

// AddMessageListener registers fn for messages named name from the sender's
// frame.
func (s *FrameSender) AddMessageListener(name string, fn Handler) func() {
	rm := s.bus.addListener(name, s.frameID, fn)
	s.mu.Lock()
	s.removers = append(s.removers, rm)
	s.mu.Unlock()
	return rm
}

// RemoveListeners removes every listener added through the sender.
func (s *FrameSender) RemoveListeners() {
	s.mu.Lock()
	rms := s.removers
	s.removers = nil
	s.mu.Unlock()
	for _, rm := range rms {
		rm()
	}
}
