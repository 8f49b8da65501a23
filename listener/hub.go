package listener

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
)

const writeWait = 10 * time.Second

var errEndpointClosed = errors.New("listener connection closed")

// Hub accepts out of process listeners over websocket and attaches them to
// a bus. A listener's first message must be its register message.
type Hub struct {
	bus      *Bus
	logger   *log.Logger
	metrics  *metrics.CustomMetrics
	upgrader websocket.Upgrader
}

// NewHub returns a hub attaching listeners to bus.
func NewHub(bus *Bus, logger *log.Logger, m *metrics.CustomMetrics) *Hub {
	return &Hub{
		bus:     bus,
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// checkOrigin accepts clients that send no origin, pages of the hub's own
// host and pages served from loopback.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ServeHTTP upgrades the request and serves the listener until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("Hub:ServeHTTP", "upgrading %s: %v", r.RemoteAddr, err)
		return
	}

	ep, first, err := h.handshake(conn)
	if err != nil {
		h.logger.Warnf("Hub:ServeHTTP", "handshake with %s: %v", r.RemoteAddr, err)
		_ = conn.Close()
		return
	}

	h.bus.Attach(ep)
	if h.metrics != nil {
		h.metrics.Listeners.Inc()
		defer h.metrics.Listeners.Dec()
	}
	defer h.bus.Detach(ep)
	defer ep.Close() //nolint:errcheck

	h.bus.Receive(first)
	ep.listen()
}

func (h *Hub) handshake(conn *websocket.Conn) (*wsEndpoint, Message, error) {
	var msg Message
	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, msg, fmt.Errorf("reading register message: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if msg.Name != MsgRegister {
		return nil, msg, fmt.Errorf("expected %q, got %q", MsgRegister, msg.Name)
	}
	var reg Registration
	if err := msg.Decode(&reg); err != nil {
		return nil, msg, err
	}
	if reg.Value == "" {
		return nil, msg, errors.New("register message without frame id")
	}
	msg.Sender = reg.FrameID()

	return &wsEndpoint{id: reg.FrameID(), conn: conn, hub: h}, msg, nil
}

type wsEndpoint struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	wmu    sync.Mutex
	closed bool
}

func (e *wsEndpoint) ID() string { return e.id }

func (e *wsEndpoint) Deliver(msg Message) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	if e.closed {
		return errEndpointClosed
	}
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := e.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing %q: %w", msg.Name, err)
	}
	return nil
}

func (e *wsEndpoint) listen() {
	for {
		var msg Message
		err := e.conn.ReadJSON(&msg)
		if websocket.IsCloseError(err,
			websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
		) {
			return
		}
		if err != nil {
			e.hub.logger.Debugf("Hub:listen", "frame:%q reading message: %v", e.id, err)
			return
		}
		msg.Sender = e.id
		e.hub.bus.Receive(msg)
	}
}

func (e *wsEndpoint) Close() error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	_ = e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return e.conn.Close()
}
