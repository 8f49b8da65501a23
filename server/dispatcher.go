// Package server accepts protocol clients and dispatches their commands.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/mailru/easyjson"

	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/wderror"
)

// emulatorCommand is answered out of band: it is the client's reply to an
// emulator request and is not a command the client waits on.
const emulatorCommand = "emulatorCmdResult"

// emulatorCallbackID is the command id of replies sent out of band.
const emulatorCallbackID = -1

// Dispatcher serves one client connection. Every command gets a fresh live
// id and only the reply carrying the live id reaches the client. Late
// replies of superseded commands and second replies are dropped.
type Dispatcher struct {
	id      int
	conn    *protocol.Conn
	proc    *cmdproc.Processor
	logger  *log.Logger
	metrics *metrics.CustomMetrics
	newID   func() string

	mu        sync.Mutex
	commandID string
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher for the connection with the given id.
func NewDispatcher(id int, conn *protocol.Conn, proc *cmdproc.Processor, logger *log.Logger, m *metrics.CustomMetrics) *Dispatcher {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Dispatcher{
		id:      id,
		conn:    conn,
		proc:    proc,
		logger:  logger,
		metrics: m,
		newID:   func() string { return uuid.New().String() },
	}
}

// Run greets the client and dispatches its commands until the connection
// closes or ctx is done. Commands run concurrently so that a command can be
// superseded while it waits on a remote call. Pending commands are
// cancelled when the connection closes and Run waits for them to return.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.SayHello()
	for {
		cmd, err := d.conn.ReadCommand()
		switch {
		case errors.Is(err, protocol.ErrMalformedPacket):
			d.logger.Warnf("Dispatcher:Run", "conn:%d %v", d.id, err)
			cid := d.beginNewCommand()
			perr := wderror.Newf(wderror.KindUnknown, "Could not parse packet: %v", err)
			d.SendResponse(cmdproc.Result{Status: perr.Code(), Value: wderror.ToJSON(perr)}, cid)
			continue
		case err != nil:
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.OnPacket(ctx, cmd)
	}
}

// OnPacket executes cmd under a new live command id.
func (d *Dispatcher) OnPacket(ctx context.Context, cmd *protocol.Command) {
	d.logger.Debugf("Dispatcher:OnPacket", "conn:%d -> %q", d.id, cmd.Name)

	cid := strconv.Itoa(emulatorCallbackID)
	if cmd.Name != emulatorCommand {
		cid = d.beginNewCommand()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.proc.Execute(ctx, cmd, d.SendResponse, cid)
	}()
}

// beginNewCommand mints and stores the live command id.
func (d *Dispatcher) beginNewCommand() string {
	id := d.newID()
	d.mu.Lock()
	d.commandID = id
	d.mu.Unlock()
	return id
}

// LiveCommandID returns the id of the command awaiting its reply, or an
// empty string when the connection is idle.
func (d *Dispatcher) LiveCommandID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commandID
}

// SendResponse sends the reply of the command with the given id.
func (d *Dispatcher) SendResponse(res cmdproc.Result, commandID string) {
	if isEmulatorCallback(commandID) {
		if res.Status == 0 {
			return
		}
		d.write(protocol.NewReply(res.SessionID, res.Status, res.Value))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case commandID == "":
		d.logger.Warnf("Dispatcher:SendResponse", "conn:%d got response with no command id", d.id)
		d.metrics.DropReply(metrics.DropOutOfSync)
		return
	case d.commandID == "":
		d.logger.Warnf("Dispatcher:SendResponse", "conn:%d ignoring duplicate response for command id:%q", d.id, commandID)
		d.metrics.DropReply(metrics.DropDuplicate)
		return
	case d.commandID != commandID:
		d.logger.Warnf("Dispatcher:SendResponse", "conn:%d ignoring out-of-sync response with command id:%q", d.id, commandID)
		d.metrics.DropReply(metrics.DropOutOfSync)
		return
	}

	d.logger.Debugf("Dispatcher:SendResponse", "conn:%d <- cid:%q status:%d", d.id, commandID, res.Status)
	d.write(protocol.NewReply(res.SessionID, res.Status, res.Value))
	d.commandID = ""
}

// SendEmulator sends an emulator request to the client, outside of the
// command ordering.
func (d *Dispatcher) SendEmulator(pkt *protocol.Emulator) error {
	return d.conn.Write(pkt)
}

// SayHello writes the greeting packet.
func (d *Dispatcher) SayHello() {
	d.write(protocol.NewHello())
}

func (d *Dispatcher) write(pkt easyjson.Marshaler) {
	if err := d.conn.Write(pkt); err != nil {
		d.logger.Warnf("Dispatcher:write", "conn:%d %v", d.id, err)
		d.metrics.DropReply(metrics.DropWriteError)
	}
}

// Close closes the connection.
func (d *Dispatcher) Close() error {
	return d.conn.Close()
}

func isEmulatorCallback(commandID string) bool {
	n, err := strconv.Atoi(commandID)
	return err == nil && n < 0
}
