package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/xk6-marionette/cmdproc"
	"github.com/grafana/xk6-marionette/common"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/trace"
)

// Options configures a Server.
type Options struct {
	Driver  *common.Driver
	Framing protocol.Framing
	// MaxConnections limits concurrent clients, zero means no limit.
	MaxConnections int
	Logger         *log.Logger
	Metrics        *metrics.CustomMetrics
	Tracer         *trace.Tracer
}

// Server accepts clients and serves each with a Dispatcher. All clients
// drive the same session.
type Server struct {
	driver   *common.Driver
	proc     *cmdproc.Processor
	framing  protocol.Framing
	maxConns int
	logger   *log.Logger
	metrics  *metrics.CustomMetrics

	mu     sync.Mutex
	nextID int
	active int
}

// New returns a server executing commands on opts.Driver.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}
	popts := []cmdproc.Option{cmdproc.WithMetrics(m)}
	if opts.Tracer != nil {
		popts = append(popts, cmdproc.WithTracer(opts.Tracer))
	}

	return &Server{
		driver:   opts.Driver,
		proc:     cmdproc.NewProcessor(opts.Driver, logger, popts...),
		framing:  opts.Framing,
		maxConns: opts.MaxConnections,
		logger:   logger,
		metrics:  m,
	}
}

// ListenAndServe listens on the TCP address addr and serves clients until
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until ctx is done or accepting fails. It
// closes ln and returns after every client was disconnected.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.logger.Infof("Server:Serve", "accepting connections on %s", ln.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					cancel()
					return nil
				}
				return fmt.Errorf("accepting connection: %w", err)
			}
			g.Go(func() error {
				s.serveConn(ctx, c)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	s.mu.Lock()
	s.nextID++
	s.active++
	id := s.nextID
	s.mu.Unlock()

	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	d := NewDispatcher(id, protocol.NewConn(c, s.framing), s.proc, s.logger, s.metrics)
	s.driver.SetEmulatorSink(d.SendEmulator)
	s.logger.Infof("Server:serveConn", "accepted connection conn:%d from %s", id, c.RemoteAddr())

	stop := context.AfterFunc(ctx, func() { _ = d.Close() })
	defer stop()

	if err := d.Run(ctx); err != nil {
		s.logger.Warnf("Server:serveConn", "conn:%d: %v", id, err)
	}
	_ = d.Close()
	s.logger.Infof("Server:serveConn", "closed connection conn:%d", id)

	s.mu.Lock()
	s.active--
	last := s.active == 0
	s.mu.Unlock()
	if last {
		s.endSession(id)
	}
}

// endSession deletes the session the last disconnected client left behind.
func (s *Server) endSession(connID int) {
	if s.driver.SessionID() == "" {
		return
	}
	s.logger.Debugf("Server:endSession", "conn:%d deleting orphaned session", connID)
	cmd := &protocol.Command{Name: "deleteSession"}
	s.proc.Execute(context.Background(), cmd, func(res cmdproc.Result, _ string) {
		if res.Status != 0 {
			s.logger.Warnf("Server:endSession", "conn:%d deleting session: %v", connID, res.Value)
		}
	}, "")
}
