package cmdproc

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"

	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
	"github.com/grafana/xk6-marionette/protocol"
	"github.com/grafana/xk6-marionette/trace"
	"github.com/grafana/xk6-marionette/wderror"
)

// HandlerFunc handles a single command. It may block until a remote call
// completes. Returned errors are sent as the reply.
type HandlerFunc func(ctx context.Context, cmd *protocol.Command, resp *Response) error

// Resolver resolves command names to handlers.
type Resolver interface {
	Resolve(name string) (HandlerFunc, bool)
	SessionID() string
}

// ErrorSink receives errors that are not protocol errors.
type ErrorSink func(cmd *protocol.Command, err error)

// Processor executes commands. It holds no per command state and may be
// used concurrently.
type Processor struct {
	resolver Resolver
	logger   *log.Logger
	tracer   *trace.Tracer
	metrics  *metrics.CustomMetrics
	sink     ErrorSink
}

// Option configures a Processor.
type Option func(*Processor)

// WithTracer traces every command.
func WithTracer(t *trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// WithMetrics records every command.
func WithMetrics(m *metrics.CustomMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithErrorSink sets the sink for internal faults.
func WithErrorSink(sink ErrorSink) Option {
	return func(p *Processor) { p.sink = sink }
}

// NewProcessor returns a processor dispatching to resolver.
func NewProcessor(resolver Resolver, logger *log.Logger, opts ...Option) *Processor {
	p := &Processor{
		resolver: resolver,
		logger:   logger,
		tracer:   trace.NewNoopTracer(),
	}
	p.sink = p.logFault
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Processor) logFault(cmd *protocol.Command, err error) {
	p.metrics.Fault()
	p.logger.Errorf("Processor:fault", "command:%q cid:%q err:%+v", cmd.Name, cmd.ID, err)
}

// Execute runs cmd and hands its result to handler tagged with commandID.
// It returns after the handler returned, which for suspending commands is
// after their remote calls completed.
func (p *Processor) Execute(ctx context.Context, cmd *protocol.Command, handler ResponseHandler, commandID string) {
	cmd.ID = commandID
	start := time.Now()

	sessionID := p.resolver.SessionID()
	resp := NewResponse(p.logger, commandID, handler)
	resp.SetSessionID(sessionID)

	ctx, span := p.tracer.TraceCommand(ctx, sessionID, cmd.Name, commandID)
	defer span.End()

	p.logger.Debugf("Processor:Execute", "command:%q cid:%q", cmd.Name, commandID)

	err := p.run(ctx, cmd, resp)
	if err == nil {
		resp.Send()
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if fault := resp.SendError(err); fault != nil {
			p.sink(cmd, fault)
		}
	}

	p.metrics.ObserveCommand(cmd.Name, resp.Status(), time.Since(start))
}

func (p *Processor) run(ctx context.Context, cmd *protocol.Command, resp *Response) (err error) {
	fn, ok := p.resolver.Resolve(cmd.Name)
	if !ok {
		return wderror.UnknownCommand(cmd.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.WithStack(fmt.Errorf("command %q panicked: %v", cmd.Name, r))
		}
	}()

	return fn(ctx, cmd, resp)
}
