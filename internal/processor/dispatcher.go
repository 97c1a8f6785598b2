package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/protocol/frame"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// Transport is what the dispatcher and state contexts need from a connection.
type Transport interface {
	Sender
	Requester
}

type DispatcherConfig struct {
	RequestTimeout time.Duration
	MaxStateBatch  int
}

// Dispatcher turns inbound process requests into handler invocations on a
// Pool and answers each with exactly one status.
type Dispatcher struct {
	ctx      context.Context
	handlers *handler.Registry
	pool     *Pool
	conn     Transport
	cfg      DispatcherConfig
	log      zerolog.Logger
}

// NewDispatcher builds a dispatcher. ctx is handed to every Apply call and
// should end when the connection epoch ends.
func NewDispatcher(ctx context.Context, handlers *handler.Registry, pool *Pool, conn Transport, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		handlers: handlers,
		pool:     pool,
		conn:     conn,
		cfg:      cfg,
		log:      observability.Component("dispatcher"),
	}
}

// HandleInbound implements InboundHandler. It only decodes and enqueues.
func (d *Dispatcher) HandleInbound(env frame.Envelope) error {
	if env.Type != schema.MsgTpProcessRequest {
		d.log.Warn().
			Stringer("message_type", env.Type).
			Str("correlation_id", env.CorrelationID).
			Msg("unsolicited message ignored")
		return nil
	}

	req, err := session.Decode[session.ProcessRequest](env.Type, env.Content)
	if err != nil {
		return err
	}
	hdr := req.Header
	h, namespaces, ok := d.handlers.Lookup(hdr.FamilyName, hdr.FamilyVersion, hdr.PayloadEncoding)
	if !ok {
		d.log.Warn().
			Err(ErrUnhandledFamily).
			Str("correlation_id", env.CorrelationID).
			Str("family", hdr.FamilyName).
			Str("version", hdr.FamilyVersion).
			Str("encoding", hdr.PayloadEncoding).
			Msg("process request refused")
		d.finish(env.CorrelationID, hdr, time.Now(), session.ProcessResponse{
			Status:  session.ProcessInternalError,
			Message: fmt.Sprintf("unhandled transaction family %s %s", hdr.FamilyName, hdr.FamilyVersion),
		})
		return nil
	}

	corrID := env.CorrelationID
	start := time.Now()
	if err := d.pool.Submit(func() { d.execute(corrID, req, h, namespaces, start) }); err != nil {
		msg := "processor busy"
		if errors.Is(err, ErrPoolClosed) {
			msg = "processor shutting down"
		}
		d.log.Warn().Err(err).Str("correlation_id", corrID).Msg("process request refused")
		d.finish(corrID, hdr, start, session.ProcessResponse{Status: session.ProcessInternalError, Message: msg})
	}
	return nil
}

func (d *Dispatcher) execute(corrID string, req session.ProcessRequest, h handler.Handler, namespaces []string, start time.Time) {
	resp := d.apply(corrID, req, h, namespaces)
	d.finish(corrID, req.Header, start, resp)
}

func (d *Dispatcher) apply(corrID string, req session.ProcessRequest, h handler.Handler, namespaces []string) (resp session.ProcessResponse) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("correlation_id", corrID).
				Str("family", req.Header.FamilyName).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			resp = session.ProcessResponse{
				Status:  session.ProcessInternalError,
				Message: fmt.Sprintf("handler panic: %v", r),
			}
		}
	}()

	state := NewStateContext(d.conn, req.ContextID, namespaces, StateContextConfig{
		RequestTimeout: d.cfg.RequestTimeout,
		MaxBatch:       d.cfg.MaxStateBatch,
	})
	err := h.Apply(d.ctx, &handler.Request{
		Header:    req.Header,
		Payload:   req.Payload,
		Signature: req.Signature,
		ContextID: req.ContextID,
	}, state)
	return outcome(err)
}

func (d *Dispatcher) finish(corrID string, hdr session.TransactionHeader, start time.Time, resp session.ProcessResponse) {
	observability.RecordProcess(hdr.FamilyName, hdr.FamilyVersion, string(resp.Status), time.Since(start))
	payload, err := session.Encode(resp)
	if err == nil {
		err = d.conn.Send(frame.Envelope{Type: schema.MsgTpProcessResponse, CorrelationID: corrID, Content: payload})
	}
	evt := d.log.Debug()
	if err != nil {
		evt = d.log.Warn().Err(err)
	}
	evt.Str("correlation_id", corrID).
		Str("family", hdr.FamilyName).
		Str("status", string(resp.Status)).
		Dur("duration", time.Since(start)).
		Msg("process response")
}

// outcome maps an Apply result to the wire status.
func outcome(err error) session.ProcessResponse {
	var invalid *handler.InvalidTransactionError
	var internal *handler.InternalError
	switch {
	case err == nil:
		return session.ProcessResponse{Status: session.ProcessOK}
	case errors.As(err, &invalid):
		return session.ProcessResponse{
			Status:       session.ProcessInvalidTransaction,
			Message:      invalid.Message,
			ExtendedData: invalid.ExtendedData,
		}
	case errors.As(err, &internal):
		return session.ProcessResponse{
			Status:       session.ProcessInternalError,
			Message:      internal.Error(),
			ExtendedData: internal.ExtendedData,
		}
	default:
		return session.ProcessResponse{Status: session.ProcessInternalError, Message: err.Error()}
	}
}
