package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/txprocessor/internal/correlation"
	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/protocol/frame"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// InboundHandler receives every envelope that is not a reply. It runs on
// the read goroutine and must not block; a returned error ends the
// connection.
type InboundHandler interface {
	HandleInbound(env frame.Envelope) error
}

// Requester performs one correlated round-trip. Fail ends the underlying
// connection after a protocol violation in a reply.
type Requester interface {
	Request(ctx context.Context, reqType schema.MessageType, msg any, timeout time.Duration) (frame.Envelope, error)
	Fail(reason error)
}

// Sender writes one envelope.
type Sender interface {
	Send(env frame.Envelope) error
}

type ConnectionConfig struct {
	Limits       frame.Limits
	WriteTimeout time.Duration
}

// Connection owns one validator socket: a single reader goroutine (Serve)
// and a mutex-serialized writer shared by every caller.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    ConnectionConfig
	reg    *correlation.Registry
	log    zerolog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func NewConnection(conn net.Conn, cfg ConnectionConfig) *Connection {
	return &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    cfg,
		reg:    correlation.NewRegistry(),
		log:    observability.Component("connection").With().Str("remote", conn.RemoteAddr().String()).Logger(),
		done:   make(chan struct{}),
	}
}

func (c *Connection) Registry() *correlation.Registry {
	return c.reg
}

// Done is closed once the connection has been closed for any reason.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection closed, or nil while open.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Serve runs the read loop until the socket fails, a frame cannot be
// decoded, or inbound returns an error. Every pending request is flushed
// with ErrConnectionLost before Serve returns.
func (c *Connection) Serve(inbound InboundHandler) error {
	var reason error
	for {
		env, err := frame.ReadEnvelope(c.reader, c.cfg.Limits)
		if err != nil {
			reason = c.readError(err)
			break
		}
		if err := c.route(env, inbound); err != nil {
			reason = err
			break
		}
	}
	c.closeWith(reason)
	c.reg.CancelAll(reason)
	return reason
}

func (c *Connection) route(env frame.Envelope, inbound InboundHandler) error {
	switch {
	case schema.IsResponse(env.Type) || c.reg.Has(env.CorrelationID):
		c.reg.Complete(env.CorrelationID, env)
		return nil
	case env.Type == schema.MsgPingRequest:
		payload, err := session.Encode(session.PingResponse{})
		if err != nil {
			return err
		}
		if err := c.Send(frame.Envelope{Type: schema.MsgPingResponse, CorrelationID: env.CorrelationID, Content: payload}); err != nil {
			c.log.Warn().Err(err).Msg("ping response failed")
		}
		return nil
	case inbound == nil:
		c.log.Warn().Stringer("message_type", env.Type).Msg("no inbound handler; envelope ignored")
		return nil
	default:
		return inbound.HandleInbound(env)
	}
}

func (c *Connection) readError(err error) error {
	select {
	case <-c.done:
		if cause := c.Err(); cause != nil {
			return cause
		}
		return ErrConnectionClosed
	default:
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: peer closed", ErrConnectionClosed)
	}
	return err
}

// Send writes env as one frame. Writes from concurrent callers never interleave.
func (c *Connection) Send(env frame.Envelope) error {
	buf, err := frame.Encode(env, c.cfg.Limits)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return fmt.Errorf("%w: %v", correlation.ErrConnectionLost, c.Err())
	default:
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := c.conn.Write(buf); err != nil {
		c.closeWith(fmt.Errorf("write %s: %w", env.Type, err))
		return fmt.Errorf("%w: %v", correlation.ErrConnectionLost, err)
	}
	return nil
}

// Request sends msg as reqType under a fresh correlation id and waits for
// the paired reply kind.
func (c *Connection) Request(ctx context.Context, reqType schema.MessageType, msg any, timeout time.Duration) (frame.Envelope, error) {
	replyType, ok := schema.ResponseFor(reqType)
	if !ok {
		return frame.Envelope{}, fmt.Errorf("processor: %s is not a request kind", reqType)
	}
	payload, err := session.Encode(msg)
	if err != nil {
		return frame.Envelope{}, err
	}

	id := correlation.NewID()
	h, err := c.reg.Register(id, replyType)
	if err != nil {
		return frame.Envelope{}, err
	}
	if err := c.Send(frame.Envelope{Type: reqType, CorrelationID: id, Content: payload}); err != nil {
		c.reg.Cancel(id, err)
		return frame.Envelope{}, err
	}
	return h.Wait(ctx, timeout)
}

// Fail closes the connection with reason. Serve then flushes every pending
// request and returns reason.
func (c *Connection) Fail(reason error) {
	c.log.Error().Err(reason).Msg("protocol violation; closing connection")
	_ = c.closeWith(reason)
}

// Close shuts the socket; Serve returns shortly after.
func (c *Connection) Close() error {
	return c.closeWith(nil)
}

func (c *Connection) closeWith(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		if reason == nil {
			reason = ErrConnectionClosed
		}
		c.err = reason
		c.errMu.Unlock()
		close(c.done)
		err = c.conn.Close()
		c.log.Debug().Err(reason).Msg("connection closed")
	})
	return err
}

// roundTrip performs a correlated request and decodes the reply payload. A
// reply of the wrong kind or one that fails to decode ends the connection.
func roundTrip[Resp any](ctx context.Context, r Requester, reqType schema.MessageType, msg any, timeout time.Duration) (Resp, error) {
	var zero Resp
	env, err := r.Request(ctx, reqType, msg, timeout)
	if err != nil {
		var unexpected *correlation.UnexpectedReplyError
		if errors.As(err, &unexpected) {
			r.Fail(err)
		}
		return zero, err
	}
	resp, err := session.Decode[Resp](env.Type, env.Content)
	if err != nil {
		r.Fail(err)
		return zero, err
	}
	return resp, nil
}
