// Package validatortest runs an in-process fake validator on a loopback
// listener for processor tests.
package validatortest

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/txprocessor/internal/protocol/frame"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

const defaultWait = 2 * time.Second

// Validator accepts processor connections one at a time.
type Validator struct {
	t     *testing.T
	ln    net.Listener
	conns chan *Peer
	done  chan struct{}
	wg    sync.WaitGroup

	mu    sync.Mutex
	peers []*Peer
	once  sync.Once
}

// Start listens on 127.0.0.1:0 and closes everything on test cleanup.
func Start(t *testing.T) *Validator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return serve(t, ln)
}

// StartTLS is Start behind a TLS listener using cfg.
func StartTLS(t *testing.T, cfg *tls.Config) *Validator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return serve(t, tls.NewListener(ln, cfg))
}

func serve(t *testing.T, ln net.Listener) *Validator {
	v := &Validator{t: t, ln: ln, conns: make(chan *Peer, 8), done: make(chan struct{})}
	v.wg.Add(1)
	go v.acceptLoop()
	t.Cleanup(v.Close)
	return v
}

func (v *Validator) Addr() string {
	return v.ln.Addr().String()
}

// Accept waits for the next processor connection.
func (v *Validator) Accept() *Peer {
	v.t.Helper()
	select {
	case p := <-v.conns:
		return p
	case <-time.After(defaultWait):
		v.t.Fatalf("timed out waiting for processor connection")
		return nil
	}
}

func (v *Validator) Close() {
	v.once.Do(func() {
		close(v.done)
		_ = v.ln.Close()
		v.wg.Wait()
		v.mu.Lock()
		defer v.mu.Unlock()
		for _, p := range v.peers {
			_ = p.Close()
		}
	})
}

func (v *Validator) acceptLoop() {
	defer v.wg.Done()
	for {
		conn, err := v.ln.Accept()
		if err != nil {
			return
		}
		p := &Peer{t: v.t, conn: conn, inbox: make(chan frame.Envelope, 64), closed: make(chan struct{})}
		go p.readLoop()
		v.mu.Lock()
		v.peers = append(v.peers, p)
		v.mu.Unlock()
		select {
		case v.conns <- p:
		case <-v.done:
			return
		}
	}
}

// Peer is the validator side of one processor connection.
type Peer struct {
	t       *testing.T
	conn    net.Conn
	inbox   chan frame.Envelope
	closed  chan struct{}
	writeMu sync.Mutex
	once    sync.Once
}

func (p *Peer) readLoop() {
	defer close(p.closed)
	r := bufio.NewReader(p.conn)
	for {
		env, err := frame.ReadEnvelope(r, frame.DefaultLimits())
		if err != nil {
			return
		}
		p.inbox <- env
	}
}

// Next returns the next envelope sent by the processor.
func (p *Peer) Next() frame.Envelope {
	p.t.Helper()
	select {
	case env := <-p.inbox:
		return env
	case <-time.After(defaultWait):
		p.t.Fatalf("timed out waiting for envelope from processor")
		return frame.Envelope{}
	}
}

// Expect returns the next envelope and fails unless it has kind want.
func (p *Peer) Expect(want schema.MessageType) frame.Envelope {
	p.t.Helper()
	env := p.Next()
	if env.Type != want {
		p.t.Fatalf("expected %s, got %s (correlation_id=%q)", want, env.Type, env.CorrelationID)
	}
	return env
}

// Quiet fails if the processor sends anything within d.
func (p *Peer) Quiet(d time.Duration) {
	p.t.Helper()
	select {
	case env := <-p.inbox:
		p.t.Fatalf("expected no envelope, got %s (correlation_id=%q)", env.Type, env.CorrelationID)
	case <-time.After(d):
	}
}

// Send writes env to the processor.
func (p *Peer) Send(env frame.Envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return frame.WriteEnvelope(p.conn, env, frame.DefaultLimits())
}

// Request sends msg as an unsolicited request of kind reqType.
func (p *Peer) Request(reqType schema.MessageType, corrID string, msg any) {
	p.t.Helper()
	payload, err := session.Encode(msg)
	if err != nil {
		p.t.Fatalf("encode %s: %v", reqType, err)
	}
	if err := p.Send(frame.Envelope{Type: reqType, CorrelationID: corrID, Content: payload}); err != nil {
		p.t.Fatalf("send %s: %v", reqType, err)
	}
}

// Reply answers req with msg under req's correlation id.
func (p *Peer) Reply(req frame.Envelope, msg any) {
	p.t.Helper()
	respType, ok := schema.ResponseFor(req.Type)
	if !ok {
		p.t.Fatalf("no response kind for %s", req.Type)
	}
	payload, err := session.Encode(msg)
	if err != nil {
		p.t.Fatalf("encode reply: %v", err)
	}
	if err := p.Send(frame.Envelope{Type: respType, CorrelationID: req.CorrelationID, Content: payload}); err != nil {
		p.t.Fatalf("send reply: %v", err)
	}
}

// AcceptRegistrations answers the next n register requests with OK and
// returns them.
func (p *Peer) AcceptRegistrations(n int) []session.RegisterRequest {
	p.t.Helper()
	out := make([]session.RegisterRequest, 0, n)
	for i := 0; i < n; i++ {
		env := p.Expect(schema.MsgTpRegisterRequest)
		req, err := session.Decode[session.RegisterRequest](env.Type, env.Content)
		if err != nil {
			p.t.Fatalf("decode register request: %v", err)
		}
		out = append(out, req)
		p.Reply(env, session.RegisterResponse{Status: session.RegisterOK})
	}
	return out
}

// Decode unmarshals env's payload into T or fails the test.
func Decode[T any](t *testing.T, env frame.Envelope) T {
	t.Helper()
	out, err := session.Decode[T](env.Type, env.Content)
	if err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return out
}

// WaitClosed waits for the processor to close its side.
func (p *Peer) WaitClosed() {
	p.t.Helper()
	select {
	case <-p.closed:
	case <-time.After(defaultWait):
		p.t.Fatalf("timed out waiting for processor to close connection")
	}
}

func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		err = p.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
