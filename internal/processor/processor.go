package processor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// State is the processor lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateServing
	StateDisconnecting
)

var stateNames = []string{"disconnected", "connecting", "registering", "serving", "disconnecting"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stats is a point-in-time view of the current connection epoch.
type Stats struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
	Dropped uint64 `json:"dropped_replies"`
	Queued  int    `json:"queued"`
	Active  int    `json:"active"`
	Workers int    `json:"workers"`
	Faults  int    `json:"consecutive_faults"`
}

// Processor connects to a validator, registers its handlers, and serves
// process requests until stopped.
type Processor struct {
	cfg      Config
	handlers *handler.Registry
	backoff  *session.Backoff
	tlsConf  *tls.Config
	log      zerolog.Logger

	state   atomic.Int32
	started atomic.Bool
	// faults counts consecutive epochs lost since one last reached Serving.
	faults atomic.Int32

	stopOnce sync.Once
	stopCh   chan struct{}

	mu   sync.RWMutex
	conn *Connection
	pool *Pool
}

func New(cfg Config) (*Processor, error) {
	cfg = cfg.WithDefaults()
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	p := &Processor{
		cfg:      cfg,
		handlers: handler.NewRegistry(),
		backoff:  session.NewBackoff(cfg.Session.Backoff),
		log:      observability.Component("processor").With().Str("endpoint", cfg.Endpoint).Logger(),
		stopCh:   make(chan struct{}),
	}
	if cfg.Session.TLS.Enabled {
		tlsCfg, err := cfg.Session.TLS.ClientConfig(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		p.tlsConf = tlsCfg
	}
	p.setState(StateDisconnected)
	return p, nil
}

// AddHandler registers h. Handlers are fixed once Start is called.
func (p *Processor) AddHandler(h handler.Handler) error {
	if p.started.Load() {
		return ErrAlreadyStarted
	}
	return p.handlers.Register(h)
}

func (p *Processor) Registrations() []handler.Registration {
	return p.handlers.Registrations()
}

func (p *Processor) State() State {
	return State(p.state.Load())
}

func (p *Processor) Stats() Stats {
	st := Stats{State: p.State().String(), Workers: p.cfg.Workers, Faults: int(p.faults.Load())}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn != nil {
		st.Pending = p.conn.Registry().Len()
		st.Dropped = p.conn.Registry().Dropped()
	}
	if p.pool != nil {
		st.Queued = p.pool.Queued()
		st.Active = p.pool.Active()
	}
	return st
}

// Stop requests a graceful shutdown. Safe to call any number of times from
// any goroutine.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Start runs the lifecycle and blocks until Stop, ctx cancellation, a
// rejected registration, or (without Reconnect) a connection fault. A
// graceful stop returns nil.
func (p *Processor) Start(ctx context.Context) error {
	if p.started.Load() {
		return ErrAlreadyStarted
	}
	if p.handlers.Len() == 0 {
		return ErrNoHandlers
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer p.setState(StateDisconnected)

	for epoch := 1; ; epoch++ {
		err := p.runEpoch(ctx)
		if ctx.Err() != nil {
			p.log.Info().Msg("processor stopped")
			return nil
		}
		if errors.Is(err, ErrRegistrationRejected) || !p.cfg.Reconnect {
			return err
		}
		faults := int(p.faults.Add(1))
		p.log.Warn().Err(err).Int("epoch", epoch).Int("consecutive_faults", faults).Msg("connection lost; reconnecting")
		if err := p.backoff.Sleep(ctx, faults); err != nil {
			return nil
		}
	}
}

// runEpoch drives one connection from Connecting back to Disconnected.
// Each epoch has its own socket, correlation registry and pool.
func (p *Processor) runEpoch(ctx context.Context) error {
	p.setState(StateConnecting)
	netConn, err := p.connect(ctx)
	if err != nil {
		return err
	}

	conn := NewConnection(netConn, ConnectionConfig{Limits: p.cfg.Limits, WriteTimeout: p.cfg.Session.WriteTimeout})
	pool := NewPool(p.cfg.Workers, p.cfg.QueueLimit)
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	disp := NewDispatcher(workCtx, p.handlers, pool, conn, DispatcherConfig{
		RequestTimeout: p.cfg.Session.RequestTimeout,
		MaxStateBatch:  p.cfg.MaxStateBatch,
	})

	p.setEpoch(conn, pool)
	defer p.setEpoch(nil, nil)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- conn.Serve(disp)
	}()

	p.setState(StateRegistering)
	if err := p.register(ctx, conn); err != nil {
		p.setState(StateDisconnecting)
		pool.Close()
		_ = conn.Close()
		<-serveErr
		cancelWork()
		p.drain(pool)
		return err
	}

	p.setState(StateServing)
	p.faults.Store(0)
	p.log.Info().Int("handlers", p.handlers.Len()).Int("workers", p.cfg.Workers).Msg("serving")

	select {
	case <-ctx.Done():
		p.setState(StateDisconnecting)
		p.unregister(conn)
		pool.Close()
		p.drain(pool)
		_ = conn.Close()
		<-serveErr
		return ctx.Err()
	case err := <-serveErr:
		p.setState(StateDisconnecting)
		pool.Close()
		// Statuses can no longer be delivered; release handlers blocked on ctx.
		cancelWork()
		p.drain(pool)
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
}

func (p *Processor) connect(ctx context.Context) (net.Conn, error) {
	for attempt := 1; ; attempt++ {
		conn, err := p.dial(ctx)
		if err == nil {
			p.log.Debug().Int("attempt", attempt).Msg("connected")
			return conn, nil
		}
		p.log.Warn().Int("attempt", attempt).Err(err).Msg("dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if p.cfg.MaxConnectAttempts > 0 && attempt >= p.cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectFailed, p.cfg.Endpoint, attempt, err)
		}
		if err := p.backoff.Sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (p *Processor) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.Session.ConnectTimeout)
	defer cancel()
	raw, err := p.cfg.Dialer.DialContext(dialCtx, "tcp", p.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if p.tlsConf == nil {
		return raw, nil
	}
	conn := tls.Client(raw, p.tlsConf)
	if err := conn.HandshakeContext(dialCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return conn, nil
}

// register announces every (family, version). NOT_READY replies are retried
// with backoff under a fresh correlation id; ERROR is fatal.
func (p *Processor) register(ctx context.Context, conn *Connection) error {
	occupancy := p.cfg.MaxOccupancy()
	for _, reg := range p.handlers.Registrations() {
		for _, version := range reg.FamilyVersions {
			req := session.RegisterRequest{
				Family:          reg.FamilyName,
				Version:         version,
				Namespaces:      reg.Namespaces,
				Encodings:       reg.Encodings,
				MaxOccupancy:    occupancy,
				ProtocolVersion: session.ProtocolVersion,
			}
			if err := p.registerOne(ctx, conn, req); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) registerOne(ctx context.Context, conn *Connection, req session.RegisterRequest) error {
	for attempt := 1; ; attempt++ {
		resp, err := roundTrip[session.RegisterResponse](ctx, conn, schema.MsgTpRegisterRequest, req, p.cfg.Session.RegisterTimeout)
		if err != nil {
			return fmt.Errorf("register %s %s: %w", req.Family, req.Version, err)
		}
		observability.RecordRegistration(req.Family, req.Version, string(resp.Status))
		switch resp.Status {
		case session.RegisterOK:
			p.log.Info().Str("family", req.Family).Str("version", req.Version).Msg("registered")
			return nil
		case session.RegisterNotReady:
			p.log.Info().Str("family", req.Family).Int("attempt", attempt).Msg("validator not ready; retrying registration")
			if err := p.backoff.Sleep(ctx, attempt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s %s: %s", ErrRegistrationRejected, req.Family, req.Version, resp.Message)
		}
	}
}

func (p *Processor) unregister(conn *Connection) {
	timeout := p.cfg.Session.RegisterTimeout
	if timeout > p.cfg.Session.ShutdownTimeout {
		timeout = p.cfg.Session.ShutdownTimeout
	}
	resp, err := roundTrip[session.UnregisterResponse](context.Background(), conn, schema.MsgTpUnregisterRequest, session.UnregisterRequest{}, timeout)
	if err != nil {
		p.log.Warn().Err(err).Msg("unregister failed")
		return
	}
	p.log.Info().Str("status", string(resp.Status)).Msg("unregistered")
}

func (p *Processor) drain(pool *Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Session.ShutdownTimeout)
	defer cancel()
	if err := pool.Wait(ctx); err != nil {
		p.log.Warn().Int("active", pool.Active()).Int("queued", pool.Queued()).Msg("in-flight work abandoned at shutdown")
	}
}

func (p *Processor) setEpoch(conn *Connection, pool *Pool) {
	p.mu.Lock()
	p.conn = conn
	p.pool = pool
	p.mu.Unlock()
}

func (p *Processor) setState(s State) {
	prev := State(p.state.Swap(int32(s)))
	observability.SetLifecycleState(s.String(), stateNames)
	if prev != s {
		p.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("lifecycle")
	}
}
