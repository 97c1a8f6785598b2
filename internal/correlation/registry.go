package correlation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/protocol/frame"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
)

var (
	ErrDuplicateCorrelation = errors.New("correlation: duplicate correlation id")
	ErrEmptyCorrelation     = errors.New("correlation: empty correlation id")
	ErrConnectionLost       = errors.New("correlation: connection lost")
	ErrTimeout              = errors.New("correlation: request timed out")
)

// UnexpectedReplyError is delivered when a reply arrives with the right
// correlation id but the wrong message kind.
type UnexpectedReplyError struct {
	CorrelationID string
	Expected      schema.MessageType
	Got           schema.MessageType
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("correlation: id=%q expected %s, got %s", e.CorrelationID, e.Expected, e.Got)
}

// NewID mints a correlation id for a locally originated request.
func NewID() string {
	return uuid.NewString()
}

// Result is the single completion of a pending request.
type Result struct {
	Envelope frame.Envelope
	Err      error
}

// Handle is the caller's side of one pending request.
type Handle struct {
	id       string
	expected schema.MessageType
	done     chan Result
	reg      *Registry
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Expected() schema.MessageType {
	return h.expected
}

// Done yields exactly one Result.
func (h *Handle) Done() <-chan Result {
	return h.done
}

// Wait blocks until the reply arrives, timeout elapses, or ctx ends. On
// timeout or cancellation the entry is removed before returning. A
// non-positive timeout waits on ctx alone.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (frame.Envelope, error) {
	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case res := <-h.done:
		return res.Envelope, res.Err
	case <-timerC:
		h.reg.finish(h.id, Result{Err: fmt.Errorf("%w: id=%q after %s", ErrTimeout, h.id, timeout)})
	case <-ctx.Done():
		h.reg.finish(h.id, Result{Err: ctx.Err()})
	}
	// Whoever removed the entry has sent, or is about to send, the one result.
	res := <-h.done
	return res.Envelope, res.Err
}

// Registry tracks requests awaiting a correlated reply. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Handle
	closed  error

	dropped     atomic.Uint64
	dropLimiter *rate.Limiter
	log         zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		pending:     make(map[string]*Handle),
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		log:         observability.Component("correlation"),
	}
}

// Register records a pending request expecting a reply of kind expected.
func (r *Registry) Register(id string, expected schema.MessageType) (*Handle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyCorrelation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed != nil {
		return nil, r.closed
	}
	if _, ok := r.pending[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateCorrelation, id)
	}
	h := &Handle{id: id, expected: expected, done: make(chan Result, 1), reg: r}
	r.pending[id] = h
	observability.AddPending(1)
	return h, nil
}

// Complete delivers env to the waiter registered under id. An unknown id is
// dropped and counted; it never fails.
func (r *Registry) Complete(id string, env frame.Envelope) bool {
	h := r.take(id)
	if h == nil {
		r.recordDrop(id, env)
		return false
	}
	if env.Type != h.expected {
		h.done <- Result{Envelope: env, Err: &UnexpectedReplyError{CorrelationID: id, Expected: h.expected, Got: env.Type}}
		return true
	}
	h.done <- Result{Envelope: env}
	return true
}

// Expire removes id and signals ErrTimeout to its waiter.
func (r *Registry) Expire(id string) bool {
	return r.finish(id, Result{Err: fmt.Errorf("%w: id=%q", ErrTimeout, id)})
}

// Cancel removes id and completes its waiter with err.
func (r *Registry) Cancel(id string, err error) bool {
	return r.finish(id, Result{Err: err})
}

// CancelAll completes every pending entry with ErrConnectionLost and refuses
// further registrations. It returns the number of entries flushed.
func (r *Registry) CancelAll(reason error) int {
	err := lostError(reason)

	r.mu.Lock()
	if r.closed == nil {
		r.closed = err
	}
	flushed := r.pending
	r.pending = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range flushed {
		h.done <- Result{Err: err}
	}
	if n := len(flushed); n > 0 {
		observability.AddPending(-float64(n))
		r.log.Warn().Int("flushed", n).Err(reason).Msg("pending requests cancelled")
	}
	return len(flushed)
}

// Has reports whether id is pending.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dropped returns how many replies arrived with no waiter.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Registry) finish(id string, res Result) bool {
	h := r.take(id)
	if h == nil {
		return false
	}
	h.done <- res
	return true
}

func (r *Registry) take(id string) *Handle {
	r.mu.Lock()
	h, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if ok {
		observability.AddPending(-1)
	}
	return h
}

func (r *Registry) recordDrop(id string, env frame.Envelope) {
	r.dropped.Add(1)
	observability.RecordDroppedReply(env.Type.String())
	if r.dropLimiter.Allow() {
		r.log.Warn().
			Str("correlation_id", id).
			Stringer("message_type", env.Type).
			Int("content_bytes", len(env.Content)).
			Msg("reply with no pending request dropped")
	}
}

func lostError(reason error) error {
	switch {
	case reason == nil:
		return ErrConnectionLost
	case errors.Is(reason, ErrConnectionLost):
		return reason
	default:
		return fmt.Errorf("%w: %v", ErrConnectionLost, reason)
	}
}
