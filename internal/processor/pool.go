package processor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/txprocessor/internal/observability"
)

// Pool runs tasks on a fixed number of workers. Submit never blocks: work
// beyond the worker count waits in a FIFO queue, optionally capped.
type Pool struct {
	workers int
	limit   int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	active atomic.Int64
	group  errgroup.Group
	log    zerolog.Logger
}

// NewPool starts workers goroutines. queueLimit <= 0 leaves the queue unbounded.
func NewPool(workers, queueLimit int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		limit:   queueLimit,
		log:     observability.Component("pool"),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			p.work()
			return nil
		})
	}
	return p
}

// Submit queues task. It fails with ErrPoolClosed after Close and with
// ErrPoolFull when the queue is at its limit.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.limit > 0 && len(p.queue) >= p.limit {
		return ErrPoolFull
	}
	p.queue = append(p.queue, task)
	observability.SetQueueDepth(len(p.queue))
	p.cond.Signal()
	return nil
}

// Close stops intake. Already queued tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Wait blocks until every worker exits after Close, or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active returns tasks currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		observability.SetQueueDepth(len(p.queue))
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	p.active.Add(1)
	observability.AddActiveWorkers(1)
	defer func() {
		p.active.Add(-1)
		observability.AddActiveWorkers(-1)
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task()
}
