package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"

	"github.com/ethereum-optimism/infra/op-cuke/metrics"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

var (
	// ErrPoolClosed is returned by Submit once Shutdown has been called.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrHandleCancelled is reported by a handle settled by a forced shutdown.
	ErrHandleCancelled = errors.New("execution unit cancelled")
)

// HandleState is the lifecycle state of a Handle.
type HandleState int

const (
	HandlePending HandleState = iota
	HandleResolved
	HandleCancelled
)

func (s HandleState) String() string {
	switch s {
	case HandlePending:
		return "pending"
	case HandleResolved:
		return "resolved"
	case HandleCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("HandleState(%d)", int(s))
	}
}

// Handle is an awaitable reference to the result of one submitted unit. It
// settles exactly once, either resolved with a code or cancelled.
type Handle struct {
	unit *Unit
	done chan struct{}

	mu       sync.Mutex
	state    HandleState
	code     types.ResultCode
	started  time.Time
	finished time.Time
	cancel   context.CancelFunc
}

func newHandle(u *Unit) *Handle {
	return &Handle{unit: u, done: make(chan struct{})}
}

// Unit returns the submitted unit.
func (h *Handle) Unit() *Unit { return h.unit }

// Done is closed once the handle settles.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Result returns the resolved code. A cancelled handle reports
// ErrHandleCancelled; a pending one reports an error too.
func (h *Handle) Result() (types.ResultCode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case HandleResolved:
		return h.code, nil
	case HandleCancelled:
		return types.ResultFailure, ErrHandleCancelled
	default:
		return types.ResultFailure, fmt.Errorf("unit %s still pending", h.unit.ID())
	}
}

// Duration is the time the unit spent executing, zero if it never started.
func (h *Handle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started.IsZero() {
		return 0
	}
	end := h.finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(h.started)
}

// begin marks the handle running and records its cancel function. It
// returns false if the handle was already cancelled.
func (h *Handle) begin(cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HandlePending {
		return false
	}
	h.started = time.Now()
	h.cancel = cancel
	return true
}

func (h *Handle) settle(state HandleState, code types.ResultCode) bool {
	h.mu.Lock()
	if h.state != HandlePending {
		h.mu.Unlock()
		return false
	}
	h.state = state
	h.code = code
	h.finished = time.Now()
	cancel := h.cancel
	h.mu.Unlock()

	if state == HandleCancelled && cancel != nil {
		cancel()
	}
	close(h.done)
	return true
}

func (h *Handle) resolve(code types.ResultCode) bool {
	return h.settle(HandleResolved, code)
}

func (h *Handle) cancelHandle() bool {
	return h.settle(HandleCancelled, types.ResultFailure)
}

// Pool runs submitted units on a fixed number of workers. Units are started
// in submission order; completion order is unspecified.
type Pool struct {
	log    log.Logger
	size   int
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Handle
	running map[*Handle]struct{}
	closed  bool

	workers      conc.WaitGroup
	shutdownOnce sync.Once
}

// NewPool starts size workers. Units run with contexts derived from ctx.
func NewPool(ctx context.Context, logger log.Logger, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = log.New()
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		log:     logger.New("component", "worker-pool"),
		size:    size,
		ctx:     poolCtx,
		cancel:  cancel,
		running: make(map[*Handle]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		id := i
		p.workers.Go(func() { p.worker(id) })
	}
	metrics.SetPoolWorkers(size)
	p.log.Debug("Worker pool started", "workers", size)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit enqueues a unit and returns immediately.
func (p *Pool) Submit(u *Unit) (*Handle, error) {
	if u == nil {
		return nil, errors.New("unit cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	h := newHandle(u)
	p.queue = append(p.queue, h)
	p.updateGauges()
	p.cond.Signal()
	return h, nil
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown stops the pool. Only the first call has any effect. A graceful
// shutdown stops intake and waits for every accepted unit to finish. A
// forced shutdown cancels running units, settles every unfinished handle as
// cancelled and returns without waiting.
func (p *Pool) Shutdown(graceful bool) {
	p.shutdownOnce.Do(func() {
		if graceful {
			p.mu.Lock()
			p.closed = true
			p.cond.Broadcast()
			p.mu.Unlock()

			p.log.Debug("Waiting for workers to drain")
			p.workers.Wait()
			p.cancel()
			p.log.Debug("Worker pool stopped")
			return
		}

		p.mu.Lock()
		p.closed = true
		pending := append(p.queue, p.runningHandles()...)
		p.queue = nil
		p.updateGauges()
		p.cond.Broadcast()
		p.mu.Unlock()

		p.cancel()
		cancelled := 0
		for _, h := range pending {
			if h.cancelHandle() {
				cancelled++
			}
		}
		p.log.Warn("Worker pool cancelled", "cancelled", cancelled)
	})
}

func (p *Pool) runningHandles() []*Handle {
	out := make([]*Handle, 0, len(p.running))
	for h := range p.running {
		out = append(out, h)
	}
	return out
}

// updateGauges must be called with p.mu held.
func (p *Pool) updateGauges() {
	metrics.SetPoolQueued(len(p.queue))
	metrics.SetPoolInFlight(len(p.running))
}

func (p *Pool) next() (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	h := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.running[h] = struct{}{}
	p.updateGauges()
	return h, true
}

func (p *Pool) done(h *Handle) {
	p.mu.Lock()
	delete(p.running, h)
	p.updateGauges()
	p.mu.Unlock()
}

func (p *Pool) worker(id int) {
	for {
		h, ok := p.next()
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(p.ctx)
		if !h.begin(cancel) {
			cancel()
			p.done(h)
			continue
		}

		p.log.Debug("Worker picked up unit", "worker", id, "unit", h.unit.ID())
		code := h.unit.Execute(ctx)
		cancel()
		p.done(h)

		if !h.resolve(code) {
			p.log.Debug("Unit finished after its handle was cancelled", "unit", h.unit.ID())
		}
	}
}
