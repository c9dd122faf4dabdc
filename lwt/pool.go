package lwt

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkItem describes one unit of work submitted to a Pool: an entry
// function, its argument, and an optional channel to delegate to the new
// worker's initial fiber — the Go-level equivalent of the C original's
// `{work_fn, work_chan}` manager mailbox payload.
type WorkItem struct {
	Entry     EntryFunc
	Arg       any
	Delegated *Channel
}

// killSign is the manager-loop sentinel that ends Pool's manager goroutine,
// mirroring original_source/kthd_pool.c's kill_sign destroy message.
type killSign struct{}

// Pool is a manager that turns submitted WorkItems into fresh workers
// (kthd_create, one per item). The manager itself is a plain Go goroutine
// rather than a scheduled fiber: Submit is called from ordinary Go code,
// outside any fiber's execution context, so the public submission boundary
// is a native Go channel (see DESIGN.md) — everything past that boundary
// (one NewWorker call per item) follows the spec's manager loop exactly.
type Pool struct {
	logger *zap.SugaredLogger

	items chan any // WorkItem or killSign

	mu      sync.Mutex
	workers []*Worker
	closed  bool

	done chan struct{}
}

// NewPool starts a pool's manager loop and returns immediately.
func NewPool(opts ...Option) *Pool {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	p := &Pool{
		logger: cfg.logger,
		items:  make(chan any),
		done:   make(chan struct{}),
	}
	go p.manage(cfg)
	return p
}

func (p *Pool) manage(cfg options) {
	defer close(p.done)
	for raw := range p.items {
		if _, stop := raw.(killSign); stop {
			return
		}
		item := raw.(WorkItem)
		w, err := NewWorker(nil, item.Entry, item.Arg, item.Delegated, withOptionsCopy(cfg)...)
		if err != nil {
			p.logger.Warnw("pool: failed to spawn worker", "error", err)
			continue
		}
		p.mu.Lock()
		p.workers = append(p.workers, w)
		p.mu.Unlock()
	}
}

func withOptionsCopy(cfg options) []Option {
	return []Option{WithStackSize(cfg.stackSize), WithLogger(cfg.logger)}
}

// Submit enqueues a work item; the manager spawns a dedicated worker for
// it (wp_work). Submit blocks until the manager accepts the item or ctx
// is done.
func (p *Pool) Submit(ctx context.Context, item WorkItem) error {
	if item.Entry == nil {
		return ErrAllocFail
	}
	select {
	case p.items <- item:
		return nil
	case <-ctx.Done():
		return wrap(ctx.Err(), "pool: submit")
	}
}

// Close posts the kill_sign sentinel and waits for the manager loop to
// drain (wp_destroy). It does not wait for already-spawned workers to
// finish — callers that need that should Wait() on each Worker returned
// by tracking Submit's side effects, or use Workers().
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.items <- killSign{}
	close(p.items)
	<-p.done
}

// Workers returns the workers spawned so far, in submission order.
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}
