package dispatcher

import (
	"context"
	"sync"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/metrics"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Handler submits one response. It owns the value it receives.
type Handler func(ctx context.Context, resp types.StatusResponse)

// WorkerPool runs submissions on a fixed number of goroutines fed by a
// bounded queue. A full queue blocks the submitter.
type WorkerPool struct {
	workers int
	queue   chan types.StatusResponse
	quit    chan struct{}
	wg      sync.WaitGroup

	// held shared by Submit while it may still enqueue
	mu       sync.RWMutex
	stopOnce sync.Once

	// pending counts responses accepted by Submit and not yet handled
	pending sync.WaitGroup
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &WorkerPool{
		workers: workers,
		queue:   make(chan types.StatusResponse, queueSize),
		quit:    make(chan struct{}),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start(ctx context.Context, handle Handler) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, handle)
	}
}

// Stop shuts the workers down and discards whatever is still queued. Submit
// returns false from then on.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })

	// wait out submitters that were blocked on a full queue
	p.mu.Lock()
	p.mu.Unlock()

	p.wg.Wait()

	for {
		select {
		case resp := <-p.queue:
			log.Warnf("discarding queued response from %s on shutdown", resp.Oracle.Hex())
			p.pending.Done()
		default:
			return
		}
	}
}

// Submit queues resp, blocking while the queue is full. It returns false
// only when ctx is done or the pool has been stopped.
func (p *WorkerPool) Submit(ctx context.Context, resp types.StatusResponse) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.quit:
		return p.drop(resp, "pool is stopped")
	default:
	}

	p.pending.Add(1)
	select {
	case p.queue <- resp:
		return true
	case <-p.quit:
		p.pending.Done()
		return p.drop(resp, "pool is stopping")
	case <-ctx.Done():
		p.pending.Done()
		return p.drop(resp, ctx.Err().Error())
	}
}

func (p *WorkerPool) drop(resp types.StatusResponse, reason string) bool {
	log.Warnf("drop response from %s for %s: %s", resp.Oracle.Hex(), resp.Flight, reason)
	metrics.Incr(metrics.ResponseDropped)
	return false
}

// Wait blocks until every accepted response has been handled or discarded.
func (p *WorkerPool) Wait() {
	p.pending.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, handle Handler) {
	defer p.wg.Done()

	for {
		select {
		case resp := <-p.queue:
			p.run(ctx, handle, resp)
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, handle Handler, resp types.StatusResponse) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("response handler panicked for %s: %v", resp.Oracle.Hex(), r)
		}
	}()

	handle(ctx, resp)
}
