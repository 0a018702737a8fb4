// Package worker provides a bounded worker pool for async webhook
// processing. Ingestion stays fast because handlers only enqueue; the pool's
// goroutines do the actual work.
package worker

import (
	"context"
	"sync"

	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/observability"
)

// Task is a unit of async work. The context passed in is the pool's run
// context, cancelled when the pool stops.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of goroutines fed from a bounded queue
type Pool struct {
	queue   chan Task
	workers int
	logger  ports.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPool creates a pool with the given worker count and queue capacity
func NewPool(workers, queueSize int, logger ports.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   make(chan Task, queueSize),
		workers: workers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info("worker pool started",
		ports.Int("workers", p.workers),
		ports.Int("queue_capacity", cap(p.queue)))
}

// Submit enqueues a task. Returns false when the queue is full or the pool
// is stopped; the caller decides whether that matters (webhook events are
// durable, so a full queue just means the retry sweep picks them up later).
func (p *Pool) Submit(task Task) bool {
	// the send happens under the same lock Shutdown holds while closing the
	// queue, so a racing Submit cannot send on a closed channel
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- task:
		observability.WorkerQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		p.logger.Warn("worker queue full, task dropped")
		return false
	}
}

// QueueDepth returns the number of tasks waiting in the queue
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown stops accepting tasks, drains the queue, and waits for workers
// to finish or the context to expire
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		// abandon in-flight tasks
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		observability.WorkerQueueDepth.Set(float64(len(p.queue)))
		p.safeRun(id, task)
	}
}

func (p *Pool) safeRun(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				ports.Int("worker", id),
				ports.String("panic", panicString(r)))
		}
	}()
	task(p.ctx)
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}
