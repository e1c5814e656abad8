package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
)

// QueueWorkerPoolConfig defines configuration for the queue worker pool
type QueueWorkerPoolConfig struct {
	// PoolSize is the number of workers, fixed for the pool's lifetime
	PoolSize int

	// QueueSize is the capacity of each worker's channel
	QueueSize int

	// Processor runs the transforms for every task
	Processor types.ImageProcessor

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to the standard logger)
	Logger *log.Entry

	// ErrorHandler is the error handler
	ErrorHandler types.ErrorHandler
}

// DefaultQueueWorkerPoolConfig returns default configuration
func DefaultQueueWorkerPoolConfig() *QueueWorkerPoolConfig {
	return &QueueWorkerPoolConfig{
		PoolSize:  4,
		QueueSize: 64,
		Clock:     types.NewRealClock(),
	}
}

// QueueWorkerPool keeps its workers alive across many batches. Each worker
// owns one channel fed round-robin by a QueueDispatcher; every processed
// task is added to the shared Stats.
type QueueWorkerPool struct {
	config     *QueueWorkerPoolConfig
	dispatcher *QueueDispatcher
	workers    []*Worker
	stats      *Stats

	// state management
	state  int32 // 0: created, 1: running, 2: closed
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueueWorkerPool creates the dispatcher and the workers. Nothing runs
// until Start.
func NewQueueWorkerPool(config *QueueWorkerPoolConfig) (*QueueWorkerPool, error) {
	if config == nil {
		config = DefaultQueueWorkerPoolConfig()
	}

	// parameter validation
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", config.QueueSize)
	}
	if config.Processor == nil {
		return nil, fmt.Errorf("processor must not be nil")
	}

	// Ensure clock is set
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = log.NewEntry(log.StandardLogger())
	}

	dispatcher, err := NewQueueDispatcher(config.PoolSize, config.QueueSize)
	if err != nil {
		return nil, err
	}

	pool := &QueueWorkerPool{
		config:     config,
		dispatcher: dispatcher,
		workers:    make([]*Worker, config.PoolSize),
		stats:      NewStats(),
	}

	// create workers
	for i := 0; i < config.PoolSize; i++ {
		worker := NewWorkerWithClock(i, dispatcher.Queue(i), config.Processor, config.Clock)
		worker.SetStats(pool.stats)
		worker.SetLogger(config.Logger)
		if config.ErrorHandler != nil {
			worker.SetErrorHandler(config.ErrorHandler)
		}
		pool.workers[i] = worker
	}

	return pool, nil
}

// Start launches the workers, which block on their channels, and then the
// dispatcher. Cancelling ctx does not stop them: the pool lives until
// Shutdown, so every worker still gets its terminate task.
func (p *QueueWorkerPool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, 0, 1) {
		state := atomic.LoadInt32(&p.state)
		if state == 1 {
			return fmt.Errorf("worker pool is already running")
		}
		return fmt.Errorf("worker pool is closed")
	}

	// create context; only Shutdown cancels it
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	// start all workers
	for _, worker := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(p.ctx)
		}(worker)
	}

	if err := p.dispatcher.Start(p.ctx); err != nil {
		p.cancel()
		p.wg.Wait()
		atomic.StoreInt32(&p.state, 2)
		return err
	}

	p.config.Logger.WithField("workers", p.config.PoolSize).Info("worker pool started")
	return nil
}

// SubmitBatch queues tasks round-robin across the workers. It blocks while
// the target channel is full.
func (p *QueueWorkerPool) SubmitBatch(ctx context.Context, tasks []types.Task) error {
	if atomic.LoadInt32(&p.state) != 1 {
		return types.ErrPoolNotRunning
	}
	return p.dispatcher.SubmitBatch(ctx, tasks)
}

// Shutdown broadcasts terminate to every worker and waits until all of them
// have stopped. Statistics read after Shutdown returns are final. Only the
// first call does anything; later calls return ErrPoolNotRunning.
func (p *QueueWorkerPool) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, 1, 2) {
		return types.ErrPoolNotRunning
	}
	defer p.cancel()

	var shutdownErr error
	err := p.dispatcher.Shutdown(ctx)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrDispatcherClosed):
		// the queues are closed, which ends every worker loop as well
		p.config.Logger.Debug("dispatcher already stopped, joining workers")
	default:
		shutdownErr = fmt.Errorf("broadcast terminate: %w", err)
		// unblock anything still waiting on a receive
		p.cancel()
	}

	// join
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
		if shutdownErr == nil {
			shutdownErr = ctx.Err()
		}
	}

	p.config.Logger.Info("worker pool stopped")
	return shutdownErr
}

// Size returns the worker pool size
func (p *QueueWorkerPool) Size() int {
	return p.config.PoolSize
}

// Stats returns the shared aggregate
func (p *QueueWorkerPool) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// GetWorkerStats gets statistics of all Workers
func (p *QueueWorkerPool) GetWorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, worker := range p.workers {
		stats[i] = worker.Stats()
	}
	return stats
}

// Submitted returns the number of tasks queued over the pool's lifetime
func (p *QueueWorkerPool) Submitted() uint64 {
	return p.dispatcher.Submitted()
}

// QueueLengths returns the buffered task count per worker
func (p *QueueWorkerPool) QueueLengths() []int {
	return p.dispatcher.QueueLengths()
}

// IsRunning checks if the worker pool is running
func (p *QueueWorkerPool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == 1
}

// IsClosed checks if the worker pool is closed
func (p *QueueWorkerPool) IsClosed() bool {
	return atomic.LoadInt32(&p.state) == 2
}
