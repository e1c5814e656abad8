package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jzx17/photobatch/pkg/types"
)

const (
	dispatcherCreated int32 = iota
	dispatcherRunning
	dispatcherClosed
)

// dispatchRequest is sent from callers to the dispatcher goroutine
type dispatchRequest struct {
	ctx      context.Context
	tasks    []types.Task
	shutdown bool
	reply    chan error
}

// QueueDispatcher feeds one bounded channel per worker. A single goroutine
// owns the round-robin position; callers hand it batches over a control
// channel, so placement order is the order requests were accepted.
//
// The task with lifetime position i always goes to queue i mod n. The
// position is not reset between batches.
type QueueDispatcher struct {
	queues   []chan types.Task
	requests chan dispatchRequest
	done     chan struct{}

	// next is only touched by the dispatcher goroutine
	next      uint64
	submitted uint64 // atomic mirror of next for readers

	state     int32
	closeOnce sync.Once
}

// NewQueueDispatcher creates the per-worker channels. They exist before
// any worker starts.
func NewQueueDispatcher(workers, queueSize int) (*QueueDispatcher, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", queueSize)
	}

	queues := make([]chan types.Task, workers)
	for i := range queues {
		queues[i] = make(chan types.Task, queueSize)
	}

	return &QueueDispatcher{
		queues:   queues,
		requests: make(chan dispatchRequest),
		done:     make(chan struct{}),
	}, nil
}

// Workers returns the number of queues
func (d *QueueDispatcher) Workers() int {
	return len(d.queues)
}

// Queue returns the receive end of worker i's channel
func (d *QueueDispatcher) Queue(i int) <-chan types.Task {
	return d.queues[i]
}

// QueueLengths returns the number of buffered tasks per worker
func (d *QueueDispatcher) QueueLengths() []int {
	lengths := make([]int, len(d.queues))
	for i, q := range d.queues {
		lengths[i] = len(q)
	}
	return lengths
}

// Submitted returns how many tasks have been placed over the dispatcher's lifetime
func (d *QueueDispatcher) Submitted() uint64 {
	return atomic.LoadUint64(&d.submitted)
}

// Start launches the dispatcher goroutine
func (d *QueueDispatcher) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&d.state, dispatcherCreated, dispatcherRunning) {
		if atomic.LoadInt32(&d.state) == dispatcherRunning {
			return fmt.Errorf("dispatcher is already running")
		}
		return types.ErrDispatcherClosed
	}

	go d.run(ctx)
	return nil
}

func (d *QueueDispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.closeQueues()

	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&d.state, dispatcherClosed)
			return
		case req := <-d.requests:
			if req.shutdown {
				req.reply <- d.broadcast(req.ctx)
				return
			}
			req.reply <- d.place(req.ctx, req.tasks)
		}
	}
}

// place assigns tasks round-robin. A full queue blocks until its worker
// catches up or ctx is cancelled.
func (d *QueueDispatcher) place(ctx context.Context, tasks []types.Task) error {
	n := uint64(len(d.queues))
	for _, task := range tasks {
		task.Seq = d.next
		select {
		case d.queues[d.next%n] <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.next++
		atomic.StoreUint64(&d.submitted, d.next)
	}
	return nil
}

// broadcast sends exactly one terminate task to every queue
func (d *QueueDispatcher) broadcast(ctx context.Context) error {
	for i, q := range d.queues {
		select {
		case q <- types.TerminateTask():
		case <-ctx.Done():
			return fmt.Errorf("terminate not delivered to worker %d: %w", i, ctx.Err())
		}
	}
	return nil
}

func (d *QueueDispatcher) closeQueues() {
	d.closeOnce.Do(func() {
		for _, q := range d.queues {
			close(q)
		}
	})
}

// SubmitBatch places every task and returns once the last one is queued.
func (d *QueueDispatcher) SubmitBatch(ctx context.Context, tasks []types.Task) error {
	state := atomic.LoadInt32(&d.state)
	if state != dispatcherRunning {
		if state == dispatcherCreated {
			return fmt.Errorf("dispatcher is not started")
		}
		return types.ErrDispatcherClosed
	}
	if len(tasks) == 0 {
		return nil
	}

	return d.send(ctx, dispatchRequest{ctx: ctx, tasks: tasks, reply: make(chan error, 1)})
}

// Shutdown broadcasts the terminate task to every worker, then closes the
// queues. Only the first call broadcasts.
func (d *QueueDispatcher) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&d.state, dispatcherRunning, dispatcherClosed) {
		if atomic.LoadInt32(&d.state) == dispatcherCreated {
			return fmt.Errorf("dispatcher is not started")
		}
		return types.ErrDispatcherClosed
	}

	return d.send(ctx, dispatchRequest{ctx: ctx, shutdown: true, reply: make(chan error, 1)})
}

func (d *QueueDispatcher) send(ctx context.Context, req dispatchRequest) error {
	select {
	case d.requests <- req:
	case <-d.done:
		return types.ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Done is closed when the dispatcher goroutine has exited
func (d *QueueDispatcher) Done() <-chan struct{} {
	return d.done
}
