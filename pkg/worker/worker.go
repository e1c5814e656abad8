package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is one long-lived execution unit. It receives tasks from its own
// channel, or walks a fixed slice in the static variant, and runs each one
// to completion before looking at the next.
type Worker struct {
	id        int
	state     int32 // atomic state
	taskChan  <-chan types.Task
	processor types.ImageProcessor
	done      chan struct{}

	// statistics
	totalProcessed int64
	totalFailed    int64
	terminations   int64
	lastTaskTime   int64 // Unix nanosecond timestamp

	// shared aggregate, nil in the static variant
	stats *Stats

	// error handling
	errorHandler types.ErrorHandler

	// pool callback for syncing statistics
	completionCallback func(time.Duration, bool)

	// time operations
	clock  types.Clock
	logger *log.Entry

	// synchronization
	mu sync.RWMutex
}

// NewWorker creates a new Worker with default real clock
func NewWorker(id int, taskChan <-chan types.Task, processor types.ImageProcessor) *Worker {
	return NewWorkerWithClock(id, taskChan, processor, types.NewRealClock())
}

// NewWorkerWithClock creates a new Worker with specified clock
func NewWorkerWithClock(id int, taskChan <-chan types.Task, processor types.ImageProcessor, clock types.Clock) *Worker {
	if clock == nil {
		clock = types.NewRealClock()
	}

	return &Worker{
		id:        id,
		state:     int32(WorkerStateIdle),
		taskChan:  taskChan,
		processor: processor,
		done:      make(chan struct{}),
		clock:     clock,
		logger:    log.WithField("worker", id),
	}
}

// ID returns the Worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// SetStats attaches the shared aggregate updated after every task
func (w *Worker) SetStats(stats *Stats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = stats
}

// SetLogger sets the logger; the worker id field is added automatically
func (w *Worker) SetLogger(logger *log.Entry) {
	if logger == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger.WithField("worker", w.id)
}

// SetErrorHandler sets the error handler
func (w *Worker) SetErrorHandler(handler types.ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHandler = handler
}

// SetCompletionCallback sets the task completion callback
func (w *Worker) SetCompletionCallback(callback func(time.Duration, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completionCallback = callback
}

// Start runs the receive loop until a terminate task arrives, the channel
// is closed, or ctx is cancelled while the worker is idle. A task that has
// been received always runs to completion.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-w.taskChan:
			if !ok {
				return
			}
			if task.Terminate {
				atomic.AddInt64(&w.terminations, 1)
				w.getLogger().Debug("terminate received")
				return
			}
			w.processTask(ctx, task)
		}
	}
}

// RunSlice processes tasks in order and stops. It is the static variant's
// loop: the slice is fixed before launch and nothing else is shared.
// Cancellation is checked between tasks only.
func (w *Worker) RunSlice(ctx context.Context, tasks []types.Task) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	for i, task := range tasks {
		if ctx.Err() != nil {
			w.getLogger().WithField("remaining", len(tasks)-i).Warn("cancelled, slice not finished")
			return
		}
		w.getLogger().WithField("file", task.Filename).Infof("worker %d processing %s", w.id, task.Filename)
		w.processTask(ctx, task)
	}
}

// Done is closed once the worker has stopped
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// processTask processes a single task
func (w *Worker) processTask(ctx context.Context, task types.Task) {
	// set to working state
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.CompareAndSwapInt32(&w.state, int32(WorkerStateWorking), int32(WorkerStateIdle))

	// record start time
	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	// execute task
	err := w.executeTask(ctx, task)

	// calculate execution time
	executionTime := w.clock.Since(startTime)

	// update statistics
	failed := err != nil
	if failed {
		atomic.AddInt64(&w.totalFailed, 1)
		w.handleError(err, task)
	} else {
		atomic.AddInt64(&w.totalProcessed, 1)
	}

	w.mu.RLock()
	stats := w.stats
	callback := w.completionCallback
	logger := w.logger
	w.mu.RUnlock()

	if stats != nil {
		snapshot := stats.Record(executionTime)
		avg, _ := snapshot.Average()
		logger.WithFields(log.Fields{
			"file":    task.Filename,
			"elapsed": executionTime,
			"total":   snapshot.Count,
			"average": avg,
		}).Infof("worker %d processed %s in %.2fs", w.id, task.Filename, executionTime.Seconds())
	}

	if callback != nil {
		callback(executionTime, failed)
	}
}

// executeTask executes a task with panic recovery support
func (w *Worker) executeTask(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// record panic information
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			taskErr := types.NewTaskError("process", task.SourcePath(), fmt.Errorf("panic: %v", r))
			taskErr.WithContext("stack_trace", string(buf[:n]))
			taskErr.WithContext("worker_id", w.id)
			err = taskErr
		}
	}()

	if w.processor == nil {
		return types.NewTaskError("process", task.SourcePath(), fmt.Errorf("worker %d has no processor", w.id))
	}
	return w.processor.ProcessImage(ctx, task)
}

// handleError logs the failure and passes it to the error handler
func (w *Worker) handleError(err error, task types.Task) {
	w.mu.RLock()
	handler := w.errorHandler
	logger := w.logger
	w.mu.RUnlock()

	logger.WithError(err).WithField("file", task.Filename).Error("task failed")

	if handler != nil {
		if handledErr := handler(err); handledErr != nil {
			logger.WithError(handledErr).Debug("error handler returned error")
		}
	}
}

func (w *Worker) getLogger() *log.Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.logger
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		Terminations:   atomic.LoadInt64(&w.terminations),
		LastTaskTime:   time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	// Terminations counts poison pills received; one after a clean shutdown
	Terminations int64
	LastTaskTime time.Time
}

// IsActive checks if Worker is active
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// IsIdle checks if Worker is idle
func (ws WorkerStats) IsIdle() bool {
	return ws.State == WorkerStateIdle
}

// Total returns processed plus failed tasks
func (ws WorkerStats) Total() int64 {
	return ws.TotalProcessed + ws.TotalFailed
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.Total()
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}
