package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
)

// WorkerRecord is the timing of one static worker. Each record is written
// only by its own worker and read only after every worker has joined.
type WorkerRecord struct {
	ID        int
	Range     Range
	Start     time.Time
	End       time.Time
	Processed int64
	Failed    int64

	// Busy is the summed duration of the worker's tasks
	Busy time.Duration
}

// Elapsed returns End - Start
func (r WorkerRecord) Elapsed() time.Duration {
	return r.End.Sub(r.Start)
}

// StaticWorkerPoolConfig defines configuration for the static worker pool
type StaticWorkerPoolConfig struct {
	// PoolSize is the number of workers and ranges
	PoolSize int

	// Processor runs the transforms for every task
	Processor types.ImageProcessor

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to the standard logger)
	Logger *log.Entry

	// ErrorHandler is the error handler
	ErrorHandler types.ErrorHandler
}

// StaticWorkerPool splits one fixed job list into contiguous ranges and runs
// one worker per range. Workers share nothing with each other or with the
// caller until they join.
type StaticWorkerPool struct {
	config *StaticWorkerPoolConfig
}

// NewStaticWorkerPool creates a static worker pool
func NewStaticWorkerPool(config *StaticWorkerPoolConfig) (*StaticWorkerPool, error) {
	if config == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}
	if config.Processor == nil {
		return nil, fmt.Errorf("processor must not be nil")
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = log.NewEntry(log.StandardLogger())
	}

	return &StaticWorkerPool{config: config}, nil
}

// Size returns the worker pool size
func (p *StaticWorkerPool) Size() int {
	return p.config.PoolSize
}

// Run partitions tasks, runs every range on its own goroutine and returns
// the per-worker records once all of them have finished.
func (p *StaticWorkerPool) Run(ctx context.Context, tasks []types.Task) ([]WorkerRecord, error) {
	ranges, err := Partition(len(tasks), p.config.PoolSize)
	if err != nil {
		return nil, err
	}

	records := make([]WorkerRecord, len(ranges))
	var wg sync.WaitGroup

	for i, r := range ranges {
		rec := &records[i]
		worker := NewWorkerWithClock(i, nil, p.config.Processor, p.config.Clock)
		worker.SetLogger(p.config.Logger)
		// runs on the worker's own goroutine, the only writer of rec
		worker.SetCompletionCallback(func(d time.Duration, failed bool) {
			rec.Busy += d
			if failed {
				rec.Failed++
			} else {
				rec.Processed++
			}
		})
		if p.config.ErrorHandler != nil {
			worker.SetErrorHandler(p.config.ErrorHandler)
		}

		p.config.Logger.WithFields(log.Fields{
			"worker": i,
			"start":  r.Start,
			"end":    r.End,
		}).Debug("range assigned")

		wg.Add(1)
		go func(w *Worker, rec *WorkerRecord, r Range) {
			defer wg.Done()

			rec.ID = w.ID()
			rec.Range = r
			rec.Start = p.config.Clock.Now()
			w.RunSlice(ctx, tasks[r.Start:r.End])
			rec.End = p.config.Clock.Now()
		}(worker, rec, r)
	}

	wg.Wait()
	return records, nil
}
