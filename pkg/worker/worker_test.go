package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/photobatch/internal/testutils"
	"github.com/jzx17/photobatch/pkg/types"
)

func waitStopped(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker %d did not stop", w.ID())
	}
}

func TestNewWorker(t *testing.T) {
	taskChan := make(chan types.Task, 10)
	worker := NewWorker(1, taskChan, &testutils.RecordingProcessor{})

	assert.Equal(t, 1, worker.ID())
	assert.Equal(t, WorkerStateIdle, worker.State())
}

func TestWorkerState(t *testing.T) {
	assert.Equal(t, "idle", WorkerStateIdle.String())
	assert.Equal(t, "working", WorkerStateWorking.String())
	assert.Equal(t, "stopped", WorkerStateStopped.String())
	assert.Equal(t, "unknown", WorkerState(999).String())
}

func TestWorker_StopsOnTerminate(t *testing.T) {
	taskChan := make(chan types.Task, 10)
	processor := &testutils.RecordingProcessor{}
	worker := NewWorker(0, taskChan, processor)

	taskChan <- types.NewTask("in", "out", "a.jpeg")
	taskChan <- types.NewTask("in", "out", "b.jpeg")
	taskChan <- types.TerminateTask()
	// never reached
	taskChan <- types.NewTask("in", "out", "c.jpeg")

	go worker.Start(context.Background())
	waitStopped(t, worker)

	assert.Equal(t, []string{"a.jpeg", "b.jpeg"}, processor.Filenames())
	assert.Equal(t, WorkerStateStopped, worker.State())

	stats := worker.Stats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(0), stats.TotalFailed)
	assert.Equal(t, int64(1), stats.Terminations)
	assert.Len(t, taskChan, 1)
}

func TestWorker_StopsOnClosedChannel(t *testing.T) {
	taskChan := make(chan types.Task, 1)
	worker := NewWorker(0, taskChan, &testutils.RecordingProcessor{})

	close(taskChan)
	go worker.Start(context.Background())
	waitStopped(t, worker)

	assert.Equal(t, int64(0), worker.Stats().Terminations)
}

func TestWorker_StopsOnCancelWhileIdle(t *testing.T) {
	taskChan := make(chan types.Task)
	worker := NewWorker(0, taskChan, &testutils.RecordingProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Start(ctx)

	cancel()
	waitStopped(t, worker)
	assert.Equal(t, WorkerStateStopped, worker.State())
}

func TestWorker_InFlightTaskCompletes(t *testing.T) {
	taskChan := make(chan types.Task, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished int32

	processor := types.ImageProcessorFunc(func(ctx context.Context, task types.Task) error {
		close(started)
		<-release
		atomic.StoreInt32(&finished, 1)
		return nil
	})
	worker := NewWorker(0, taskChan, processor)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Start(ctx)

	taskChan <- types.NewTask("in", "out", "slow.jpeg")
	<-started
	assert.Equal(t, WorkerStateWorking, worker.State())

	cancel()
	close(release)
	waitStopped(t, worker)

	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
	assert.Equal(t, int64(1), worker.Stats().TotalProcessed)
}

func TestWorker_ErrorHandling(t *testing.T) {
	taskChan := make(chan types.Task, 3)
	decodeErr := errors.New("not a jpeg")
	processor := &testutils.RecordingProcessor{
		OnProcess: func(task types.Task) error {
			if task.Filename == "bad.jpeg" {
				return types.NewTaskError("decode", task.SourcePath(), decodeErr)
			}
			return nil
		},
	}

	var handled []error
	worker := NewWorker(0, taskChan, processor)
	logger, buf := testutils.NewTestLogger()
	worker.SetLogger(logger)
	worker.SetErrorHandler(func(err error) error {
		handled = append(handled, err)
		return nil
	})

	taskChan <- types.NewTask("in", "out", "bad.jpeg")
	taskChan <- types.NewTask("in", "out", "good.jpeg")
	taskChan <- types.TerminateTask()

	go worker.Start(context.Background())
	waitStopped(t, worker)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.InDelta(t, 0.5, stats.GetSuccessRate(), 0.001)

	require.Len(t, handled, 1)
	assert.ErrorIs(t, handled[0], decodeErr)
	assert.Contains(t, buf.String(), "task failed")
	assert.Contains(t, buf.String(), "file=bad.jpeg")
}

func TestWorker_PanicRecovery(t *testing.T) {
	taskChan := make(chan types.Task, 2)
	processor := types.ImageProcessorFunc(func(ctx context.Context, task types.Task) error {
		panic("corrupt header")
	})

	var handled error
	worker := NewWorker(3, taskChan, processor)
	logger, _ := testutils.NewTestLogger()
	worker.SetLogger(logger)
	worker.SetErrorHandler(func(err error) error {
		handled = err
		return nil
	})

	taskChan <- types.NewTask("in", "out", "boom.jpeg")
	taskChan <- types.TerminateTask()

	go worker.Start(context.Background())
	waitStopped(t, worker)

	assert.Equal(t, int64(1), worker.Stats().TotalFailed)

	var taskErr *types.TaskError
	require.ErrorAs(t, handled, &taskErr)
	assert.Equal(t, "process", taskErr.Operation)
	assert.Contains(t, taskErr.Error(), "panic: corrupt header")
	assert.Equal(t, 3, taskErr.Context["worker_id"])
	assert.NotEmpty(t, taskErr.Context["stack_trace"])
}

func TestWorker_NilProcessor(t *testing.T) {
	worker := NewWorker(0, nil, nil)

	var handled error
	worker.SetErrorHandler(func(err error) error {
		handled = err
		return nil
	})
	worker.RunSlice(context.Background(), []types.Task{types.NewTask("in", "out", "a.jpeg")})

	assert.Equal(t, int64(1), worker.Stats().TotalFailed)
	assert.Error(t, handled)
}

func TestWorker_RecordsStatsWithMockClock(t *testing.T) {
	clock := testutils.NewClockWrapper(testutils.NewMockClock(t))
	durations := map[string]time.Duration{
		"a.jpeg": 2 * time.Second,
		"b.jpeg": 3 * time.Second,
		"c.jpeg": 4 * time.Second,
	}
	processor := &testutils.RecordingProcessor{
		OnProcess: func(task types.Task) error {
			clock.Step(durations[task.Filename])
			return nil
		},
	}

	taskChan := make(chan types.Task, 4)
	worker := NewWorkerWithClock(0, taskChan, processor, clock)
	stats := NewStats()
	worker.SetStats(stats)
	logger, buf := testutils.NewTestLogger()
	worker.SetLogger(logger)

	var elapsed []time.Duration
	worker.SetCompletionCallback(func(d time.Duration, failed bool) {
		assert.False(t, failed)
		elapsed = append(elapsed, d)
	})

	for _, name := range []string{"a.jpeg", "b.jpeg", "c.jpeg"} {
		taskChan <- types.NewTask("in", "out", name)
	}
	taskChan <- types.TerminateTask()

	go worker.Start(context.Background())
	waitStopped(t, worker)

	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second}, elapsed)

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, 9*time.Second, snap.Total)
	avg, ok := snap.Average()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, avg)

	assert.Contains(t, buf.String(), fmt.Sprintf("worker %d processed %s in %.2fs", 0, "c.jpeg", 4.0))
}

func TestWorker_RunSlice(t *testing.T) {
	processor := &testutils.RecordingProcessor{}
	worker := NewWorker(2, nil, processor)
	logger, buf := testutils.NewTestLogger()
	worker.SetLogger(logger)

	tasks := []types.Task{
		types.NewTask("in", "out", "x.jpeg"),
		types.NewTask("in", "out", "y.jpeg"),
	}
	worker.RunSlice(context.Background(), tasks)

	waitStopped(t, worker)
	assert.Equal(t, []string{"x.jpeg", "y.jpeg"}, processor.Filenames())
	assert.Equal(t, int64(2), worker.Stats().TotalProcessed)
	assert.Contains(t, buf.String(), "worker 2 processing x.jpeg")
}

func TestWorker_RunSliceStopsBetweenTasksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := &testutils.RecordingProcessor{
		OnProcess: func(types.Task) error {
			cancel()
			return nil
		},
	}
	worker := NewWorker(0, nil, processor)
	logger, buf := testutils.NewTestLogger()
	worker.SetLogger(logger)

	worker.RunSlice(ctx, []types.Task{
		types.NewTask("in", "out", "a.jpeg"),
		types.NewTask("in", "out", "b.jpeg"),
		types.NewTask("in", "out", "c.jpeg"),
	})

	waitStopped(t, worker)
	assert.Equal(t, []string{"a.jpeg"}, processor.Filenames())
	assert.Contains(t, buf.String(), "remaining=2")
}
