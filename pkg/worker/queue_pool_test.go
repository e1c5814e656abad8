package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/photobatch/internal/testutils"
	"github.com/jzx17/photobatch/pkg/types"
)

func newTestQueuePool(t *testing.T, workers int, processor types.ImageProcessor) *QueueWorkerPool {
	t.Helper()
	logger, _ := testutils.NewTestLogger()
	pool, err := NewQueueWorkerPool(&QueueWorkerPoolConfig{
		PoolSize:  workers,
		QueueSize: 4,
		Processor: processor,
		Logger:    logger,
	})
	require.NoError(t, err)
	return pool
}

func TestNewQueueWorkerPool_Validation(t *testing.T) {
	processor := &testutils.RecordingProcessor{}

	tests := []struct {
		name   string
		config *QueueWorkerPoolConfig
	}{
		{"zero workers", &QueueWorkerPoolConfig{PoolSize: 0, QueueSize: 1, Processor: processor}},
		{"zero queue", &QueueWorkerPoolConfig{PoolSize: 1, QueueSize: 0, Processor: processor}},
		{"no processor", &QueueWorkerPoolConfig{PoolSize: 1, QueueSize: 1}},
		{"nil config has no processor", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQueueWorkerPool(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestQueueWorkerPool_FiveFilesTwoWorkers(t *testing.T) {
	processor := &testutils.RecordingProcessor{}
	pool := newTestQueuePool(t, 2, processor)
	ctx := context.Background()

	require.NoError(t, pool.Start(ctx))
	assert.True(t, pool.IsRunning())

	require.NoError(t, pool.SubmitBatch(ctx, makeTasks("a.jpeg", "b.jpeg", "c.jpeg", "d.jpeg", "e.jpeg")))
	require.NoError(t, pool.Shutdown(ctx))
	assert.True(t, pool.IsClosed())

	assert.Equal(t, []string{"a.jpeg", "b.jpeg", "c.jpeg", "d.jpeg", "e.jpeg"}, processor.Filenames())
	assert.Equal(t, int64(5), pool.Stats().Count)
	assert.Equal(t, uint64(5), pool.Submitted())

	workers := pool.GetWorkerStats()
	require.Len(t, workers, 2)
	assert.Equal(t, int64(3), workers[0].TotalProcessed)
	assert.Equal(t, int64(2), workers[1].TotalProcessed)
	for _, ws := range workers {
		assert.Equal(t, int64(1), ws.Terminations)
		assert.Equal(t, WorkerStateStopped, ws.State)
	}

	seq := make([]uint64, 0, 5)
	for _, task := range processor.Tasks() {
		seq = append(seq, task.Seq)
	}
	assert.ElementsMatch(t, []uint64{0, 1, 2, 3, 4}, seq)
}

func TestQueueWorkerPool_MultipleBatches(t *testing.T) {
	processor := &testutils.RecordingProcessor{}
	pool := newTestQueuePool(t, 3, processor)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, pool.SubmitBatch(ctx, makeTasks("a.jpeg", "b.jpeg")))
	require.NoError(t, pool.SubmitBatch(ctx, makeTasks("c.jpeg", "d.jpeg", "e.jpeg", "f.jpeg")))
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, int64(6), pool.Stats().Count)
	workers := pool.GetWorkerStats()
	for _, ws := range workers {
		assert.Equal(t, int64(2), ws.TotalProcessed, "worker %d", ws.ID)
	}
}

func TestQueueWorkerPool_FailuresAreNotCounted(t *testing.T) {
	processor := &testutils.RecordingProcessor{
		OnProcess: func(task types.Task) error {
			if task.Filename == "bad.jpeg" {
				return errors.New("decode failed")
			}
			return nil
		},
	}
	pool := newTestQueuePool(t, 2, processor)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, pool.SubmitBatch(ctx, makeTasks("bad.jpeg", "good.jpeg", "fine.jpeg")))
	require.NoError(t, pool.Shutdown(ctx))

	assert.Len(t, processor.Tasks(), 3)
	assert.Equal(t, int64(3), pool.Stats().Count)

	var failed int64
	for _, ws := range pool.GetWorkerStats() {
		failed += ws.TotalFailed
	}
	assert.Equal(t, int64(1), failed)
}

func TestQueueWorkerPool_Lifecycle(t *testing.T) {
	pool := newTestQueuePool(t, 2, &testutils.RecordingProcessor{})
	ctx := context.Background()

	assert.ErrorIs(t, pool.SubmitBatch(ctx, makeTasks("a.jpeg")), types.ErrPoolNotRunning)
	assert.ErrorIs(t, pool.Shutdown(ctx), types.ErrPoolNotRunning)

	require.NoError(t, pool.Start(ctx))
	assert.Error(t, pool.Start(ctx))

	require.NoError(t, pool.Shutdown(ctx))
	assert.ErrorIs(t, pool.Shutdown(ctx), types.ErrPoolNotRunning)
	assert.ErrorIs(t, pool.SubmitBatch(ctx, makeTasks("a.jpeg")), types.ErrPoolNotRunning)
	assert.Error(t, pool.Start(ctx))

	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, int64(1), ws.Terminations)
	}
}

func TestQueueWorkerPool_ShutdownWithoutWork(t *testing.T) {
	pool := newTestQueuePool(t, 4, &testutils.RecordingProcessor{})
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- pool.Shutdown(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not join idle workers")
	}

	assert.Equal(t, int64(0), pool.Stats().Count)
	_, ok := pool.Stats().Average()
	assert.False(t, ok)
}

func TestQueueWorkerPool_OutlivesStartContext(t *testing.T) {
	processor := &testutils.RecordingProcessor{}
	pool := newTestQueuePool(t, 2, processor)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	cancel()

	bg := context.Background()
	require.NoError(t, pool.SubmitBatch(bg, makeTasks("a.jpeg", "b.jpeg", "c.jpeg")))
	require.NoError(t, pool.Shutdown(bg))

	assert.Equal(t, int64(3), pool.Stats().Count)
	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, int64(1), ws.Terminations, "worker %d", ws.ID)
	}
}

func TestQueueWorkerPool_ShutdownAfterDispatcherExit(t *testing.T) {
	pool := newTestQueuePool(t, 2, &testutils.RecordingProcessor{})
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	pool.cancel()
	select {
	case <-pool.dispatcher.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not exit")
	}

	require.NoError(t, pool.Shutdown(ctx))
	assert.True(t, pool.IsClosed())
	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, WorkerStateStopped, ws.State)
	}
}
