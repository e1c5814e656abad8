package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/photobatch/internal/testutils"
	"github.com/jzx17/photobatch/pkg/catalog"
	"github.com/jzx17/photobatch/pkg/types"
	"github.com/jzx17/photobatch/pkg/worker"
)

type fakePool struct {
	mu        sync.Mutex
	batches   [][]types.Task
	shutdowns int
	stats     worker.StatsSnapshot
	submitErr error

	// shutdownCtxErr is ctx.Err() as seen by the first Shutdown
	shutdownCtxErr error
}

func (p *fakePool) SubmitBatch(_ context.Context, tasks []types.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return p.submitErr
	}
	p.batches = append(p.batches, tasks)
	return nil
}

func (p *fakePool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns++
	if p.shutdowns == 1 {
		p.shutdownCtxErr = ctx.Err()
	}
	if p.shutdowns > 1 {
		return types.ErrPoolNotRunning
	}
	return nil
}

func (p *fakePool) Stats() worker.StatsSnapshot { return p.stats }

func (p *fakePool) Size() int { return 2 }

func newTestSession(t *testing.T, pool Pool, input string, key catalog.SortKey) (*Session, *bytes.Buffer, string) {
	t.Helper()
	cat, err := catalog.New(catalog.DefaultConfig())
	require.NoError(t, err)

	resultDir := filepath.Join(t.TempDir(), "Result-image-dir")
	logger, _ := testutils.NewTestLogger()
	out := &bytes.Buffer{}
	s, err := New(&Config{
		Catalog:    cat,
		SortKey:    key,
		ResultDir:  resultDir,
		Pool:       pool,
		PromptMode: PromptNever,
		Logger:     logger,
	}, strings.NewReader(input), out)
	require.NoError(t, err)
	return s, out, resultDir
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		invalid bool
	}{
		{line: "", want: Command{Kind: CommandNone}},
		{line: "   \t", want: Command{Kind: CommandNone}},
		{line: "DIR ./photos", want: Command{Kind: CommandDir, Path: "./photos"}},
		{line: "  DIR   /tmp/x  ", want: Command{Kind: CommandDir, Path: "/tmp/x"}},
		{line: "STAT", want: Command{Kind: CommandStat}},
		{line: "QUIT", want: Command{Kind: CommandQuit}},
		{line: "DIR", invalid: true},
		{line: "DIR a b", invalid: true},
		{line: "STAT now", invalid: true},
		{line: "quit", invalid: true},
		{line: "HELP", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			if tt.invalid {
				assert.ErrorIs(t, err, types.ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}

	assert.Equal(t, "DIR", CommandDir.String())
	assert.Equal(t, "QUIT", CommandQuit.String())
}

func TestNew_Validation(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New(&Config{Pool: &fakePool{}, ResultDir: "out"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New(&Config{Catalog: cat, ResultDir: "out"}, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New(&Config{Catalog: cat, Pool: &fakePool{}}, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSession_StatBeforeDir(t *testing.T) {
	pool := &fakePool{}
	s, out, _ := newTestSession(t, pool, "STAT\nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "0 images - 0.00s average time\n", out.String())
	assert.Equal(t, 1, pool.shutdowns)
}

func TestSession_Stat(t *testing.T) {
	pool := &fakePool{stats: worker.StatsSnapshot{Count: 2, Total: 3 * time.Second}}
	s, out, _ := newTestSession(t, pool, "STAT\nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "total images processed: 2\naverage processing time: 1.50s\n", out.String())
}

func TestSession_DirSubmitsSortedBatch(t *testing.T) {
	src := t.TempDir()
	testutils.WriteFiles(t, src, map[string]int{
		"c.jpeg":   10,
		"a.jpeg":   30,
		"b.jpeg":   20,
		"skip.png": 5,
	})

	pool := &fakePool{}
	s, out, resultDir := newTestSession(t, pool, "DIR "+src+"\nQUIT\n", catalog.BySize)

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, pool.batches, 1)
	batch := pool.batches[0]
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"c.jpeg", "b.jpeg", "a.jpeg"}, []string{batch[0].Filename, batch[1].Filename, batch[2].Filename})
	for _, task := range batch {
		assert.Equal(t, src, task.SourceDir)
		assert.Equal(t, resultDir, task.DestDir)
		assert.False(t, task.Terminate)
	}

	assert.DirExists(t, resultDir)
	assert.Contains(t, out.String(), "3 images in "+src+" will be processed by 2 workers")
	assert.Equal(t, 1, s.Batches())
	assert.Equal(t, 3, s.Submitted())
}

func TestSession_DirWithoutImages(t *testing.T) {
	src := t.TempDir()
	testutils.WriteFiles(t, src, map[string]int{"notes.txt": 3})

	pool := &fakePool{}
	s, out, resultDir := newTestSession(t, pool, "DIR "+src+"\nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, pool.batches)
	assert.NoDirExists(t, resultDir)
	assert.Equal(t, "no images found in "+src+"\n", out.String())
}

func TestSession_DirUnreadableContinues(t *testing.T) {
	pool := &fakePool{}
	missing := filepath.Join(t.TempDir(), "missing")
	s, out, _ := newTestSession(t, pool, "DIR "+missing+"\nSTAT\nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "cannot read directory "+missing)
	assert.Contains(t, out.String(), "0 images - 0.00s average time")
	assert.Equal(t, 1, pool.shutdowns)
}

func TestSession_SubmitFailureContinues(t *testing.T) {
	src := t.TempDir()
	testutils.WriteFiles(t, src, map[string]int{"a.jpeg": 1})

	pool := &fakePool{submitErr: errors.New("queue gone")}
	s, out, _ := newTestSession(t, pool, "DIR "+src+"\nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "cannot submit")
	assert.Equal(t, 0, s.Batches())
}

func TestSession_InvalidAndBlankLines(t *testing.T) {
	pool := &fakePool{}
	s, out, _ := newTestSession(t, pool, "\nLIST\nDIR\n   \nQUIT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "invalid command\ninvalid command\n", out.String())
}

func TestSession_EOFShutsDown(t *testing.T) {
	pool := &fakePool{}
	s, _, _ := newTestSession(t, pool, "STAT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, pool.shutdowns)
}

func TestSession_StopsReadingAfterQuit(t *testing.T) {
	pool := &fakePool{}
	s, out, _ := newTestSession(t, pool, "QUIT\nSTAT\n", catalog.ByName)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, out.String())
	assert.Equal(t, 1, pool.shutdowns)
}

func TestSession_ShutdownError(t *testing.T) {
	pool := &fakePool{shutdowns: 1}
	s, _, _ := newTestSession(t, pool, "QUIT\n", catalog.ByName)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrPoolNotRunning)
}

func TestSession_Prompt(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultConfig())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	s, err := New(&Config{
		Catalog:    cat,
		ResultDir:  t.TempDir(),
		Pool:       &fakePool{},
		PromptMode: PromptAlways,
	}, strings.NewReader("QUIT\n"), out)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, DefaultPrompt, out.String())

	// a strings.Reader is never a terminal
	assert.False(t, showPrompt(PromptAuto, strings.NewReader("")))
	assert.False(t, showPrompt(PromptNever, strings.NewReader("")))
}

func TestSession_WithQueueWorkerPool(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	testutils.WriteFiles(t, first, map[string]int{"a.jpeg": 1, "b.jpeg": 2, "c.jpeg": 3})
	testutils.WriteFiles(t, second, map[string]int{"d.jpeg": 1, "e.jpeg": 2})

	processor := &testutils.RecordingProcessor{}
	logger, _ := testutils.NewTestLogger()
	pool, err := worker.NewQueueWorkerPool(&worker.QueueWorkerPoolConfig{
		PoolSize:  2,
		QueueSize: 2,
		Processor: processor,
		Logger:    logger,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	input := "DIR " + first + "\nDIR " + second + "\nQUIT\n"
	s, _, _ := newTestSession(t, pool, input, catalog.ByName)
	require.NoError(t, s.Run(context.Background()))

	// QUIT joined every worker, so the totals are final
	assert.Equal(t, int64(5), pool.Stats().Count)
	assert.Equal(t, []string{"a.jpeg", "b.jpeg", "c.jpeg", "d.jpeg", "e.jpeg"}, processor.Filenames())

	perWorker := pool.GetWorkerStats()
	assert.Equal(t, int64(3), perWorker[0].TotalProcessed)
	assert.Equal(t, int64(2), perWorker[1].TotalProcessed)
	for _, ws := range perWorker {
		assert.Equal(t, int64(1), ws.Terminations)
	}
}

func TestSession_CancelWhileWaitingForInput(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultConfig())
	require.NoError(t, err)

	pool := &fakePool{}
	r, w := io.Pipe()
	defer w.Close()
	s, err := New(&Config{
		Catalog:    cat,
		ResultDir:  t.TempDir(),
		Pool:       pool,
		PromptMode: PromptNever,
	}, r, &bytes.Buffer{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// returns once the session has picked the line up
	_, err = io.WriteString(w, "STAT\n")
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still waiting for input after cancel")
	}

	assert.Equal(t, 1, pool.shutdowns)
	assert.NoError(t, pool.shutdownCtxErr, "shutdown must not inherit the cancelled context")
}

func TestSession_CancelDrainsQueueWorkerPool(t *testing.T) {
	src := t.TempDir()
	testutils.WriteFiles(t, src, map[string]int{"a.jpeg": 1, "b.jpeg": 2, "c.jpeg": 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := &testutils.RecordingProcessor{}
	logger, _ := testutils.NewTestLogger()
	pool, err := worker.NewQueueWorkerPool(&worker.QueueWorkerPoolConfig{
		PoolSize:  2,
		QueueSize: 4,
		Processor: processor,
		Logger:    logger,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(ctx))

	cat, err := catalog.New(catalog.DefaultConfig())
	require.NoError(t, err)
	r, w := io.Pipe()
	defer w.Close()
	s, err := New(&Config{
		Catalog:    cat,
		ResultDir:  t.TempDir(),
		Pool:       pool,
		PromptMode: PromptNever,
		Logger:     logger,
	}, r, &bytes.Buffer{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	_, err = io.WriteString(w, "DIR "+src+"\n")
	require.NoError(t, err)
	// the second line is only read after the DIR line was handed over
	_, err = io.WriteString(w, "STAT\n")
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still waiting for input after cancel")
	}

	assert.True(t, pool.IsClosed())
	assert.Equal(t, int64(len(processor.Tasks())), pool.Stats().Count)
	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, int64(1), ws.Terminations, "worker %d", ws.ID)
		assert.Equal(t, worker.WorkerStateStopped, ws.State)
	}
}
