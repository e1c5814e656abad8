// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/photobatch/pkg/types"
)

// WriteFiles creates files in dir, each filled with size bytes
func WriteFiles(t testing.TB, dir string, files map[string]int) {
	t.Helper()
	for name, size := range files {
		err := os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte{0xff}, size), 0o644)
		require.NoError(t, err)
	}
}

// NewTestLogger returns a logger entry that writes into a buffer
func NewTestLogger() (*logrus.Entry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logrus.NewEntry(logger), buf
}

// RecordingProcessor is an ImageProcessor that remembers every task it
// receives, per worker, in arrival order.
type RecordingProcessor struct {
	mu    sync.Mutex
	tasks []types.Task
	// OnProcess runs inside ProcessImage before the task is recorded
	OnProcess func(task types.Task) error
}

// ProcessImage records the task
func (p *RecordingProcessor) ProcessImage(_ context.Context, task types.Task) error {
	var err error
	if p.OnProcess != nil {
		err = p.OnProcess(task)
	}
	p.mu.Lock()
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()
	return err
}

// Tasks returns a copy of the recorded tasks
func (p *RecordingProcessor) Tasks() []types.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Task, len(p.tasks))
	copy(out, p.tasks)
	return out
}

// Filenames returns the recorded filenames sorted
func (p *RecordingProcessor) Filenames() []string {
	tasks := p.Tasks()
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Filename)
	}
	sort.Strings(names)
	return names
}
