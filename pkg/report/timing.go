// Package report formats run timings and statistics for people and files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jzx17/photobatch/pkg/worker"
)

// Timing is the wall-clock breakdown of one static run
type Timing struct {
	// Total runs from program start to the end of the join
	Total time.Duration

	// Parallel runs from worker launch to the end of the join
	Parallel time.Duration

	// NonParallel is Total - Parallel
	NonParallel time.Duration

	// Workers holds one record per worker, in worker order
	Workers []worker.WorkerRecord
}

// NewTiming computes a Timing from the three marks taken by the run
func NewTiming(programStart, parallelStart, end time.Time, workers []worker.WorkerRecord) Timing {
	total := end.Sub(programStart)
	parallel := end.Sub(parallelStart)
	return Timing{
		Total:       total,
		Parallel:    parallel,
		NonParallel: total - parallel,
		Workers:     workers,
	}
}

// FormatDuration renders d as "<seconds>.<nanoseconds>" with nine
// fractional digits, e.g. 1.500000000
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	sec := d / time.Second
	nsec := d % time.Second
	return fmt.Sprintf("%s%d.%09d", sign, int64(sec), int64(nsec))
}

// FileName returns "timing_<threads><flag>.txt", e.g. timing_4-size.txt
func FileName(threads int, flag string) string {
	return fmt.Sprintf("timing_%d%s.txt", threads, flag)
}

// Lines returns the timing file contents: total, one line per worker,
// then non-parallel time.
func (t Timing) Lines() []string {
	lines := make([]string, 0, len(t.Workers)+2)
	lines = append(lines, FormatDuration(t.Total))
	for _, w := range t.Workers {
		lines = append(lines, FormatDuration(w.Elapsed()))
	}
	lines = append(lines, FormatDuration(t.NonParallel))
	return lines
}

// WriteFile writes the timing file into dir and returns its path
func (t Timing) WriteFile(dir string, threads int, flag string) (string, error) {
	path := filepath.Join(dir, FileName(threads, flag))
	content := strings.Join(t.Lines(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write timing file %s: %w", path, err)
	}
	return path, nil
}
