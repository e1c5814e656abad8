// Package types defines the task model and the interfaces shared by the
// catalog, the worker pools and the transform processor.
package types

import (
	"context"
	"path/filepath"
)

// Task is one filename's worth of work.
//
// A task is owned by the dispatcher until exactly one worker receives it and
// is never mutated after the handoff. A task with Terminate set carries no
// payload; it only tells the receiving worker to stop.
type Task struct {
	// SourceDir is the directory holding the original image
	SourceDir string

	// DestDir is the directory derivative images are written to
	DestDir string

	// Filename is the base name of the original image
	Filename string

	// Terminate marks a poison pill
	Terminate bool

	// Seq is the lifetime submission position assigned by the dispatcher.
	// It is zero for statically partitioned tasks and poison pills.
	Seq uint64
}

// NewTask creates a task for filename
func NewTask(sourceDir, destDir, filename string) Task {
	return Task{
		SourceDir: sourceDir,
		DestDir:   destDir,
		Filename:  filename,
	}
}

// TerminateTask returns the poison pill sent to every worker on shutdown
func TerminateTask() Task {
	return Task{Terminate: true}
}

// SourcePath returns the full path of the original image
func (t Task) SourcePath() string {
	return filepath.Join(t.SourceDir, t.Filename)
}

// ImageProcessor runs the transform sequence for a single task.
// Implementations log and skip per-transform failures; a returned error
// means the task as a whole could not be processed (for example the
// source failed to decode).
type ImageProcessor interface {
	ProcessImage(ctx context.Context, task Task) error
}

// ImageProcessorFunc adapts a function to ImageProcessor
type ImageProcessorFunc func(ctx context.Context, task Task) error

// ProcessImage calls f(ctx, task)
func (f ImageProcessorFunc) ProcessImage(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// ErrorHandler defines an error handling function (simple version for worker callbacks)
// For strategy based handling, use the ErrorHandler interface in the internal/errors package
type ErrorHandler func(error) error
