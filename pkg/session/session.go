// Package session implements the interactive DIR / STAT / QUIT loop that
// feeds a long-lived worker pool.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/jzx17/photobatch/pkg/catalog"
	"github.com/jzx17/photobatch/pkg/report"
	"github.com/jzx17/photobatch/pkg/types"
	"github.com/jzx17/photobatch/pkg/worker"
)

const (
	// DefaultPrompt is printed before each command when prompting is on
	DefaultPrompt = "command: "

	// DefaultShutdownTimeout bounds the drain after the run is interrupted
	DefaultShutdownTimeout = 30 * time.Second
)

// PromptMode controls when the prompt is printed
type PromptMode int

const (
	// PromptAuto prints the prompt only when input is a terminal
	PromptAuto PromptMode = iota
	// PromptAlways always prints the prompt
	PromptAlways
	// PromptNever never prints the prompt
	PromptNever
)

// Pool is the part of the queue worker pool a session drives
type Pool interface {
	SubmitBatch(ctx context.Context, tasks []types.Task) error
	Shutdown(ctx context.Context) error
	Stats() worker.StatsSnapshot
	Size() int
}

// Config defines configuration for a Session
type Config struct {
	// Catalog enumerates DIR arguments
	Catalog *catalog.Catalog

	// SortKey orders every submitted batch
	SortKey catalog.SortKey

	// ResultDir receives derivatives; created on the first non-empty DIR
	ResultDir string

	// Pool runs the tasks
	Pool Pool

	// Prompt text (defaults to DefaultPrompt)
	Prompt string

	// PromptMode (defaults to PromptAuto)
	PromptMode PromptMode

	// ShutdownTimeout bounds the shutdown that follows a cancelled run
	// (defaults to DefaultShutdownTimeout)
	ShutdownTimeout time.Duration

	// Logger (optional, defaults to the standard logger)
	Logger *log.Entry
}

// Session reads commands from in and writes replies to out
type Session struct {
	config *Config
	in     io.Reader
	out    io.Writer
	logger *log.Entry
	prompt bool

	batches   int
	submitted int
}

// New creates a Session
func New(config *Config, in io.Reader, out io.Writer) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("catalog must not be nil")
	}
	if config.Pool == nil {
		return nil, fmt.Errorf("pool must not be nil")
	}
	if config.ResultDir == "" {
		return nil, fmt.Errorf("result directory must not be empty")
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Session{
		config: config,
		in:     in,
		out:    out,
		logger: logger,
		prompt: showPrompt(config.PromptMode, in),
	}, nil
}

func showPrompt(mode PromptMode, in io.Reader) bool {
	switch mode {
	case PromptAlways:
		return true
	case PromptNever:
		return false
	}
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run processes commands until QUIT, end of input or cancellation of ctx.
// In every case the pool is shut down and joined before Run returns.
func (s *Session) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	lines, readErr := s.readLines(stop)

	for {
		if s.prompt {
			fmt.Fprint(s.out, s.config.Prompt)
		}

		select {
		case <-ctx.Done():
			return s.interrupted(ctx)
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					s.logger.WithError(err).Warn("reading commands failed, shutting down")
				} else {
					s.logger.Debug("end of input, shutting down")
				}
				return s.quit(ctx)
			}
			if ctx.Err() != nil {
				return s.interrupted(ctx)
			}

			quit, err := s.Execute(ctx, line)
			if err != nil {
				if ctx.Err() != nil {
					return s.interrupted(ctx)
				}
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines scans s.in on its own goroutine so Run can watch ctx while
// waiting for input. A read blocked in the underlying reader outlives Run.
func (s *Session) readLines(stop <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}

// interrupted shuts the pool down after ctx was cancelled. The shutdown
// gets its own deadline since ctx is already done.
func (s *Session) interrupted(ctx context.Context) error {
	s.logger.WithError(ctx.Err()).Info("interrupted, shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	return s.quit(sctx)
}

// Execute runs one command line. quit is true once QUIT has shut the pool
// down. The returned error is only set for failures that end the session.
func (s *Session) Execute(ctx context.Context, line string) (quit bool, err error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		s.logger.WithError(err).Debug("rejected command")
		fmt.Fprintln(s.out, "invalid command")
		return false, nil
	}

	switch cmd.Kind {
	case CommandDir:
		return false, s.dir(ctx, cmd.Path)
	case CommandStat:
		fmt.Fprintln(s.out, report.FormatStats(s.config.Pool.Stats()))
		return false, nil
	case CommandQuit:
		return true, s.quit(ctx)
	default:
		return false, nil
	}
}

// Batches returns how many DIR commands submitted work
func (s *Session) Batches() int {
	return s.batches
}

// Submitted returns how many tasks this session submitted
func (s *Session) Submitted() int {
	return s.submitted
}

func (s *Session) dir(ctx context.Context, path string) error {
	logger := s.logger.WithField("dir", path)

	records, err := s.config.Catalog.Enumerate(path)
	if err != nil {
		logger.WithError(err).Warn("cannot enumerate directory")
		fmt.Fprintf(s.out, "cannot read directory %s\n", path)
		return nil
	}
	if len(records) == 0 {
		fmt.Fprintf(s.out, "no images found in %s\n", path)
		return nil
	}

	catalog.Sort(records, s.config.SortKey)

	if err := os.MkdirAll(s.config.ResultDir, 0o755); err != nil {
		logger.WithError(err).Error("cannot create result directory")
		fmt.Fprintf(s.out, "cannot create %s\n", s.config.ResultDir)
		return nil
	}

	fmt.Fprintf(s.out, "%d images in %s will be processed by %d workers\n", len(records), path, s.config.Pool.Size())

	tasks := catalog.Tasks(records, path, s.config.ResultDir)
	if err := s.config.Pool.SubmitBatch(ctx, tasks); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.WithError(err).Error("submit failed")
		fmt.Fprintf(s.out, "cannot submit %s: %v\n", path, err)
		return nil
	}

	s.batches++
	s.submitted += len(tasks)
	logger.WithFields(log.Fields{
		"images": len(tasks),
		"sort":   s.config.SortKey.String(),
	}).Info("batch submitted")
	return nil
}

func (s *Session) quit(ctx context.Context) error {
	if err := s.config.Pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown workers: %w", err)
	}
	return nil
}
