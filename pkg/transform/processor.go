package transform

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	perrors "github.com/jzx17/photobatch/internal/errors"
	"github.com/jzx17/photobatch/pkg/retry"
	"github.com/jzx17/photobatch/pkg/types"
)

// Config defines configuration for a Processor
type Config struct {
	// Library does the actual image work
	Library Library

	// SkipExisting leaves derivatives that already exist on disk alone
	SkipExisting bool

	// Kinds are the derivatives to produce (defaults to AllKinds)
	Kinds []Kind

	// ErrorHandler decides what a failed transform or encode does to the
	// rest of the task (defaults to continue-on-error)
	ErrorHandler perrors.ErrorHandler

	// Retry re-runs failed encode writes (optional, one attempt when nil)
	Retry *retry.Executor

	// Logger (optional, defaults to the standard logger)
	Logger *log.Entry
}

// Result counts what happened to each derivative of one source image
type Result struct {
	Written int
	Skipped int
	Failed  int
}

// Processor implements types.ImageProcessor: decode the source once, then
// produce, encode and release each derivative in turn.
type Processor struct {
	library      Library
	skipExisting bool
	kinds        []Kind
	errorHandler perrors.ErrorHandler
	retry        *retry.Executor
	logger       *log.Entry
}

var _ types.ImageProcessor = (*Processor)(nil)

// NewProcessor creates a Processor
func NewProcessor(config *Config) (*Processor, error) {
	if config == nil || config.Library == nil {
		return nil, fmt.Errorf("transform library must not be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	kinds := config.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	handler := config.ErrorHandler
	if handler == nil {
		handler = perrors.NewContinueOnErrorHandler(&perrors.ContinueOnErrorConfig{
			LogErrors: true,
			Logger:    logger,
		})
	}

	return &Processor{
		library:      config.Library,
		skipExisting: config.SkipExisting,
		kinds:        kinds,
		errorHandler: handler,
		retry:        config.Retry,
		logger:       logger,
	}, nil
}

// ProcessImage implements types.ImageProcessor
func (p *Processor) ProcessImage(ctx context.Context, task types.Task) error {
	_, err := p.Process(ctx, task)
	return err
}

// Process produces every derivative of task's source image. A decode
// failure is returned as a *types.TaskError and nothing is written.
func (p *Processor) Process(ctx context.Context, task types.Task) (Result, error) {
	var result Result
	src := task.SourcePath()
	logger := p.logger.WithField("file", task.Filename)

	pending := p.kinds
	if p.skipExisting {
		pending = pending[:0:0]
		for _, kind := range p.kinds {
			if exists(OutputPath(kind, task.DestDir, task.Filename)) {
				result.Skipped++
				continue
			}
			pending = append(pending, kind)
		}
		if len(pending) == 0 {
			logger.Debug("all derivatives exist, source not decoded")
			return result, nil
		}
	}

	original, err := p.library.Decode(src)
	if err != nil {
		return result, types.NewTaskError("decode", src, err)
	}
	defer p.library.Release(original)

	for _, kind := range pending {
		dst := OutputPath(kind, task.DestDir, task.Filename)

		if err := p.produce(ctx, kind, original, dst); err != nil {
			result.Failed++
			errCtx := perrors.NewErrorContext(err, kind.String(), dst)
			errCtx.Metadata["source"] = src
			if handled := p.errorHandler.HandleError(ctx, errCtx); handled != nil {
				return result, types.NewTaskError(kind.String(), dst, handled)
			}
			continue
		}
		result.Written++
	}

	logger.WithFields(log.Fields{
		"written": result.Written,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Debug("derivatives done")

	return result, nil
}

// produce applies one transform and encodes the result to dst
func (p *Processor) produce(ctx context.Context, kind Kind, original Handle, dst string) error {
	img, err := p.library.Apply(kind, original)
	if err != nil {
		return err
	}
	defer p.library.Release(img)

	encode := func(context.Context) error {
		return p.library.Encode(img, dst)
	}
	if p.retry != nil {
		err = p.retry.Do(ctx, "encode "+kind.String(), encode)
	} else {
		err = encode(ctx)
	}
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
