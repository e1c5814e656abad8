// Package app wires configuration, catalog, transforms and worker pools
// into the two runnable programs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/internal/config"
	perrors "github.com/jzx17/photobatch/internal/errors"
	"github.com/jzx17/photobatch/internal/logging"
	"github.com/jzx17/photobatch/internal/sysinfo"
	"github.com/jzx17/photobatch/pkg/catalog"
	"github.com/jzx17/photobatch/pkg/report"
	"github.com/jzx17/photobatch/pkg/retry"
	"github.com/jzx17/photobatch/pkg/session"
	"github.com/jzx17/photobatch/pkg/status"
	"github.com/jzx17/photobatch/pkg/transform"
	"github.com/jzx17/photobatch/pkg/types"
	"github.com/jzx17/photobatch/pkg/worker"
)

const statusShutdownTimeout = 5 * time.Second

// Options carries everything a run needs besides its configuration
type Options struct {
	// In is the command stream of an interactive run (defaults to os.Stdin)
	In io.Reader

	// Out receives user-facing output (defaults to os.Stdout)
	Out io.Writer

	// Logger is the root entry (defaults to the standard logger)
	Logger *log.Entry

	// Clock for timing (defaults to real clock)
	Clock types.Clock

	// Library does the image work (defaults to an ImagingLibrary)
	Library transform.Library

	// Start is the program start mark; zero means "now"
	Start time.Time
}

func (o *Options) defaults(cfg *config.Config) {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = log.NewEntry(log.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = types.NewRealClock()
	}
	if o.Library == nil {
		o.Library = transform.NewImagingLibrary(cfg.Quality)
	}
	if o.Start.IsZero() {
		o.Start = o.Clock.Now()
	}
}

// StaticResult summarizes a static run
type StaticResult struct {
	Images     int
	Timing     report.Timing
	TimingFile string
}

func newCatalog(cfg *config.Config, logger *log.Entry) (*catalog.Catalog, error) {
	return catalog.New(&catalog.Config{
		Extension: cfg.Extension,
		MaxImages: cfg.MaxImages,
		Logger:    logging.Component(logger, "catalog"),
	})
}

func newProcessor(cfg *config.Config, opts *Options, skipExisting bool) (*transform.Processor, error) {
	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	logger := logging.Component(opts.Logger, "transform")
	executor := retry.NewExecutor(
		retry.NewDefaultPolicy(cfg.WriteAttempts),
		retry.WithClock(opts.Clock),
		retry.WithLogger(logging.Component(opts.Logger, "retry")),
	)
	return transform.NewProcessor(&transform.Config{
		Library:      opts.Library,
		SkipExisting: skipExisting,
		ErrorHandler: perrors.NewHandler(strategy, logger),
		Retry:        executor,
		Logger:       logger,
	})
}

// RunStatic enumerates cfg.InputDir once, splits the sorted list across
// cfg.Threads workers and writes the timing report.
func RunStatic(ctx context.Context, cfg *config.Config, opts Options) (*StaticResult, error) {
	opts.defaults(cfg)
	logger := opts.Logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.InputDir == "" {
		return nil, fmt.Errorf("input directory must not be empty")
	}
	key, err := cfg.SortKey()
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(opts.Out, "directory: %s\nworkers: %d\nsort: %s\n\n", cfg.InputDir, cfg.Threads, key.Flag())
	sysinfo.Log(ctx, logging.Component(logger, "host"), cfg.Threads)

	if err := os.MkdirAll(cfg.ResultDir, 0o755); err != nil {
		return nil, fmt.Errorf("create result directory %s: %w", cfg.ResultDir, err)
	}

	cat, err := newCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	records, err := cat.Enumerate(cfg.InputDir)
	if err != nil {
		return nil, err
	}

	result := &StaticResult{Images: len(records)}
	fmt.Fprintf(opts.Out, "found %d images\n", len(records))
	if len(records) == 0 {
		fmt.Fprintln(opts.Out, "no images to process")
		return result, nil
	}

	catalog.Sort(records, key)
	tasks := catalog.Tasks(records, cfg.InputDir, cfg.ResultDir)

	processor, err := newProcessor(cfg, &opts, true)
	if err != nil {
		return nil, err
	}
	pool, err := worker.NewStaticWorkerPool(&worker.StaticWorkerPoolConfig{
		PoolSize:  cfg.Threads,
		Processor: processor,
		Clock:     opts.Clock,
		Logger:    logging.Component(logger, "worker"),
	})
	if err != nil {
		return nil, err
	}

	parallelStart := opts.Clock.Now()
	workerRecords, err := pool.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("static run interrupted: %w", err)
	}
	end := opts.Clock.Now()

	result.Timing = report.NewTiming(opts.Start, parallelStart, end, workerRecords)
	fmt.Fprintln(opts.Out)
	report.RenderTiming(opts.Out, result.Timing, cfg.ReportFormat)

	path, err := result.Timing.WriteFile(cfg.ReportDir, cfg.Threads, key.Flag())
	if err != nil {
		logger.WithError(err).Error("timing file not written")
	} else {
		result.TimingFile = path
		logger.WithField("path", path).Info("timing file written")
	}

	return result, nil
}

// RunSession starts cfg.Threads long-lived workers and serves DIR / STAT /
// QUIT commands from opts.In until QUIT or end of input.
func RunSession(ctx context.Context, cfg *config.Config, opts Options) (worker.StatsSnapshot, error) {
	opts.defaults(cfg)
	logger := opts.Logger

	if err := cfg.Validate(); err != nil {
		return worker.StatsSnapshot{}, err
	}
	key, err := cfg.SortKey()
	if err != nil {
		return worker.StatsSnapshot{}, err
	}
	promptMode, err := cfg.PromptMode()
	if err != nil {
		return worker.StatsSnapshot{}, err
	}

	sysinfo.Log(ctx, logging.Component(logger, "host"), cfg.Threads)

	cat, err := newCatalog(cfg, logger)
	if err != nil {
		return worker.StatsSnapshot{}, err
	}
	processor, err := newProcessor(cfg, &opts, false)
	if err != nil {
		return worker.StatsSnapshot{}, err
	}

	pool, err := worker.NewQueueWorkerPool(&worker.QueueWorkerPoolConfig{
		PoolSize:  cfg.Threads,
		QueueSize: cfg.QueueSize,
		Processor: processor,
		Clock:     opts.Clock,
		Logger:    logging.Component(logger, "worker"),
	})
	if err != nil {
		return worker.StatsSnapshot{}, err
	}
	if err := pool.Start(ctx); err != nil {
		return worker.StatsSnapshot{}, err
	}
	fmt.Fprintf(opts.Out, "%d workers started\n", pool.Size())

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, pool, opts.Clock, logging.Component(logger, "status"))
		if _, err := srv.Start(); err != nil {
			logger.WithError(err).Warn("status server not started")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					logger.WithError(err).Warn("status server shutdown")
				}
			}()
		}
	}

	sess, err := session.New(&session.Config{
		Catalog:    cat,
		SortKey:    key,
		ResultDir:  cfg.ResultDir,
		Pool:       pool,
		PromptMode: promptMode,
		Logger:     logging.Component(logger, "session"),
	}, opts.In, opts.Out)
	if err != nil {
		_ = pool.Shutdown(context.Background())
		return worker.StatsSnapshot{}, err
	}

	runErr := sess.Run(ctx)
	if runErr != nil && pool.IsRunning() {
		if err := pool.Shutdown(context.Background()); err != nil && !errors.Is(err, types.ErrPoolNotRunning) {
			logger.WithError(err).Warn("shutdown after session error failed")
		}
	}

	stats := pool.Stats()
	fmt.Fprintln(opts.Out, report.FormatStats(stats))
	report.RenderWorkers(opts.Out, pool.GetWorkerStats(), cfg.ReportFormat)

	return stats, runErr
}
