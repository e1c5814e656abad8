// Package cli builds the cobra commands for both programs.
package cli

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jzx17/photobatch/internal/app"
	"github.com/jzx17/photobatch/internal/config"
	"github.com/jzx17/photobatch/internal/logging"
	"github.com/jzx17/photobatch/pkg/catalog"
)

// Flags holds the optional flags shared by both commands
type Flags struct {
	ConfigFile    string
	ResultDir     string
	ReportDir     string
	ReportFormat  string
	Extension     string
	ErrorStrategy string
	Prompt        string
	StatusAddr    string
	LogLevel      string
	LogFormat     string
	QueueSize     int
	MaxImages     int
	Quality       int
	WriteAttempts int
}

// AddFlags registers the shared flags on cmd
func AddFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	d := config.Default()
	fs := cmd.Flags()
	fs.SortFlags = false
	// the sort literal (-name, -size) looks like a flag; stop at the first positional
	fs.SetInterspersed(false)

	fs.StringVar(&f.ConfigFile, "config", "", "YAML or JSON config file")
	fs.StringVar(&f.ResultDir, "result-dir", d.ResultDir, "directory derivative images are written to")
	fs.StringVar(&f.ReportDir, "report-dir", d.ReportDir, "directory the timing file is written to")
	fs.StringVar(&f.ReportFormat, "report-format", d.ReportFormat, "report format: table, csv, md or html")
	fs.IntVar(&f.QueueSize, "queue-size", d.QueueSize, "per-worker queue capacity")
	fs.IntVar(&f.MaxImages, "max-images", d.MaxImages, "maximum images taken from one directory, 0 for no limit")
	fs.StringVar(&f.Extension, "extension", d.Extension, "image filename suffix")
	fs.IntVar(&f.Quality, "quality", d.Quality, "JPEG quality of derivatives, 1-100")
	fs.IntVar(&f.WriteAttempts, "write-attempts", d.WriteAttempts, "tries per derivative write before it counts as failed")
	fs.StringVar(&f.ErrorStrategy, "error-strategy", d.ErrorStrategy, "per-transform failures: continue or fail-fast")
	fs.StringVar(&f.Prompt, "prompt", d.Prompt, "print the command prompt: auto, always or never")
	fs.StringVar(&f.StatusAddr, "status-addr", d.StatusAddr, "serve JSON pool status on this address during an interactive run")
	fs.StringVar(&f.LogLevel, "log-level", d.Log.Level, "log level")
	fs.StringVar(&f.LogFormat, "log-format", d.Log.Format, "log format: text or json")
	return f
}

// Load builds the configuration: defaults, then the config file, then
// PHOTOS_* environment variables, then flags given on the command line.
func (f *Flags) Load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		if err := cfg.LoadFile(f.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(config.NewViper()); err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	strs := map[string]struct {
		dst *string
		src string
	}{
		"result-dir":     {&cfg.ResultDir, f.ResultDir},
		"report-dir":     {&cfg.ReportDir, f.ReportDir},
		"report-format":  {&cfg.ReportFormat, f.ReportFormat},
		"extension":      {&cfg.Extension, f.Extension},
		"error-strategy": {&cfg.ErrorStrategy, f.ErrorStrategy},
		"prompt":         {&cfg.Prompt, f.Prompt},
		"status-addr":    {&cfg.StatusAddr, f.StatusAddr},
		"log-level":      {&cfg.Log.Level, f.LogLevel},
		"log-format":     {&cfg.Log.Format, f.LogFormat},
	}
	for name, v := range strs {
		if fs.Changed(name) {
			*v.dst = v.src
		}
	}
	ints := map[string]struct {
		dst *int
		src int
	}{
		"queue-size":     {&cfg.QueueSize, f.QueueSize},
		"max-images":     {&cfg.MaxImages, f.MaxImages},
		"quality":        {&cfg.Quality, f.Quality},
		"write-attempts": {&cfg.WriteAttempts, f.WriteAttempts},
	}
	for name, v := range ints {
		if fs.Changed(name) {
			*v.dst = v.src
		}
	}
	return cfg, nil
}

func parsePositional(cfg *config.Config, threads, sort string) error {
	n, err := config.ParseThreads(threads)
	if err != nil {
		return err
	}
	if _, err := catalog.ParseSortKey(sort); err != nil {
		return err
	}
	cfg.Threads = n
	cfg.Sort = sort
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func setupLogging(cmd *cobra.Command, cfg *config.Config) (*log.Entry, error) {
	opts := cfg.LoggingOptions()
	opts.Output = cmd.ErrOrStderr()
	return logging.Setup(opts)
}

// NewStaticCommand returns the photos-static command. start is the program
// start mark used for the total time.
func NewStaticCommand(start time.Time) *cobra.Command {
	cmd, _ := newStaticCommand(start)
	return cmd
}

func newStaticCommand(start time.Time) (*cobra.Command, *Flags) {
	var flags *Flags
	cmd := &cobra.Command{
		Use:     "photos-static [flags] <inputDir> <threadCount> <-name|-size>",
		Short:   "Process every image of a directory once with a fixed number of workers",
		Example: "  photos-static ./images 4 -size",
		Args:    cobra.ExactArgs(3),

		// main reports the error once
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load(cmd)
			if err != nil {
				return err
			}
			if err := parsePositional(cfg, args[1], args[2]); err != nil {
				return err
			}
			cfg.InputDir = args[0]
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logger, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			logger.WithField("config", fmt.Sprintf("%+v", *cfg)).Debug("configuration loaded")

			_, err = app.RunStatic(commandContext(cmd), cfg, app.Options{
				Out:    cmd.OutOrStdout(),
				Logger: logger,
				Start:  start,
			})
			return err
		},
	}
	flags = AddFlags(cmd)
	return cmd, flags
}

// NewDynamicCommand returns the photos-dynamic command
func NewDynamicCommand() *cobra.Command {
	cmd, _ := newDynamicCommand()
	return cmd
}

func newDynamicCommand() (*cobra.Command, *Flags) {
	var flags *Flags
	cmd := &cobra.Command{
		Use:     "photos-dynamic [flags] <threadCount> <-name|-size>",
		Short:   "Serve DIR, STAT and QUIT commands with a pool of long-lived workers",
		Example: "  photos-dynamic 4 -size",
		Args:    cobra.ExactArgs(2),

		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load(cmd)
			if err != nil {
				return err
			}
			if err := parsePositional(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logger, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}

			_, err = app.RunSession(commandContext(cmd), cfg, app.Options{
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Logger: logger,
			})
			return err
		},
	}
	flags = AddFlags(cmd)
	return cmd, flags
}
