// Package config loads run settings from defaults, a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	perrors "github.com/jzx17/photobatch/internal/errors"
	"github.com/jzx17/photobatch/internal/logging"
	"github.com/jzx17/photobatch/pkg/catalog"
	"github.com/jzx17/photobatch/pkg/report"
	"github.com/jzx17/photobatch/pkg/session"
	"github.com/jzx17/photobatch/pkg/types"
)

// EnvPrefix is prepended to every environment override, e.g. PHOTOS_QUALITY
const EnvPrefix = "PHOTOS"

// Default values
const (
	DefaultResultDir     = "Result-image-dir"
	DefaultReportDir     = "."
	DefaultQueueSize     = 64
	DefaultQuality       = 75
	DefaultWriteAttempts = 3
	DefaultErrorStrategy = "continue"
	DefaultPrompt        = "auto"
)

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

// Config holds every setting of a run. Positional CLI arguments fill
// InputDir, Threads and Sort.
type Config struct {
	InputDir      string    `yaml:"input_dir" json:"input_dir"`
	Threads       int       `yaml:"threads" json:"threads"`
	Sort          string    `yaml:"sort" json:"sort"` // -name or -size
	ResultDir     string    `yaml:"result_dir" json:"result_dir"`
	ReportDir     string    `yaml:"report_dir" json:"report_dir"`
	ReportFormat  string    `yaml:"report_format" json:"report_format"` // table, csv, md or html
	QueueSize     int       `yaml:"queue_size" json:"queue_size"`
	MaxImages     int       `yaml:"max_images" json:"max_images"`
	Extension     string    `yaml:"extension" json:"extension"`
	Quality       int       `yaml:"quality" json:"quality"`
	WriteAttempts int       `yaml:"write_attempts" json:"write_attempts"` // encode tries per derivative
	ErrorStrategy string    `yaml:"error_strategy" json:"error_strategy"` // continue or fail-fast
	Prompt        string    `yaml:"prompt" json:"prompt"`                 // auto, always or never
	StatusAddr    string    `yaml:"status_addr" json:"status_addr"`       // empty disables the status server
	Log           LogConfig `yaml:"log" json:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Sort:          catalog.FlagName,
		ResultDir:     DefaultResultDir,
		ReportDir:     DefaultReportDir,
		ReportFormat:  report.FormatTable,
		QueueSize:     DefaultQueueSize,
		MaxImages:     catalog.DefaultMaxImages,
		Extension:     catalog.DefaultExtension,
		Quality:       DefaultQuality,
		WriteAttempts: DefaultWriteAttempts,
		ErrorStrategy: DefaultErrorStrategy,
		Prompt:        DefaultPrompt,
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

var ReadFile = os.ReadFile

// LoadFile overlays the YAML (or JSON) file at path onto c. Keys missing
// from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("config file %s must be yaml or json", path)
	}

	content, err := ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// NewViper returns a viper instance reading PHOTOS_* variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv overrides c with every non-empty environment variable v sees
func (c *Config) ApplyEnv(v *viper.Viper) error {
	strs := map[string]*string{
		"result_dir":     &c.ResultDir,
		"report_dir":     &c.ReportDir,
		"report_format":  &c.ReportFormat,
		"extension":      &c.Extension,
		"error_strategy": &c.ErrorStrategy,
		"prompt":         &c.Prompt,
		"status_addr":    &c.StatusAddr,
		"log_level":      &c.Log.Level,
		"log_format":     &c.Log.Format,
	}
	for key, dst := range strs {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}

	ints := map[string]*int{
		"queue_size":     &c.QueueSize,
		"max_images":     &c.MaxImages,
		"quality":        &c.Quality,
		"write_attempts": &c.WriteAttempts,
	}
	for key, dst := range ints {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s_%s: %q is not an integer", EnvPrefix, strings.ToUpper(key), s)
		}
		*dst = n
	}
	return nil
}

// ParseThreads converts the positional thread count
func ParseThreads(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidThreadCount, arg)
	}
	return n, nil
}

// Validate checks every field a run depends on
func (c *Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidThreadCount, c.Threads)
	}
	if _, err := catalog.ParseSortKey(c.Sort); err != nil {
		return err
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("max images must not be negative, got %d", c.MaxImages)
	}
	if c.Extension == "" {
		return fmt.Errorf("extension must not be empty")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.WriteAttempts < 1 {
		return fmt.Errorf("write attempts must be at least 1, got %d", c.WriteAttempts)
	}
	if c.ResultDir == "" {
		return fmt.Errorf("result directory must not be empty")
	}
	if !report.ValidFormat(c.ReportFormat) {
		return fmt.Errorf("unknown report format %q", c.ReportFormat)
	}
	if _, err := perrors.ParseStrategy(c.ErrorStrategy); err != nil {
		return err
	}
	if _, err := c.PromptMode(); err != nil {
		return err
	}
	return nil
}

// SortKey returns the parsed sort flag
func (c *Config) SortKey() (catalog.SortKey, error) {
	return catalog.ParseSortKey(c.Sort)
}

// Strategy returns the parsed error strategy
func (c *Config) Strategy() (perrors.ErrorHandlerStrategy, error) {
	return perrors.ParseStrategy(c.ErrorStrategy)
}

// PromptMode returns the parsed prompt setting
func (c *Config) PromptMode() (session.PromptMode, error) {
	switch strings.ToLower(c.Prompt) {
	case "", "auto":
		return session.PromptAuto, nil
	case "always":
		return session.PromptAlways, nil
	case "never":
		return session.PromptNever, nil
	default:
		return session.PromptAuto, fmt.Errorf("prompt must be auto, always or never, got %q", c.Prompt)
	}
}

// LoggingOptions returns the logger settings
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}
