// Package logging configures the process-wide logrus logger and hands out
// component-scoped entries.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Format names accepted by Setup
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls logger setup
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Setup configures the standard logrus logger and returns the root entry
// tagged with a fresh run id.
func Setup(opts Options) (*log.Entry, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	case FormatJSON:
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	}

	return log.WithField("run_id", uuid.NewString()), nil
}

// Component returns a child entry for a named component. A nil parent
// falls back to the standard logger.
func Component(parent *log.Entry, name string) *log.Entry {
	if parent == nil {
		parent = log.NewEntry(log.StandardLogger())
	}
	return parent.WithField("component", name)
}
