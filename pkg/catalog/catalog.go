// Package catalog enumerates candidate images in a directory and orders
// them for dispatch.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
)

const (
	// DefaultExtension is the suffix an entry must carry to be considered an image
	DefaultExtension = ".jpeg"

	// DefaultMaxImages caps a single directory scan
	DefaultMaxImages = 10000
)

// ImageRecord is one enumerated image
type ImageRecord struct {
	Name string
	Size int64
}

// Config defines configuration for a Catalog
type Config struct {
	// Extension is the required filename suffix
	Extension string

	// MaxImages truncates a scan after this many matches; 0 disables the cap
	MaxImages int

	// Logger receives truncation warnings and per-file stat failures
	Logger *log.Entry
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Extension: DefaultExtension,
		MaxImages: DefaultMaxImages,
	}
}

// Catalog lists images in directories
type Catalog struct {
	config *Config
	logger *log.Entry
}

// New creates a Catalog
func New(config *Config) (*Catalog, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Extension == "" {
		return nil, fmt.Errorf("extension must not be empty")
	}
	if config.MaxImages < 0 {
		return nil, fmt.Errorf("max images must not be negative, got %d", config.MaxImages)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Catalog{config: config, logger: logger}, nil
}

// Enumerate returns every non-directory entry of dir whose name ends with
// the configured extension, paired with its size. Entries come back in the
// order the filesystem reports them.
func (c *Catalog) Enumerate(dir string) ([]ImageRecord, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrDirectoryUnavailable, dir, err)
	}
	defer f.Close()

	var records []ImageRecord
	for {
		entries, err := f.ReadDir(256)
		for _, entry := range entries {
			if !c.matches(entry) {
				continue
			}
			records = append(records, ImageRecord{
				Name: entry.Name(),
				Size: c.sizeOf(dir, entry.Name()),
			})

			if c.config.MaxImages > 0 && len(records) >= c.config.MaxImages {
				c.logger.WithFields(log.Fields{
					"dir":   dir,
					"limit": c.config.MaxImages,
				}).Warn("image limit reached, remaining entries ignored")
				return records, nil
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrDirectoryUnavailable, dir, err)
		}
	}

	return records, nil
}

func (c *Catalog) matches(entry os.DirEntry) bool {
	name := entry.Name()
	if entry.IsDir() {
		return false
	}
	return len(name) > len(c.config.Extension) && strings.HasSuffix(name, c.config.Extension)
}

// sizeOf stats the file; an unreadable size counts as 0
func (c *Catalog) sizeOf(dir, name string) int64 {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		c.logger.WithError(err).WithField("file", name).Debug("stat failed, size set to 0")
		return 0
	}
	return info.Size()
}

// Tasks turns sorted records into tasks for one dispatch round
func Tasks(records []ImageRecord, sourceDir, destDir string) []types.Task {
	tasks := make([]types.Task, len(records))
	for i, record := range records {
		tasks[i] = types.NewTask(sourceDir, destDir, record.Name)
	}
	return tasks
}
