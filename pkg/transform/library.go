// Package transform turns one source image into its five derivatives.
package transform

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// Kind identifies one derivative image
type Kind int

const (
	// Contrast raises the contrast of the source
	Contrast Kind = iota
	// Blur applies a gaussian blur
	Blur
	// Sepia applies a sepia tone
	Sepia
	// Thumbnail produces a small fixed-size copy
	Thumbnail
	// Grayscale removes color
	Grayscale
)

// AllKinds lists every derivative in the order it is produced
var AllKinds = []Kind{Contrast, Blur, Sepia, Thumbnail, Grayscale}

// Prefix returns the output filename prefix
func (k Kind) Prefix() string {
	switch k {
	case Contrast:
		return "contrast"
	case Blur:
		return "blur"
	case Sepia:
		return "sepia"
	case Thumbnail:
		return "thumb"
	case Grayscale:
		return "gray"
	default:
		return "unknown"
	}
}

// String returns the prefix
func (k Kind) String() string {
	return k.Prefix()
}

// ParseKind maps a prefix back to its Kind
func ParseKind(name string) (Kind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(name, k.Prefix()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transform %q", name)
}

// OutputName returns "<prefix>_<filename>"
func OutputName(kind Kind, filename string) string {
	return kind.Prefix() + "_" + filename
}

// OutputPath returns the derivative's path inside destDir
func OutputPath(kind Kind, destDir, filename string) string {
	return filepath.Join(destDir, OutputName(kind, filename))
}

// Handle is a decoded image owned by the caller until released
type Handle = image.Image

// Library decodes, transforms and encodes images. Every handle returned by
// Decode or Apply must be passed to Release exactly once.
type Library interface {
	Decode(path string) (Handle, error)
	Apply(kind Kind, src Handle) (Handle, error)
	Encode(img Handle, path string) error
	Release(img Handle)
}
