package transform

import (
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultQuality is the JPEG quality used for every derivative
	DefaultQuality = 75

	// DefaultThumbnailSize is the width and height of a thumbnail
	DefaultThumbnailSize = 320

	defaultContrast  = 20
	defaultBlurSigma = 3
)

// ImagingLibrary implements Library with github.com/disintegration/imaging
type ImagingLibrary struct {
	// Quality is the JPEG encode quality, 1..100
	Quality int

	// ThumbnailSize is the side of the square thumbnail
	ThumbnailSize int

	// Contrast is the percentage passed to AdjustContrast
	Contrast float64

	// BlurSigma is the gaussian blur sigma
	BlurSigma float64
}

// NewImagingLibrary creates a library with the default transform parameters
func NewImagingLibrary(quality int) *ImagingLibrary {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &ImagingLibrary{
		Quality:       quality,
		ThumbnailSize: DefaultThumbnailSize,
		Contrast:      defaultContrast,
		BlurSigma:     defaultBlurSigma,
	}
}

// Decode opens and decodes the image at path
func (l *ImagingLibrary) Decode(path string) (Handle, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Apply produces a new image; src is left untouched
func (l *ImagingLibrary) Apply(kind Kind, src Handle) (Handle, error) {
	if src == nil {
		return nil, fmt.Errorf("%s: nil image", kind)
	}

	switch kind {
	case Contrast:
		return imaging.AdjustContrast(src, l.Contrast), nil
	case Blur:
		return imaging.Blur(src, l.BlurSigma), nil
	case Sepia:
		return imaging.AdjustFunc(src, sepia), nil
	case Thumbnail:
		return imaging.Thumbnail(src, l.ThumbnailSize, l.ThumbnailSize, imaging.Lanczos), nil
	case Grayscale:
		return imaging.Grayscale(src), nil
	default:
		return nil, fmt.Errorf("unsupported transform %d", int(kind))
	}
}

// Encode writes img to path; the format follows the path's extension
func (l *ImagingLibrary) Encode(img Handle, path string) error {
	return imaging.Save(img, path, imaging.JPEGQuality(l.Quality))
}

// Release is a no-op; decoded images are ordinary Go values
func (l *ImagingLibrary) Release(Handle) {}

func sepia(c color.NRGBA) color.NRGBA {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return color.NRGBA{
		R: clamp(0.393*r + 0.769*g + 0.189*b),
		G: clamp(0.349*r + 0.686*g + 0.168*b),
		B: clamp(0.272*r + 0.534*g + 0.131*b),
		A: c.A,
	}
}

func clamp(v float64) uint8 {
	return uint8(math.Min(255, math.Round(v)))
}
