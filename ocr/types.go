package ocr

import (
	"context"
	"image"
	"strings"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Rect converts the region to an integer rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width+0.5), int(r.Y+r.Height+0.5))
}

// BBox is an axis-aligned box in raster pixels, top-left origin.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Baseline holds the vertical position of a line's baseline at its left (Y0)
// and right (Y1) ends.
type Baseline struct {
	Y0, Y1 float64
}

// Word is a single recognized token.
type Word struct {
	Text       string
	BBox       BBox
	Confidence float64
}

// Line groups words that share a baseline. Confidence is on a 0-100 scale.
type Line struct {
	Text       string
	BBox       BBox
	Baseline   Baseline
	Confidence float64
	Words      []Word
}

// Top and Bottom expose the vertical extent used by the page planner.
func (l Line) Top() float64    { return l.BBox.Y0 }
func (l Line) Bottom() float64 { return l.BBox.Y1 }

// Options configure an engine instance for the lifetime of one job.
type Options struct {
	// Languages lists trained-data names such as "eng".
	Languages []string
	// CustomWords seeds the engine dictionary, one word per entry.
	CustomWords []string
	// CharWhitelist restricts recognition to these characters. Empty means
	// unrestricted.
	CharWhitelist string
	// PageSegMode and EngineMode are passed through as engine-native values
	// (Tesseract PSM / OEM).
	PageSegMode string
	EngineMode  string
	// DPI is the effective resolution hint for the rasters.
	DPI int
	// TessdataPrefix overrides the trained-data directory when set.
	TessdataPrefix string
	// Ignorable lists error message fragments the adapter treats as benign.
	Ignorable []string
}

// Engine recognizes text in page crops. Implementations are stateful and
// single-threaded; callers serialize access.
type Engine interface {
	// Recognize runs OCR on img. When region is non-nil only that part of the
	// image is read; coordinates in the result are always relative to img.
	Recognize(ctx context.Context, img image.Image, region *Region) ([]Line, error)
	// Terminate releases the engine. It is safe to call more than once.
	Terminate() error
}

// Factory initializes an engine for a job.
type Factory func(ctx context.Context, opts Options) (Engine, error)

// Words flattens the words of lines in reading order.
func Words(lines []Line) []Word {
	var out []Word
	for _, l := range lines {
		out = append(out, l.Words...)
	}
	return out
}

// Text joins the line texts with newlines.
func Text(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}
