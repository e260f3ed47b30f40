// Package calibration corrects the systematic glyph-height bias of the OCR
// engine. A reference string is rendered at a known font size, recognized,
// and the ratio between the known and measured sizes becomes a single
// multiplier applied to every line of the job.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/wudi/scrollpdf/ocr"
)

// ReferenceText is rendered at a known size to measure the engine's bias.
const ReferenceText = "ABCDEFGHIJKLMNOPQRSTUVWXYZ abcdefghijklmnopqrstuvwxyz 0123456789 `~!@#$%^&*()_+-=[]{}\\|;:'\",<.>/?"

// ErrNoReference is returned when recognizing the reference sample yields no
// lines to measure.
var ErrNoReference = errors.New("calibration: no OCR lines matched the reference text")

// Calibrator turns a known font size and the matching measured size (already
// converted to page units) into a multiplier.
type Calibrator interface {
	Calibrate(knownSizePx, measuredSizePx float64) (float64, error)
}

// Ratio is the default calibrator: known / measured.
type Ratio struct{}

func (Ratio) Calibrate(known, measured float64) (float64, error) {
	if known <= 0 || measured <= 0 || math.IsNaN(known) || math.IsNaN(measured) {
		return 0, fmt.Errorf("calibration: known %.3f and measured %.3f must be positive", known, measured)
	}
	return known / measured, nil
}

// Default is the calibrator used when none is configured.
var Default Calibrator = Ratio{}

// Factor is the per-job correction. KnownFontSize is in page units.
type Factor struct {
	KnownFontSize float64
	Multiplier      float64
}

// NewFactor measures the bias once for a job. knownFontSize is the page-unit
// size the reference was rendered at and measuredHeightPx its OCR height in
// raster pixels; ratio converts raster pixels to page units and
// workspaceScale is the raster's scale over document units.
func NewFactor(c Calibrator, knownFontSize, measuredHeightPx, ratio, workspaceScale float64) (Factor, error) {
	if c == nil {
		c = Default
	}
	if workspaceScale <= 0 || ratio <= 0 {
		return Factor{}, fmt.Errorf("calibration: ratio %.4f and workspace scale %.4f must be positive", ratio, workspaceScale)
	}
	m, err := c.Calibrate(knownFontSize, measuredHeightPx*ratio/workspaceScale)
	if err != nil {
		return Factor{}, err
	}
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return Factor{}, fmt.Errorf("calibration: multiplier %v is not a positive finite number", m)
	}
	return Factor{KnownFontSize: knownFontSize, Multiplier: m}, nil
}

// Uncalibrated is used when a job has no reference sample. Its multiplier
// cancels the workspace scale so font size equals the scaled line height.
func Uncalibrated(workspaceScale float64) Factor {
	if workspaceScale <= 0 {
		workspaceScale = 1
	}
	return Factor{Multiplier: workspaceScale}
}

// FontSize derives the PDF font size of a line lineHeight raster pixels tall.
func (f Factor) FontSize(lineHeight, ratio, workspaceScale float64) float64 {
	if workspaceScale <= 0 {
		workspaceScale = 1
	}
	return lineHeight * ratio * f.Multiplier / workspaceScale
}

// PageRatio is the aspect-fit scale that maps a rasterW x rasterH image onto a
// pageW x pageH page.
func PageRatio(rasterW, rasterH, pageW, pageH float64) float64 {
	if rasterW <= 0 || rasterH <= 0 {
		return 0
	}
	return math.Min(pageW/rasterW, pageH/rasterH)
}

// MeasureReference returns the mean line height of the recognized reference
// sample.
func MeasureReference(lines []ocr.Line) (float64, error) {
	var sum float64
	var n int
	for _, l := range lines {
		if h := l.BBox.Height(); h > 0 {
			sum += h
			n++
		}
	}
	if n == 0 {
		return 0, ErrNoReference
	}
	return sum / float64(n), nil
}

// MeasureSample recognizes img with eng and measures the reference height.
func MeasureSample(ctx context.Context, eng ocr.Engine, img image.Image) (float64, error) {
	lines, err := eng.Recognize(ctx, img, nil)
	if err != nil {
		return 0, fmt.Errorf("recognize reference sample: %w", err)
	}
	return MeasureReference(lines)
}
