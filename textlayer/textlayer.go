// Package textlayer turns OCR lines into invisible text placements that sit
// on top of the rendered glyphs, so selecting and searching the PDF hits the
// right pixels.
package textlayer

import (
	"strings"
	"unicode/utf8"

	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/ocr"
)

const (
	// DefaultThreshold is the minimum line confidence (exclusive, 0-100).
	DefaultThreshold = 30
	// DefaultBaselineFactor shifts text down by this fraction of the font
	// size to line the PDF baseline up with the OCR baseline.
	DefaultBaselineFactor = 0.25
)

// Measurer reports the advance width of text in the PDF font at fontSize.
type Measurer interface {
	TextWidth(text string, fontSize float64) float64
}

// Instruction places one word. Coordinates are page units with a top-left
// origin; Y is the text baseline.
type Instruction struct {
	Text      string
	X         float64
	Y         float64
	FontSize  float64
	CharSpace float64
	// Width is the OCR-measured word width in page units.
	Width float64
	// Rect outlines the word box when debugging is on.
	Rect *Rect
}

// Rect is a top-left anchored box in page units.
type Rect struct {
	X, Y, Width, Height float64
}

// Retain keeps the lines whose confidence is strictly above threshold.
func Retain(lines []ocr.Line, threshold float64) []ocr.Line {
	out := make([]ocr.Line, 0, len(lines))
	for _, l := range lines {
		if l.Confidence > threshold {
			out = append(out, l)
		}
	}
	return out
}

// CharSpace spreads the difference between the OCR width and the rendered
// width of an n-rune word over its n-1 gaps.
func CharSpace(wOcr, wRender float64, n int) float64 {
	if n < 2 {
		return 0
	}
	return (wOcr - wRender) / float64(n-1)
}

// Compositor builds the text layer of a page.
type Compositor struct {
	Threshold      float64
	BaselineFactor float64
	Debug          bool
	Measurer       Measurer
}

// New returns a compositor with the default threshold and baseline factor.
func New(m Measurer) Compositor {
	return Compositor{Threshold: DefaultThreshold, BaselineFactor: DefaultBaselineFactor, Measurer: m}
}

// Compose filters lines by confidence and emits one instruction per word.
// ratio maps raster pixels to page units; factor and workspaceScale size the
// font from the line height.
func (c Compositor) Compose(lines []ocr.Line, factor calibration.Factor, ratio, workspaceScale float64) []Instruction {
	var out []Instruction
	for _, line := range Retain(lines, c.Threshold) {
		fontSize := factor.FontSize(line.BBox.Height(), ratio, workspaceScale)
		if fontSize <= 0 {
			continue
		}
		baseline := (line.Baseline.Y0 + line.Baseline.Y1) / 2
		if line.Baseline == (ocr.Baseline{}) {
			baseline = line.BBox.Y1
		}
		y := baseline*ratio + c.BaselineFactor*fontSize

		words := line.Words
		if len(words) == 0 {
			words = []ocr.Word{{Text: line.Text, BBox: line.BBox, Confidence: line.Confidence}}
		}
		for _, w := range words {
			text := strings.TrimSpace(w.Text)
			if text == "" {
				continue
			}
			in := Instruction{
				Text:     text,
				X:        w.BBox.X0 * ratio,
				Y:        y,
				FontSize: fontSize,
				Width:    w.BBox.Width() * ratio,
			}
			if c.Measurer != nil {
				in.CharSpace = CharSpace(in.Width, c.Measurer.TextWidth(text, fontSize), utf8.RuneCountInString(text))
			}
			if c.Debug {
				in.Rect = &Rect{
					X:      w.BBox.X0 * ratio,
					Y:      w.BBox.Y0 * ratio,
					Width:  in.Width,
					Height: w.BBox.Height() * ratio,
				}
			}
			out = append(out, in)
		}
	}
	return out
}
