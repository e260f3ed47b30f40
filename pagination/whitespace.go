package pagination

import (
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
)

// WhitespaceDetected pulls a cut up to the nearest blank pixel row within a
// window above it, so page breaks land in the gaps between text.
type WhitespaceDetected struct {
	Rows      RowSource
	Threshold uint8
	// Window is the searched fraction of the page body height.
	Window float64
	Logger observability.Logger
}

func (WhitespaceDetected) Kind() Kind { return KindWhitespace }

func (s WhitespaceDetected) Plan(totalHeight, pageHeight, margin int, _ []ocr.Line) ([]PageSpec, error) {
	log := s.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return plan(totalHeight, pageHeight, margin, func(prev, proposed, target, _ int) int {
		window := int(float64(target) * s.Window)
		if window < 1 {
			window = 1
		}
		floor := max(prev+1, proposed-window)
		for y := proposed; y >= floor; y-- {
			if s.Rows.RowIsBlank(y, s.Threshold) {
				if y != proposed {
					log.Debug("moved cut up to blank row",
						observability.Int("proposed", proposed), observability.Int("cut", y))
				}
				return y
			}
		}
		log.Debug("no blank row near cut; keeping proposed cut", observability.Int("cut", proposed))
		return proposed
	})
}
