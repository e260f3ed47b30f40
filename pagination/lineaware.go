package pagination

import (
	"math"

	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
)

// LineAware moves a cut that would bisect an OCR line down to the line's
// bottom edge, or up to its top when the bottom does not fit on the page.
// Cuts that fall between lines are kept as proposed.
type LineAware struct {
	Logger observability.Logger
}

func (LineAware) Kind() Kind { return KindLineAware }

func (s LineAware) Plan(totalHeight, pageHeight, margin int, lines []ocr.Line) ([]PageSpec, error) {
	log := s.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return plan(totalHeight, pageHeight, margin, func(prev, proposed, _, limit int) int {
		cut := safeCut(proposed, limit, lines)
		switch {
		case cut == proposed:
			log.Debug("no line straddles cut; keeping proposed cut",
				observability.Int("cut", proposed), observability.Int("previous", prev))
		case cut > proposed:
			log.Debug("moved cut below straddling line",
				observability.Int("proposed", proposed), observability.Int("cut", cut))
		default:
			log.Debug("moved cut above straddling line",
				observability.Int("proposed", proposed), observability.Int("cut", cut),
				observability.Int("limit", limit))
		}
		return cut
	})
}

// safeCut returns the first row at or after cut that no line straddles.
// Overlapping lines are followed until the cut clears all of them. When that
// row lies past limit, the last clear row before cut is returned instead.
func safeCut(cut, limit int, lines []ocr.Line) int {
	down := cut
	for moved := true; moved; {
		moved = false
		for _, l := range lines {
			if straddles(l, down) {
				down = int(math.Ceil(l.Bottom()))
				moved = true
			}
		}
	}
	if down <= limit {
		return down
	}
	up := cut
	for moved := true; moved; {
		moved = false
		for _, l := range lines {
			if straddles(l, up) {
				up = int(math.Floor(l.Top()))
				moved = true
			}
		}
	}
	return up
}

func straddles(l ocr.Line, row int) bool {
	return l.Top() < float64(row) && float64(row) < l.Bottom()
}
