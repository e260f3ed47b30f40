// Package pagination decides where a tall document raster is cut into pages.
//
// Every strategy walks the raster top to bottom proposing cuts one page body
// apart: the first page body is pageHeight-margin tall (no top margin), every
// following page body is pageHeight-2*margin. Strategies differ only in how a
// proposed cut is adjusted before it is accepted.
package pagination

import (
	"fmt"
	"strings"

	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
)

// PageSpec is one page's slice of the document raster, [CropY, CropY+CropHeight).
type PageSpec struct {
	Index       int
	CropY       int
	CropHeight  int
	IsFirstPage bool
	IsLastPage  bool
}

// End returns the exclusive bottom row of the slice.
func (p PageSpec) End() int { return p.CropY + p.CropHeight }

// Kind names a planning strategy.
type Kind string

const (
	KindFixed      Kind = "fixed"
	KindLineAware  Kind = "line-aware"
	KindWhitespace Kind = "whitespace"
)

// ParseKind accepts the configuration spelling of a strategy.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFixed, KindLineAware, KindWhitespace:
		return k, nil
	case "", "lineaware", "line_aware":
		return KindLineAware, nil
	default:
		return "", fmt.Errorf("unknown pagination strategy %q", s)
	}
}

// Strategy plans the page slices of a document.
type Strategy interface {
	Kind() Kind
	Plan(totalHeight, pageHeight, margin int, lines []ocr.Line) ([]PageSpec, error)
}

// RowSource exposes the row-level pixel test the whitespace strategy needs.
// *raster.Raster implements it.
type RowSource interface {
	RowIsBlank(y int, threshold uint8) bool
}

// Options configure strategy construction.
type Options struct {
	Logger observability.Logger
	// Rows is required by KindWhitespace.
	Rows RowSource
	// WhitespaceThreshold is the minimum luminance of a blank row. Zero
	// selects 250.
	WhitespaceThreshold uint8
	// WhitespaceWindow is the fraction of the page body searched above a
	// proposed cut. Zero selects 0.15.
	WhitespaceWindow float64
}

const (
	defaultWhitespaceThreshold = 250
	defaultWhitespaceWindow    = 0.15
)

// New returns the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	switch kind {
	case KindFixed:
		return FixedHeight{}, nil
	case KindLineAware, "":
		return LineAware{Logger: log}, nil
	case KindWhitespace:
		if opts.Rows == nil {
			return nil, failure.Input("pagination", "whitespace strategy needs a row source")
		}
		ws := WhitespaceDetected{
			Rows:      opts.Rows,
			Threshold: opts.WhitespaceThreshold,
			Window:    opts.WhitespaceWindow,
			Logger:    log,
		}
		if ws.Threshold == 0 {
			ws.Threshold = defaultWhitespaceThreshold
		}
		if ws.Window <= 0 {
			ws.Window = defaultWhitespaceWindow
		}
		return ws, nil
	default:
		return nil, failure.Input("pagination", "unknown strategy %q", kind)
	}
}

// adjustFunc moves a proposed cut. It receives the previous accepted cut,
// the proposal, the page body height that produced it and the furthest cut
// whose slice still fits on the page canvas.
type adjustFunc func(prev, proposed, target, limit int) int

func validate(totalHeight, pageHeight, margin int) error {
	switch {
	case totalHeight <= 0:
		return failure.Input("plan", "total height must be positive, got %d", totalHeight)
	case pageHeight <= 0:
		return failure.Input("plan", "page height must be positive, got %d", pageHeight)
	case margin < 0:
		return failure.Input("plan", "margin must not be negative, got %d", margin)
	case pageHeight <= 2*margin:
		return failure.Input("plan", "page height %d must exceed twice the margin %d", pageHeight, margin)
	}
	return nil
}

func plan(totalHeight, pageHeight, margin int, adjust adjustFunc) ([]PageSpec, error) {
	if err := validate(totalHeight, pageHeight, margin); err != nil {
		return nil, err
	}
	firstTarget := pageHeight - margin
	nextTarget := pageHeight - 2*margin

	cuts := []int{0}
	prev := 0
	for prev < totalHeight {
		target := nextTarget
		if prev == 0 {
			target = firstTarget
		}
		cut := prev + target
		// the canvas holds target rows plus one margin below them
		limit := cut + margin
		if cut < totalHeight && adjust != nil {
			cut = adjust(prev, cut, target, limit)
		}
		if cut > limit && cut < totalHeight {
			cut = prev + target
		}
		if cut >= totalHeight {
			cut = totalHeight
		}
		if cut <= prev {
			// an adjustment never moves backwards past the previous cut; fall
			// back to the unadjusted proposal
			cut = min(prev+target, totalHeight)
		}
		cuts = append(cuts, cut)
		prev = cut
	}
	return fromCuts(cuts), nil
}

func fromCuts(cuts []int) []PageSpec {
	specs := make([]PageSpec, 0, len(cuts)-1)
	for i := 1; i < len(cuts); i++ {
		h := cuts[i] - cuts[i-1]
		if h <= 0 {
			continue
		}
		specs = append(specs, PageSpec{
			Index:      len(specs),
			CropY:      cuts[i-1],
			CropHeight: h,
		})
	}
	if len(specs) > 0 {
		specs[0].IsFirstPage = true
		specs[len(specs)-1].IsLastPage = true
	}
	return specs
}

// Cuts lists the slice boundaries of specs: every CropY followed by the
// final end row.
func Cuts(specs []PageSpec) []int {
	if len(specs) == 0 {
		return nil
	}
	out := make([]int, 0, len(specs)+1)
	for _, s := range specs {
		out = append(out, s.CropY)
	}
	return append(out, specs[len(specs)-1].End())
}

// FixedHeight slices at exact page body intervals.
type FixedHeight struct{}

func (FixedHeight) Kind() Kind { return KindFixed }

func (FixedHeight) Plan(totalHeight, pageHeight, margin int, _ []ocr.Line) ([]PageSpec, error) {
	return plan(totalHeight, pageHeight, margin, nil)
}
