// Package assembler turns planned page slices into PDF pages: the visible
// crop as a full-page image with an invisible, width-matched OCR text layer
// on top and an optional page-number footer.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"

	"github.com/wudi/scrollpdf/builder"
	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/contentstream"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/ir/semantic"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
	"github.com/wudi/scrollpdf/textlayer"
)

// Source selects where a page's OCR lines come from.
type Source string

const (
	// SourcePage recognizes every OCR-safe crop on its own.
	SourcePage Source = "page"
	// SourceDocument reuses lines recognized once over the whole document.
	SourceDocument Source = "document"
)

// ParseSource maps a configuration value to a Source; empty means page.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "", SourcePage:
		return SourcePage, nil
	case SourceDocument:
		return SourceDocument, nil
	default:
		return "", fmt.Errorf("unknown text layer source %q", s)
	}
}

// Layout is the geometry shared by every page of a job.
type Layout struct {
	// PageWidth, PageHeight and Margin are PDF page units.
	PageWidth  float64
	PageHeight float64
	Margin     float64
	// PageHeightPx is the height of a page canvas in raster pixels.
	PageHeightPx int
	// WorkspaceScale converts page units to raster pixels.
	WorkspaceScale float64
}

// RasterMargin is the margin in raster pixels.
func (l Layout) RasterMargin() int {
	return int(l.Margin * l.WorkspaceScale)
}

func (l Layout) validate() error {
	if l.PageWidth <= 0 || l.PageHeight <= 0 {
		return failure.Input("assemble", "page size %.2fx%.2f must be positive", l.PageWidth, l.PageHeight)
	}
	if l.PageHeightPx <= 0 {
		return failure.Input("assemble", "page height %dpx must be positive", l.PageHeightPx)
	}
	if l.WorkspaceScale <= 0 {
		return failure.Input("assemble", "workspace scale %.2f must be positive", l.WorkspaceScale)
	}
	if l.Margin < 0 {
		return failure.Input("assemble", "margin %.2f must not be negative", l.Margin)
	}
	return nil
}

// Result summarizes one assembled page.
type Result struct {
	Index int
	Words int
	// Truncated counts source rows that did not fit on the canvas.
	Truncated int
	Ratio     float64
}

// Assembler appends pages to a PDF builder in index order.
type Assembler struct {
	pdf        builder.PDFBuilder
	engine     ocr.Engine
	factor     calibration.Factor
	layout     Layout
	compositor textlayer.Compositor

	format          raster.Format
	quality         float64
	source          Source
	documentLines   []ocr.Line
	pageNumbers     bool
	pageNumberColor builder.Color
	pageNumberSize  float64
	textFont        []byte
	debugColor      builder.Color
	log             observability.Logger
	tracer          observability.Tracer
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithImageFormat sets how the visible crop is embedded. quality is in (0,1]
// and only affects JPEG.
func WithImageFormat(format raster.Format, quality float64) Option {
	return func(a *Assembler) {
		a.format = format
		a.quality = quality
	}
}

// WithThreshold sets the minimum OCR line confidence.
func WithThreshold(threshold float64) Option {
	return func(a *Assembler) { a.compositor.Threshold = threshold }
}

// WithBaselineFactor sets the font-size proportional baseline shift.
func WithBaselineFactor(f float64) Option {
	return func(a *Assembler) { a.compositor.BaselineFactor = f }
}

// WithDebugBoxes outlines every placed word.
func WithDebugBoxes(on bool) Option {
	return func(a *Assembler) { a.compositor.Debug = on }
}

// WithPageNumbers toggles the footer and sets its color.
func WithPageNumbers(on bool, c builder.Color) Option {
	return func(a *Assembler) {
		a.pageNumbers = on
		a.pageNumberColor = c
	}
}

// TextFontName is the resource name of a font set with WithTextFont.
const TextFontName = "TextLayer"

// WithTextFont embeds a TrueType font as the document font. The text layer
// is drawn and measured in it, and so is the footer.
func WithTextFont(ttf []byte) Option {
	return func(a *Assembler) { a.textFont = ttf }
}

// WithDocumentLines switches to SourceDocument with lines recognized over
// the full OCR-safe raster.
func WithDocumentLines(lines []ocr.Line) Option {
	return func(a *Assembler) {
		a.source = SourceDocument
		a.documentLines = lines
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(a *Assembler) {
		if t != nil {
			a.tracer = t
		}
	}
}

// PageNumberColor is the default footer gray (#999).
var PageNumberColor = builder.Gray(0x99 / 255.0)

const defaultPageNumberSize = 12

// New creates the document's initial page and returns an assembler that
// fills it and appends the rest. engine may be nil with SourceDocument.
func New(pdf builder.PDFBuilder, engine ocr.Engine, factor calibration.Factor, layout Layout, opts ...Option) (*Assembler, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}
	a := &Assembler{
		pdf:             pdf,
		engine:          engine,
		factor:          factor,
		layout:          layout,
		compositor:      textlayer.New(pdf),
		format:          raster.JPEG,
		quality:         1,
		source:          SourcePage,
		pageNumbers:     true,
		pageNumberColor: PageNumberColor,
		pageNumberSize:  defaultPageNumberSize,
		debugColor:      builder.Color{R: 1},
		log:             observability.NopLogger{},
		tracer:          observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.source == SourcePage && a.engine == nil {
		return nil, failure.Input("assemble", "an OCR engine is required for per-page recognition")
	}
	if a.textFont != nil {
		if pdf.PageCount() > 0 {
			return nil, failure.Input("assemble", "a text font must be set before the first page")
		}
		pdf.RegisterTrueTypeFont(TextFontName, a.textFont)
	}
	if pdf.PageCount() == 0 {
		pdf.NewPage(layout.PageWidth, layout.PageHeight)
	}
	return a, nil
}

// Assemble renders spec into the PDF. Both crops are released before it
// returns, whether or not it succeeds.
func (a *Assembler) Assemble(ctx context.Context, spec pagination.PageSpec, visible, ocrSafe *raster.Raster) (res Result, err error) {
	ctx, span := a.tracer.StartSpan(ctx, "assembler.page")
	span.SetTag(observability.AttrPage, spec.Index+1)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	res.Index = spec.Index
	log := a.log.With(observability.Int(observability.AttrPage, spec.Index+1))

	page, err := a.page(spec.Index)
	if err != nil {
		return res, err
	}

	topOffset := 0
	if !spec.IsFirstPage {
		topOffset = a.layout.RasterMargin()
	}
	visCrop, err := raster.CropPage(visible, spec.CropY, spec.CropHeight, a.layout.PageHeightPx, topOffset)
	if err != nil {
		return res, failure.Assembly("crop visible", err)
	}
	defer visCrop.Release()
	ocrCrop, err := raster.CropPage(ocrSafe, spec.CropY, spec.CropHeight, a.layout.PageHeightPx, topOffset)
	if err != nil {
		return res, failure.Assembly("crop ocr", err)
	}
	defer ocrCrop.Release()

	if res.Truncated = raster.Truncated(spec.CropHeight, a.layout.PageHeightPx, topOffset); res.Truncated > 0 {
		log.Warn("page content exceeds the canvas, rows dropped", observability.Int("rows", res.Truncated))
	}

	res.Ratio = calibration.PageRatio(float64(visCrop.Width), float64(visCrop.Height), a.layout.PageWidth, a.layout.PageHeight)
	log.Debug("assembling page",
		observability.Int(observability.AttrCropY, spec.CropY),
		observability.Int(observability.AttrCropHeight, spec.CropHeight),
		observability.Float64("ratio", res.Ratio))

	img, err := a.embed(visCrop.Pix)
	if err != nil {
		return res, failure.Assembly("embed image", err)
	}
	page.DrawImage(img, 0, 0, a.layout.PageWidth, a.layout.PageHeight)

	lines, err := a.lines(ctx, spec, ocrCrop, topOffset)
	if err != nil {
		if failure.Is(err, failure.KindOCREngine) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		return res, failure.Assembly("recognize", err)
	}

	instructions := a.compositor.Compose(lines, a.factor, res.Ratio, a.layout.WorkspaceScale)
	for _, in := range instructions {
		page.DrawText(in.Text, in.X, a.layout.PageHeight-in.Y, builder.TextOptions{
			FontSize:    in.FontSize,
			RenderMode:  contentstream.TextInvisible,
			CharSpacing: in.CharSpace,
		})
		if in.Rect != nil {
			page.DrawRectangle(in.Rect.X, a.layout.PageHeight-in.Rect.Y-in.Rect.Height, in.Rect.Width, in.Rect.Height, builder.RectOptions{
				Stroke:      true,
				StrokeColor: a.debugColor,
				LineWidth:   0.25,
			})
		}
	}
	res.Words = len(instructions)

	if a.pageNumbers {
		m := a.layout.Margin / 2
		size := a.pageNumberSize
		// vertically centered on the footer point
		page.DrawText(strconv.Itoa(spec.Index+1), a.layout.PageWidth-m, m-size*0.35, builder.TextOptions{
			FontSize: size,
			Color:    a.pageNumberColor,
			Align:    builder.HAlignCenter,
		})
	}
	log.Debug("page assembled", observability.Int(observability.AttrWords, res.Words))
	return res, nil
}

// page returns the builder for index. Pages must be assembled in order; the
// first one already exists.
func (a *Assembler) page(index int) (builder.PageBuilder, error) {
	count := a.pdf.PageCount()
	switch {
	case index < 0 || index > count:
		return nil, failure.Assembly("page", fmt.Errorf("page %d out of order, %d pages built", index+1, count))
	case index < count:
		return a.pdf.Page(index), nil
	default:
		return a.pdf.NewPage(a.layout.PageWidth, a.layout.PageHeight), nil
	}
}

func (a *Assembler) embed(img *image.RGBA) (*semantic.Image, error) {
	if a.format == raster.PNG {
		return builder.FromImage(img), nil
	}
	data, err := raster.Encode(img, raster.JPEG, a.quality)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return builder.FromJPEG(data, b.Dx(), b.Dy())
}

// lines returns OCR lines in the crop canvas' coordinates.
func (a *Assembler) lines(ctx context.Context, spec pagination.PageSpec, crop *raster.Crop, topOffset int) ([]ocr.Line, error) {
	if a.source == SourceDocument {
		drawable := crop.Content.Dy()
		within := ocr.Within(a.documentLines, float64(spec.CropY), float64(spec.CropY+drawable))
		return ocr.Rebase(within, float64(topOffset-spec.CropY)), nil
	}
	c := crop.Content
	region := &ocr.Region{X: float64(c.Min.X), Y: float64(c.Min.Y), Width: float64(c.Dx()), Height: float64(c.Dy())}
	return a.engine.Recognize(ctx, crop.Pix, region)
}
