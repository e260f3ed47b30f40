package builder

import (
	"fmt"

	"github.com/wudi/scrollpdf/contentstream"
	"github.com/wudi/scrollpdf/fonts"
	"github.com/wudi/scrollpdf/ir/semantic"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	Page(index int) PageBuilder
	PageCount() int
	SetInfo(info *semantic.DocumentInfo) PDFBuilder
	SetLanguage(lang string) PDFBuilder
	RegisterFont(name string, font *semantic.Font) PDFBuilder
	RegisterTrueTypeFont(name string, data []byte) PDFBuilder
	// TextWidth measures text in the default font.
	TextWidth(text string, fontSize float64) float64
	Build() (*semantic.Document, error)
}

// PageBuilder provides a fluent API for page construction. Coordinates are
// PDF user space with the origin at the bottom-left corner.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(img *semantic.Image, x, y, width, height float64) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing.
type TextOptions struct {
	Font        string
	FontSize    float64
	Color       Color
	RenderMode  contentstream.TextRenderMode
	CharSpacing float64
	// Align shifts x so that it marks the left edge, centre or right edge.
	Align HAlign
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
}

// Color represents an RGB color with components in 0..1. The zero value
// leaves the current color untouched.
type Color struct {
	R, G, B float64
}

// Gray returns a neutral color of level v.
func Gray(v float64) Color { return Color{R: v, G: v, B: v} }

// HAlign controls horizontal text alignment around the x coordinate.
type HAlign string

const (
	HAlignLeft   HAlign = "left"
	HAlignCenter HAlign = "center"
	HAlignRight  HAlign = "right"
)

type builderImpl struct {
	pages        []*semantic.Page
	info         *semantic.DocumentInfo
	lang         string
	fonts        map[string]*semantic.Font
	defaultFont  string
	xobjectCount int
	xobjectNames map[*semantic.Image]string
	fontErr      error
}

type pageBuilderImpl struct {
	parent *builderImpl
	page   *semantic.Page
}

const (
	defaultFontResource = "F1"
	defaultFontSize     = 12
)

// NewBuilder constructs a PDFBuilder. The first registered font becomes the
// default; without one, Go Regular is loaded as F1 the first time text is
// drawn or measured.
func NewBuilder() PDFBuilder { return &builderImpl{} }

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &semantic.Page{
		Index:    len(b.pages),
		MediaBox: semantic.Rectangle{LLX: 0, LLY: 0, URX: w, URY: h},
	}
	b.pages = append(b.pages, p)
	return &pageBuilderImpl{parent: b, page: p}
}

func (b *builderImpl) Page(index int) PageBuilder {
	if index < 0 || index >= len(b.pages) {
		return nil
	}
	return &pageBuilderImpl{parent: b, page: b.pages[index]}
}

func (b *builderImpl) PageCount() int { return len(b.pages) }

func (b *builderImpl) SetInfo(info *semantic.DocumentInfo) PDFBuilder {
	b.info = info
	return b
}

func (b *builderImpl) SetLanguage(lang string) PDFBuilder {
	b.lang = lang
	return b
}

func (b *builderImpl) RegisterFont(name string, font *semantic.Font) PDFBuilder {
	return b.addFont(name, font)
}

func (b *builderImpl) RegisterTrueTypeFont(name string, data []byte) PDFBuilder {
	font, err := fonts.LoadTrueType(name, data)
	if err != nil {
		b.fontErr = err
		return b
	}
	return b.RegisterFont(name, font)
}

func (b *builderImpl) TextWidth(text string, fontSize float64) float64 {
	font, _ := b.fontForName("")
	return fonts.TextWidth(font, text, fontSize)
}

func (b *builderImpl) addFont(name string, font *semantic.Font) PDFBuilder {
	if font == nil {
		return b
	}
	if b.fonts == nil {
		b.fonts = make(map[string]*semantic.Font)
	}
	b.fonts[name] = font
	if b.defaultFont == "" {
		b.defaultFont = name
	}
	return b
}

func (b *builderImpl) Build() (*semantic.Document, error) {
	if b.fontErr != nil {
		return nil, b.fontErr
	}
	for i, p := range b.pages {
		p.Index = i
	}
	return &semantic.Document{
		Pages: b.pages,
		Info:  b.info,
		Lang:  b.lang,
	}, nil
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	if text == "" {
		return p
	}
	font, fontName := p.parent.fontForName(opts.Font)
	res := p.ensureResources()
	if _, ok := res.Fonts[fontName]; !ok && font != nil {
		res.Fonts[fontName] = font
	}
	size := opts.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	switch opts.Align {
	case HAlignCenter:
		x -= fonts.TextWidth(font, text, size) / 2
	case HAlignRight:
		x -= fonts.TextWidth(font, text, size)
	}

	ops := p.ensureContentOps()
	*ops = append(*ops, semantic.Op("BT"))
	*ops = append(*ops, semantic.Op("Tf", semantic.NameOperand{Value: fontName}, semantic.NumberOperand{Value: size}))
	if opts.CharSpacing != 0 {
		*ops = append(*ops, semantic.Op("Tc", semantic.NumberOperand{Value: opts.CharSpacing}))
	}
	if opts.RenderMode != contentstream.TextFill {
		*ops = append(*ops, semantic.Op("Tr", semantic.NumberOperand{Value: float64(opts.RenderMode)}))
	}
	*ops = append(*ops, semantic.Op("Tm", semantic.Numbers(1, 0, 0, 1, x, y)...))
	if !isZeroColor(opts.Color) && opts.RenderMode.Paints() {
		p.appendColorOp(ops, opts.Color, false)
		if opts.RenderMode.Strokes() {
			p.appendColorOp(ops, opts.Color, true)
		}
	}
	*ops = append(*ops, semantic.Op("Tj", semantic.StringOperand{Value: fonts.Encode(text)}))
	*ops = append(*ops, semantic.Op("ET"))
	return p
}

func (p *pageBuilderImpl) DrawImage(img *semantic.Image, x, y, width, height float64) PageBuilder {
	if img == nil {
		return p
	}
	res := p.ensureResources()
	name := p.parent.imageName(img)
	if _, exists := res.XObjects[name]; !exists {
		res.XObjects[name] = img
	}
	w := width
	if w == 0 {
		w = float64(img.Width)
	}
	h := height
	if h == 0 {
		h = float64(img.Height)
	}

	ops := p.ensureContentOps()
	*ops = append(*ops, semantic.Op("q"))
	*ops = append(*ops, semantic.Op("cm", semantic.Numbers(w, 0, 0, h, x, y)...))
	*ops = append(*ops, semantic.Op("Do", semantic.NameOperand{Value: name}))
	*ops = append(*ops, semantic.Op("Q"))
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	ops := p.ensureContentOps()
	*ops = append(*ops, semantic.Op("q"))
	if opts.Fill {
		p.appendColorOp(ops, opts.FillColor, false)
	}
	if opts.Stroke {
		p.appendColorOp(ops, opts.StrokeColor, true)
		if opts.LineWidth > 0 {
			*ops = append(*ops, semantic.Op("w", semantic.NumberOperand{Value: opts.LineWidth}))
		}
	}
	*ops = append(*ops, semantic.Op("re", semantic.Numbers(x, y, width, height)...))
	*ops = append(*ops, semantic.Op(paintOperator(opts.Fill, opts.Stroke)))
	*ops = append(*ops, semantic.Op("Q"))
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

// fontForName resolves a registered font, falling back to the default. The
// default resource is loaded on first use; a load failure is reported by
// Build.
func (b *builderImpl) fontForName(name string) (*semantic.Font, string) {
	if f, ok := b.fonts[name]; ok && name != "" {
		return f, name
	}
	if f, ok := b.fonts[b.defaultFont]; ok {
		return f, b.defaultFont
	}
	if b.fontErr == nil {
		font, err := fonts.GoRegular()
		if err != nil {
			b.fontErr = fmt.Errorf("load default font: %w", err)
		} else {
			b.addFont(defaultFontResource, font)
			return font, defaultFontResource
		}
	}
	return nil, defaultFontResource
}

func (b *builderImpl) imageName(img *semantic.Image) string {
	if b.xobjectNames == nil {
		b.xobjectNames = make(map[*semantic.Image]string)
	}
	if name, ok := b.xobjectNames[img]; ok {
		return name
	}
	b.xobjectCount++
	name := fmt.Sprintf("Im%d", b.xobjectCount)
	b.xobjectNames[img] = name
	return name
}

func (p *pageBuilderImpl) ensureResources() *semantic.Resources {
	if p.page.Resources == nil {
		p.page.Resources = &semantic.Resources{}
	}
	if p.page.Resources.Fonts == nil {
		p.page.Resources.Fonts = make(map[string]*semantic.Font)
	}
	if p.page.Resources.XObjects == nil {
		p.page.Resources.XObjects = make(map[string]*semantic.Image)
	}
	return p.page.Resources
}

func (p *pageBuilderImpl) ensureContentOps() *[]semantic.Operation {
	if len(p.page.Contents) == 0 {
		p.page.Contents = append(p.page.Contents, semantic.ContentStream{})
	}
	return &p.page.Contents[0].Operations
}

func (p *pageBuilderImpl) appendColorOp(ops *[]semantic.Operation, c Color, stroking bool) {
	if isZeroColor(c) {
		return
	}
	op := "rg"
	if stroking {
		op = "RG"
	}
	*ops = append(*ops, semantic.Op(op, semantic.Numbers(c.R, c.G, c.B)...))
}

func isZeroColor(c Color) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}
