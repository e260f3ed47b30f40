// Package render turns markdown into the raster pair a conversion job
// consumes: a styled visible raster and an OCR-safe raster with the same
// geometry, plain black text and no decorations.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/go-text/typesetting/segmenter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/raster"
)

// Options size the output. All values are raster pixels.
type Options struct {
	// Width is the raster width.
	Width int
	// Padding surrounds the content on every side.
	Padding int
	// FontSize is the body text size.
	FontSize float64
	// LineHeight is a multiple of the font size. Zero selects 1.4.
	LineHeight float64
	Logger     observability.Logger
}

// DefaultOptions matches a US Letter page at 300 dpi with a 3.5x workspace
// scale over 16px body text.
func DefaultOptions() Options {
	return Options{Width: 2551, Padding: 300, FontSize: 56, LineHeight: 1.4}
}

// Result is a rendered document.
type Result struct {
	Visible *raster.Raster
	OCRSafe *raster.Raster
	// Words is the document vocabulary, suitable as a custom OCR dictionary.
	Words []string
	// Whitelist holds every character that appears in the document.
	Whitelist string
}

// Release drops both rasters.
func (r *Result) Release() {
	r.Visible.Release()
	r.OCRSafe.Release()
}

var (
	textColor  = color.RGBA{0x1f, 0x23, 0x28, 0xff}
	linkColor  = color.RGBA{0x09, 0x69, 0xda, 0xff}
	mutedColor = color.RGBA{0x59, 0x63, 0x6e, 0xff}
	codeFill   = color.RGBA{0xf6, 0xf8, 0xfa, 0xff}
	ruleColor  = color.RGBA{0xd0, 0xd7, 0xde, 0xff}
)

var headingScale = [...]float64{2.0, 1.5, 1.25, 1.1, 1.0, 0.9}

// Renderer lays out markdown with the Go font family.
type Renderer struct {
	opts  Options
	log   observability.Logger
	fonts [5]*opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

type variant int

const (
	regular variant = iota
	bold
	italic
	boldItalic
	mono
)

type faceKey struct {
	v    variant
	size float64
}

// New parses the embedded fonts and validates opts.
func New(opts Options) (*Renderer, error) {
	if opts.Width <= 0 || opts.FontSize <= 0 || opts.Padding < 0 {
		return nil, failure.Input("render", "invalid options width=%d padding=%d font size=%.2f", opts.Width, opts.Padding, opts.FontSize)
	}
	if opts.Width-2*opts.Padding < int(opts.FontSize) {
		return nil, failure.Input("render", "width %d leaves no room for text inside padding %d", opts.Width, opts.Padding)
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = 1.4
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	r := &Renderer{opts: opts, log: opts.Logger, faces: make(map[faceKey]font.Face)}
	for i, ttf := range [][]byte{goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF, gomono.TTF} {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("parse font: %w", err)
		}
		r.fonts[i] = f
	}
	return r, nil
}

// face returns a cached face for variant v at size px.
func (r *Renderer) face(v variant, size float64) (font.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := faceKey{v, size}
	if f, ok := r.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.fonts[v], &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, fmt.Errorf("font face: %w", err)
	}
	r.faces[key] = f
	return f, nil
}

// Render lays out markdown and draws both rasters.
func (r *Renderer) Render(ctx context.Context, markdown string) (*Result, error) {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	l := &layout{r: r, src: src, y: r.opts.Padding}
	if err := l.blocks(ctx, doc, r.opts.Padding); err != nil {
		return nil, err
	}
	if len(l.runs) == 0 {
		return nil, failure.Input("render", "document has no text")
	}
	height := l.y + r.opts.Padding

	visible := raster.New(r.opts.Width, height)
	ocrSafe := raster.New(r.opts.Width, height)
	for _, d := range l.decor {
		fill(visible.Pix, d.rect, d.color)
	}
	for _, run := range l.runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		draw(visible.Pix, run, run.color)
		if !run.decorative {
			draw(ocrSafe.Pix, run, color.Black)
		}
	}

	content := l.text.String()
	res := &Result{
		Visible:   visible,
		OCRSafe:   ocrSafe,
		Words:     words(content),
		Whitelist: ocr.Whitelist(content),
	}
	r.log.Debug("rendered markdown",
		observability.Int("width", r.opts.Width),
		observability.Int("height", height),
		observability.Int("runs", len(l.runs)),
		observability.Int("words", len(res.Words)))
	return res, nil
}

// Calibration renders the reference sample at knownPx on a tightly sized
// raster.
func (r *Renderer) Calibration(knownPx float64) (*raster.Raster, error) {
	if knownPx <= 0 {
		return nil, failure.Input("render", "calibration font size %.2f must be positive", knownPx)
	}
	face, err := r.face(regular, knownPx)
	if err != nil {
		return nil, err
	}
	sample := calibration.ReferenceText
	pad := int(knownPx)
	m := face.Metrics()
	w := font.MeasureString(face, sample).Ceil() + 2*pad
	h := (m.Ascent+m.Descent).Ceil() + 2*pad
	out := raster.New(w, h)
	draw(out.Pix, textRun{text: sample, face: face, x: pad, baseline: pad + m.Ascent.Ceil()}, color.Black)
	return out, nil
}

// style is the inline formatting of a span.
type style struct {
	bold, italic, mono, link bool
}

func (s style) variant() variant {
	switch {
	case s.mono:
		return mono
	case s.bold && s.italic:
		return boldItalic
	case s.bold:
		return bold
	case s.italic:
		return italic
	default:
		return regular
	}
}

type span struct {
	text  string
	style style
}

type textRun struct {
	text       string
	face       font.Face
	x          int
	baseline   int
	color      color.Color
	decorative bool
}

type decoration struct {
	rect  image.Rectangle
	color color.Color
}

// layout accumulates positioned runs top to bottom.
type layout struct {
	r     *Renderer
	src   []byte
	y     int
	runs  []textRun
	decor []decoration
	text  strings.Builder
}

func (l *layout) right() int { return l.r.opts.Width - l.r.opts.Padding }

func (l *layout) gap(f float64) { l.y += int(l.r.opts.FontSize * f) }

func (l *layout) blocks(ctx context.Context, n ast.Node, indent int) error {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.block(ctx, c, indent); err != nil {
			return err
		}
	}
	return nil
}

func (l *layout) block(ctx context.Context, n ast.Node, indent int) error {
	size := l.r.opts.FontSize
	switch v := n.(type) {
	case *ast.Heading:
		level := v.Level
		if level < 1 {
			level = 1
		}
		if level > len(headingScale) {
			level = len(headingScale)
		}
		l.gap(0.6)
		err := l.paragraph(l.inlines(v, style{bold: true}), size*headingScale[level-1], indent)
		l.gap(0.4)
		return err
	case *ast.Paragraph:
		err := l.paragraph(l.inlines(v, style{}), size, indent)
		l.gap(0.6)
		return err
	case *ast.TextBlock:
		return l.paragraph(l.inlines(v, style{}), size, indent)
	case *ast.List:
		return l.list(ctx, v, indent)
	case *ast.FencedCodeBlock:
		return l.code(v.Lines(), indent)
	case *ast.CodeBlock:
		return l.code(v.Lines(), indent)
	case *ast.Blockquote:
		top := l.y
		inset := int(size)
		if err := l.blocks(ctx, v, indent+inset); err != nil {
			return err
		}
		bar := image.Rect(indent, top, indent+int(size/6)+1, l.y)
		l.decor = append(l.decor, decoration{rect: bar, color: ruleColor})
		return nil
	case *ast.ThematicBreak:
		l.gap(0.5)
		rule := image.Rect(indent, l.y, l.right(), l.y+int(size/12)+1)
		l.decor = append(l.decor, decoration{rect: rule, color: ruleColor})
		l.gap(0.5)
		return nil
	case *ast.HTMLBlock:
		return nil
	default:
		return l.blocks(ctx, v, indent)
	}
}

func (l *layout) list(ctx context.Context, list *ast.List, indent int) error {
	size := l.r.opts.FontSize
	inset := int(size * 1.5)
	number := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		face, err := l.r.face(regular, size)
		if err != nil {
			return err
		}
		baseline := l.y + face.Metrics().Ascent.Ceil()
		marker, decorative := "•", true
		if list.IsOrdered() {
			marker, decorative = fmt.Sprintf("%d.", number), false
			number++
		}
		l.runs = append(l.runs, textRun{
			text:       marker,
			face:       face,
			x:          indent,
			baseline:   baseline,
			color:      mutedColor,
			decorative: decorative,
		})
		if !decorative {
			l.text.WriteString(marker + " ")
		}
		if err := l.blocks(ctx, item, indent+inset); err != nil {
			return err
		}
	}
	l.gap(0.4)
	return nil
}

func (l *layout) code(lines *text.Segments, indent int) error {
	size := l.r.opts.FontSize * 0.9
	face, err := l.r.face(mono, size)
	if err != nil {
		return err
	}
	step := int(size * l.r.opts.LineHeight)
	pad := int(size / 2)
	top := l.y
	l.y += pad
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(l.src)), "\r\n")
		line = strings.ReplaceAll(line, "\t", "    ")
		if strings.TrimSpace(line) != "" {
			l.runs = append(l.runs, textRun{
				text:     line,
				face:     face,
				x:        indent + pad,
				baseline: l.y + face.Metrics().Ascent.Ceil(),
				color:    textColor,
			})
			l.text.WriteString(line + "\n")
		}
		l.y += step
	}
	l.y += pad
	l.decor = append(l.decor, decoration{rect: image.Rect(indent, top, l.right(), l.y), color: codeFill})
	l.gap(0.6)
	return nil
}

// inlines flattens the inline children of n.
func (l *layout) inlines(n ast.Node, st style) []span {
	var out []span
	var walk func(ast.Node, style)
	walk = func(n ast.Node, st style) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				out = append(out, span{string(v.Segment.Value(l.src)), st})
				if v.HardLineBreak() {
					out = append(out, span{"\n", st})
				} else if v.SoftLineBreak() {
					out = append(out, span{" ", st})
				}
			case *ast.String:
				out = append(out, span{string(v.Value), st})
			case *ast.CodeSpan:
				s := st
				s.mono = true
				walk(v, s)
			case *ast.Emphasis:
				s := st
				if v.Level >= 2 {
					s.bold = true
				} else {
					s.italic = true
				}
				walk(v, s)
			case *ast.Link:
				s := st
				s.link = true
				walk(v, s)
			case *ast.AutoLink:
				s := st
				s.link = true
				out = append(out, span{string(v.Label(l.src)), s})
			case *ast.RawHTML:
			default:
				walk(v, st)
			}
		}
	}
	walk(n, st)
	return out
}

// paragraph wraps spans at line break opportunities within the text column.
func (l *layout) paragraph(spans []span, size float64, indent int) error {
	var runes []rune
	var styles []style
	for _, s := range spans {
		for _, r := range s.text {
			runes = append(runes, r)
			styles = append(styles, s.style)
		}
	}
	if len(strings.TrimSpace(string(runes))) == 0 {
		return nil
	}

	step := int(size * l.r.opts.LineHeight)
	base, err := l.r.face(regular, size)
	if err != nil {
		return err
	}
	ascent := base.Metrics().Ascent.Ceil()
	maxX := l.right()

	var seg segmenter.Segmenter
	seg.Init(runes)
	iter := seg.LineIterator()

	x := indent
	placed := false
	newline := func() {
		l.y += step
		x = indent
		placed = false
		l.text.WriteByte('\n')
	}
	for iter.Next() {
		line := iter.Line()
		pieces, err := l.pieces(line.Text, styles[line.Offset:line.Offset+len(line.Text)], size)
		if err != nil {
			return err
		}
		width := 0
		for _, p := range pieces {
			width += p.width
		}
		trimmed := width - trailingSpace(pieces)
		if placed && x+trimmed > maxX {
			newline()
		}
		for _, p := range pieces {
			if !placed && strings.TrimSpace(p.text) == "" {
				continue
			}
			c := textColor
			if p.style.link {
				c = linkColor
			}
			l.runs = append(l.runs, textRun{text: p.text, face: p.face, x: x, baseline: l.y + ascent, color: c})
			l.text.WriteString(p.text)
			x += p.width
			placed = true
		}
		if line.IsMandatoryBreak {
			newline()
		}
	}
	if placed {
		newline()
	}
	return nil
}

type piece struct {
	text  string
	style style
	face  font.Face
	width int
}

// pieces splits a break segment into same-style runs and measures them.
func (l *layout) pieces(rs []rune, styles []style, size float64) ([]piece, error) {
	var out []piece
	start := 0
	for i := 1; i <= len(rs); i++ {
		if i < len(rs) && styles[i] == styles[start] {
			continue
		}
		s := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return -1
			}
			return r
		}, string(rs[start:i]))
		if s != "" {
			face, err := l.r.face(styles[start].variant(), size)
			if err != nil {
				return nil, err
			}
			out = append(out, piece{text: s, style: styles[start], face: face, width: font.MeasureString(face, s).Ceil()})
		}
		start = i
	}
	return out, nil
}

func trailingSpace(pieces []piece) int {
	if len(pieces) == 0 {
		return 0
	}
	last := pieces[len(pieces)-1]
	trimmed := strings.TrimRight(last.text, " \t")
	if trimmed == last.text {
		return 0
	}
	return last.width - font.MeasureString(last.face, trimmed).Ceil()
}

func draw(dst *image.RGBA, run textRun, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: run.face,
		Dot:  fixed.P(run.x, run.baseline),
	}
	d.DrawString(run.text)
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, xdraw.Src)
}

// words returns the distinct words of s.
func words(s string) []string {
	runes := []rune(s)
	var seg segmenter.Segmenter
	seg.Init(runes)
	iter := seg.WordIterator()
	var out []string
	for iter.Next() {
		out = append(out, string(iter.Word().Text))
	}
	return ocr.Dictionary(out)
}
