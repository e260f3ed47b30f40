package assembler

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"golang.org/x/image/font/gofont/gomono"

	"github.com/wudi/scrollpdf/builder"
	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/ir/semantic"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
)

type fakeEngine struct {
	lines   []ocr.Line
	err     error
	regions []ocr.Region
	sizes   []image.Point
}

func (f *fakeEngine) Recognize(_ context.Context, img image.Image, region *ocr.Region) ([]ocr.Line, error) {
	if region != nil {
		f.regions = append(f.regions, *region)
	}
	f.sizes = append(f.sizes, img.Bounds().Size())
	return f.lines, f.err
}

func (f *fakeEngine) Terminate() error { return nil }

var layout = Layout{PageWidth: 100, PageHeight: 200, Margin: 10, PageHeightPx: 200, WorkspaceScale: 1}

func helloLine(top float64) ocr.Line {
	box := ocr.BBox{X0: 10, Y0: top, X1: 60, Y1: top + 20}
	return ocr.Line{
		Text:       "hello",
		BBox:       box,
		Baseline:   ocr.Baseline{Y0: top + 18, Y1: top + 18},
		Confidence: 90,
		Words:      []ocr.Word{{Text: "hello", BBox: box, Confidence: 90}},
	}
}

func ops(t *testing.T, doc *semantic.Document, page int, operator string) []semantic.Operation {
	t.Helper()
	var out []semantic.Operation
	for _, op := range doc.Pages[page].Contents[0].Operations {
		if op.Operator == operator {
			out = append(out, op)
		}
	}
	return out
}

func num(op semantic.Operation, i int) float64 {
	return op.Operands[i].(semantic.NumberOperand).Value
}

func specs() []pagination.PageSpec {
	return []pagination.PageSpec{
		{Index: 0, CropY: 0, CropHeight: 190, IsFirstPage: true},
		{Index: 1, CropY: 190, CropHeight: 180, IsLastPage: true},
	}
}

func TestAssembleTwoPages(t *testing.T) {
	pdf := builder.NewBuilder()
	eng := &fakeEngine{lines: []ocr.Line{helloLine(50)}}
	a, err := New(pdf, eng, calibration.Uncalibrated(1), layout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if pdf.PageCount() != 1 {
		t.Fatalf("initial page not created")
	}
	visible, ocrSafe := raster.New(100, 370), raster.New(100, 370)
	for _, spec := range specs() {
		res, err := a.Assemble(context.Background(), spec, visible, ocrSafe)
		if err != nil {
			t.Fatalf("Assemble(%d): %v", spec.Index, err)
		}
		if res.Words != 1 || res.Ratio != 1 || res.Truncated != 0 {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if visible.Released() || ocrSafe.Released() {
		t.Fatalf("document rasters belong to the caller")
	}
	doc, err := pdf.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(doc.Pages))
	}

	wantRegions := []ocr.Region{{X: 0, Y: 0, Width: 100, Height: 190}, {X: 0, Y: 10, Width: 100, Height: 180}}
	for i, r := range eng.regions {
		if r != wantRegions[i] {
			t.Fatalf("region %d = %+v, want %+v", i, r, wantRegions[i])
		}
		if eng.sizes[i] != (image.Point{X: 100, Y: 200}) {
			t.Fatalf("crop %d size = %v", i, eng.sizes[i])
		}
	}

	cm := ops(t, doc, 0, "cm")[0]
	if num(cm, 0) != 100 || num(cm, 3) != 200 || num(cm, 4) != 0 || num(cm, 5) != 0 {
		t.Fatalf("image should fill the page: %+v", cm.Operands)
	}
	img := doc.Pages[0].Resources.XObjects["Im1"]
	if img == nil || img.Filter != "DCTDecode" || img.Height != 200 {
		t.Fatalf("expected page-height JPEG, got %+v", img)
	}

	tr := ops(t, doc, 0, "Tr")
	if len(tr) != 1 || num(tr[0], 0) != 3 {
		t.Fatalf("expected one invisible text run, got %+v", tr)
	}
	// font size 20 from the line height; baseline 68 + 0.25*20 = 73 from the top.
	tm := ops(t, doc, 0, "Tm")
	if num(tm[0], 4) != 10 || num(tm[0], 5) != 127 {
		t.Fatalf("text placed at (%v,%v), want (10,127)", num(tm[0], 4), num(tm[0], 5))
	}
	tf := ops(t, doc, 0, "Tf")
	if num(tf[0], 1) != 20 {
		t.Fatalf("font size = %v, want 20", num(tf[0], 1))
	}
	tc := ops(t, doc, 0, "Tc")
	want := (50 - pdf.TextWidth("hello", 20)) / 4
	if len(tc) != 1 || math.Abs(num(tc[0], 0)-want) > 1e-9 {
		t.Fatalf("char spacing = %+v, want %v", tc, want)
	}

	tj := ops(t, doc, 1, "Tj")
	if footer := tj[len(tj)-1].Operands[0].(semantic.StringOperand); string(footer.Value) != "2" {
		t.Fatalf("footer = %q, want 2", footer.Value)
	}
	rg := ops(t, doc, 1, "rg")
	if len(rg) != 1 || math.Abs(num(rg[0], 0)-0.6) > 1e-9 {
		t.Fatalf("footer color = %+v, want #999", rg)
	}
}

func TestAssembleDocumentLinesAreRebased(t *testing.T) {
	pdf := builder.NewBuilder()
	// the second line starts at document row 240; page two copies from row 190
	// with a 10 row top offset, so it lands at canvas row 60.
	lines := []ocr.Line{helloLine(50), helloLine(240)}
	a, err := New(pdf, nil, calibration.Uncalibrated(1), layout, WithDocumentLines(lines), WithPageNumbers(false, builder.Color{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	visible, ocrSafe := raster.New(100, 370), raster.New(100, 370)
	for _, spec := range specs() {
		res, err := a.Assemble(context.Background(), spec, visible, ocrSafe)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if res.Words != 1 {
			t.Fatalf("page %d placed %d words, want 1", spec.Index, res.Words)
		}
	}
	doc, err := pdf.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tm := ops(t, doc, 1, "Tm")
	if len(tm) != 1 || num(tm[0], 5) != 200-(78+5) {
		t.Fatalf("rebased text y = %+v, want %v", tm, 200-(78+5))
	}
}

func TestAssembleDebugBoxesAndPNG(t *testing.T) {
	pdf := builder.NewBuilder()
	eng := &fakeEngine{lines: []ocr.Line{helloLine(50)}}
	a, err := New(pdf, eng, calibration.Uncalibrated(1), layout,
		WithDebugBoxes(true), WithImageFormat(raster.PNG, 1), WithPageNumbers(false, builder.Color{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Assemble(context.Background(), specs()[0], raster.New(100, 370), raster.New(100, 370)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	doc, _ := pdf.Build()
	re := ops(t, doc, 0, "re")
	if len(re) != 1 || num(re[0], 1) != 130 || num(re[0], 3) != 20 {
		t.Fatalf("debug rect = %+v", re)
	}
	if img := doc.Pages[0].Resources.XObjects["Im1"]; img.Filter != "" || img.ColorSpace != "DeviceRGB" {
		t.Fatalf("PNG pages embed raw samples, got %+v", img)
	}
}

func TestAssembleLowConfidenceLinesDropped(t *testing.T) {
	pdf := builder.NewBuilder()
	low := helloLine(50)
	low.Confidence = 30
	a, err := New(pdf, &fakeEngine{lines: []ocr.Line{low}}, calibration.Uncalibrated(1), layout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Assemble(context.Background(), specs()[0], raster.New(100, 370), raster.New(100, 370))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Words != 0 {
		t.Fatalf("line at the threshold must be dropped")
	}
}

func TestAssembleErrors(t *testing.T) {
	ocrErr := failure.OCREngine("recognize", errors.New("engine crashed"))
	a, err := New(builder.NewBuilder(), &fakeEngine{err: ocrErr}, calibration.Uncalibrated(1), layout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = a.Assemble(context.Background(), specs()[0], raster.New(100, 370), raster.New(100, 370))
	if !failure.Is(err, failure.KindOCREngine) {
		t.Fatalf("OCR failure should keep its kind, got %v", err)
	}

	a, _ = New(builder.NewBuilder(), &fakeEngine{err: errors.New("plain")}, calibration.Uncalibrated(1), layout)
	_, err = a.Assemble(context.Background(), specs()[0], raster.New(100, 370), raster.New(100, 370))
	if failure.KindOf(err) != failure.KindAssembly {
		t.Fatalf("expected assembly error, got %v", err)
	}

	_, err = a.Assemble(context.Background(), pagination.PageSpec{Index: 3, CropY: 0, CropHeight: 10}, raster.New(100, 370), raster.New(100, 370))
	if failure.KindOf(err) != failure.KindAssembly {
		t.Fatalf("out of order page should fail, got %v", err)
	}

	released := raster.New(100, 370)
	released.Release()
	_, err = a.Assemble(context.Background(), specs()[0], released, raster.New(100, 370))
	if !failure.Is(err, failure.KindInput) {
		t.Fatalf("released raster should surface an input error, got %v", err)
	}

	if _, err := New(builder.NewBuilder(), nil, calibration.Uncalibrated(1), layout); !failure.Is(err, failure.KindInput) {
		t.Fatalf("missing engine should be rejected, got %v", err)
	}
	if _, err := New(builder.NewBuilder(), &fakeEngine{}, calibration.Uncalibrated(1), Layout{}); !failure.Is(err, failure.KindInput) {
		t.Fatalf("empty layout should be rejected, got %v", err)
	}
}

func TestAssembleWithTextFont(t *testing.T) {
	pdf := builder.NewBuilder()
	eng := &fakeEngine{lines: []ocr.Line{helloLine(50)}}
	a, err := New(pdf, eng, calibration.Uncalibrated(1), layout, WithTextFont(gomono.TTF))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Assemble(context.Background(), specs()[0], raster.New(100, 370), raster.New(100, 370)); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	doc, err := pdf.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// text layer and footer
	tf := ops(t, doc, 0, "Tf")
	if len(tf) != 2 {
		t.Fatalf("got %d font selections, want 2", len(tf))
	}
	for _, op := range tf {
		if name := op.Operands[0].(semantic.NameOperand).Value; name != TextFontName {
			t.Fatalf("text set in %q, want %q", name, TextFontName)
		}
	}
	if f := doc.Pages[0].Resources.Fonts[TextFontName]; f == nil || f.Subtype != "TrueType" {
		t.Fatalf("text font not embedded: %+v", f)
	}

	// widths come from the monospaced font
	if w1, w2 := pdf.TextWidth("iiiii", 20), pdf.TextWidth("WWWWW", 20); w1 != w2 {
		t.Fatalf("measured %v and %v, want monospaced widths", w1, w2)
	}
	tc := ops(t, doc, 0, "Tc")
	want := (50 - pdf.TextWidth("hello", 20)) / 4
	if len(tc) != 1 || math.Abs(num(tc[0], 0)-want) > 1e-9 {
		t.Fatalf("char spacing = %+v, want %v", tc, want)
	}

	used := builder.NewBuilder()
	used.NewPage(100, 200)
	if _, err := New(used, eng, calibration.Uncalibrated(1), layout, WithTextFont(gomono.TTF)); !failure.Is(err, failure.KindInput) {
		t.Fatalf("text font on a started document should be rejected, got %v", err)
	}
}

func TestAssembleReportsTruncation(t *testing.T) {
	a, err := New(builder.NewBuilder(), &fakeEngine{}, calibration.Uncalibrated(1), layout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Assemble(context.Background(), pagination.PageSpec{Index: 0, CropY: 0, CropHeight: 250, IsFirstPage: true}, raster.New(100, 370), raster.New(100, 370))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Truncated != 50 {
		t.Fatalf("Truncated = %d, want 50", res.Truncated)
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"": SourcePage, "page": SourcePage, "document": SourceDocument} {
		got, err := ParseSource(in)
		if err != nil || got != want {
			t.Fatalf("ParseSource(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSource("paragraph"); err == nil {
		t.Fatalf("expected error")
	}
}
