package builder

import (
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/font/gofont/gomono"

	"github.com/wudi/scrollpdf/contentstream"
	"github.com/wudi/scrollpdf/ir/semantic"
)

func TestBuilder_DrawTextPopulatesResourcesAndOps(t *testing.T) {
	b := NewBuilder()
	font := &semantic.Font{BaseFont: "Helvetica-Bold", Widths: map[int]int{'H': 700}}
	b.RegisterFont("Body", font)

	b.NewPage(200, 200).
		DrawText("Hello", 10, 20, TextOptions{
			Font:        "Body",
			FontSize:    16,
			Color:       Color{R: 0.1, G: 0.2, B: 0.3},
			RenderMode:  contentstream.TextFillStroke,
			CharSpacing: 0.5,
		}).
		Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected one page, got %d", len(doc.Pages))
	}
	page := doc.Pages[0]
	if page.Resources == nil || page.Resources.Fonts["Body"] != font {
		t.Fatalf("font not registered on page resources")
	}
	ops := page.Contents[0].Operations
	expectOperators := []string{"BT", "Tf", "Tc", "Tr", "Tm", "rg", "RG", "Tj", "ET"}
	if len(ops) != len(expectOperators) {
		t.Fatalf("got %d operations, want %d", len(ops), len(expectOperators))
	}
	for i, op := range expectOperators {
		if ops[i].Operator != op {
			t.Fatalf("operation %d = %s, want %s", i, ops[i].Operator, op)
		}
	}
	if nameOp, ok := ops[1].Operands[0].(semantic.NameOperand); !ok || nameOp.Value != "Body" {
		t.Fatalf("Tf not set to Body font")
	}
	tm := ops[4].Operands
	if tm[4].(semantic.NumberOperand).Value != 10 || tm[5].(semantic.NumberOperand).Value != 20 {
		t.Fatalf("Tm coordinates not set: %+v", tm)
	}
	if tj := ops[7].Operands[0].(semantic.StringOperand); string(tj.Value) != "Hello" {
		t.Fatalf("Tj text mismatch: %q", tj.Value)
	}
}

func TestBuilder_InvisibleTextUsesDefaultFont(t *testing.T) {
	b := NewBuilder()
	b.NewPage(612, 792).
		DrawText("Grüße", 72, 700, TextOptions{FontSize: 11, Color: Gray(0.2), RenderMode: contentstream.TextInvisible}).
		Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	page := doc.Pages[0]
	font := page.Resources.Fonts[defaultFontResource]
	if font == nil || font.Subtype != "TrueType" {
		t.Fatalf("default TrueType font not registered: %+v", page.Resources.Fonts)
	}
	var mode, text semantic.Operation
	for _, op := range page.Contents[0].Operations {
		switch op.Operator {
		case "Tr":
			mode = op
		case "Tj":
			text = op
		case "rg", "RG":
			t.Fatalf("invisible text should not set colors")
		}
	}
	if v := mode.Operands[0].(semantic.NumberOperand).Value; v != 3 {
		t.Fatalf("render mode = %v, want 3", v)
	}
	if got := text.Operands[0].(semantic.StringOperand).Value; string(got) != "Gr\xfc\xdfe" {
		t.Fatalf("text not WinAnsi encoded: %q", got)
	}
}

func TestBuilder_TextWidthAndAlignment(t *testing.T) {
	b := NewBuilder()
	w := b.TextWidth("12", 10)
	if w <= 0 {
		t.Fatalf("TextWidth = %v, want > 0", w)
	}
	if got := b.TextWidth("12", 20); got != 2*w {
		t.Fatalf("TextWidth not linear in size: %v vs %v", got, w)
	}
	b.NewPage(100, 100).DrawText("12", 50, 10, TextOptions{FontSize: 10, Align: HAlignCenter}).Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	for _, op := range doc.Pages[0].Contents[0].Operations {
		if op.Operator != "Tm" {
			continue
		}
		if x := op.Operands[4].(semantic.NumberOperand).Value; x != 50-w/2 {
			t.Fatalf("centered x = %v, want %v", x, 50-w/2)
		}
	}
}

func TestBuilder_DrawShapesAndImages(t *testing.T) {
	b := NewBuilder()
	img := &semantic.Image{
		Width:            2,
		Height:           3,
		ColorSpace:       "DeviceGray",
		BitsPerComponent: 8,
		Data:             []byte{0x00, 0xFF, 0, 0, 0, 0},
	}
	b.NewPage(100, 100).
		DrawImage(img, 0, 0, 100, 100).
		DrawRectangle(10, 20, 30, 40, RectOptions{StrokeColor: Color{R: 1}, LineWidth: 0.25}).
		DrawImage(img, 5, 5, 0, 0).
		Finish()

	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	page := doc.Pages[0]
	var operators []string
	for _, op := range page.Contents[0].Operations {
		operators = append(operators, op.Operator)
	}
	want := []string{"q", "cm", "Do", "Q", "q", "RG", "w", "re", "S", "Q", "q", "cm", "Do", "Q"}
	if len(operators) != len(want) {
		t.Fatalf("operators = %v, want %v", operators, want)
	}
	for i := range want {
		if operators[i] != want[i] {
			t.Fatalf("operators = %v, want %v", operators, want)
		}
	}
	if len(page.Resources.XObjects) != 1 || page.Resources.XObjects["Im1"] != img {
		t.Fatalf("expected one shared image resource, got %+v", page.Resources.XObjects)
	}
	cm := page.Contents[0].Operations[11].Operands
	if cm[0].(semantic.NumberOperand).Value != 2 || cm[3].(semantic.NumberOperand).Value != 3 {
		t.Fatalf("zero size should default to image dimensions: %+v", cm)
	}
}

func TestBuilder_PagesAndInfo(t *testing.T) {
	b := NewBuilder().SetLanguage("en-US").SetInfo(&semantic.DocumentInfo{Title: "Scroll"})
	b.NewPage(10, 10).Finish()
	b.NewPage(20, 30).Finish()
	if b.PageCount() != 2 {
		t.Fatalf("PageCount = %d", b.PageCount())
	}
	if b.Page(2) != nil || b.Page(-1) != nil {
		t.Fatalf("out of range page should be nil")
	}
	b.Page(1).DrawRectangle(0, 0, 1, 1, RectOptions{Fill: true, FillColor: Gray(0.5)})

	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	if doc.Lang != "en-US" || doc.Info.Title != "Scroll" {
		t.Fatalf("document fields not propagated: %+v", doc)
	}
	if doc.Pages[1].Index != 1 || doc.Pages[1].MediaBox.Height() != 30 {
		t.Fatalf("second page wrong: %+v", doc.Pages[1])
	}
	if len(doc.Pages[1].Contents) != 1 {
		t.Fatalf("late drawing lost")
	}
}

func TestBuilder_RegisteredTrueTypeBecomesDefault(t *testing.T) {
	b := NewBuilder().RegisterTrueTypeFont("Mono", gomono.TTF)
	if w1, w2 := b.TextWidth("ii", 10), b.TextWidth("WW", 10); w1 != w2 || w1 <= 0 {
		t.Fatalf("TextWidth = %v, %v, want equal monospaced widths", w1, w2)
	}
	b.NewPage(100, 100).DrawText("ok", 10, 10, TextOptions{FontSize: 10}).Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build doc: %v", err)
	}
	fonts := doc.Pages[0].Resources.Fonts
	if fonts["Mono"] == nil || fonts[defaultFontResource] != nil {
		t.Fatalf("page fonts = %v, want only Mono", fonts)
	}
}

func TestBuilder_FontErrorSurfacesOnBuild(t *testing.T) {
	b := NewBuilder().RegisterTrueTypeFont("Bad", []byte("nope"))
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected font error")
	}
}

func TestFromImageAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.Set(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 128})
	img := FromImage(src)
	if img.ColorSpace != "DeviceRGB" || len(img.Data) != 6 {
		t.Fatalf("unexpected samples: %+v", img)
	}
	if img.Data[3] != 40 || img.Data[5] != 60 {
		t.Fatalf("samples not copied: %v", img.Data)
	}
	if img.SMask == nil || img.SMask.Data[1] != 128 {
		t.Fatalf("soft mask missing: %+v", img.SMask)
	}

	opaque := image.NewRGBA(image.Rect(5, 5, 7, 6))
	for x := 5; x < 7; x++ {
		opaque.Set(x, 5, color.White)
	}
	if FromImage(opaque).SMask != nil {
		t.Fatalf("opaque image should not carry a mask")
	}
}

func TestFromJPEG(t *testing.T) {
	img, err := FromJPEG([]byte{0xFF, 0xD8}, 4, 3)
	if err != nil {
		t.Fatalf("FromJPEG: %v", err)
	}
	if img.Filter != "DCTDecode" || img.Width != 4 || img.Height != 3 {
		t.Fatalf("unexpected image: %+v", img)
	}
	if _, err := FromJPEG(nil, 1, 1); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, err := FromJPEG([]byte{1}, 0, 1); err == nil {
		t.Fatalf("expected error for zero width")
	}
}
